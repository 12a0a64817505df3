package venue

import "math/big"

// OptionKind distinguishes calls from puts.
type OptionKind string

const (
	Call OptionKind = "call"
	Put  OptionKind = "put"
)

// Valid reports whether k is a known option kind.
func (k OptionKind) Valid() bool {
	return k == Call || k == Put
}

// OptionState is the lifecycle state of an option. Active transitions exactly
// once to Exercised or Expired; both are terminal.
type OptionState string

const (
	Active    OptionState = "active"
	Exercised OptionState = "exercised"
	Expired   OptionState = "expired"
)

// Pool is a collateral reservoir backing options on one underlying asset,
// denominated in one settlement asset. Identity is immutable; PriceFeed and
// Active can be changed by the admin.
type Pool struct {
	ID              uint64 `json:"id"`
	SettlementAsset string `json:"settlement_asset"`
	UnderlyingAsset string `json:"underlying_asset"`
	PriceFeed       string `json:"price_feed"`
	Name            string `json:"name"`
	Active          bool   `json:"active"`
}

// PoolAccounting aggregates a pool's liquidity state. At all times
// 0 <= LockedCollateral <= TotalLiquidity and TotalShares >= 0.
type PoolAccounting struct {
	TotalLiquidity   *big.Int `json:"total_liquidity"`
	LockedCollateral *big.Int `json:"locked_collateral"`
	TotalShares      *big.Int `json:"total_shares"`
}

// Option is a cash-settled American-style option written against a pool.
// All monetary fields are 7-decimal fixed point.
type Option struct {
	ID               uint64      `json:"id"`
	PoolID           uint64      `json:"pool_id"`
	Buyer            string      `json:"buyer"`
	Kind             OptionKind  `json:"kind"`
	Strike           *big.Int    `json:"strike"`
	Expiry           int64       `json:"expiry"` // unix seconds, inclusive exercise deadline
	Amount           *big.Int    `json:"amount"`
	PremiumPaid      *big.Int    `json:"premium_paid"`
	CollateralLocked *big.Int    `json:"collateral_locked"`
	State            OptionState `json:"state"`
}
