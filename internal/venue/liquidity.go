package venue

import (
	"context"
	"fmt"
	"math/big"

	"steptions/internal/fixedpoint"
	"steptions/internal/store"
)

// ProvideLiquidity deposits amount of the pool's settlement asset and issues
// LP shares at the pool's current share price: 1:1 for the first deposit,
// floor(amount * totalShares / totalLiquidity) afterwards. The deposit
// transfer and the bookkeeping commit are one atomic unit.
func (v *Venue) ProvideLiquidity(ctx context.Context, poolID uint64, provider string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := fixedpoint.CheckRange(amount); err != nil {
		return nil, err
	}
	if err := v.auth.Authorize(ctx, provider); err != nil {
		return nil, ErrUnauthorized
	}

	var (
		shares *big.Int
		after  PoolAccounting
	)
	err := v.run(ctx, "provide_liquidity", func(tx store.Tx) error {
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		if !pool.Active {
			return ErrPoolNotActive
		}

		totalLiquidity, err := readBig(tx, store.PoolLiquidityKey(poolID))
		if err != nil {
			return err
		}
		totalShares, err := readBig(tx, store.PoolSharesKey(poolID))
		if err != nil {
			return err
		}
		held, err := readBig(tx, store.ProviderSharesKey(poolID, provider))
		if err != nil {
			return err
		}

		// First deposit (or a pool fully drained by payoffs) bootstraps 1:1.
		if totalShares.Sign() == 0 || totalLiquidity.Sign() == 0 {
			shares = new(big.Int).Set(amount)
		} else {
			shares = new(big.Int).Mul(amount, totalShares)
			if err := fixedpoint.CheckRange(shares); err != nil {
				return err
			}
			shares.Quo(shares, totalLiquidity)
		}

		newLiquidity := new(big.Int).Add(totalLiquidity, amount)
		newShares := new(big.Int).Add(totalShares, shares)
		newHeld := new(big.Int).Add(held, shares)
		for _, q := range []*big.Int{newLiquidity, newShares, newHeld} {
			if err := fixedpoint.CheckRange(q); err != nil {
				return err
			}
		}

		if err := v.tokens.Transfer(ctx, pool.SettlementAsset, provider, v.custody, amount); err != nil {
			return fmt.Errorf("collecting deposit: %w", err)
		}

		if err := writeBig(tx, store.ProviderSharesKey(poolID, provider), newHeld); err != nil {
			return err
		}
		if err := writeBig(tx, store.PoolSharesKey(poolID), newShares); err != nil {
			return err
		}
		if err := writeBig(tx, store.PoolLiquidityKey(poolID), newLiquidity); err != nil {
			return err
		}

		locked, err := readBig(tx, store.PoolCollateralKey(poolID))
		if err != nil {
			return err
		}
		after = PoolAccounting{TotalLiquidity: newLiquidity, LockedCollateral: locked, TotalShares: newShares}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if v.metrics != nil {
		v.metrics.SetPoolAccounting(poolID, after.TotalLiquidity, after.LockedCollateral, after.TotalShares)
	}
	v.emit(Event{
		Type:      EventLiquidityProvided,
		PoolID:    poolID,
		Principal: provider,
		Amount:    amount,
		Shares:    shares,
	})
	return shares, nil
}

// WithdrawLiquidity redeems shareAmount of the provider's shares for their
// pro-rata slice of pool liquidity. The withdrawal is capped to the unlocked
// portion of the pool: collateral reserved against open options is
// untouchable. Works on paused pools, so providers are never trapped.
func (v *Venue) WithdrawLiquidity(ctx context.Context, poolID uint64, provider string, shareAmount *big.Int) (*big.Int, error) {
	if shareAmount == nil || shareAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := v.auth.Authorize(ctx, provider); err != nil {
		return nil, ErrUnauthorized
	}

	var (
		paid  *big.Int
		after PoolAccounting
	)
	err := v.run(ctx, "withdraw_liquidity", func(tx store.Tx) error {
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}

		held, err := readBig(tx, store.ProviderSharesKey(poolID, provider))
		if err != nil {
			return err
		}
		if held.Cmp(shareAmount) < 0 {
			return ErrInsufficientShares
		}

		totalLiquidity, err := readBig(tx, store.PoolLiquidityKey(poolID))
		if err != nil {
			return err
		}
		locked, err := readBig(tx, store.PoolCollateralKey(poolID))
		if err != nil {
			return err
		}
		totalShares, err := readBig(tx, store.PoolSharesKey(poolID))
		if err != nil {
			return err
		}

		paid = new(big.Int).Mul(shareAmount, totalLiquidity)
		if err := fixedpoint.CheckRange(paid); err != nil {
			return err
		}
		paid.Quo(paid, totalShares)

		unlocked := new(big.Int).Sub(totalLiquidity, locked)
		if paid.Cmp(unlocked) > 0 {
			return ErrInsufficientLiquidity
		}

		if err := v.tokens.Transfer(ctx, pool.SettlementAsset, v.custody, provider, paid); err != nil {
			return fmt.Errorf("paying withdrawal: %w", err)
		}

		newHeld := new(big.Int).Sub(held, shareAmount)
		newShares := new(big.Int).Sub(totalShares, shareAmount)
		newLiquidity := new(big.Int).Sub(totalLiquidity, paid)
		if err := writeBig(tx, store.ProviderSharesKey(poolID, provider), newHeld); err != nil {
			return err
		}
		if err := writeBig(tx, store.PoolSharesKey(poolID), newShares); err != nil {
			return err
		}
		if err := writeBig(tx, store.PoolLiquidityKey(poolID), newLiquidity); err != nil {
			return err
		}

		after = PoolAccounting{TotalLiquidity: newLiquidity, LockedCollateral: locked, TotalShares: newShares}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if v.metrics != nil {
		v.metrics.SetPoolAccounting(poolID, after.TotalLiquidity, after.LockedCollateral, after.TotalShares)
	}
	v.emit(Event{
		Type:      EventLiquidityWithdrawn,
		PoolID:    poolID,
		Principal: provider,
		Amount:    paid,
		Shares:    shareAmount,
	})
	return paid, nil
}
