package venue

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvideLiquidityFirstDepositBootstraps(t *testing.T) {
	f, poolID := newInitializedFixture(t)

	shares, err := f.venue.ProvideLiquidity(f.ctx, poolID, provider, unit(1000))
	require.NoError(t, err)
	require.Zero(t, shares.Cmp(unit(1000)), "first deposit is not 1:1")

	acct, err := f.venue.Accounting(f.ctx, poolID)
	require.NoError(t, err)
	require.Zero(t, acct.TotalLiquidity.Cmp(unit(1000)))
	require.Zero(t, acct.TotalShares.Cmp(unit(1000)))

	held, err := f.venue.ProviderShares(f.ctx, poolID, provider)
	require.NoError(t, err)
	require.Zero(t, held.Cmp(unit(1000)))

	// Funds moved into custody.
	bal, err := f.ledger.Balance(f.ctx, usdc, f.venue.Custody())
	require.NoError(t, err)
	require.Zero(t, bal.Cmp(unit(1000)))

	requireInvariants(t, f, poolID, provider)
}

func TestProvideLiquidityValidation(t *testing.T) {
	f, poolID := newInitializedFixture(t)

	_, err := f.venue.ProvideLiquidity(f.ctx, poolID, provider, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.venue.ProvideLiquidity(f.ctx, poolID, provider, big.NewInt(-5))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.venue.ProvideLiquidity(f.ctx, 99, provider, unit(10))
	require.ErrorIs(t, err, ErrPoolNotFound)

	require.NoError(t, f.venue.SetPoolStatus(f.ctx, poolID, false))
	_, err = f.venue.ProvideLiquidity(f.ctx, poolID, provider, unit(10))
	require.ErrorIs(t, err, ErrPoolNotActive)
}

func TestProvideLiquiditySecondDepositorPricedAtNAV(t *testing.T) {
	f, poolID := newInitializedFixture(t)
	second := "carol"
	require.NoError(t, f.ledger.Mint(f.ctx, usdc, second, unit(10_000)))

	_, err := f.venue.ProvideLiquidity(f.ctx, poolID, provider, unit(1000))
	require.NoError(t, err)

	// With no intervening activity NAV is still 1, so shares equal amount.
	shares, err := f.venue.ProvideLiquidity(f.ctx, poolID, second, unit(500))
	require.NoError(t, err)
	require.Zero(t, shares.Cmp(unit(500)))

	requireInvariants(t, f, poolID, provider, second)
}

func TestProvideLiquidityTransferFailureRollsBack(t *testing.T) {
	f, poolID := newInitializedFixture(t)
	pauper := "no-funds"

	_, err := f.venue.ProvideLiquidity(f.ctx, poolID, pauper, unit(10))
	require.Error(t, err)

	// No bookkeeping survived the aborted deposit.
	acct, err := f.venue.Accounting(f.ctx, poolID)
	require.NoError(t, err)
	require.Zero(t, acct.TotalLiquidity.Sign())
	require.Zero(t, acct.TotalShares.Sign())

	held, err := f.venue.ProviderShares(f.ctx, poolID, pauper)
	require.NoError(t, err)
	require.Zero(t, held.Sign())
}

func TestWithdrawLiquidityRoundTrip(t *testing.T) {
	f, poolID := newInitializedFixture(t)

	before, err := f.ledger.Balance(f.ctx, usdc, provider)
	require.NoError(t, err)

	shares, err := f.venue.ProvideLiquidity(f.ctx, poolID, provider, unit(1000))
	require.NoError(t, err)

	paid, err := f.venue.WithdrawLiquidity(f.ctx, poolID, provider, shares)
	require.NoError(t, err)
	require.Zero(t, paid.Cmp(unit(1000)), "round trip did not return the deposit exactly")

	after, err := f.ledger.Balance(f.ctx, usdc, provider)
	require.NoError(t, err)
	require.Zero(t, before.Cmp(after))

	acct, err := f.venue.Accounting(f.ctx, poolID)
	require.NoError(t, err)
	require.Zero(t, acct.TotalLiquidity.Sign())
	require.Zero(t, acct.TotalShares.Sign())

	requireInvariants(t, f, poolID, provider)
}

func TestWithdrawLiquidityPartial(t *testing.T) {
	f, poolID := newInitializedFixture(t)

	shares, err := f.venue.ProvideLiquidity(f.ctx, poolID, provider, unit(1000))
	require.NoError(t, err)

	half := new(big.Int).Quo(shares, big.NewInt(2))
	paid, err := f.venue.WithdrawLiquidity(f.ctx, poolID, provider, half)
	require.NoError(t, err)
	require.Zero(t, paid.Cmp(unit(500)))

	held, err := f.venue.ProviderShares(f.ctx, poolID, provider)
	require.NoError(t, err)
	require.Zero(t, held.Cmp(half))

	requireInvariants(t, f, poolID, provider)
}

func TestWithdrawLiquidityInsufficientShares(t *testing.T) {
	f, poolID := newInitializedFixture(t)

	shares, err := f.venue.ProvideLiquidity(f.ctx, poolID, provider, unit(100))
	require.NoError(t, err)

	tooMany := new(big.Int).Add(shares, big.NewInt(1))
	_, err = f.venue.WithdrawLiquidity(f.ctx, poolID, provider, tooMany)
	require.ErrorIs(t, err, ErrInsufficientShares)

	_, err = f.venue.WithdrawLiquidity(f.ctx, poolID, provider, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestWithdrawLiquidityCappedByLockedCollateral(t *testing.T) {
	f, poolID := newInitializedFixture(t)

	shares, err := f.venue.ProvideLiquidity(f.ctx, poolID, provider, unit(3000))
	require.NoError(t, err)

	// Lock 2100 units of collateral behind an option.
	expiry := f.clock.Now().Unix() + 86400
	_, err = f.venue.BuyOption(f.ctx, poolID, buyer, Call, unit(2100), expiry, unit(1))
	require.NoError(t, err)

	// The provider holds enough shares for a full withdrawal, but the
	// pro-rata amount exceeds the unlocked portion.
	_, err = f.venue.WithdrawLiquidity(f.ctx, poolID, provider, shares)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	// A small withdrawal inside the unlocked portion still works.
	paid, err := f.venue.WithdrawLiquidity(f.ctx, poolID, provider, unit(100))
	require.NoError(t, err)
	require.Positive(t, paid.Sign())

	requireInvariants(t, f, poolID, provider)
}

func TestWithdrawLiquidityAllowedOnPausedPool(t *testing.T) {
	f, poolID := newInitializedFixture(t)

	shares, err := f.venue.ProvideLiquidity(f.ctx, poolID, provider, unit(100))
	require.NoError(t, err)

	// Pausing a pool stops new trading but never traps existing positions.
	require.NoError(t, f.venue.SetPoolStatus(f.ctx, poolID, false))

	paid, err := f.venue.WithdrawLiquidity(f.ctx, poolID, provider, shares)
	require.NoError(t, err)
	require.Zero(t, paid.Cmp(unit(100)))
}

func TestShareConservationAcrossMixedActivity(t *testing.T) {
	f, poolID := newInitializedFixture(t)
	second := "carol"
	require.NoError(t, f.ledger.Mint(f.ctx, usdc, second, unit(10_000)))

	_, err := f.venue.ProvideLiquidity(f.ctx, poolID, provider, unit(5000))
	require.NoError(t, err)
	_, err = f.venue.ProvideLiquidity(f.ctx, poolID, second, unit(2500))
	require.NoError(t, err)

	expiry := f.clock.Now().Unix() + 86400
	_, err = f.venue.BuyOption(f.ctx, poolID, buyer, Put, unit(1500), expiry, unit(2))
	require.NoError(t, err)

	_, err = f.venue.WithdrawLiquidity(f.ctx, poolID, second, unit(1000))
	require.NoError(t, err)

	requireInvariants(t, f, poolID, provider, second)
}
