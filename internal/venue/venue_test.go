package venue

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"steptions/internal/auth"
	"steptions/internal/oracle"
	"steptions/internal/store"
	"steptions/internal/token"
)

const (
	admin    = "admin"
	provider = "alice"
	buyer    = "bob"
	usdc     = "USDC"
	btc      = "BTC"
	btcFeed  = "btc-feed"
)

// unit converts whole settlement-asset units to 7-decimal fixed point.
func unit(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(10_000_000))
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	ctx    context.Context
	venue  *Venue
	ledger *token.Ledger
	feed   *oracle.Static
	clock  *fakeClock
}

type discardSink struct{}

func (discardSink) Emit(Event) {}

// newFixture builds a venue on in-memory stores. The custody ledger runs on
// its own store, as in production.
func newFixture(t *testing.T, authorizer auth.Authorizer) *fixture {
	t.Helper()

	ledger := token.NewLedger(store.NewMemory())
	feed := oracle.NewStatic()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	v := New(Deps{
		Store:  store.NewMemory(),
		Tokens: ledger,
		Feed:   feed,
		Auth:   authorizer,
		Clock:  clock,
		Events: discardSink{},
	})

	return &fixture{
		ctx:    context.Background(),
		venue:  v,
		ledger: ledger,
		feed:   feed,
		clock:  clock,
	}
}

// newInitializedFixture also initializes the venue and creates a USDC/BTC
// pool with a funded provider.
func newInitializedFixture(t *testing.T) (*fixture, uint64) {
	t.Helper()

	f := newFixture(t, auth.AllowAll{})
	require.NoError(t, f.venue.Initialize(f.ctx, admin))

	poolID, err := f.venue.AddPool(f.ctx, usdc, btc, btcFeed, "BTC/USDC Options Pool")
	require.NoError(t, err)

	require.NoError(t, f.ledger.Mint(f.ctx, usdc, provider, unit(1_000_000)))
	require.NoError(t, f.ledger.Mint(f.ctx, usdc, buyer, unit(10_000)))
	return f, poolID
}

// requireInvariants checks the pool's solvency and share-conservation
// invariants against the listed providers.
func requireInvariants(t *testing.T, f *fixture, poolID uint64, providers ...string) {
	t.Helper()

	acct, err := f.venue.Accounting(f.ctx, poolID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, acct.LockedCollateral.Sign(), 0, "locked collateral negative")
	require.LessOrEqual(t, acct.LockedCollateral.Cmp(acct.TotalLiquidity), 0, "locked collateral exceeds liquidity")
	require.GreaterOrEqual(t, acct.TotalShares.Sign(), 0, "total shares negative")

	sum := big.NewInt(0)
	for _, p := range providers {
		held, err := f.venue.ProviderShares(f.ctx, poolID, p)
		require.NoError(t, err)
		sum.Add(sum, held)
	}
	require.Zero(t, sum.Cmp(acct.TotalShares), "provider shares do not sum to total shares")
}

func TestInitialize(t *testing.T) {
	f := newFixture(t, auth.AllowAll{})

	require.NoError(t, f.venue.Initialize(f.ctx, admin))

	got, err := f.venue.Admin(f.ctx)
	require.NoError(t, err)
	require.Equal(t, admin, got)

	pools, err := f.venue.PoolCounter(f.ctx)
	require.NoError(t, err)
	require.Zero(t, pools)

	options, err := f.venue.OptionCounter(f.ctx)
	require.NoError(t, err)
	require.Zero(t, options)
}

func TestInitializeTwice(t *testing.T) {
	f := newFixture(t, auth.AllowAll{})

	require.NoError(t, f.venue.Initialize(f.ctx, admin))
	require.ErrorIs(t, f.venue.Initialize(f.ctx, admin), ErrAlreadyInitialized)
}

func TestOperationsRequireInitialization(t *testing.T) {
	f := newFixture(t, auth.AllowAll{})

	_, err := f.venue.AddPool(f.ctx, usdc, btc, btcFeed, "pool")
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = f.venue.Admin(f.ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestAddPool(t *testing.T) {
	f := newFixture(t, auth.AllowAll{})
	require.NoError(t, f.venue.Initialize(f.ctx, admin))

	poolID, err := f.venue.AddPool(f.ctx, usdc, btc, btcFeed, "BTC/USDC Options Pool")
	require.NoError(t, err)
	require.Zero(t, poolID)

	pool, err := f.venue.Pool(f.ctx, poolID)
	require.NoError(t, err)
	require.Equal(t, usdc, pool.SettlementAsset)
	require.Equal(t, btc, pool.UnderlyingAsset)
	require.Equal(t, btcFeed, pool.PriceFeed)
	require.Equal(t, "BTC/USDC Options Pool", pool.Name)
	require.True(t, pool.Active)

	count, err := f.venue.PoolCounter(f.ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	acct, err := f.venue.Accounting(f.ctx, poolID)
	require.NoError(t, err)
	require.Zero(t, acct.TotalLiquidity.Sign())
	require.Zero(t, acct.LockedCollateral.Sign())
	require.Zero(t, acct.TotalShares.Sign())

	resolved, err := f.venue.PoolByAssets(f.ctx, usdc, btc)
	require.NoError(t, err)
	require.Equal(t, poolID, resolved)
}

func TestAddDuplicatePool(t *testing.T) {
	f := newFixture(t, auth.AllowAll{})
	require.NoError(t, f.venue.Initialize(f.ctx, admin))

	_, err := f.venue.AddPool(f.ctx, usdc, btc, btcFeed, "first")
	require.NoError(t, err)

	_, err = f.venue.AddPool(f.ctx, usdc, btc, "other-feed", "second")
	require.ErrorIs(t, err, ErrPoolAlreadyExists)

	// Same underlying against a different settlement asset is a new pool.
	_, err = f.venue.AddPool(f.ctx, "EURC", btc, btcFeed, "third")
	require.NoError(t, err)
}

func TestPoolByAssetsUnknownPair(t *testing.T) {
	f := newFixture(t, auth.AllowAll{})
	require.NoError(t, f.venue.Initialize(f.ctx, admin))

	_, err := f.venue.PoolByAssets(f.ctx, usdc, "ETH")
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestSetPoolStatus(t *testing.T) {
	f, poolID := newInitializedFixture(t)

	require.NoError(t, f.venue.SetPoolStatus(f.ctx, poolID, false))
	pool, err := f.venue.Pool(f.ctx, poolID)
	require.NoError(t, err)
	require.False(t, pool.Active)

	require.NoError(t, f.venue.SetPoolStatus(f.ctx, poolID, true))
	pool, err = f.venue.Pool(f.ctx, poolID)
	require.NoError(t, err)
	require.True(t, pool.Active)

	require.ErrorIs(t, f.venue.SetPoolStatus(f.ctx, 99, false), ErrPoolNotFound)
}

func TestUpdatePoolPriceFeed(t *testing.T) {
	f, poolID := newInitializedFixture(t)

	require.NoError(t, f.venue.UpdatePoolPriceFeed(f.ctx, poolID, "new-feed"))

	pool, err := f.venue.Pool(f.ctx, poolID)
	require.NoError(t, err)
	require.Equal(t, "new-feed", pool.PriceFeed)
}

func TestListPools(t *testing.T) {
	f := newFixture(t, auth.AllowAll{})
	require.NoError(t, f.venue.Initialize(f.ctx, admin))

	ids, err := f.venue.ListPools(f.ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	underlyings := []string{"BTC", "ETH", "SOL"}
	for _, u := range underlyings {
		_, err := f.venue.AddPool(f.ctx, usdc, u, u+"-feed", u+" pool")
		require.NoError(t, err)
	}

	ids, err = f.venue.ListPools(f.ctx)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2}, ids)
}

func TestAdminGateWithSharedTokens(t *testing.T) {
	authorizer := auth.NewSharedTokens(map[string]string{
		admin:    "admin-secret",
		provider: "alice-secret",
	})
	f := newFixture(t, authorizer)

	adminCtx := auth.WithSecret(f.ctx, "admin-secret")
	aliceCtx := auth.WithSecret(f.ctx, "alice-secret")

	// Initializing as admin without the admin credential fails.
	require.ErrorIs(t, f.venue.Initialize(aliceCtx, admin), ErrUnauthorized)
	require.NoError(t, f.venue.Initialize(adminCtx, admin))

	// Pool administration requires the admin credential.
	_, err := f.venue.AddPool(aliceCtx, usdc, btc, btcFeed, "pool")
	require.ErrorIs(t, err, ErrUnauthorized)

	poolID, err := f.venue.AddPool(adminCtx, usdc, btc, btcFeed, "pool")
	require.NoError(t, err)
	require.ErrorIs(t, f.venue.SetPoolStatus(aliceCtx, poolID, false), ErrUnauthorized)

	// A provider can only act with its own credential.
	require.NoError(t, f.ledger.Mint(f.ctx, usdc, provider, unit(100)))
	_, err = f.venue.ProvideLiquidity(f.ctx, poolID, provider, unit(10))
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.venue.ProvideLiquidity(aliceCtx, poolID, provider, unit(10))
	require.NoError(t, err)
}
