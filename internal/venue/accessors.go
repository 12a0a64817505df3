package venue

import (
	"context"
	"math/big"

	"steptions/internal/store"
)

// Read-only accessors. These run outside the write path; quantities default
// to zero for pools that exist but have seen no activity, matching the
// write-side defaults.

// Admin returns the configured admin principal.
func (v *Venue) Admin(ctx context.Context) (string, error) {
	var admin string
	ok, err := v.getJSONAt(ctx, store.AdminKey(), &admin)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotInitialized
	}
	return admin, nil
}

// PoolCounter returns the next unused pool id.
func (v *Venue) PoolCounter(ctx context.Context) (uint64, error) {
	return v.readCounterAt(ctx, store.PoolCounterKey())
}

// OptionCounter returns the next unused option id.
func (v *Venue) OptionCounter(ctx context.Context) (uint64, error) {
	return v.readCounterAt(ctx, store.OptionCounterKey())
}

// Pool returns the pool record for id.
func (v *Venue) Pool(ctx context.Context, id uint64) (Pool, error) {
	var pool Pool
	ok, err := v.getJSONAt(ctx, store.PoolKey(id), &pool)
	if err != nil {
		return Pool{}, err
	}
	if !ok {
		return Pool{}, ErrPoolNotFound
	}
	return pool, nil
}

// PoolByAssets resolves the pool id for a (settlement, underlying) pair.
func (v *Venue) PoolByAssets(ctx context.Context, settlementAsset, underlyingAsset string) (uint64, error) {
	var id uint64
	ok, err := v.getJSONAt(ctx, store.PoolPairKey(settlementAsset, underlyingAsset), &id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrPoolNotFound
	}
	return id, nil
}

// TotalLiquidity returns a pool's aggregate liquidity.
func (v *Venue) TotalLiquidity(ctx context.Context, id uint64) (*big.Int, error) {
	return v.readBigAt(ctx, store.PoolLiquidityKey(id))
}

// LockedCollateral returns the collateral a pool has reserved against open
// options.
func (v *Venue) LockedCollateral(ctx context.Context, id uint64) (*big.Int, error) {
	return v.readBigAt(ctx, store.PoolCollateralKey(id))
}

// TotalShares returns a pool's outstanding LP shares.
func (v *Venue) TotalShares(ctx context.Context, id uint64) (*big.Int, error) {
	return v.readBigAt(ctx, store.PoolSharesKey(id))
}

// ProviderShares returns one provider's share balance in a pool.
func (v *Venue) ProviderShares(ctx context.Context, id uint64, provider string) (*big.Int, error) {
	return v.readBigAt(ctx, store.ProviderSharesKey(id, provider))
}

// Accounting returns a pool's full aggregate state in one call.
func (v *Venue) Accounting(ctx context.Context, id uint64) (PoolAccounting, error) {
	liquidity, err := v.TotalLiquidity(ctx, id)
	if err != nil {
		return PoolAccounting{}, err
	}
	locked, err := v.LockedCollateral(ctx, id)
	if err != nil {
		return PoolAccounting{}, err
	}
	shares, err := v.TotalShares(ctx, id)
	if err != nil {
		return PoolAccounting{}, err
	}
	return PoolAccounting{TotalLiquidity: liquidity, LockedCollateral: locked, TotalShares: shares}, nil
}

// Option returns the option record for id.
func (v *Venue) Option(ctx context.Context, id uint64) (Option, error) {
	var opt Option
	ok, err := v.getJSONAt(ctx, store.OptionKey(id), &opt)
	if err != nil {
		return Option{}, err
	}
	if !ok {
		return Option{}, ErrOptionNotFound
	}
	return opt, nil
}

// ListPools enumerates every pool id in creation order. Ids are never
// retired, so the scan over the counter range is expected to be dense; the
// presence check guards against partially written history.
func (v *Venue) ListPools(ctx context.Context) ([]uint64, error) {
	count, err := v.readCounterAt(ctx, store.PoolCounterKey())
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, count)
	for id := uint64(0); id < count; id++ {
		ok, err := v.store.Has(ctx, store.PoolKey(id))
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
