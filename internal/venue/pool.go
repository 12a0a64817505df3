package venue

import (
	"context"
	"math/big"

	"github.com/rs/zerolog/log"

	"steptions/internal/store"
)

// AddPool registers a new pool for the (settlementAsset, underlyingAsset)
// pair and returns its id. At most one pool exists per pair. Admin only.
func (v *Venue) AddPool(ctx context.Context, settlementAsset, underlyingAsset, priceFeed, name string) (uint64, error) {
	var id uint64
	err := v.run(ctx, "add_pool", func(tx store.Tx) error {
		if _, err := v.requireAdmin(ctx, tx); err != nil {
			return err
		}

		pairKey := store.PoolPairKey(settlementAsset, underlyingAsset)
		exists, err := tx.Has(pairKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrPoolAlreadyExists
		}

		id, err = readCounter(tx, store.PoolCounterKey())
		if err != nil {
			return err
		}

		pool := Pool{
			ID:              id,
			SettlementAsset: settlementAsset,
			UnderlyingAsset: underlyingAsset,
			PriceFeed:       priceFeed,
			Name:            name,
			Active:          true,
		}
		if err := putJSON(tx, store.PoolKey(id), pool); err != nil {
			return err
		}
		if err := putJSON(tx, pairKey, id); err != nil {
			return err
		}

		zero := big.NewInt(0)
		for _, key := range []store.Key{
			store.PoolLiquidityKey(id),
			store.PoolCollateralKey(id),
			store.PoolSharesKey(id),
		} {
			if err := writeBig(tx, key, zero); err != nil {
				return err
			}
		}

		return writeCounter(tx, store.PoolCounterKey(), id+1)
	})
	if err != nil {
		return 0, err
	}

	if v.metrics != nil {
		v.metrics.RecordPoolCreated()
		v.metrics.SetPoolAccounting(id, big.NewInt(0), big.NewInt(0), big.NewInt(0))
	}
	v.emit(Event{Type: EventPoolAdded, PoolID: id})
	log.Info().Uint64("pool", id).Str("name", name).Msg("New liquidity pool added")
	return id, nil
}

// SetPoolStatus toggles whether a pool accepts new deposits and option
// purchases. Existing positions and options are unaffected. Admin only.
func (v *Venue) SetPoolStatus(ctx context.Context, poolID uint64, active bool) error {
	err := v.run(ctx, "set_pool_status", func(tx store.Tx) error {
		if _, err := v.requireAdmin(ctx, tx); err != nil {
			return err
		}
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		pool.Active = active
		return putJSON(tx, store.PoolKey(poolID), pool)
	})
	if err != nil {
		return err
	}

	v.emit(Event{Type: EventPoolStatusChanged, PoolID: poolID})
	log.Info().Uint64("pool", poolID).Bool("active", active).Msg("Pool status changed")
	return nil
}

// UpdatePoolPriceFeed points a pool at a different price feed. Admin only.
func (v *Venue) UpdatePoolPriceFeed(ctx context.Context, poolID uint64, priceFeed string) error {
	err := v.run(ctx, "update_pool_price_feed", func(tx store.Tx) error {
		if _, err := v.requireAdmin(ctx, tx); err != nil {
			return err
		}
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		pool.PriceFeed = priceFeed
		return putJSON(tx, store.PoolKey(poolID), pool)
	})
	if err != nil {
		return err
	}

	v.emit(Event{Type: EventPriceFeedUpdated, PoolID: poolID})
	return nil
}
