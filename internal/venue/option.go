package venue

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"

	"steptions/internal/fixedpoint"
	"steptions/internal/store"
)

// BuyOption issues a fully collateralized option against a pool. The buyer
// pays the flat premium into pool custody; the pool reserves the full strike
// notional as collateral for the option's lifetime. Premium is credited to
// pool liquidity, so it accrues to LP share value.
func (v *Venue) BuyOption(ctx context.Context, poolID uint64, buyer string, kind OptionKind, strike *big.Int, expiry int64, amount *big.Int) (uint64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown option kind %q", ErrInvalidAmount, kind)
	}
	if amount == nil || amount.Sign() <= 0 || strike == nil || strike.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if err := fixedpoint.CheckRange(amount); err != nil {
		return 0, err
	}
	if err := fixedpoint.CheckRange(strike); err != nil {
		return 0, err
	}
	if err := v.auth.Authorize(ctx, buyer); err != nil {
		return 0, ErrUnauthorized
	}

	var (
		id      uint64
		premium *big.Int
		after   PoolAccounting
	)
	err := v.run(ctx, "buy_option", func(tx store.Tx) error {
		pool, err := loadPool(tx, poolID)
		if err != nil {
			return err
		}
		if !pool.Active {
			return ErrPoolNotActive
		}
		if expiry <= v.clock.Now().Unix() {
			return ErrOptionExpired
		}

		premium, err = fixedpoint.Premium(strike, amount)
		if err != nil {
			return err
		}
		collateral, err := fixedpoint.Collateral(strike, amount)
		if err != nil {
			return err
		}

		totalLiquidity, err := readBig(tx, store.PoolLiquidityKey(poolID))
		if err != nil {
			return err
		}
		locked, err := readBig(tx, store.PoolCollateralKey(poolID))
		if err != nil {
			return err
		}

		unlocked := new(big.Int).Sub(totalLiquidity, locked)
		if unlocked.Cmp(collateral) < 0 {
			return ErrInsufficientLiquidity
		}

		newLocked := new(big.Int).Add(locked, collateral)
		newLiquidity := new(big.Int).Add(totalLiquidity, premium)
		if err := fixedpoint.CheckRange(newLiquidity); err != nil {
			return err
		}

		if err := v.tokens.Transfer(ctx, pool.SettlementAsset, buyer, v.custody, premium); err != nil {
			return fmt.Errorf("collecting premium: %w", err)
		}

		id, err = readCounter(tx, store.OptionCounterKey())
		if err != nil {
			return err
		}
		opt := Option{
			ID:               id,
			PoolID:           poolID,
			Buyer:            buyer,
			Kind:             kind,
			Strike:           strike,
			Expiry:           expiry,
			Amount:           amount,
			PremiumPaid:      premium,
			CollateralLocked: collateral,
			State:            Active,
		}
		if err := putJSON(tx, store.OptionKey(id), opt); err != nil {
			return err
		}
		if err := writeCounter(tx, store.OptionCounterKey(), id+1); err != nil {
			return err
		}
		if err := writeBig(tx, store.PoolCollateralKey(poolID), newLocked); err != nil {
			return err
		}
		if err := writeBig(tx, store.PoolLiquidityKey(poolID), newLiquidity); err != nil {
			return err
		}

		totalShares, err := readBig(tx, store.PoolSharesKey(poolID))
		if err != nil {
			return err
		}
		after = PoolAccounting{TotalLiquidity: newLiquidity, LockedCollateral: newLocked, TotalShares: totalShares}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if v.metrics != nil {
		v.metrics.RecordOptionPurchased(premium)
		v.metrics.SetPoolAccounting(poolID, after.TotalLiquidity, after.LockedCollateral, after.TotalShares)
	}
	v.emit(Event{
		Type:      EventOptionPurchased,
		PoolID:    poolID,
		OptionID:  id,
		Principal: buyer,
		Amount:    premium,
	})
	log.Info().
		Uint64("option", id).
		Uint64("pool", poolID).
		Str("kind", string(kind)).
		Str("strike", strike.String()).
		Int64("expiry", expiry).
		Msg("Option purchased")
	return id, nil
}

// ExerciseOption settles an active option at the current oracle price,
// American style: any time up to and including expiry, holder initiated. The
// payoff is capped at the option's locked collateral; the full collateral is
// released either way, and the paid payoff is debited from pool liquidity.
func (v *Venue) ExerciseOption(ctx context.Context, optionID uint64) (*big.Int, error) {
	var (
		paid   *big.Int
		poolID uint64
		after  PoolAccounting
	)
	err := v.run(ctx, "exercise_option", func(tx store.Tx) error {
		opt, err := loadOption(tx, optionID)
		if err != nil {
			return err
		}
		if opt.State != Active {
			return ErrOptionNotActive
		}
		if err := v.auth.Authorize(ctx, opt.Buyer); err != nil {
			return ErrNotOptionOwner
		}
		if v.clock.Now().Unix() > opt.Expiry {
			return ErrOptionExpired
		}
		poolID = opt.PoolID

		pool, err := loadPool(tx, opt.PoolID)
		if err != nil {
			return err
		}

		price, ok, err := v.feed.LastPrice(ctx, pool.PriceFeed, pool.UnderlyingAsset)
		if err != nil {
			return fmt.Errorf("querying price feed: %w", err)
		}
		if !ok {
			return ErrInvalidPrice
		}

		payoff, err := fixedpoint.Payoff(opt.Kind == Call, opt.Strike, price.Value, opt.Amount)
		if err != nil {
			return err
		}
		paid = payoff
		if paid.Cmp(opt.CollateralLocked) > 0 {
			paid = new(big.Int).Set(opt.CollateralLocked)
		}

		if paid.Sign() > 0 {
			if err := v.tokens.Transfer(ctx, pool.SettlementAsset, v.custody, opt.Buyer, paid); err != nil {
				return fmt.Errorf("paying settlement: %w", err)
			}
		}

		opt.State = Exercised
		if err := putJSON(tx, store.OptionKey(optionID), opt); err != nil {
			return err
		}

		locked, err := readBig(tx, store.PoolCollateralKey(opt.PoolID))
		if err != nil {
			return err
		}
		totalLiquidity, err := readBig(tx, store.PoolLiquidityKey(opt.PoolID))
		if err != nil {
			return err
		}
		newLocked := new(big.Int).Sub(locked, opt.CollateralLocked)
		newLiquidity := new(big.Int).Sub(totalLiquidity, paid)
		if err := writeBig(tx, store.PoolCollateralKey(opt.PoolID), newLocked); err != nil {
			return err
		}
		if err := writeBig(tx, store.PoolLiquidityKey(opt.PoolID), newLiquidity); err != nil {
			return err
		}

		totalShares, err := readBig(tx, store.PoolSharesKey(opt.PoolID))
		if err != nil {
			return err
		}
		after = PoolAccounting{TotalLiquidity: newLiquidity, LockedCollateral: newLocked, TotalShares: totalShares}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if v.metrics != nil {
		v.metrics.RecordOptionExercised(paid)
		v.metrics.SetPoolAccounting(poolID, after.TotalLiquidity, after.LockedCollateral, after.TotalShares)
	}
	v.emit(Event{
		Type:     EventOptionExercised,
		PoolID:   poolID,
		OptionID: optionID,
		Amount:   paid,
	})
	log.Info().Uint64("option", optionID).Str("payoff", paid.String()).Msg("Option exercised")
	return paid, nil
}

// ExpireOption retires an option past its expiry, releasing its collateral
// back to the pool's unlocked liquidity. Callable by anyone: the premium was
// collected up front, so expiry is pure cleanup. An in-the-money option the
// holder never exercised expires worthless; there is no automatic settlement.
func (v *Venue) ExpireOption(ctx context.Context, optionID uint64) error {
	var (
		poolID uint64
		after  PoolAccounting
	)
	err := v.run(ctx, "expire_option", func(tx store.Tx) error {
		opt, err := loadOption(tx, optionID)
		if err != nil {
			return err
		}
		if opt.State != Active {
			return ErrOptionNotActive
		}
		if v.clock.Now().Unix() <= opt.Expiry {
			return ErrOptionExpired
		}
		poolID = opt.PoolID

		opt.State = Expired
		if err := putJSON(tx, store.OptionKey(optionID), opt); err != nil {
			return err
		}

		locked, err := readBig(tx, store.PoolCollateralKey(opt.PoolID))
		if err != nil {
			return err
		}
		newLocked := new(big.Int).Sub(locked, opt.CollateralLocked)
		if err := writeBig(tx, store.PoolCollateralKey(opt.PoolID), newLocked); err != nil {
			return err
		}

		totalLiquidity, err := readBig(tx, store.PoolLiquidityKey(opt.PoolID))
		if err != nil {
			return err
		}
		totalShares, err := readBig(tx, store.PoolSharesKey(opt.PoolID))
		if err != nil {
			return err
		}
		after = PoolAccounting{TotalLiquidity: totalLiquidity, LockedCollateral: newLocked, TotalShares: totalShares}
		return nil
	})
	if err != nil {
		return err
	}

	if v.metrics != nil {
		v.metrics.RecordOptionExpired()
		v.metrics.SetPoolAccounting(poolID, after.TotalLiquidity, after.LockedCollateral, after.TotalShares)
	}
	v.emit(Event{
		Type:     EventOptionExpired,
		PoolID:   poolID,
		OptionID: optionID,
	})
	log.Info().Uint64("option", optionID).Msg("Option expired")
	return nil
}
