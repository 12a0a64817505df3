// Package store provides the key-value persistence contract the venue core
// depends on. Values are opaque bytes keyed by typed composite keys; all
// writes happen inside an atomic Update transaction.
package store

import (
	"context"
	"fmt"
)

// Key is a composite storage key. Builders below mirror the venue's record
// set; collaborators may derive their own keys with the same scheme.
type Key string

// Tx is the view handed to an Update callback. Reads observe prior writes in
// the same transaction; nothing is visible outside until Update commits.
type Tx interface {
	Get(key Key) ([]byte, bool, error)
	Set(key Key, value []byte) error
	Has(key Key) (bool, error)
}

// Store is the persistence interface. Get and Has serve read-only accessors;
// every mutation goes through Update, which applies the callback's writes
// all-or-nothing: if the callback returns an error nothing is committed.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Has(ctx context.Context, key Key) (bool, error)
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Venue record keys.

func AdminKey() Key           { return "admin" }
func PoolCounterKey() Key     { return "pool_counter" }
func OptionCounterKey() Key   { return "option_counter" }
func PoolKey(id uint64) Key   { return Key(fmt.Sprintf("pool/%d", id)) }
func OptionKey(id uint64) Key { return Key(fmt.Sprintf("option/%d", id)) }

// PoolPairKey indexes a pool by its (settlement asset, underlying asset)
// pair; at most one pool exists per pair.
func PoolPairKey(settlement, underlying string) Key {
	return Key(fmt.Sprintf("pool_pair/%s/%s", settlement, underlying))
}

func PoolLiquidityKey(id uint64) Key  { return Key(fmt.Sprintf("pool_liquidity/%d", id)) }
func PoolCollateralKey(id uint64) Key { return Key(fmt.Sprintf("pool_collateral/%d", id)) }
func PoolSharesKey(id uint64) Key     { return Key(fmt.Sprintf("pool_shares/%d", id)) }

func ProviderSharesKey(id uint64, provider string) Key {
	return Key(fmt.Sprintf("pool_provider_shares/%d/%s", id, provider))
}

// BalanceKey holds a custody ledger balance for (asset, account).
func BalanceKey(asset, account string) Key {
	return Key(fmt.Sprintf("balance/%s/%s", asset, account))
}
