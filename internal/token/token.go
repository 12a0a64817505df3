// Package token provides the asset-transfer collaborator the venue core
// depends on, plus a custody ledger implementation that keeps balances in
// the shared store.
package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"

	"steptions/internal/store"
)

// ErrInsufficientBalance is returned when a transfer would overdraw the
// source account.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrInvalidTransfer is returned for non-positive transfer amounts.
var ErrInvalidTransfer = errors.New("invalid transfer amount")

// Service moves amount of asset between custody holders. A failed transfer
// aborts the venue operation that requested it.
type Service interface {
	Transfer(ctx context.Context, asset, from, to string, amount *big.Int) error
}

// Ledger is a store-backed Service: balances are plain records keyed by
// (asset, account). It doubles as the test harness's token ledger via Mint.
type Ledger struct {
	store store.Store
}

// NewLedger creates a custody ledger on top of s.
func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

func (l *Ledger) Transfer(ctx context.Context, asset, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidTransfer
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}

	err := l.store.Update(ctx, func(tx store.Tx) error {
		fromBal, err := readBalance(tx, asset, from)
		if err != nil {
			return err
		}
		if fromBal.Cmp(amount) < 0 {
			return fmt.Errorf("transferring %s %s from %s: %w", amount, asset, from, ErrInsufficientBalance)
		}
		toBal, err := readBalance(tx, asset, to)
		if err != nil {
			return err
		}

		if err := writeBalance(tx, asset, from, new(big.Int).Sub(fromBal, amount)); err != nil {
			return err
		}
		return writeBalance(tx, asset, to, new(big.Int).Add(toBal, amount))
	})
	if err != nil {
		return err
	}

	log.Debug().
		Str("asset", asset).
		Str("from", from).
		Str("to", to).
		Str("amount", amount.String()).
		Msg("Transfer executed")
	return nil
}

// Mint credits amount of asset to an account. Funding entry point for tests
// and development deployments.
func (l *Ledger) Mint(ctx context.Context, asset, account string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidTransfer
	}
	return l.store.Update(ctx, func(tx store.Tx) error {
		bal, err := readBalance(tx, asset, account)
		if err != nil {
			return err
		}
		return writeBalance(tx, asset, account, new(big.Int).Add(bal, amount))
	})
}

// Balance returns the current balance of (asset, account), zero if absent.
func (l *Ledger) Balance(ctx context.Context, asset, account string) (*big.Int, error) {
	raw, ok, err := l.store.Get(ctx, store.BalanceKey(asset, account))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return parseBalance(raw)
}

func readBalance(tx store.Tx, asset, account string) (*big.Int, error) {
	raw, ok, err := tx.Get(store.BalanceKey(asset, account))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return parseBalance(raw)
}

func writeBalance(tx store.Tx, asset, account string, balance *big.Int) error {
	return tx.Set(store.BalanceKey(asset, account), []byte(balance.String()))
}

func parseBalance(raw []byte) (*big.Int, error) {
	v, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("corrupt balance record %q", raw)
	}
	return v, nil
}
