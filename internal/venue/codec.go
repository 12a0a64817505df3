package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"steptions/internal/store"
)

func getJSON(tx store.Tx, key store.Key, out any) (bool, error) {
	raw, ok, err := tx.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding record %s: %w", key, err)
	}
	return true, nil
}

func putJSON(tx store.Tx, key store.Key, in any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", key, err)
	}
	return tx.Set(key, raw)
}

// readBig returns the stored quantity at key, zero when absent.
func readBig(tx store.Tx, key store.Key) (*big.Int, error) {
	raw, ok, err := tx.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return parseBig(key, raw)
}

func writeBig(tx store.Tx, key store.Key, v *big.Int) error {
	return tx.Set(key, []byte(v.String()))
}

// readCounter returns the stored counter at key, zero when absent.
func readCounter(tx store.Tx, key store.Key) (uint64, error) {
	raw, ok, err := tx.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return parseCounter(key, raw)
}

func writeCounter(tx store.Tx, key store.Key, v uint64) error {
	return tx.Set(key, []byte(strconv.FormatUint(v, 10)))
}

// Read-only variants used by accessors outside a transaction.

func (v *Venue) getJSONAt(ctx context.Context, key store.Key, out any) (bool, error) {
	raw, ok, err := v.store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding record %s: %w", key, err)
	}
	return true, nil
}

func (v *Venue) readBigAt(ctx context.Context, key store.Key) (*big.Int, error) {
	raw, ok, err := v.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return parseBig(key, raw)
}

func (v *Venue) readCounterAt(ctx context.Context, key store.Key) (uint64, error) {
	raw, ok, err := v.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return parseCounter(key, raw)
}

func parseBig(key store.Key, raw []byte) (*big.Int, error) {
	n, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("corrupt quantity record %s: %q", key, raw)
	}
	return n, nil
}

func parseCounter(key store.Key, raw []byte) (uint64, error) {
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter record %s: %w", key, err)
	}
	return n, nil
}
