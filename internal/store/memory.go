package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and single-node development
// runs. Updates stage writes in an overlay and apply them only when the
// callback succeeds.
type Memory struct {
	mu   sync.Mutex
	data map[Key][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[Key][]byte)}
}

func (m *Memory) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Has(ctx context.Context, key Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.data[key]
	return ok, nil
}

func (m *Memory) Update(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{base: m.data, writes: make(map[Key][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.writes {
		m.data[k] = v
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// memoryTx overlays staged writes on the committed state.
type memoryTx struct {
	base   map[Key][]byte
	writes map[Key][]byte
}

func (tx *memoryTx) Get(key Key) ([]byte, bool, error) {
	if v, ok := tx.writes[key]; ok {
		return v, true, nil
	}
	v, ok := tx.base[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (tx *memoryTx) Set(key Key, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	tx.writes[key] = buf
	return nil
}

func (tx *memoryTx) Has(key Key) (bool, error) {
	if _, ok := tx.writes[key]; ok {
		return true, nil
	}
	_, ok := tx.base[key]
	return ok, nil
}
