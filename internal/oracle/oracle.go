// Package oracle supplies last-traded prices for underlying assets. The
// venue core asks the configured feed for a price at exercise time and
// aborts the call when none is available.
package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// Price is a last-traded price in 7-decimal fixed point, plus the time it
// was observed.
type Price struct {
	Value     *big.Int
	Timestamp time.Time
}

// Feed resolves the last price of asset from the named feed. ok is false
// when the feed has no price; the venue surfaces that as an invalid-price
// failure.
type Feed interface {
	LastPrice(ctx context.Context, feed, asset string) (price Price, ok bool, err error)
}

// Static is an in-memory feed whose prices are set explicitly, either by
// tests or through the admin API. Prices never expire.
type Static struct {
	mu     sync.RWMutex
	prices map[string]map[string]Price
}

// NewStatic creates an empty static feed.
func NewStatic() *Static {
	return &Static{prices: make(map[string]map[string]Price)}
}

// Set records the price of asset on the named feed.
func (s *Static) Set(feed, asset string, value *big.Int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byAsset, ok := s.prices[feed]
	if !ok {
		byAsset = make(map[string]Price)
		s.prices[feed] = byAsset
	}
	byAsset[asset] = Price{Value: new(big.Int).Set(value), Timestamp: at}
}

// Clear removes the price of asset on the named feed, making the feed report
// no price for it.
func (s *Static) Clear(feed, asset string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byAsset, ok := s.prices[feed]; ok {
		delete(byAsset, asset)
	}
}

func (s *Static) LastPrice(ctx context.Context, feed, asset string) (Price, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byAsset, ok := s.prices[feed]
	if !ok {
		return Price{}, false, nil
	}
	p, ok := byAsset[asset]
	if !ok {
		return Price{}, false, nil
	}
	return Price{Value: new(big.Int).Set(p.Value), Timestamp: p.Timestamp}, true, nil
}
