package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	pongWait       = 60 * time.Second
	maxMessageSize = 1024 * 1024 // 1MB
	reconnectDelay = 5 * time.Second
)

// tickMessage is the wire format pushed by a price stream: one last-traded
// price per message, 7-decimal fixed point encoded as a decimal string.
type tickMessage struct {
	Feed      string `json:"feed"`
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// Stream is a Feed backed by a WebSocket price stream. It caches the last
// tick per (feed, asset) and reports no price once a tick goes stale.
type Stream struct {
	url        string
	staleAfter time.Duration

	mu    sync.RWMutex
	last  map[string]map[string]Price
}

// NewStream creates a streaming feed client. staleAfter bounds how old a
// cached tick may be before LastPrice stops reporting it; zero disables the
// check.
func NewStream(url string, staleAfter time.Duration) *Stream {
	return &Stream{
		url:        url,
		staleAfter: staleAfter,
		last:       make(map[string]map[string]Price),
	}
}

// Run connects to the stream and consumes ticks until ctx is cancelled,
// reconnecting on failure.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("url", s.url).Msg("Price stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Stream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dialing price stream: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	log.Info().Str("url", s.url).Msg("Price stream connected")

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading price stream: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var tick tickMessage
		if err := json.Unmarshal(payload, &tick); err != nil {
			log.Warn().Err(err).Msg("Dropping malformed tick")
			continue
		}
		s.apply(tick)
	}
}

func (s *Stream) apply(tick tickMessage) {
	value, ok := new(big.Int).SetString(tick.Price, 10)
	if !ok || value.Sign() <= 0 {
		log.Warn().Str("price", tick.Price).Str("asset", tick.Asset).Msg("Dropping tick with bad price")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byAsset, exists := s.last[tick.Feed]
	if !exists {
		byAsset = make(map[string]Price)
		s.last[tick.Feed] = byAsset
	}
	byAsset[tick.Asset] = Price{Value: value, Timestamp: time.Unix(tick.Timestamp, 0)}
}

func (s *Stream) LastPrice(ctx context.Context, feed, asset string) (Price, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byAsset, ok := s.last[feed]
	if !ok {
		return Price{}, false, nil
	}
	p, ok := byAsset[asset]
	if !ok {
		return Price{}, false, nil
	}
	if s.staleAfter > 0 && time.Since(p.Timestamp) > s.staleAfter {
		return Price{}, false, nil
	}
	return Price{Value: new(big.Int).Set(p.Value), Timestamp: p.Timestamp}, true, nil
}
