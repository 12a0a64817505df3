package venue

import (
	"math/big"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType names the notifications the venue emits after a successful
// operation. Events are observability only; they carry no state.
type EventType string

const (
	EventPoolAdded          EventType = "pool_added"
	EventPoolStatusChanged  EventType = "pool_status_changed"
	EventPriceFeedUpdated   EventType = "price_feed_updated"
	EventLiquidityProvided  EventType = "liquidity_provided"
	EventLiquidityWithdrawn EventType = "liquidity_withdrawn"
	EventOptionPurchased    EventType = "option_purchased"
	EventOptionExercised    EventType = "option_exercised"
	EventOptionExpired      EventType = "option_expired"
)

// Event carries the ids and amounts relevant to one notification. Unused
// fields are zero.
type Event struct {
	Type      EventType
	PoolID    uint64
	OptionID  uint64
	Principal string
	Amount    *big.Int // deposit, withdrawal, premium, or payoff depending on Type
	Shares    *big.Int
	At        time.Time
}

// Sink receives events after the emitting operation has committed.
type Sink interface {
	Emit(e Event)
}

// LogSink writes events to the structured log.
type LogSink struct{}

func (LogSink) Emit(e Event) {
	ev := log.Info().
		Str("event", string(e.Type)).
		Uint64("pool", e.PoolID).
		Str("principal", e.Principal).
		Time("at", e.At)
	if e.OptionID != 0 || e.Type == EventOptionPurchased || e.Type == EventOptionExercised || e.Type == EventOptionExpired {
		ev = ev.Uint64("option", e.OptionID)
	}
	if e.Amount != nil {
		ev = ev.Str("amount", e.Amount.String())
	}
	if e.Shares != nil {
		ev = ev.Str("shares", e.Shares.String())
	}
	ev.Msg("Venue event")
}

// MultiSink fans an event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
