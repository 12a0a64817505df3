// Package venue implements the accounting and lifecycle core of a pooled,
// cash-settled American-style options venue: proportional-share liquidity
// accounting per pool, the locked-collateral solvency invariant, and the
// option state machine (issue, early exercise, expiry).
//
// Every mutating operation runs as one atomic store transaction under a
// single-writer mutex: external transfers execute inside the transaction
// body, so a failed transfer rolls back all staged bookkeeping.
package venue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"steptions/internal/auth"
	"steptions/internal/metrics"
	"steptions/internal/oracle"
	"steptions/internal/store"
	"steptions/internal/token"
)

// Clock supplies the venue's notion of current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall-clock Clock used outside tests.
var SystemClock Clock = systemClock{}

// Deps are the collaborators the venue core depends on. Store, Tokens, Feed,
// and Auth are required; the rest default sensibly.
type Deps struct {
	Store   store.Store
	Tokens  token.Service
	Feed    oracle.Feed
	Auth    auth.Authorizer
	Clock   Clock            // nil means SystemClock
	Events  Sink             // nil means LogSink
	Metrics *metrics.Metrics // nil disables instrumentation
	Custody string           // custody account name, defaults to "venue:custody"
}

// Venue is the options venue core.
type Venue struct {
	mu sync.Mutex

	store   store.Store
	tokens  token.Service
	feed    oracle.Feed
	auth    auth.Authorizer
	clock   Clock
	events  Sink
	metrics *metrics.Metrics
	custody string
}

// New wires a venue from its collaborators.
func New(deps Deps) *Venue {
	v := &Venue{
		store:   deps.Store,
		tokens:  deps.Tokens,
		feed:    deps.Feed,
		auth:    deps.Auth,
		clock:   deps.Clock,
		events:  deps.Events,
		metrics: deps.Metrics,
		custody: deps.Custody,
	}
	if v.clock == nil {
		v.clock = SystemClock
	}
	if v.events == nil {
		v.events = LogSink{}
	}
	if v.custody == "" {
		v.custody = "venue:custody"
	}
	return v
}

// Custody returns the account that holds pool funds.
func (v *Venue) Custody() string { return v.custody }

// run executes one mutating operation as a single atomic unit: the mutex
// serializes writers, the store transaction makes the writes all-or-nothing.
func (v *Venue) run(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	start := time.Now()
	err := v.store.Update(ctx, fn)
	if v.metrics != nil {
		if err != nil {
			v.metrics.RecordOperationError(op, Kind(err))
		} else {
			v.metrics.RecordOperation(op, time.Since(start))
		}
	}
	return err
}

// emit publishes an event after its operation has committed.
func (v *Venue) emit(e Event) {
	e.At = v.clock.Now()
	v.events.Emit(e)
}

// Initialize sets the venue admin and zeroes the identifier counters. It can
// succeed exactly once.
func (v *Venue) Initialize(ctx context.Context, admin string) error {
	err := v.run(ctx, "initialize", func(tx store.Tx) error {
		ok, err := tx.Has(store.AdminKey())
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyInitialized
		}
		if err := v.auth.Authorize(ctx, admin); err != nil {
			return ErrUnauthorized
		}
		if err := putJSON(tx, store.AdminKey(), admin); err != nil {
			return err
		}
		if err := writeCounter(tx, store.PoolCounterKey(), 0); err != nil {
			return err
		}
		return writeCounter(tx, store.OptionCounterKey(), 0)
	})
	if err != nil {
		return err
	}

	log.Info().Str("admin", admin).Msg("Venue initialized")
	return nil
}

// requireAdmin loads the stored admin and checks the caller controls it.
func (v *Venue) requireAdmin(ctx context.Context, tx store.Tx) (string, error) {
	var admin string
	ok, err := getJSON(tx, store.AdminKey(), &admin)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotInitialized
	}
	if err := v.auth.Authorize(ctx, admin); err != nil {
		return "", ErrUnauthorized
	}
	return admin, nil
}

// loadPool reads a pool record inside a transaction.
func loadPool(tx store.Tx, id uint64) (Pool, error) {
	var pool Pool
	ok, err := getJSON(tx, store.PoolKey(id), &pool)
	if err != nil {
		return Pool{}, err
	}
	if !ok {
		return Pool{}, ErrPoolNotFound
	}
	return pool, nil
}

// loadOption reads an option record inside a transaction.
func loadOption(tx store.Tx, id uint64) (Option, error) {
	var opt Option
	ok, err := getJSON(tx, store.OptionKey(id), &opt)
	if err != nil {
		return Option{}, err
	}
	if !ok {
		return Option{}, ErrOptionNotFound
	}
	return opt, nil
}
