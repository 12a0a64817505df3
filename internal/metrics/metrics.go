package metrics

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds all Prometheus metrics for the options venue.
type Metrics struct {
	// Operation metrics
	Operations       *prometheus.CounterVec
	OperationErrors  *prometheus.CounterVec
	OperationLatency prometheus.Histogram

	// Pool metrics
	PoolsCreated   prometheus.Counter
	PoolLiquidity  *prometheus.GaugeVec
	PoolCollateral *prometheus.GaugeVec
	PoolShares     *prometheus.GaugeVec

	// Option metrics
	OptionsPurchased prometheus.Counter
	OptionsExercised prometheus.Counter
	OptionsExpired   prometheus.Counter
	PremiumCollected prometheus.Counter
	PayoffPaid       prometheus.Counter

	server *http.Server
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steptions_operations_total",
				Help: "Total number of venue operations by name",
			},
			[]string{"op"},
		),
		OperationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steptions_operation_errors_total",
				Help: "Total number of failed venue operations by name and error kind",
			},
			[]string{"op", "kind"},
		),
		OperationLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "steptions_operation_latency_seconds",
				Help:    "Latency of venue operations",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
			},
		),
		PoolsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "steptions_pools_created_total",
				Help: "Total number of pools created",
			},
		),
		PoolLiquidity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "steptions_pool_liquidity",
				Help: "Total liquidity per pool in settlement-asset units (1e7 fixed point)",
			},
			[]string{"pool"},
		),
		PoolCollateral: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "steptions_pool_locked_collateral",
				Help: "Locked collateral per pool in settlement-asset units (1e7 fixed point)",
			},
			[]string{"pool"},
		),
		PoolShares: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "steptions_pool_total_shares",
				Help: "Total LP shares per pool",
			},
			[]string{"pool"},
		),
		OptionsPurchased: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "steptions_options_purchased_total",
				Help: "Total number of options purchased",
			},
		),
		OptionsExercised: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "steptions_options_exercised_total",
				Help: "Total number of options exercised",
			},
		),
		OptionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "steptions_options_expired_total",
				Help: "Total number of options expired",
			},
		),
		PremiumCollected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "steptions_premium_collected_total",
				Help: "Cumulative premium collected across all pools (1e7 fixed point)",
			},
		),
		PayoffPaid: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "steptions_payoff_paid_total",
				Help: "Cumulative payoff paid to option holders (1e7 fixed point)",
			},
		),
	}

	prometheus.MustRegister(
		m.Operations,
		m.OperationErrors,
		m.OperationLatency,
		m.PoolsCreated,
		m.PoolLiquidity,
		m.PoolCollateral,
		m.PoolShares,
		m.OptionsPurchased,
		m.OptionsExercised,
		m.OptionsExpired,
		m.PremiumCollected,
		m.PayoffPaid,
	)

	return m
}

// StartServer starts the HTTP server for Prometheus metrics.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Info().Int("port", port).Str("path", path).Msg("Starting metrics server")
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// Shutdown gracefully stops the metrics server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server != nil {
		return m.server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation increments the operation counter and observes latency.
func (m *Metrics) RecordOperation(op string, d time.Duration) {
	m.Operations.WithLabelValues(op).Inc()
	m.OperationLatency.Observe(d.Seconds())
}

// RecordOperationError increments the failure counter for op by error kind.
func (m *Metrics) RecordOperationError(op, kind string) {
	m.OperationErrors.WithLabelValues(op, kind).Inc()
}

// RecordPoolCreated increments the pool creation counter.
func (m *Metrics) RecordPoolCreated() {
	m.PoolsCreated.Inc()
}

// SetPoolAccounting updates the per-pool liquidity, collateral, and share
// gauges. Gauge values are approximate beyond float64 precision; exact
// values live in the store.
func (m *Metrics) SetPoolAccounting(poolID uint64, liquidity, collateral, shares *big.Int) {
	pool := fmt.Sprintf("%d", poolID)
	m.PoolLiquidity.WithLabelValues(pool).Set(approx(liquidity))
	m.PoolCollateral.WithLabelValues(pool).Set(approx(collateral))
	m.PoolShares.WithLabelValues(pool).Set(approx(shares))
}

// RecordOptionPurchased increments the purchase counter and adds the premium.
func (m *Metrics) RecordOptionPurchased(premium *big.Int) {
	m.OptionsPurchased.Inc()
	m.PremiumCollected.Add(approx(premium))
}

// RecordOptionExercised increments the exercise counter and adds the payoff.
func (m *Metrics) RecordOptionExercised(payoff *big.Int) {
	m.OptionsExercised.Inc()
	m.PayoffPaid.Add(approx(payoff))
}

// RecordOptionExpired increments the expiry counter.
func (m *Metrics) RecordOptionExpired() {
	m.OptionsExpired.Inc()
}

func approx(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
