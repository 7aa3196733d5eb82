package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics tracks ledger operations, accrual sweeps, liquidations and
// the oracle freshness probe.
type MarketMetrics struct {
	operations   *prometheus.CounterVec
	opLatency    *prometheus.HistogramVec
	accrualRuns  *prometheus.CounterVec
	accruals     prometheus.Counter
	liquidations *prometheus.CounterVec
	eventsStored *prometheus.CounterVec
	oracleAge    *prometheus.GaugeVec
	oracleProbes *prometheus.CounterVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the singleton market metrics registry.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_operations_total",
				Help: "Count of ledger operations segmented by operation, market and outcome.",
			}, []string{"op", "symbol", "outcome"}),
			opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "market_operation_duration_seconds",
				Help:    "Latency distribution for ledger operations.",
				Buckets: prometheus.DefBuckets,
			}, []string{"op"}),
			accrualRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_accrual_sweeps_total",
				Help: "Count of keeper accrual sweeps by outcome.",
			}, []string{"outcome"}),
			accruals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_accrued_markets_total",
				Help: "Number of markets whose interest accrual advanced during sweeps.",
			}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_liquidations_total",
				Help: "Count of executed liquidations segmented by debt and collateral market.",
			}, []string{"debt", "collateral"}),
			eventsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_events_indexed_total",
				Help: "Number of ledger events persisted by the history indexer, by type.",
			}, []string{"type"}),
			oracleAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "market_oracle_quote_age_seconds",
				Help: "Age of the freshest oracle quote per market as seen by the keeper probe.",
			}, []string{"symbol"}),
			oracleProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_oracle_probe_failures_total",
				Help: "Count of oracle freshness probe failures per market.",
			}, []string{"symbol"}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.opLatency,
			marketRegistry.accrualRuns,
			marketRegistry.accruals,
			marketRegistry.liquidations,
			marketRegistry.eventsStored,
			marketRegistry.oracleAge,
			marketRegistry.oracleProbes,
		)
	})
	return marketRegistry
}

// ObserveOperation records a completed ledger operation.
func (m *MarketMetrics) ObserveOperation(op, symbol string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(labelOp(op), labelSymbol(symbol), outcome).Inc()
	m.opLatency.WithLabelValues(labelOp(op)).Observe(duration.Seconds())
}

// RecordAccrualSweep records a keeper sweep and how many markets advanced.
func (m *MarketMetrics) RecordAccrualSweep(advanced int, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.accrualRuns.WithLabelValues(outcome).Inc()
	if advanced > 0 {
		m.accruals.Add(float64(advanced))
	}
}

// RecordLiquidation counts an executed liquidation per market pair.
func (m *MarketMetrics) RecordLiquidation(debtSymbol, collateralSymbol string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(labelSymbol(debtSymbol), labelSymbol(collateralSymbol)).Inc()
}

// RecordEventIndexed counts a ledger event persisted by the history indexer.
func (m *MarketMetrics) RecordEventIndexed(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.eventsStored.WithLabelValues(eventType).Inc()
}

// RecordOracleAge publishes the quote age observed by the freshness probe.
func (m *MarketMetrics) RecordOracleAge(symbol string, age time.Duration) {
	if m == nil {
		return
	}
	m.oracleAge.WithLabelValues(labelSymbol(symbol)).Set(age.Seconds())
}

// RecordOracleProbeFailure counts a failed freshness probe.
func (m *MarketMetrics) RecordOracleProbeFailure(symbol string) {
	if m == nil {
		return
	}
	m.oracleProbes.WithLabelValues(labelSymbol(symbol)).Inc()
}

func labelSymbol(symbol string) string {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

func labelOp(op string) string {
	normalized := strings.ToLower(strings.TrimSpace(op))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
