// Package keeper schedules background maintenance for the market ledger: a
// periodic AccrueAll sweep that keeps long-idle markets' stored indexes
// current, and an oracle freshness probe that feeds price-age telemetry.
// Lazy accrual inside the ledger remains the correctness mechanism; the
// sweep only bounds how much catch-up a single operation has to perform.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"lendcore/native/market"
	"lendcore/native/oracle"
	"lendcore/observability/metrics"
)

const (
	defaultAccrualSpec = "@every 1m"
	defaultProbeSpec   = "@every 30s"
	defaultQuoteUnit   = "USD"
)

// Ledger is the slice of the market ledger the keeper drives.
type Ledger interface {
	AccrueAll() ([]string, error)
	Markets() ([]*market.Market, error)
	Halted() bool
}

// Keeper owns the cron schedule for accrual sweeps and oracle probes.
type Keeper struct {
	ledger      Ledger
	feed        oracle.PriceOracle
	quote       string
	accrualSpec string
	probeSpec   string
	maxQuoteAge time.Duration
	log         *slog.Logger
	metrics     *metrics.MarketMetrics
}

// Option customises the keeper.
type Option func(*Keeper)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(k *Keeper) {
		if log != nil {
			k.log = log
		}
	}
}

// WithAccrualSpec overrides the sweep schedule. Specs use the six-field cron
// form with seconds, or @every durations.
func WithAccrualSpec(spec string) Option {
	return func(k *Keeper) {
		if trimmed := strings.TrimSpace(spec); trimmed != "" {
			k.accrualSpec = trimmed
		}
	}
}

// WithProbeSpec overrides the oracle probe schedule.
func WithProbeSpec(spec string) Option {
	return func(k *Keeper) {
		if trimmed := strings.TrimSpace(spec); trimmed != "" {
			k.probeSpec = trimmed
		}
	}
}

// WithOracleProbe enables the freshness probe against the supplied feed.
// Quotes older than maxAge are flagged; a zero maxAge records ages without
// flagging.
func WithOracleProbe(feed oracle.PriceOracle, quoteUnit string, maxAge time.Duration) Option {
	return func(k *Keeper) {
		k.feed = feed
		if trimmed := strings.TrimSpace(quoteUnit); trimmed != "" {
			k.quote = trimmed
		}
		if maxAge > 0 {
			k.maxQuoteAge = maxAge
		}
	}
}

// New wires a keeper against the ledger.
func New(ledger Ledger, opts ...Option) (*Keeper, error) {
	if ledger == nil {
		return nil, errors.New("keeper: ledger required")
	}
	k := &Keeper{
		ledger:      ledger,
		quote:       defaultQuoteUnit,
		accrualSpec: defaultAccrualSpec,
		probeSpec:   defaultProbeSpec,
		log:         slog.Default().With("component", "keeper"),
		metrics:     metrics.Market(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	return k, nil
}

// Run installs the cron jobs and blocks until the context ends. In-flight
// jobs finish before Run returns.
func (k *Keeper) Run(ctx context.Context) error {
	scheduler := cron.New(cron.WithSeconds())
	if _, err := scheduler.AddFunc(k.accrualSpec, func() { k.Sweep() }); err != nil {
		return fmt.Errorf("keeper: register accrual sweep: %w", err)
	}
	if k.feed != nil {
		if _, err := scheduler.AddFunc(k.probeSpec, func() { k.Probe() }); err != nil {
			return fmt.Errorf("keeper: register oracle probe: %w", err)
		}
	}
	scheduler.Start()
	k.log.Info("keeper started", "accrual_spec", k.accrualSpec, "probe", k.feed != nil)

	<-ctx.Done()
	<-scheduler.Stop().Done()
	k.log.Info("keeper stopped")
	return ctx.Err()
}

// Sweep accrues interest on every listed market and reports the symbols
// whose accrual block advanced. The registry halt switch suspends sweeping.
func (k *Keeper) Sweep() ([]string, error) {
	if k.ledger.Halted() {
		k.log.Debug("accrual sweep skipped while halted")
		return nil, nil
	}
	start := time.Now()
	advanced, err := k.ledger.AccrueAll()
	k.metrics.RecordAccrualSweep(len(advanced), err)
	if err != nil {
		k.log.Warn("accrual sweep failed", "error", err)
		return nil, err
	}
	if len(advanced) > 0 {
		k.log.Info("accrual sweep advanced markets", "markets", advanced, "elapsed", time.Since(start))
	}
	return advanced, nil
}

// Probe fetches a quote for every listed market and records its age. It
// returns the symbols whose quote was missing or older than the configured
// window.
func (k *Keeper) Probe() []string {
	if k.feed == nil {
		return nil
	}
	markets, err := k.ledger.Markets()
	if err != nil {
		k.log.Warn("oracle probe could not list markets", "error", err)
		return nil
	}
	now := time.Now()
	var flagged []string
	for _, mkt := range markets {
		quote, err := k.feed.GetRate(mkt.Symbol, k.quote)
		if err != nil {
			k.metrics.RecordOracleProbeFailure(mkt.Symbol)
			k.log.Warn("oracle probe failed", "symbol", mkt.Symbol, "error", err)
			flagged = append(flagged, mkt.Symbol)
			continue
		}
		age := now.Sub(quote.Timestamp)
		if age < 0 {
			age = 0
		}
		k.metrics.RecordOracleAge(mkt.Symbol, age)
		if k.maxQuoteAge > 0 && age > k.maxQuoteAge {
			k.log.Warn("oracle quote stale", "symbol", mkt.Symbol, "age", age)
			flagged = append(flagged, mkt.Symbol)
		}
	}
	return flagged
}
