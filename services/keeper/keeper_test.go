package keeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"lendcore/native/market"
	"lendcore/native/oracle"
)

type stubLedger struct {
	mu       sync.Mutex
	markets  []*market.Market
	advanced []string
	err      error
	halted   bool
	sweeps   int
}

func (s *stubLedger) AccrueAll() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	if s.err != nil {
		return nil, s.err
	}
	return append([]string(nil), s.advanced...), nil
}

func (s *stubLedger) Markets() ([]*market.Market, error) {
	return s.markets, nil
}

func (s *stubLedger) Halted() bool { return s.halted }

func (s *stubLedger) sweepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestKeeper(t *testing.T, ledger Ledger, opts ...Option) *Keeper {
	t.Helper()
	opts = append(opts, WithLogger(discardLogger()))
	k, err := New(ledger, opts...)
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}
	return k
}

func TestNewRequiresLedger(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil ledger")
	}
}

func TestSweepReportsAdvancedMarkets(t *testing.T) {
	ledger := &stubLedger{advanced: []string{"ATOM", "OSMO"}}
	k := newTestKeeper(t, ledger)

	advanced, err := k.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(advanced) != 2 || advanced[0] != "ATOM" || advanced[1] != "OSMO" {
		t.Fatalf("unexpected advanced set: %v", advanced)
	}
	if got := ledger.sweepCount(); got != 1 {
		t.Fatalf("expected one AccrueAll call, got %d", got)
	}
}

func TestSweepSkipsWhenHalted(t *testing.T) {
	ledger := &stubLedger{halted: true, advanced: []string{"ATOM"}}
	k := newTestKeeper(t, ledger)

	advanced, err := k.Sweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if advanced != nil {
		t.Fatalf("expected no advance while halted, got %v", advanced)
	}
	if got := ledger.sweepCount(); got != 0 {
		t.Fatalf("AccrueAll ran %d times while halted", got)
	}
}

func TestSweepSurfacesLedgerError(t *testing.T) {
	ledger := &stubLedger{err: errors.New("accrual overflow")}
	k := newTestKeeper(t, ledger)

	if _, err := k.Sweep(); err == nil {
		t.Fatal("expected ledger error")
	}
}

func TestProbeFlagsMissingQuotes(t *testing.T) {
	feed := oracle.NewManualOracle()
	feed.Set("ATOM", "USD", big.NewRat(10, 1), time.Now())

	ledger := &stubLedger{markets: []*market.Market{{Symbol: "ATOM"}, {Symbol: "OSMO"}}}
	k := newTestKeeper(t, ledger, WithOracleProbe(feed, "USD", time.Hour))

	flagged := k.Probe()
	if len(flagged) != 1 || flagged[0] != "OSMO" {
		t.Fatalf("unexpected flagged set: %v", flagged)
	}
}

func TestProbeFlagsStaleQuotes(t *testing.T) {
	feed := oracle.NewManualOracle()
	feed.Set("ATOM", "USD", big.NewRat(10, 1), time.Now().Add(-2*time.Hour))

	ledger := &stubLedger{markets: []*market.Market{{Symbol: "ATOM"}}}
	k := newTestKeeper(t, ledger, WithOracleProbe(feed, "USD", time.Hour))

	flagged := k.Probe()
	if len(flagged) != 1 || flagged[0] != "ATOM" {
		t.Fatalf("unexpected flagged set: %v", flagged)
	}
}

func TestProbeWithinWindowFlagsNothing(t *testing.T) {
	feed := oracle.NewManualOracle()
	feed.Set("ATOM", "USD", big.NewRat(10, 1), time.Now().Add(-time.Minute))

	ledger := &stubLedger{markets: []*market.Market{{Symbol: "ATOM"}}}
	k := newTestKeeper(t, ledger, WithOracleProbe(feed, "USD", time.Hour))

	if flagged := k.Probe(); flagged != nil {
		t.Fatalf("unexpected flagged set: %v", flagged)
	}
}

func TestProbeWithoutFeedIsNoop(t *testing.T) {
	ledger := &stubLedger{markets: []*market.Market{{Symbol: "ATOM"}}}
	k := newTestKeeper(t, ledger)

	if flagged := k.Probe(); flagged != nil {
		t.Fatalf("expected nil without a feed, got %v", flagged)
	}
}

func TestRunExecutesScheduledSweeps(t *testing.T) {
	ledger := &stubLedger{advanced: []string{"ATOM"}}
	k := newTestKeeper(t, ledger, WithAccrualSpec("@every 1s"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for ledger.sweepCount() == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("no sweep before deadline")
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not stop after cancel")
	}
}

func TestRunRejectsMalformedSpec(t *testing.T) {
	k := newTestKeeper(t, &stubLedger{}, WithAccrualSpec("every so often"))
	if err := k.Run(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
