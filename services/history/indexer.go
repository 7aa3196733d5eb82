package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"lendcore/core/events"
	"lendcore/observability/metrics"
)

const resubscribeDelay = time.Second

// EventSource exposes the ledger event feed the indexer follows.
type EventSource interface {
	SubscribeEvents(ctx context.Context, cursor string) (<-chan events.Envelope, func(), []events.Envelope, error)
}

// Indexer tails the ledger event stream and persists every envelope. It
// resumes from the last stored sequence, so restarts only replay the portion
// of the bus window that was not yet written.
type Indexer struct {
	storage   *Storage
	source    EventSource
	log       *slog.Logger
	metrics   *metrics.MarketMetrics
	retention time.Duration
	pruneTick time.Duration
}

// IndexerOption customises the indexer.
type IndexerOption func(*Indexer)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) IndexerOption {
	return func(ix *Indexer) {
		if log != nil {
			ix.log = log
		}
	}
}

// WithRetention bounds how long events are kept. Zero disables pruning.
func WithRetention(d time.Duration) IndexerOption {
	return func(ix *Indexer) {
		if d > 0 {
			ix.retention = d
		}
	}
}

// NewIndexer wires the indexer against its storage and event source.
func NewIndexer(storage *Storage, source EventSource, opts ...IndexerOption) (*Indexer, error) {
	if storage == nil {
		return nil, errors.New("history: storage required")
	}
	if source == nil {
		return nil, errors.New("history: event source required")
	}
	ix := &Indexer{
		storage:   storage,
		source:    source,
		log:       slog.Default().With("component", "history.indexer"),
		metrics:   metrics.Market(),
		pruneTick: time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ix)
		}
	}
	return ix, nil
}

// Run follows the event stream until the context is cancelled. Interrupted
// subscriptions are re-established from the stored cursor, which also heals
// gaps left by a lagging consumer as long as the missed events are still
// inside the bus replay window.
func (ix *Indexer) Run(ctx context.Context) error {
	for {
		if err := ix.follow(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.log.Warn("event stream interrupted", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resubscribeDelay):
		}
	}
}

func (ix *Indexer) follow(ctx context.Context) error {
	latest, err := ix.storage.LatestSequence(ctx)
	if err != nil {
		return err
	}
	cursor := ""
	if latest > 0 {
		cursor = strconv.FormatUint(latest, 10)
	}
	ch, cancel, backlog, err := ix.source.SubscribeEvents(ctx, cursor)
	if err != nil {
		return fmt.Errorf("history: subscribe events: %w", err)
	}
	defer cancel()

	last := latest
	for _, env := range backlog {
		ix.persist(ctx, env)
		last = env.Sequence
	}
	if len(backlog) > 0 {
		ix.log.Info("replayed event backlog", "events", len(backlog), "sequence", last)
	}

	var pruneC <-chan time.Time
	if ix.retention > 0 {
		ticker := time.NewTicker(ix.pruneTick)
		defer ticker.Stop()
		pruneC = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-ch:
			if !ok {
				return errors.New("history: event channel closed")
			}
			if last > 0 && env.Sequence > last+1 {
				return fmt.Errorf("history: missed events after sequence %d", last)
			}
			ix.persist(ctx, env)
			last = env.Sequence
		case <-pruneC:
			cutoff := time.Now().Add(-ix.retention)
			removed, err := ix.storage.Prune(ctx, cutoff)
			if err != nil {
				ix.log.Warn("prune failed", "error", err)
				continue
			}
			if removed > 0 {
				ix.log.Info("pruned events", "removed", removed, "cutoff", cutoff.UTC())
			}
		}
	}
}

func (ix *Indexer) persist(ctx context.Context, env events.Envelope) {
	inserted, err := ix.storage.InsertEvent(ctx, env)
	if err != nil {
		ix.log.Warn("persist event failed", "sequence", env.Sequence, "type", env.Event.Type, "error", err)
		return
	}
	if inserted {
		ix.metrics.RecordEventIndexed(env.Event.Type)
	}
}
