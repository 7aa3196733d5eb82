package history

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lendcore/core/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type busSource struct {
	bus *events.Bus
}

func (b busSource) SubscribeEvents(ctx context.Context, cursor string) (<-chan events.Envelope, func(), []events.Envelope, error) {
	return b.bus.Subscribe(ctx, cursor)
}

func startIndexer(t *testing.T, store *Storage, source EventSource) context.CancelFunc {
	t.Helper()
	ix, err := NewIndexer(store, source, WithLogger(discardLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("indexer did not stop after cancel")
		}
	})
	return cancel
}

func TestNewIndexerValidatesDependencies(t *testing.T) {
	store := openTestStorage(t)
	_, err := NewIndexer(nil, busSource{events.NewBus()})
	require.Error(t, err)
	_, err = NewIndexer(store, nil)
	require.Error(t, err)
}

func TestIndexerPersistsLiveEvents(t *testing.T) {
	bus := events.NewBus()
	store := openTestStorage(t)
	startIndexer(t, store, busSource{bus})

	bus.Publish(events.Event{Type: events.TypeMarketMinted, Attributes: map[string]string{
		"symbol":   "ATOM",
		"supplier": addrAlice,
		"amount":   "1000",
	}})
	bus.Publish(events.Event{Type: events.TypeMarketBorrowed, Attributes: map[string]string{
		"symbol":   "OSMO",
		"borrower": addrBob,
		"amount":   "400",
	}})

	require.Eventually(t, func() bool {
		latest, err := store.LatestSequence(context.Background())
		return err == nil && latest == 2
	}, 2*time.Second, 10*time.Millisecond)

	records, err := store.Events(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, events.TypeMarketMinted, records[0].Type)
	require.Equal(t, events.TypeMarketBorrowed, records[1].Type)
	require.Equal(t, addrAlice, records[0].Attributes["supplier"])
}

func TestIndexerReplaysBusWindowOnFreshDatabase(t *testing.T) {
	bus := events.NewBus()
	bus.Publish(events.Event{Type: events.TypeMarketListed, Attributes: map[string]string{"symbol": "ATOM"}})
	bus.Publish(events.Event{Type: events.TypeMarketListed, Attributes: map[string]string{"symbol": "OSMO"}})

	store := openTestStorage(t)
	startIndexer(t, store, busSource{bus})

	require.Eventually(t, func() bool {
		latest, err := store.LatestSequence(context.Background())
		return err == nil && latest == 2
	}, 2*time.Second, 10*time.Millisecond)

	records, err := store.Events(context.Background(), Query{Type: events.TypeMarketListed})
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestIndexerResumesFromStoredCursor(t *testing.T) {
	bus := events.NewBus()
	first := bus.Publish(events.Event{Type: events.TypeMarketListed, Attributes: map[string]string{"symbol": "ATOM"}})
	second := bus.Publish(events.Event{Type: events.TypeMarketMinted, Attributes: map[string]string{"symbol": "ATOM", "supplier": addrAlice}})

	store := openTestStorage(t)
	for _, env := range []events.Envelope{first, second} {
		inserted, err := store.InsertEvent(context.Background(), env)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	bus.Publish(events.Event{Type: events.TypeMarketEntered, Attributes: map[string]string{"symbol": "ATOM", "account": addrAlice}})
	startIndexer(t, store, busSource{bus})

	require.Eventually(t, func() bool {
		latest, err := store.LatestSequence(context.Background())
		return err == nil && latest == 3
	}, 2*time.Second, 10*time.Millisecond)

	records, err := store.Events(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, events.TypeMarketEntered, records[2].Type)
}

// gapSource skips part of the stream on the first subscription to force the
// indexer through its resubscribe path.
type gapSource struct {
	mu      sync.Mutex
	envs    []events.Envelope
	cursors []string
}

func (g *gapSource) SubscribeEvents(_ context.Context, cursor string) (<-chan events.Envelope, func(), []events.Envelope, error) {
	g.mu.Lock()
	g.cursors = append(g.cursors, cursor)
	call := len(g.cursors)
	g.mu.Unlock()

	ch := make(chan events.Envelope, len(g.envs))
	if call == 1 {
		// Deliver only the newest event, leaving a hole behind it.
		ch <- g.envs[len(g.envs)-1]
		return ch, func() {}, nil, nil
	}
	var since uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, nil, nil, err
		}
		since = parsed
	}
	var backlog []events.Envelope
	for _, env := range g.envs {
		if env.Sequence > since {
			backlog = append(backlog, env)
		}
	}
	return ch, func() {}, backlog, nil
}

func (g *gapSource) subscribeCursors() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cursors...)
}

func TestIndexerHealsSequenceGaps(t *testing.T) {
	source := &gapSource{envs: []events.Envelope{
		envAt(1, events.TypeMarketListed, map[string]string{"symbol": "ATOM"}),
		envAt(2, events.TypeMarketMinted, map[string]string{"symbol": "ATOM", "supplier": addrAlice}),
		envAt(3, events.TypeMarketBorrowed, map[string]string{"symbol": "ATOM", "borrower": addrBob}),
	}}
	store := openTestStorage(t)

	inserted, err := store.InsertEvent(context.Background(), source.envs[0])
	require.NoError(t, err)
	require.True(t, inserted)

	startIndexer(t, store, source)

	require.Eventually(t, func() bool {
		records, err := store.Events(context.Background(), Query{})
		return err == nil && len(records) == 3
	}, 5*time.Second, 20*time.Millisecond)

	cursors := source.subscribeCursors()
	require.GreaterOrEqual(t, len(cursors), 2)
	require.Equal(t, "1", cursors[0])
	require.Equal(t, "1", cursors[1])
}
