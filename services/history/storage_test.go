package history

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lendcore/core/events"
)

const (
	addrAlice = "lend1alicesupplier"
	addrBob   = "lend1bobborrower"
	addrCarol = "lend1carolliquidator"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func envAt(seq uint64, eventType string, attrs map[string]string) events.Envelope {
	return events.Envelope{
		ID:        uuid.NewString(),
		Sequence:  seq,
		Cursor:    strconv.FormatUint(seq, 10),
		Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
		Event:     events.Event{Type: eventType, Attributes: attrs},
	}
}

func seedEvents(t *testing.T, store *Storage) []events.Envelope {
	t.Helper()
	envs := []events.Envelope{
		envAt(1, events.TypeMarketMinted, map[string]string{
			"symbol":   "ATOM",
			"supplier": addrAlice,
			"amount":   "1000",
			"claims":   "1000",
		}),
		envAt(2, events.TypeMarketBorrowed, map[string]string{
			"symbol":   "OSMO",
			"borrower": addrBob,
			"amount":   "400",
		}),
		envAt(3, events.TypeMarketLiquidated, map[string]string{
			"debt_symbol":       "OSMO",
			"collateral_symbol": "ATOM",
			"liquidator":        addrCarol,
			"borrower":          addrBob,
			"repaid":            "200",
		}),
	}
	for _, env := range envs {
		inserted, err := store.InsertEvent(context.Background(), env)
		require.NoError(t, err)
		require.True(t, inserted)
	}
	return envs
}

func TestStorageOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	require.ErrorIs(t, err, ErrPathRequired)
	_, err = Open("   ")
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestStorageInsertIsIdempotent(t *testing.T) {
	store := openTestStorage(t)
	envs := seedEvents(t, store)

	inserted, err := store.InsertEvent(context.Background(), envs[0])
	require.NoError(t, err)
	require.False(t, inserted)

	latest, err := store.LatestSequence(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), latest)
}

func TestStorageRejectsMissingSequence(t *testing.T) {
	store := openTestStorage(t)
	_, err := store.InsertEvent(context.Background(), events.Envelope{ID: uuid.NewString()})
	require.Error(t, err)
}

func TestStorageEventsRoundTrip(t *testing.T) {
	store := openTestStorage(t)
	envs := seedEvents(t, store)

	records, err := store.Events(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		require.Equal(t, envs[i].Sequence, rec.Sequence)
		require.Equal(t, envs[i].ID, rec.EventID)
		require.Equal(t, envs[i].Event.Type, rec.Type)
		require.Equal(t, envs[i].Event.Attributes, rec.Attributes)
		require.WithinDuration(t, envs[i].Timestamp, rec.ObservedAt, time.Second)
		require.False(t, rec.RecordedAt.IsZero())
	}

	// Liquidations index under the debt symbol.
	require.Equal(t, "ATOM", records[0].Symbol)
	require.Equal(t, "OSMO", records[2].Symbol)
}

func TestStorageQueryFilters(t *testing.T) {
	store := openTestStorage(t)
	seedEvents(t, store)
	ctx := context.Background()

	byType, err := store.Events(ctx, Query{Type: events.TypeMarketMinted})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	require.Equal(t, uint64(1), byType[0].Sequence)

	bySymbol, err := store.Events(ctx, Query{Symbol: "osmo"})
	require.NoError(t, err)
	require.Len(t, bySymbol, 2)
	require.Equal(t, uint64(2), bySymbol[0].Sequence)
	require.Equal(t, uint64(3), bySymbol[1].Sequence)

	// Bob appears both as the borrower and as the liquidated account.
	byAccount, err := store.Events(ctx, Query{Account: addrBob})
	require.NoError(t, err)
	require.Len(t, byAccount, 2)

	byLiquidator, err := store.Events(ctx, Query{Account: addrCarol})
	require.NoError(t, err)
	require.Len(t, byLiquidator, 1)
	require.Equal(t, events.TypeMarketLiquidated, byLiquidator[0].Type)

	after, err := store.Events(ctx, Query{After: 1})
	require.NoError(t, err)
	require.Len(t, after, 2)
	require.Equal(t, uint64(2), after[0].Sequence)

	limited, err := store.Events(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, uint64(1), limited[0].Sequence)

	combined, err := store.Events(ctx, Query{Account: addrBob, Type: events.TypeMarketBorrowed})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	require.Equal(t, uint64(2), combined[0].Sequence)
}

func TestStoragePruneDropsOldEvents(t *testing.T) {
	store := openTestStorage(t)
	envs := seedEvents(t, store)
	ctx := context.Background()

	cutoff := envs[2].Timestamp.Add(-time.Second)
	removed, err := store.Prune(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	records, err := store.Events(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, uint64(3), records[0].Sequence)

	// Account index rows for pruned events are gone with them.
	byAlice, err := store.Events(ctx, Query{Account: addrAlice})
	require.NoError(t, err)
	require.Empty(t, byAlice)

	latest, err := store.LatestSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), latest)
}
