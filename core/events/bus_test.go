package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func publishN(b *Bus, n int) {
	for i := 0; i < n; i++ {
		b.Publish(Event{Type: TypeMarketAccrued, Attributes: map[string]string{"symbol": "ATOM"}})
	}
}

func TestBusAssignsSequenceAndCursor(t *testing.T) {
	bus := NewBus()
	first := bus.Publish(Event{Type: TypeMarketMinted})
	second := bus.Publish(Event{Type: TypeMarketRedeemed})

	require.Equal(t, uint64(1), first.Sequence)
	require.Equal(t, "1", first.Cursor)
	require.Equal(t, uint64(2), second.Sequence)
	require.Equal(t, "2", second.Cursor)
	require.NotEmpty(t, first.ID)
	require.NotEqual(t, first.ID, second.ID)
	require.False(t, first.Timestamp.IsZero())
	require.Equal(t, uint64(2), bus.Sequence())
}

func TestBusBacklogHonoursCursor(t *testing.T) {
	bus := NewBus()
	publishN(bus, 5)

	ch, cancel, backlog, err := bus.Subscribe(context.Background(), "3")
	require.NoError(t, err)
	defer cancel()
	require.NotNil(t, ch)
	require.Len(t, backlog, 2)
	require.Equal(t, uint64(4), backlog[0].Sequence)
	require.Equal(t, uint64(5), backlog[1].Sequence)
}

func TestBusEmptyCursorReplaysWindow(t *testing.T) {
	bus := NewBus()
	publishN(bus, 3)

	_, cancel, backlog, err := bus.Subscribe(context.Background(), "")
	require.NoError(t, err)
	defer cancel()
	require.Len(t, backlog, 3)
}

func TestBusRejectsMalformedCursor(t *testing.T) {
	bus := NewBus()
	_, _, _, err := bus.Subscribe(context.Background(), "not-a-number")
	require.Error(t, err)
}

func TestBusDeliversLiveEvents(t *testing.T) {
	bus := NewBus()
	ch, cancel, backlog, err := bus.Subscribe(context.Background(), "")
	require.NoError(t, err)
	defer cancel()
	require.Empty(t, backlog)

	env := bus.Publish(Event{Type: TypeMarketBorrowed, Attributes: map[string]string{"symbol": "OSMO"}})

	select {
	case got := <-ch:
		require.Equal(t, env.Sequence, got.Sequence)
		require.Equal(t, TypeMarketBorrowed, got.Event.Type)
		require.Equal(t, "OSMO", got.Event.Attributes["symbol"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestBusDropsEventsForSlowSubscribers(t *testing.T) {
	bus := NewBus()
	ch, cancel, _, err := bus.Subscribe(context.Background(), "")
	require.NoError(t, err)
	defer cancel()

	publishN(bus, subscriberBuffer+8)

	require.Len(t, ch, subscriberBuffer)
	first := <-ch
	require.Equal(t, uint64(1), first.Sequence)
}

func TestBusHistoryCap(t *testing.T) {
	bus := NewBus()
	bus.SetHistoryLimit(3)
	publishN(bus, 5)

	_, cancel, backlog, err := bus.Subscribe(context.Background(), "")
	require.NoError(t, err)
	defer cancel()
	require.Len(t, backlog, 3)
	require.Equal(t, uint64(3), backlog[0].Sequence)
	require.Equal(t, uint64(5), backlog[2].Sequence)
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := NewBus()
	ch, cancel, _, err := bus.Subscribe(context.Background(), "")
	require.NoError(t, err)

	cancel()
	cancel()

	_, open := <-ch
	require.False(t, open)

	// Publishing after cancel must not panic on the closed channel.
	publishN(bus, 1)
}

func TestBusContextCancelReleasesSubscriber(t *testing.T) {
	bus := NewBus()
	ctx, stop := context.WithCancel(context.Background())
	ch, cancel, _, err := bus.Subscribe(ctx, "")
	require.NoError(t, err)
	defer cancel()

	stop()

	select {
	case _, open := <-ch:
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestBusEmitFlattensTypedEvents(t *testing.T) {
	bus := NewBus()
	ch, cancel, _, err := bus.Subscribe(context.Background(), "")
	require.NoError(t, err)
	defer cancel()

	bus.Emit(MarketEntered{Symbol: "ATOM"})

	select {
	case got := <-ch:
		require.Equal(t, TypeMarketEntered, got.Event.Type)
		require.Equal(t, "ATOM", got.Event.Attributes["symbol"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emitted event")
	}
}
