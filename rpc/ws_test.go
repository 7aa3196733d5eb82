package rpc

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"nhooyr.io/websocket"

	"lendcore/core/events"
)

func dialEvents(t *testing.T, f *fixture, cursor string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.url, "http") + "/ws/events"
	if cursor != "" {
		url += "?cursor=" + cursor
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial events stream: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "test done")
	})
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	var envelope events.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return envelope
}

func TestEventStreamReplaysBacklogThenFollowsLive(t *testing.T) {
	f := newAuthedFixture(t)
	conn := dialEvents(t, f, "")

	first := readEnvelope(t, conn)
	second := readEnvelope(t, conn)
	if first.Sequence != 1 || second.Sequence != 2 {
		t.Fatalf("expected genesis backlog sequences 1, 2, got %d, %d", first.Sequence, second.Sequence)
	}
	if first.Event.Type != events.TypeMarketListed || second.Event.Type != events.TypeMarketListed {
		t.Fatalf("expected listing events, got %s, %s", first.Event.Type, second.Event.Type)
	}
	if first.ID == "" || first.Cursor != "1" {
		t.Fatalf("expected envelope metadata, got id=%q cursor=%q", first.ID, first.Cursor)
	}

	if _, _, err := f.ledger.Mint(f.alice, "ATOM", uint256.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	live := readEnvelope(t, conn)
	if live.Sequence != 3 || live.Event.Type != events.TypeMarketMinted {
		t.Fatalf("expected live mint event, got seq=%d type=%s", live.Sequence, live.Event.Type)
	}
	if live.Event.Attributes["amount"] != "1000" {
		t.Fatalf("expected mint amount attribute, got %v", live.Event.Attributes)
	}
	if live.Event.Attributes["supplier"] != f.alice.String() {
		t.Fatalf("expected supplier attribute, got %v", live.Event.Attributes)
	}
}

func TestEventStreamResumesFromCursor(t *testing.T) {
	f := newAuthedFixture(t)
	conn := dialEvents(t, f, "1")

	envelope := readEnvelope(t, conn)
	if envelope.Sequence != 2 {
		t.Fatalf("expected replay to start after cursor, got sequence %d", envelope.Sequence)
	}
}

func TestEventStreamRejectsBadCursor(t *testing.T) {
	f := newAuthedFixture(t)
	conn := dialEvents(t, f, "not-a-cursor")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatalf("expected stream to close on invalid cursor")
	}
}
