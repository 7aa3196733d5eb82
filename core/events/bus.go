package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 2048
	subscriberBuffer    = 32
)

// Envelope wraps a flattened event with the ordering metadata subscribers
// resume from. Sequence increases by one per published event and Cursor is
// its decimal rendering.
type Envelope struct {
	ID        string    `json:"id"`
	Sequence  uint64    `json:"sequence"`
	Cursor    string    `json:"cursor"`
	Timestamp time.Time `json:"timestamp"`
	Event     Event     `json:"event"`
}

// Bus fans ledger events out to subscribers while retaining a bounded replay
// window. Slow subscribers lose events rather than stall the publisher.
type Bus struct {
	mu      sync.Mutex
	seq     uint64
	history []Envelope
	limit   int
	subs    map[uint64]chan Envelope
	nextSub uint64
}

// NewBus returns an empty bus with the default replay window.
func NewBus() *Bus {
	return &Bus{
		limit: defaultHistoryLimit,
		subs:  make(map[uint64]chan Envelope),
	}
}

// SetHistoryLimit resizes the replay window. Values at or below zero restore
// the default. Shrinking drops the oldest retained events.
func (b *Bus) SetHistoryLimit(limit int) {
	if b == nil {
		return
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = limit
	b.trimLocked()
}

// Emit implements Emitter. Nil events and events that flatten to nil are
// dropped.
func (b *Bus) Emit(evt Typed) {
	if b == nil || evt == nil {
		return
	}
	flat := evt.Event()
	if flat == nil {
		return
	}
	b.Publish(*flat)
}

// Publish assigns the next sequence number to the event, records it in the
// replay window and offers it to every live subscriber without blocking.
func (b *Bus) Publish(evt Event) Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	env := Envelope{
		ID:        uuid.NewString(),
		Sequence:  b.seq,
		Cursor:    strconv.FormatUint(b.seq, 10),
		Timestamp: time.Now().UTC(),
		Event:     evt,
	}
	b.history = append(b.history, env)
	b.trimLocked()

	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
		}
	}
	return env
}

func (b *Bus) trimLocked() {
	if len(b.history) <= b.limit {
		return
	}
	overflow := len(b.history) - b.limit
	trimmed := make([]Envelope, b.limit)
	copy(trimmed, b.history[overflow:])
	b.history = trimmed
}

// Subscribe registers a live event feed. The cursor names the last sequence
// the caller has already seen; events after it that are still inside the
// replay window are returned as backlog. Cancel is idempotent and fires
// automatically when the context ends.
func (b *Bus) Subscribe(ctx context.Context, cursor string) (<-chan Envelope, func(), []Envelope, error) {
	if b == nil {
		return nil, nil, nil, fmt.Errorf("events: bus not initialised")
	}
	var since uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("events: parse cursor: %w", err)
		}
		since = parsed
	}

	b.mu.Lock()
	ch := make(chan Envelope, subscriberBuffer)
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	var backlog []Envelope
	for _, env := range b.history {
		if env.Sequence > since {
			backlog = append(backlog, env)
		}
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, backlog, nil
}

// Sequence reports the sequence number of the most recently published event.
func (b *Bus) Sequence() uint64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
