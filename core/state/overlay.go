package state

import (
	"sort"
	"sync"

	"lendcore/storage"
)

// Overlay buffers writes and deletes on top of a base database until Commit.
// Reads observe the buffered view. Discard drops the buffer and leaves the
// base untouched, which gives callers all-or-nothing semantics without
// compensating writes.
type Overlay struct {
	base    storage.Database
	mu      sync.RWMutex
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay stacks a fresh overlay on the provided base.
func NewOverlay(base storage.Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Get returns the buffered value when present, falling back to the base.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	if _, gone := o.deletes[string(key)]; gone {
		o.mu.RUnlock()
		return nil, storage.ErrNotFound
	}
	if value, ok := o.writes[string(key)]; ok {
		o.mu.RUnlock()
		return append([]byte(nil), value...), nil
	}
	o.mu.RUnlock()
	return o.base.Get(key)
}

// Put buffers a write.
func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.deletes, string(key))
	o.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete buffers a tombstone that shadows the base value.
func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.writes, string(key))
	o.deletes[string(key)] = struct{}{}
	return nil
}

// Close satisfies storage.Database. The base owns its own lifecycle.
func (o *Overlay) Close() {}

// Pending reports how many buffered changes the overlay holds.
func (o *Overlay) Pending() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.writes) + len(o.deletes)
}

// Commit flushes the buffered changes to the base in sorted key order so
// repeated runs touch the backend deterministically. The overlay resets
// afterwards and can be reused.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.writes)+len(o.deletes))
	for key := range o.writes {
		keys = append(keys, key)
	}
	for key := range o.deletes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if value, ok := o.writes[key]; ok {
			if err := o.base.Put([]byte(key), value); err != nil {
				return err
			}
			continue
		}
		if err := o.base.Delete([]byte(key)); err != nil {
			return err
		}
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	return nil
}

// Discard drops every buffered change.
func (o *Overlay) Discard() {
	o.mu.Lock()
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	o.mu.Unlock()
}
