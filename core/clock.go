package core

import (
	"errors"
	"sync/atomic"
	"time"
)

// BlockClock supplies the block height interest accrual indexes against.
type BlockClock interface {
	Height() uint64
}

// IntervalClock derives the block height from wall-clock time: height n
// covers the n-th interval after the genesis instant. Restarting a node with
// the same genesis time and interval resumes the same height sequence.
type IntervalClock struct {
	genesis  time.Time
	interval time.Duration
}

// NewIntervalClock builds a clock ticking once per interval from the genesis
// instant.
func NewIntervalClock(genesis time.Time, interval time.Duration) (*IntervalClock, error) {
	if genesis.IsZero() {
		return nil, errors.New("core: genesis time required")
	}
	if interval <= 0 {
		return nil, errors.New("core: block interval must be positive")
	}
	return &IntervalClock{genesis: genesis.UTC(), interval: interval}, nil
}

// Height implements BlockClock. Clock drift before the genesis instant pins
// the height at zero rather than going negative.
func (c *IntervalClock) Height() uint64 {
	elapsed := time.Since(c.genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / c.interval)
}

// Interval returns the configured block cadence.
func (c *IntervalClock) Interval() time.Duration {
	return c.interval
}

// ManualClock is a hand-driven height source for tests and offline tooling.
type ManualClock struct {
	height atomic.Uint64
}

// NewManualClock starts a manual clock at the given height.
func NewManualClock(height uint64) *ManualClock {
	c := &ManualClock{}
	c.height.Store(height)
	return c
}

// Height implements BlockClock.
func (c *ManualClock) Height() uint64 {
	return c.height.Load()
}

// SetHeight moves the clock to an absolute height.
func (c *ManualClock) SetHeight(height uint64) {
	c.height.Store(height)
}

// Advance moves the clock forward by delta blocks.
func (c *ManualClock) Advance(delta uint64) {
	c.height.Add(delta)
}
