package core

import (
	"testing"
	"time"
)

func TestIntervalClockDerivesHeight(t *testing.T) {
	genesis := time.Now().Add(-10 * time.Minute)
	clock, err := NewIntervalClock(genesis, time.Minute)
	if err != nil {
		t.Fatalf("new interval clock: %v", err)
	}
	if got := clock.Height(); got != 10 {
		t.Fatalf("height: %d", got)
	}
	if clock.Interval() != time.Minute {
		t.Fatalf("interval: %s", clock.Interval())
	}
}

func TestIntervalClockPinsPreGenesisAtZero(t *testing.T) {
	genesis := time.Now().Add(time.Hour)
	clock, err := NewIntervalClock(genesis, time.Second)
	if err != nil {
		t.Fatalf("new interval clock: %v", err)
	}
	if got := clock.Height(); got != 0 {
		t.Fatalf("pre-genesis height: %d", got)
	}
}

func TestIntervalClockValidatesInputs(t *testing.T) {
	if _, err := NewIntervalClock(time.Time{}, time.Second); err == nil {
		t.Fatal("zero genesis accepted")
	}
	if _, err := NewIntervalClock(time.Now(), 0); err == nil {
		t.Fatal("zero interval accepted")
	}
	if _, err := NewIntervalClock(time.Now(), -time.Second); err == nil {
		t.Fatal("negative interval accepted")
	}
}

func TestManualClockAdvances(t *testing.T) {
	clock := NewManualClock(7)
	if clock.Height() != 7 {
		t.Fatalf("initial height: %d", clock.Height())
	}
	clock.Advance(3)
	if clock.Height() != 10 {
		t.Fatalf("after advance: %d", clock.Height())
	}
	clock.SetHeight(2)
	if clock.Height() != 2 {
		t.Fatalf("after set: %d", clock.Height())
	}
}
