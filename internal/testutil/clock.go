package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the first instant returned by a new DeterministicClock.
var DefaultEpoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// DeterministicClock is a thread-safe clock for tests that advances by a
// fixed step on every reading.
//
// Two clocks built with the same epoch and step return identical
// sequences, so the same scenario yields byte-identical output.
//
// Implements store.Clock.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch time.Time
	step  time.Duration
	seq   int64
}

// NewDeterministicClock creates a clock starting at DefaultEpoch and
// advancing one second per reading.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpoch, time.Second)
}

// NewDeterministicClockAt creates a clock starting at epoch and advancing
// by step per reading.
func NewDeterministicClockAt(epoch time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{epoch: epoch.UTC(), step: step}
}

// Now returns epoch + n*step for the n-th call, starting at n = 0.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.epoch.Add(time.Duration(c.seq) * c.step)
	c.seq++
	return t
}

// Readings returns how many times Now has been called.
func (c *DeterministicClock) Readings() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to its epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
