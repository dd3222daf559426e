package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a fake wall clock for tests. Every call to Now
// advances it by a fixed step, so measured durations are exact.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewDeterministicClock creates a clock at start that advances by step.
//
// The first call to Now() returns start.
func NewDeterministicClock(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{start: start, now: start, step: step}
}

// Now returns the current time and advances the clock by one step.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Current returns the current time without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset moves the clock back to its start.
//
// Used for test reuse. After Reset(), the next call to Now() returns start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
