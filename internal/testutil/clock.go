package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a WallClock reports.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// WallClock is a deterministic stand-in for time.Now.
//
// Each call to Now advances by Step, so timestamps written by configs and
// key rings are identical across runs and golden traces stay stable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type WallClock struct {
	mu   sync.Mutex
	step time.Duration
	next time.Time
}

// NewWallClock creates a clock starting at Epoch that advances by step.
func NewWallClock(step time.Duration) *WallClock {
	return &WallClock{step: step, next: Epoch}
}

// Now returns the current instant and advances the clock.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Advance moves the clock forward by d without returning a reading.
func (c *WallClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.next.Add(d)
}

// Reset rewinds the clock to Epoch.
func (c *WallClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
