package engine

import "sync/atomic"

// Clock is a Lamport clock stamping field writes.
//
// Local writes take Next(). Every merged remote stamp is passed to Observe so
// that later local writes order after everything this device has seen.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from start, used when loading a dump.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued or observed value.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Observe advances the clock to at least remote.
func (c *Clock) Observe(remote int64) {
	for {
		cur := c.seq.Load()
		if remote <= cur {
			return
		}
		if c.seq.CompareAndSwap(cur, remote) {
			return
		}
	}
}
