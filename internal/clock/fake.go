package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock that starts at initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock. Time moves only through Advance,
// Sleep and After: a wait advances the clock by its duration and returns
// at once, so sequential code under test observes exactly the waits it
// asked for. Every wait is recorded and can be inspected with Waits.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waits   []time.Duration
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d. Negative values are ignored.
func (c *FakeClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// Sleep records the wait and advances the clock by d.
func (c *FakeClock) Sleep(d time.Duration) {
	c.wait(d)
}

// After records the wait, advances the clock by d and returns a channel
// that already holds the new time.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	now := c.wait(d)
	channel := make(chan time.Time, 1)
	channel <- now
	return channel
}

// Waits returns every duration passed to Sleep or After, in call order.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

func (c *FakeClock) wait(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	if d > 0 {
		c.current = c.current.Add(d)
	}
	return c.current
}
