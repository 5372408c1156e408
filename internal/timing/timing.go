// Package timing holds the timestamp and fixed-rate scheduling
// primitives shared by the recorders and the built-in samplers.
package timing

import (
	"context"
	"time"

	"github.com/ciricc/e3bench/internal/clock"
)

// WallNanos returns the wall-clock time of c in nanoseconds since the
// Unix epoch.
func WallNanos(c clock.Clock) int64 {
	return c.Now().UnixNano()
}

// Scheduler paces a loop at a fixed rate. Each Wait targets the previous
// deadline plus the interval, so work done between ticks does not drift
// the schedule. When the loop falls behind, the schedule restarts from
// the current time instead of bursting to catch up.
type Scheduler struct {
	clock    clock.Clock
	interval time.Duration
	next     time.Time
	missed   int
}

// NewScheduler returns a Scheduler whose first deadline is one interval
// after the current time of c.
func NewScheduler(c clock.Clock, interval time.Duration) *Scheduler {
	return &Scheduler{
		clock:    c,
		interval: interval,
		next:     c.Now(),
	}
}

// Wait blocks until the next tick or until ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.next = s.next.Add(s.interval)

	now := s.clock.Now()
	delay := s.next.Sub(now)
	if delay <= 0 {
		s.next = now
		s.missed++
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(delay):
		return nil
	}
}

// Missed reports how many ticks found the loop already behind schedule.
func (s *Scheduler) Missed() int {
	return s.missed
}
