// Package clock abstracts the time operations used by the recorders,
// the orchestrator and the samplers so tests can run them without real
// waits.
//
// Production code takes a Clock and is wired with Real(). Tests use
// Fake(), in which every wait elapses instantly by advancing the fake
// time.
package clock

import "time"

// Clock is the subset of the time package the harness depends on.
type Clock interface {
	// Now returns the current time. Real clocks carry a monotonic
	// reading, so durations computed with Sub are immune to wall-clock
	// steps.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
