// Package autorange times a callback in blocks until enough time has
// been spent to trust the result.
//
// A block runs the callback NumberPerRun times back to back. The block
// size is chosen first so that timing overhead is negligible, then
// blocks are repeated until a minimum run time has accumulated and, for
// the adaptive timer, until the spread of the block times is small
// enough.
package autorange

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/ciricc/e3bench/internal/clock"
)

var (
	// ErrUnavailable is returned by Lookup for an unknown timer.
	ErrUnavailable = errors.New("adaptive timer unavailable")

	// ErrStop is returned by a callback to end timing early. The partial
	// measurement is still returned.
	ErrStop = errors.New("stop requested")
)

const (
	overheadSamples     = 5
	maxRelativeOverhead = 1e-4
	maxBlockSize        = math.MaxInt32
)

// Timer measures fn. A non-nil error from fn ends the measurement at
// once; the blocks completed so far are returned with that error.
type Timer interface {
	Autorange(fn func() error, minRunTime time.Duration) (Measurement, error)
}

// Lookup returns the timer registered under name.
func Lookup(name string, c clock.Clock) (Timer, error) {
	switch name {
	case "adaptive":
		return NewAdaptive(WithClock(c)), nil
	case "blocked":
		return NewBlocked(WithClock(c)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnavailable, name)
	}
}

type options struct {
	clock        clock.Clock
	threshold    float64
	estimateTime time.Duration
	maxRunTime   time.Duration
}

type Option func(o *options)

func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithThreshold sets the IQR/median ratio at which the adaptive timer
// stops.
func WithThreshold(t float64) Option {
	return func(o *options) { o.threshold = t }
}

// WithMaxRunTime bounds the time the adaptive timer spends in blocks.
func WithMaxRunTime(d time.Duration) Option {
	return func(o *options) { o.maxRunTime = d }
}

func newOptions(opts []Option) options {
	o := options{
		clock:        clock.Real(),
		threshold:    0.1,
		estimateTime: 50 * time.Millisecond,
		maxRunTime:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Blocked repeats blocks until minRunTime has been spent.
type Blocked struct {
	opts options
}

var _ Timer = (*Blocked)(nil)

func NewBlocked(opts ...Option) *Blocked {
	return &Blocked{opts: newOptions(opts)}
}

func (b *Blocked) Autorange(fn func() error, minRunTime time.Duration) (Measurement, error) {
	r := runner{clock: b.opts.clock, fn: fn}
	number, err := r.estimateBlockSize(minRunTime)
	if err != nil {
		return Measurement{NumberPerRun: number}, err
	}
	return r.loop(number, minRunTime, 0, func([]time.Duration) bool { return true })
}

// Adaptive repeats blocks until minRunTime has been spent and the
// IQR/median ratio of the block times falls below a threshold, or until
// the maximum run time is exceeded.
type Adaptive struct {
	opts options
}

var _ Timer = (*Adaptive)(nil)

func NewAdaptive(opts ...Option) *Adaptive {
	return &Adaptive{opts: newOptions(opts)}
}

func (a *Adaptive) Autorange(fn func() error, minRunTime time.Duration) (Measurement, error) {
	r := runner{clock: a.opts.clock, fn: fn}
	number, err := r.estimateBlockSize(a.opts.estimateTime)
	if err != nil {
		return Measurement{NumberPerRun: number}, err
	}
	stop := func(times []time.Duration) bool {
		if len(times) <= 3 {
			return false
		}
		return perInvocation(number, times).meetsConfidence(a.opts.threshold)
	}
	return r.loop(number, minRunTime, a.opts.maxRunTime, stop)
}

type runner struct {
	clock clock.Clock
	fn    func() error
}

// timeit runs fn number times and returns the elapsed time.
func (r runner) timeit(number int) (time.Duration, error) {
	start := r.clock.Now()
	for range number {
		if err := r.fn(); err != nil {
			return r.clock.Now().Sub(start), err
		}
	}
	return r.clock.Now().Sub(start), nil
}

// estimateBlockSize grows the block size tenfold until the timing
// overhead is negligible or a single block exceeds minRunTime.
func (r runner) estimateBlockSize(minRunTime time.Duration) (int, error) {
	overheads := make([]time.Duration, 0, overheadSamples)
	for range overheadSamples {
		d, _ := r.timeit(0)
		overheads = append(overheads, d)
	}
	slices.Sort(overheads)
	overhead := overheads[(len(overheads)-1)/2]

	number := 1
	for {
		taken, err := r.timeit(number)
		if err != nil {
			return number, err
		}
		if taken > 0 {
			relative := float64(overhead) / float64(taken)
			if relative <= maxRelativeOverhead && taken >= minRunTime/1000 {
				break
			}
		}
		if taken > minRunTime {
			break
		}
		if number*10 > maxBlockSize {
			break
		}
		number *= 10
	}
	return number, nil
}

func (r runner) loop(number int, minRunTime, maxRunTime time.Duration, canStop func([]time.Duration) bool) (Measurement, error) {
	var (
		total time.Duration
		times []time.Duration
		stop  bool
	)
	for total < minRunTime || !stop {
		taken, err := r.timeit(number)
		if err != nil {
			return perInvocation(number, times), err
		}
		times = append(times, taken)
		total += taken
		stop = canStop(times)
		if maxRunTime > 0 && total > maxRunTime {
			break
		}
	}
	return perInvocation(number, times), nil
}

func perInvocation(number int, blocks []time.Duration) Measurement {
	raw := make([]time.Duration, len(blocks))
	for i, b := range blocks {
		raw[i] = b / time.Duration(number)
	}
	return Measurement{NumberPerRun: number, RawTimes: raw}
}
