package autorange

import (
	"math"
	"slices"
	"time"

	"github.com/samber/lo"
)

// Measurement holds the blocks timed by one autorange call. RawTimes are
// per-invocation times: each block's elapsed time divided by
// NumberPerRun.
type Measurement struct {
	NumberPerRun int
	RawTimes     []time.Duration
}

// Len returns the number of timed blocks.
func (m Measurement) Len() int {
	return len(m.RawTimes)
}

func (m Measurement) Mean() time.Duration {
	if len(m.RawTimes) == 0 {
		return 0
	}
	return time.Duration(math.Round(lo.Sum(m.floats()) / float64(len(m.RawTimes))))
}

// Std returns the population standard deviation.
func (m Measurement) Std() time.Duration {
	n := len(m.RawTimes)
	if n == 0 {
		return 0
	}
	values := m.floats()
	mean := lo.Sum(values) / float64(n)
	squares := lo.Map(values, func(v float64, _ int) float64 {
		return (v - mean) * (v - mean)
	})
	return time.Duration(math.Round(math.Sqrt(lo.Sum(squares) / float64(n))))
}

func (m Measurement) Median() time.Duration {
	return time.Duration(math.Round(m.quantile(0.5)))
}

// IQR returns the spread between the 75th and 25th percentiles.
func (m Measurement) IQR() time.Duration {
	return time.Duration(math.Round(m.quantile(0.75) - m.quantile(0.25)))
}

// meetsConfidence reports whether IQR/median fell below threshold.
func (m Measurement) meetsConfidence(threshold float64) bool {
	median := m.quantile(0.5)
	if median <= 0 {
		return false
	}
	return (m.quantile(0.75)-m.quantile(0.25))/median < threshold
}

func (m Measurement) floats() []float64 {
	return lo.Map(m.RawTimes, func(d time.Duration, _ int) float64 {
		return float64(d)
	})
}

// quantile interpolates linearly between the two nearest ranks.
func (m Measurement) quantile(q float64) float64 {
	n := len(m.RawTimes)
	if n == 0 {
		return 0
	}
	sorted := m.floats()
	slices.Sort(sorted)

	pos := q * float64(n-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	frac := pos - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*frac
}
