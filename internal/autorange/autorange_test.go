package autorange

import (
	"testing"
	"time"

	"github.com/ciricc/e3bench/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steady returns a callback that advances c by d on every call.
func steady(c *clock.FakeClock, d time.Duration, calls *int) func() error {
	return func() error {
		*calls++
		c.Advance(d)
		return nil
	}
}

func TestBlocked_FixedCost(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	calls := 0

	m, err := NewBlocked(WithClock(c)).Autorange(steady(c, 10*time.Millisecond, &calls), 100*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, 1, m.NumberPerRun)
	assert.Equal(t, 10, m.Len())
	assert.Equal(t, 11, calls, "one estimation call plus ten blocks")
	assert.Equal(t, 10*time.Millisecond, m.Mean())
	assert.Equal(t, 10*time.Millisecond, m.Median())
	assert.Zero(t, m.Std())
	assert.Zero(t, m.IQR())
}

func TestBlocked_GrowsBlockSize(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	calls := 0

	m, err := NewBlocked(WithClock(c)).Autorange(steady(c, time.Microsecond, &calls), 100*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, 100, m.NumberPerRun)
	assert.Equal(t, 1000, m.Len())
	assert.Equal(t, time.Microsecond, m.Median())
}

func TestAdaptive_StopsWhenStable(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	calls := 0

	m, err := NewAdaptive(WithClock(c)).Autorange(steady(c, 10*time.Millisecond, &calls), 10*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, 1, m.NumberPerRun)
	assert.Equal(t, 4, m.Len(), "needs more than three blocks before trusting the spread")
}

func TestAdaptive_BoundedByMaxRunTime(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	costs := []time.Duration{time.Millisecond, 20 * time.Millisecond}
	calls := 0
	fn := func() error {
		c.Advance(costs[calls%2])
		calls++
		return nil
	}

	m, err := NewAdaptive(WithClock(c), WithMaxRunTime(100*time.Millisecond)).Autorange(fn, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 9, m.Len())
}

func TestAutorange_StopFromCallback(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	calls := 0
	fn := func() error {
		calls++
		c.Advance(10 * time.Millisecond)
		if calls == 3 {
			return ErrStop
		}
		return nil
	}

	m, err := NewBlocked(WithClock(c)).Autorange(fn, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrStop)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 3, calls)
}

func TestAutorange_StopDuringEstimation(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	m, err := NewAdaptive(WithClock(c)).Autorange(func() error { return ErrStop }, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrStop)
	assert.Zero(t, m.Len())
}

func TestMeasurement_Statistics(t *testing.T) {
	m := Measurement{
		NumberPerRun: 1,
		RawTimes:     []time.Duration{4 * time.Millisecond, time.Millisecond, 3 * time.Millisecond, 2 * time.Millisecond},
	}

	assert.Equal(t, 2500*time.Microsecond, m.Mean())
	assert.Equal(t, 2500*time.Microsecond, m.Median())
	assert.Equal(t, 1500*time.Microsecond, m.IQR())
	assert.Equal(t, time.Duration(1118034), m.Std())
}

func TestMeasurement_Empty(t *testing.T) {
	var m Measurement
	assert.Zero(t, m.Mean())
	assert.Zero(t, m.Median())
	assert.Zero(t, m.Std())
	assert.Zero(t, m.IQR())
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"adaptive", "blocked"} {
		timer, err := Lookup(name, clock.Real())
		require.NoError(t, err, name)
		assert.NotNil(t, timer)
	}

	_, err := Lookup("torch", clock.Real())
	assert.ErrorIs(t, err, ErrUnavailable)
}
