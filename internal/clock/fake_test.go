package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_SleepAdvancesTime(t *testing.T) {
	c := Fake(epoch)

	c.Sleep(250 * time.Millisecond)
	c.Sleep(0)
	c.Sleep(-time.Second)

	assert.Equal(t, epoch.Add(250*time.Millisecond), c.Now())
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 0, -time.Second}, c.Waits())
}

func TestFakeClock_AfterFiresImmediately(t *testing.T) {
	c := Fake(epoch)

	ch := c.After(2 * time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(2*time.Second), got)
	default:
		require.FailNow(t, "After channel should already hold a value")
	}
	assert.Equal(t, epoch.Add(2*time.Second), c.Now())
}

func TestFakeClock_Advance(t *testing.T) {
	c := Fake(epoch)

	c.Advance(time.Minute)
	c.Advance(-time.Hour)

	assert.Equal(t, epoch.Add(time.Minute), c.Now())
	assert.Empty(t, c.Waits())
}
