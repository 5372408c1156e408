//go:build unix

package launch

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *Launcher {
	return New(WithStdio(nil, nil, nil))
}

func TestLauncher_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want int
	}{
		{"success", []string{"true"}, 0},
		{"failure", []string{"false"}, 1},
		{"explicit code", []string{"sh", "-c", "exit 7"}, 7},
		{"killed by signal", []string{"sh", "-c", "kill -TERM $$"}, -15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := quiet().Run(context.Background(), tt.argv)
			require.NoError(t, res.Err)
			assert.True(t, res.Launched())
			assert.Equal(t, tt.want, res.ExitStatus)
			assert.False(t, res.Interrupted)
		})
	}
}

func TestLauncher_LaunchError(t *testing.T) {
	res := quiet().Run(context.Background(), []string{"/nonexistent/e3bench-test-binary"})
	assert.Error(t, res.Err)
	assert.False(t, res.Launched())
	assert.Equal(t, StatusLaunchError, res.ExitStatus)
	assert.Zero(t, res.Duration)
}

func TestLauncher_EmptyCommand(t *testing.T) {
	res := quiet().Run(context.Background(), nil)
	assert.ErrorIs(t, res.Err, ErrEmptyCommand)
	assert.Equal(t, StatusLaunchError, res.ExitStatus)
}

func TestLauncher_MeasuresDuration(t *testing.T) {
	res := quiet().Run(context.Background(), []string{"sleep", "0.05"})
	require.NoError(t, res.Err)
	assert.GreaterOrEqual(t, res.Duration, 50*time.Millisecond)
	assert.Less(t, res.Duration, 5*time.Second)
	assert.Equal(t, res.Start.UnixNano(), res.StartNanos())
}

func TestLauncher_CancellationDoesNotKillChild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	l := New(WithStdio(nil, &out, nil))
	res := l.Run(ctx, []string{"sh", "-c", "sleep 0.02; echo done"})

	require.NoError(t, res.Err)
	assert.True(t, res.Interrupted)
	assert.Equal(t, 0, res.ExitStatus)
	assert.Equal(t, "done\n", out.String())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(0))
	assert.Equal(t, 7, ExitCode(7))
	assert.Equal(t, 1, ExitCode(StatusLaunchError))
	assert.Equal(t, 130, ExitCode(StatusCancelled))
	assert.Equal(t, 143, ExitCode(-15))
}
