//go:build unix

package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ciricc/e3bench/internal/launch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSignaler struct {
	inner      signaler
	interrupts atomic.Int32
	kills      atomic.Int32
}

func (s *countingSignaler) Interrupt(p *os.Process) error {
	s.interrupts.Add(1)
	return s.inner.Interrupt(p)
}

func (s *countingSignaler) Kill(p *os.Process) error {
	s.kills.Add(1)
	return s.inner.Kill(p)
}

type harness struct {
	orch   *Orchestrator
	sig    *countingSignaler
	states []State
	at     map[State]time.Time
}

func newHarness(timings Timings) *harness {
	h := &harness{
		sig: &countingSignaler{inner: groupSignaler{}},
		at:  map[State]time.Time{},
	}
	h.orch = New(
		WithTimings(timings),
		WithLauncher(launch.New(launch.WithStdio(nil, nil, nil))),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSamplerOutput(nil, nil),
		WithStateHook(func(s State) {
			h.states = append(h.states, s)
			h.at[s] = time.Now()
		}),
	)
	h.orch.signaler = h.sig
	return h
}

func fastTimings() Timings {
	return Timings{
		Settle:      100 * time.Millisecond,
		Cooldown:    10 * time.Millisecond,
		GracePeriod: 3 * time.Second,
		ReapTimeout: 2 * time.Second,
	}
}

func TestRun_GracefulShutdown(t *testing.T) {
	h := newHarness(fastTimings())

	status, err := h.orch.Run(context.Background(), []string{"sleep", "1"}, []string{"true"})
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	assert.EqualValues(t, 1, h.sig.interrupts.Load())
	assert.Zero(t, h.sig.kills.Load(), "no forced kill when the sampler exits within the grace period")
	assert.Equal(t, []State{
		StateSamplerStarting,
		StateWarmupWait,
		StateWorkloadRunning,
		StateShutdownGraceful,
		StateDone,
	}, h.states)
}

func TestRun_ForcedShutdown(t *testing.T) {
	timings := fastTimings()
	timings.GracePeriod = 200 * time.Millisecond
	h := newHarness(timings)

	started := time.Now()
	status, err := h.orch.Run(context.Background(),
		[]string{"sh", "-c", `trap "" INT; exec sleep 30`},
		[]string{"true"},
	)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Less(t, time.Since(started), 10*time.Second)

	assert.EqualValues(t, 1, h.sig.interrupts.Load())
	assert.EqualValues(t, 1, h.sig.kills.Load(), "exactly one forced kill")
	assert.Contains(t, h.states, StateShutdownForced)
	assert.Equal(t, StateDone, h.states[len(h.states)-1])
}

func TestRun_ForwardsWorkloadStatus(t *testing.T) {
	h := newHarness(fastTimings())

	status, err := h.orch.Run(context.Background(), []string{"sleep", "1"}, []string{"sh", "-c", "exit 7"})
	require.NoError(t, err)
	assert.Equal(t, 7, status)
}

func TestRun_WorkloadLaunchError(t *testing.T) {
	h := newHarness(fastTimings())

	status, err := h.orch.Run(context.Background(), []string{"sleep", "1"}, []string{"/nonexistent/e3bench-workload"})
	require.NoError(t, err)
	assert.Equal(t, launch.StatusLaunchError, status)
	assert.EqualValues(t, 1, h.sig.interrupts.Load(), "sampler is still shut down")
}

func TestRun_ProfilerLaunchError(t *testing.T) {
	h := newHarness(fastTimings())

	status, err := h.orch.Run(context.Background(), []string{"/nonexistent/e3bench-profiler"}, []string{"true"})
	assert.Error(t, err)
	assert.Equal(t, launch.StatusLaunchError, status)
	assert.NotContains(t, h.states, StateWorkloadRunning)
	assert.Zero(t, h.sig.interrupts.Load())
}

func TestRun_EmptyProfiler(t *testing.T) {
	h := newHarness(fastTimings())

	_, err := h.orch.Run(context.Background(), nil, []string{"true"})
	assert.ErrorIs(t, err, ErrEmptyProfiler)
}

func TestRun_CancelledDuringSettle(t *testing.T) {
	h := newHarness(fastTimings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := h.orch.Run(ctx, []string{"sleep", "1"}, []string{"sh", "-c", "exit 9"})
	require.NoError(t, err)
	assert.Equal(t, launch.StatusCancelled, status)
	assert.NotContains(t, h.states, StateWorkloadRunning)
	assert.EqualValues(t, 1, h.sig.interrupts.Load())
}

func TestRun_CancelledDuringWorkload(t *testing.T) {
	timings := fastTimings()
	timings.Cooldown = 300 * time.Millisecond
	h := newHarness(timings)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timer := time.AfterFunc(250*time.Millisecond, cancel)
	defer timer.Stop()

	status, err := h.orch.Run(ctx, []string{"sleep", "5"}, []string{"sleep", "0.4"})
	require.NoError(t, err)
	assert.Equal(t, launch.StatusCancelled, status)
	assert.EqualValues(t, 1, h.sig.interrupts.Load())
	assert.Zero(t, h.sig.kills.Load())

	// workload (0.4s) plus the full cool-down before the graceful signal
	require.Contains(t, h.states, StateShutdownGraceful)
	gap := h.at[StateShutdownGraceful].Sub(h.at[StateWorkloadRunning])
	assert.GreaterOrEqual(t, gap, 700*time.Millisecond)
}

func TestRun_SamplerExitedEarly(t *testing.T) {
	h := newHarness(fastTimings())

	status, err := h.orch.Run(context.Background(), []string{"true"}, []string{"true"})
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Zero(t, h.sig.interrupts.Load())
	assert.Zero(t, h.sig.kills.Load())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "workload_running", StateWorkloadRunning.String())
	assert.Equal(t, "state(42)", State(42).String())
}
