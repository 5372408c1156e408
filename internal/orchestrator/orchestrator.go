// Package orchestrator runs a workload while a power sampler records in
// the background, then stops the sampler in stages.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/ciricc/e3bench/internal/clock"
	"github.com/ciricc/e3bench/internal/launch"
)

var ErrEmptyProfiler = errors.New("empty profiler command")

type State int

const (
	StateIdle State = iota
	StateSamplerStarting
	StateWarmupWait
	StateWorkloadRunning
	StateShutdownGraceful
	StateShutdownForced
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSamplerStarting:
		return "sampler_starting"
	case StateWarmupWait:
		return "warmup_wait"
	case StateWorkloadRunning:
		return "workload_running"
	case StateShutdownGraceful:
		return "shutdown_graceful"
	case StateShutdownForced:
		return "shutdown_forced"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Timings controls the waits around the workload.
type Timings struct {
	// Settle is the time the sampler records before the workload starts.
	Settle time.Duration
	// Cooldown is the time the sampler keeps recording after the
	// workload exits.
	Cooldown time.Duration
	// GracePeriod is how long the sampler has to exit after SIGINT.
	GracePeriod time.Duration
	// ReapTimeout bounds the wait after the forced kill.
	ReapTimeout time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Settle:      4 * time.Second,
		Cooldown:    2 * time.Second,
		GracePeriod: 2 * time.Second,
		ReapTimeout: time.Second,
	}
}

// signaler delivers the shutdown signals to a sampler process and
// everything it spawned.
type signaler interface {
	Interrupt(p *os.Process) error
	Kill(p *os.Process) error
}

type Orchestrator struct {
	timings  Timings
	launcher *launch.Launcher
	clock    clock.Clock
	logger   *slog.Logger
	signaler signaler
	onState  func(State)

	samplerStdout io.Writer
	samplerStderr io.Writer
}

type Option func(o *Orchestrator)

func WithTimings(t Timings) Option {
	return func(o *Orchestrator) { o.timings = t }
}

// WithLauncher sets the launcher used for the workload.
func WithLauncher(l *launch.Launcher) Option {
	return func(o *Orchestrator) { o.launcher = l }
}

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithStateHook registers fn to be called on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// WithSamplerOutput redirects the sampler's stdout and stderr. Nil
// discards the stream.
func WithSamplerOutput(stdout, stderr io.Writer) Option {
	return func(o *Orchestrator) {
		o.samplerStdout = stdout
		o.samplerStderr = stderr
	}
}

func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		timings:       DefaultTimings(),
		launcher:      launch.New(),
		clock:         clock.Real(),
		logger:        slog.Default(),
		signaler:      groupSignaler{},
		samplerStdout: os.Stdout,
		samplerStderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts the sampler in the background, waits for it to settle, runs
// the workload in the foreground and stops the sampler. It returns the
// workload's exit status: launch.StatusLaunchError when the workload
// could not start, launch.StatusCancelled when ctx was cancelled before
// or while it ran.
//
// The sampler is always shut down once it has started. Problems stopping
// it are logged, not returned; an error is returned only when the
// sampler could not be started.
func (o *Orchestrator) Run(ctx context.Context, profilerArgv, workloadArgv []string) (int, error) {
	o.setState(ctx, StateSamplerStarting)
	if len(profilerArgv) == 0 {
		o.setState(ctx, StateDone)
		return launch.StatusLaunchError, ErrEmptyProfiler
	}

	sampler := exec.Command(profilerArgv[0], profilerArgv[1:]...)
	sampler.Stdout = o.samplerStdout
	sampler.Stderr = o.samplerStderr
	newProcessGroup(sampler)

	o.logger.InfoContext(ctx, "starting power profiler", "command", profilerArgv)
	if err := sampler.Start(); err != nil {
		o.setState(ctx, StateDone)
		return launch.StatusLaunchError, fmt.Errorf("start profiler: %w", err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- sampler.Wait()
	}()

	status := o.runWorkload(ctx, workloadArgv)

	o.logger.InfoContext(ctx, "main program exited, stopping power profiler", "returncode", status)
	o.shutdown(ctx, sampler.Process, exited)
	o.setState(ctx, StateDone)
	return status, nil
}

func (o *Orchestrator) runWorkload(ctx context.Context, argv []string) int {
	o.setState(ctx, StateWarmupWait)
	if err := o.sleep(ctx, o.timings.Settle); err != nil {
		o.logger.WarnContext(ctx, "interrupted before the workload started")
		return launch.StatusCancelled
	}

	o.setState(ctx, StateWorkloadRunning)
	o.logger.InfoContext(ctx, "running main program", "command", argv)
	res := o.launcher.Run(ctx, argv)
	switch {
	case !res.Launched():
		o.logger.ErrorContext(ctx, "main program failed to start", "error", res.Err)
		return launch.StatusLaunchError
	case res.Interrupted:
		return launch.StatusCancelled
	default:
		return res.ExitStatus
	}
}

func (o *Orchestrator) shutdown(ctx context.Context, p *os.Process, exited <-chan error) {
	// Cancellation does not shorten the cool-down.
	if o.timings.Cooldown > 0 {
		o.clock.Sleep(o.timings.Cooldown)
	}

	o.setState(ctx, StateShutdownGraceful)
	select {
	case err := <-exited:
		o.logger.WarnContext(ctx, "power profiler exited before shutdown", "error", err)
		return
	default:
	}

	if err := o.signaler.Interrupt(p); err != nil {
		o.logger.DebugContext(ctx, "interrupt profiler", "error", err)
	}

	select {
	case <-exited:
		o.logger.InfoContext(ctx, "power profiler stopped gracefully")
		return
	case <-o.clock.After(o.timings.GracePeriod):
	}

	o.setState(ctx, StateShutdownForced)
	o.logger.WarnContext(ctx, "power profiler did not stop after SIGINT, force-killing",
		"grace_period", o.timings.GracePeriod,
	)
	if err := o.signaler.Kill(p); err != nil {
		o.logger.DebugContext(ctx, "kill profiler group", "error", err)
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		o.logger.DebugContext(ctx, "kill profiler", "error", err)
	}

	select {
	case <-exited:
	case <-o.clock.After(o.timings.ReapTimeout):
		o.logger.WarnContext(ctx, "power profiler not reaped after kill", "pid", p.Pid)
	}
}

// sleep waits for d or until ctx is done.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.clock.After(d):
		return nil
	}
}

func (o *Orchestrator) setState(ctx context.Context, s State) {
	o.logger.DebugContext(ctx, "power orchestrator state", "state", s.String())
	if o.onState != nil {
		o.onState(s)
	}
}
