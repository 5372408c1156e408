// Package launch runs a measured command as a child process and reports
// when it started, how long it ran and how it exited.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ciricc/e3bench/internal/clock"
)

// Sentinel exit statuses recorded in place of a real child exit code.
const (
	// StatusLaunchError marks a run whose process could not be started
	// or awaited.
	StatusLaunchError = -1
	// StatusCancelled marks a run interrupted by the operator, or one
	// that was never launched because of an earlier interruption.
	StatusCancelled = -130
)

var ErrEmptyCommand = errors.New("empty command")

// Result describes one completed launch.
type Result struct {
	Start      time.Time
	Duration   time.Duration
	ExitStatus int
	// Err is set when the process could not be started or awaited.
	// ExitStatus is then StatusLaunchError.
	Err error
	// Interrupted is true when the context was cancelled while the
	// child was running. The child itself is never killed.
	Interrupted bool
}

// Launched reports whether the process actually started.
func (r Result) Launched() bool {
	return r.Err == nil
}

// StartNanos returns the wall-clock start time in nanoseconds.
func (r Result) StartNanos() int64 {
	return r.Start.UnixNano()
}

type Launcher struct {
	clock  clock.Clock
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type Option func(l *Launcher)

// WithClock replaces the clock used for timestamps and durations.
func WithClock(c clock.Clock) Option {
	return func(l *Launcher) { l.clock = c }
}

// WithStdio sets the child's standard streams. Nil values detach the
// corresponding stream.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(l *Launcher) {
		l.stdin = stdin
		l.stdout = stdout
		l.stderr = stderr
	}
}

// New returns a Launcher that inherits the harness's standard streams.
func New(opts ...Option) *Launcher {
	l := &Launcher{
		clock:  clock.Real(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run starts argv, blocks until it exits and returns the timing. The
// context is only observed: cancelling it does not stop the child, it
// marks the result as interrupted.
func (l *Launcher) Run(ctx context.Context, argv []string) Result {
	if len(argv) == 0 {
		return Result{Start: l.clock.Now(), ExitStatus: StatusLaunchError, Err: ErrEmptyCommand}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = l.stdin
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr

	start := l.clock.Now()
	if err := cmd.Start(); err != nil {
		return Result{
			Start:      start,
			ExitStatus: StatusLaunchError,
			Err:        fmt.Errorf("start %s: %w", argv[0], err),
		}
	}

	waitErr := cmd.Wait()
	end := l.clock.Now()

	res := Result{
		Start:       start,
		Duration:    end.Sub(start),
		Interrupted: ctx.Err() != nil,
	}

	var exitErr *exec.ExitError
	switch {
	case cmd.ProcessState != nil:
		res.ExitStatus = ExitStatus(cmd.ProcessState)
	case waitErr != nil && !errors.As(waitErr, &exitErr):
		res.ExitStatus = StatusLaunchError
		res.Err = fmt.Errorf("wait %s: %w", argv[0], waitErr)
	}

	return res
}

// ExitStatus converts a process state into the recorded status: the exit
// code, or the negated signal number when the process died from a
// signal.
func ExitStatus(state *os.ProcessState) int {
	if state == nil {
		return StatusLaunchError
	}
	if sig, ok := terminatingSignal(state); ok {
		return -sig
	}
	return state.ExitCode()
}

// ExitCode maps a recorded status onto a process exit code: sentinel and
// signal statuses follow the shell convention of 128 plus the signal
// number, a launch error becomes 1.
func ExitCode(status int) int {
	switch {
	case status == StatusCancelled:
		return 130
	case status == StatusLaunchError:
		return 1
	case status < 0:
		return 128 - status
	default:
		return status
	}
}
