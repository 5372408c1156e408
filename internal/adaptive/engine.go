// Package adaptive records command latency with an adaptive timer,
// either one row per invocation (raw mode) or one summary row per timing
// window (block mode).
package adaptive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ciricc/e3bench/internal/autorange"
	"github.com/ciricc/e3bench/internal/clock"
	"github.com/ciricc/e3bench/internal/launch"
	"github.com/ciricc/e3bench/internal/runlog"
	"github.com/samber/lo"
)

var (
	ErrMissingTimer = errors.New("adaptive timer is required")
	ErrInvalidCount = errors.New("warmup and repeat must not be negative")
)

const DefaultMinRunTime = 100 * time.Millisecond

type Engine struct {
	timer      autorange.Timer
	launcher   *launch.Launcher
	clock      clock.Clock
	logger     *slog.Logger
	minRunTime time.Duration
}

type Option func(e *Engine)

func WithLauncher(l *launch.Launcher) Option {
	return func(e *Engine) { e.launcher = l }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithMinRunTime sets the minimum time each timing window accumulates.
func WithMinRunTime(d time.Duration) Option {
	return func(e *Engine) { e.minRunTime = d }
}

// NewEngine fails with ErrMissingTimer when timer is nil, before any
// command is launched.
func NewEngine(timer autorange.Timer, opts ...Option) (*Engine, error) {
	if timer == nil {
		return nil, ErrMissingTimer
	}
	e := &Engine{
		timer:      timer,
		launcher:   launch.New(),
		clock:      clock.Real(),
		logger:     slog.Default(),
		minRunTime: DefaultMinRunTime,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RunRaw lets the timer invoke the command as many times as it needs and
// records every invocation. Records are written to outputPath once the
// timer finishes, including when it was stopped by cancellation.
func (e *Engine) RunRaw(ctx context.Context, argv []string, outputPath string) ([]runlog.RunRecord, error) {
	e.logger.InfoContext(ctx, "recording latency",
		"mode", "raw",
		"command", argv,
		"min_run_time", e.minRunTime,
		"output", outputPath,
	)
	started := e.clock.Now()

	var records []runlog.RunRecord
	fn := func() error {
		if ctx.Err() != nil {
			return autorange.ErrStop
		}
		rec := runlog.RunRecord{Index: len(records), Phase: runlog.PhaseMeasured}

		res := e.launcher.Run(ctx, argv)
		if res.Launched() {
			rec.StartNS = lo.ToPtr(res.StartNanos())
			rec.Duration = lo.ToPtr(res.Duration)
			rec.ExitStatus = res.ExitStatus
			if res.Interrupted {
				rec.ExitStatus = launch.StatusCancelled
			}
			e.logger.DebugContext(ctx, "run",
				"run", rec.Index,
				"start_ns", res.StartNanos(),
				"duration_ns", res.Duration.Nanoseconds(),
				"returncode", rec.ExitStatus,
			)
		} else {
			rec.ExitStatus = launch.StatusLaunchError
			e.logger.ErrorContext(ctx, "command failed", "run", rec.Index, "error", res.Err)
		}
		records = append(records, rec)

		if ctx.Err() != nil {
			return autorange.ErrStop
		}
		return nil
	}

	if _, err := e.timer.Autorange(fn, e.minRunTime); err != nil {
		if !errors.Is(err, autorange.ErrStop) {
			return records, fmt.Errorf("autorange: %w", err)
		}
		e.logger.WarnContext(ctx, "interrupted, writing partial results", "runs", len(records))
	}

	if err := writeAll(outputPath, runlog.RawColumns, records, func(r runlog.RunRecord) []string {
		return runlog.RawRow(r, e.minRunTime)
	}); err != nil {
		return records, err
	}

	e.logger.InfoContext(ctx, "finished recording latency",
		"runs", len(records),
		"took", e.clock.Now().Sub(started),
	)
	return records, nil
}

// RunBlocks runs warmup+repeat timing windows and appends one summary
// row per window. Cancellation lets the running window finish and marks
// it and every later window as cancelled.
func (e *Engine) RunBlocks(ctx context.Context, argv []string, outputPath string, warmup, repeat int) ([]runlog.BlockSummary, error) {
	if warmup < 0 || repeat < 0 {
		return nil, ErrInvalidCount
	}

	w, err := runlog.Create(outputPath, runlog.BlockColumns)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	total := warmup + repeat
	e.logger.InfoContext(ctx, "recording latency",
		"mode", "block",
		"command", argv,
		"min_run_time", e.minRunTime,
		"warmup", warmup,
		"repeat", repeat,
		"output", outputPath,
	)
	started := e.clock.Now()

	summaries := make([]runlog.BlockSummary, 0, total)
	stopped := false
	for i := range total {
		b := runlog.BlockSummary{
			Index:      i,
			Phase:      runlog.PhaseOf(i, warmup),
			MinRunTime: e.minRunTime,
			ExitStatus: launch.StatusCancelled,
		}

		if !stopped && ctx.Err() == nil {
			b = e.runWindow(ctx, b, argv)
			stopped = b.ExitStatus == launch.StatusCancelled
		} else if !stopped {
			stopped = true
			e.logger.WarnContext(ctx, "interrupted, remaining windows recorded as cancelled", "from_run", i)
		}

		summaries = append(summaries, b)
		if err := w.Append(runlog.BlockRow(b, warmup, repeat)); err != nil {
			return summaries, err
		}
	}

	e.logger.InfoContext(ctx, "finished recording latency",
		"rows", w.Rows(),
		"output", w.Path(),
		"took", e.clock.Now().Sub(started),
	)
	return summaries, nil
}

func (e *Engine) runWindow(ctx context.Context, b runlog.BlockSummary, argv []string) runlog.BlockSummary {
	status := 0
	fn := func() error {
		res := e.launcher.Run(ctx, argv)
		if !res.Launched() {
			return res.Err
		}
		if res.ExitStatus != 0 && status == 0 {
			status = res.ExitStatus
		}
		return nil
	}

	start := e.clock.Now()
	m, err := e.timer.Autorange(fn, e.minRunTime)
	b.StartNS = lo.ToPtr(start.UnixNano())
	b.WallTime = lo.ToPtr(e.clock.Now().Sub(start))

	if err != nil {
		b.ExitStatus = launch.StatusLaunchError
		e.logger.ErrorContext(ctx, "command failed", "run", b.Index, "error", err)
		return b
	}

	b.Iterations = m.Len()
	b.NumberPerRun = m.NumberPerRun
	b.Mean = m.Mean()
	b.Median = m.Median()
	b.Std = m.Std()
	b.IQR = m.IQR()
	b.ExitStatus = status
	if ctx.Err() != nil {
		b.ExitStatus = launch.StatusCancelled
	}

	e.logger.InfoContext(ctx, "window",
		"run", b.Index,
		"phase", b.Phase,
		"start_ns", *b.StartNS,
		"duration_ms", fmt.Sprintf("%.3f", float64(b.WallTime.Nanoseconds())*1e-6),
		"nb_iter", b.Iterations,
		"nb_per_run", b.NumberPerRun,
		"median", b.Median,
		"returncode", b.ExitStatus,
	)
	return b
}

func writeAll[T any](path string, columns []string, items []T, row func(T) []string) error {
	w, err := runlog.Create(path, columns)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := w.Append(row(item)); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}
