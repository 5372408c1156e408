// Package recorder runs a command a fixed number of times and logs the
// timing of every run.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ciricc/e3bench/internal/launch"
	"github.com/ciricc/e3bench/internal/runlog"
	"github.com/samber/lo"
)

var ErrInvalidCount = errors.New("warmup and repeat must not be negative")

type Recorder struct {
	launcher *launch.Launcher
	logger   *slog.Logger
}

type Option func(r *Recorder)

func WithLauncher(l *launch.Launcher) Option {
	return func(r *Recorder) { r.launcher = l }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

func New(opts ...Option) *Recorder {
	r := &Recorder{
		launcher: launch.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run launches argv warmup+repeat times and appends one row per run to
// outputPath. Once ctx is cancelled the running child is allowed to
// finish, and it and every remaining run are recorded as cancelled, so
// the log always holds warmup+repeat rows.
//
// Only log I/O failures are returned as errors; the records written so
// far are returned alongside.
func (r *Recorder) Run(ctx context.Context, argv []string, outputPath string, warmup, repeat int) ([]runlog.RunRecord, error) {
	if warmup < 0 || repeat < 0 {
		return nil, ErrInvalidCount
	}

	w, err := runlog.Create(outputPath, runlog.RunColumns)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	total := warmup + repeat
	r.logger.InfoContext(ctx, "recording latency",
		"command", argv,
		"warmup", warmup,
		"repeat", repeat,
		"output", outputPath,
	)

	started := time.Now()
	records := make([]runlog.RunRecord, 0, total)
	stopped := false

	for i := range total {
		rec := runlog.RunRecord{
			Index:      i,
			Phase:      runlog.PhaseOf(i, warmup),
			ExitStatus: launch.StatusCancelled,
		}

		if !stopped && ctx.Err() == nil {
			rec = r.runOnce(ctx, rec, argv)
			stopped = rec.ExitStatus == launch.StatusCancelled
		} else if !stopped {
			stopped = true
			r.logger.WarnContext(ctx, "interrupted, remaining runs recorded as cancelled", "from_run", i)
		}

		records = append(records, rec)
		if err := w.Append(runlog.RunRow(rec, warmup, repeat)); err != nil {
			return records, err
		}
	}

	r.logger.InfoContext(ctx, "finished recording latency",
		"rows", w.Rows(),
		"output", w.Path(),
		"took", time.Since(started),
	)
	return records, nil
}

func (r *Recorder) runOnce(ctx context.Context, rec runlog.RunRecord, argv []string) runlog.RunRecord {
	res := r.launcher.Run(ctx, argv)
	if !res.Launched() {
		rec.ExitStatus = launch.StatusLaunchError
		r.logger.ErrorContext(ctx, "command failed", "run", rec.Index, "error", res.Err)
		return rec
	}

	rec.StartNS = lo.ToPtr(res.StartNanos())
	rec.Duration = lo.ToPtr(res.Duration)
	rec.ExitStatus = res.ExitStatus
	if res.Interrupted {
		rec.ExitStatus = launch.StatusCancelled
	}

	r.logger.InfoContext(ctx, "run",
		"run", rec.Index,
		"phase", rec.Phase,
		"start_ns", *rec.StartNS,
		"duration_ms", fmt.Sprintf("%.3f", float64(res.Duration.Nanoseconds())*1e-6),
		"returncode", rec.ExitStatus,
	)
	return rec
}
