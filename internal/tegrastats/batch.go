package tegrastats

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrNoSamples is returned by Convert when the log has no parsable line.
// No table is written in that case.
var ErrNoSamples = errors.New("no parsable lines")

// Job converts the raw log at Input into the table at Output.
type Job struct {
	Input  string
	Output string
}

// Convert reads, reconstructs and writes one log.
func Convert(ctx context.Context, job Job, opts ...ReadOption) (Summary, error) {
	records, err := ReadFile(ctx, job.Input, opts...)
	if err != nil {
		return Summary{}, err
	}
	if len(records) == 0 {
		return Summary{}, fmt.Errorf("%s: %w", job.Input, ErrNoSamples)
	}

	records = Reconstruct(records)
	if err := WriteTableFile(job.Output, records); err != nil {
		return Summary{}, err
	}
	return Summarize(records), nil
}

// ConvertAll converts jobs with at most parallelism conversions running
// at once. Logs without samples yield an empty summary; any other
// failure cancels the remaining jobs and is returned. Summaries are in
// job order.
func ConvertAll(ctx context.Context, jobs []Job, parallelism int, opts ...ReadOption) ([]Summary, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	summaries := make([]Summary, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, job := range jobs {
		g.Go(func() error {
			s, err := Convert(gctx, job, opts...)
			if err != nil && !errors.Is(err, ErrNoSamples) {
				return err
			}
			summaries[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summaries, err
	}
	return summaries, nil
}
