package runlog

import (
	"strconv"
	"time"

	"github.com/samber/lo"
)

type Phase string

const (
	PhaseWarmup   Phase = "warmup"
	PhaseMeasured Phase = "measured"
)

// PhaseOf returns the phase of run index i when the first warmup runs
// are warmup runs.
func PhaseOf(i, warmup int) Phase {
	if i < warmup {
		return PhaseWarmup
	}
	return PhaseMeasured
}

// RunRecord is one measured execution. StartNS and Duration are nil when
// the run never launched or its timing is unknown.
type RunRecord struct {
	Index      int
	Phase      Phase
	StartNS    *int64
	Duration   *time.Duration
	ExitStatus int
}

// BlockSummary is the result of one adaptive timing window. Mean,
// Median, Std and IQR describe a single invocation of the command.
type BlockSummary struct {
	Index        int
	Phase        Phase
	StartNS      *int64
	WallTime     *time.Duration
	MinRunTime   time.Duration
	Iterations   int
	NumberPerRun int
	Mean         time.Duration
	Median       time.Duration
	Std          time.Duration
	IQR          time.Duration
	ExitStatus   int
}

// Timed reports whether the window produced statistics.
func (b BlockSummary) Timed() bool {
	return b.Iterations > 0
}

var (
	// RunColumns is the header of the fixed-repeat recorder log.
	RunColumns = []string{"run_idx", "phase", "warmup", "repeat", "timestamp_ns", "duration_ns", "returncode"}

	// RawColumns is the header of the raw adaptive log.
	RawColumns = []string{"run_idx", "min_ms", "timestamp_ns", "duration_ns", "returncode"}

	// BlockColumns is the header of the block adaptive log.
	BlockColumns = []string{
		"run_idx", "phase", "warmup", "repeat", "min_ms", "timestamp_ns", "duration_ns",
		"nb_iter", "nb_per_run", "duration__mean__ns", "duration__median__ns",
		"duration__std__ns", "duration__iqr__ns", "returncode",
	}
)

// RunRow formats r for RunColumns.
func RunRow(r RunRecord, warmup, repeat int) []string {
	return []string{
		strconv.Itoa(r.Index),
		string(r.Phase),
		strconv.Itoa(warmup),
		strconv.Itoa(repeat),
		optInt(r.StartNS),
		optDuration(r.Duration),
		strconv.Itoa(r.ExitStatus),
	}
}

// RawRow formats r for RawColumns.
func RawRow(r RunRecord, minRunTime time.Duration) []string {
	return []string{
		strconv.Itoa(r.Index),
		strconv.FormatInt(minRunTime.Milliseconds(), 10),
		optInt(r.StartNS),
		optDuration(r.Duration),
		strconv.Itoa(r.ExitStatus),
	}
}

// BlockRow formats b for BlockColumns. Statistics are left empty for
// windows that never timed anything.
func BlockRow(b BlockSummary, warmup, repeat int) []string {
	row := []string{
		strconv.Itoa(b.Index),
		string(b.Phase),
		strconv.Itoa(warmup),
		strconv.Itoa(repeat),
		strconv.FormatInt(b.MinRunTime.Milliseconds(), 10),
		optInt(b.StartNS),
		optDuration(b.WallTime),
	}
	if b.Timed() {
		row = append(row,
			strconv.Itoa(b.Iterations),
			strconv.Itoa(b.NumberPerRun),
			strconv.FormatInt(b.Mean.Nanoseconds(), 10),
			strconv.FormatInt(b.Median.Nanoseconds(), 10),
			strconv.FormatInt(b.Std.Nanoseconds(), 10),
			strconv.FormatInt(b.IQR.Nanoseconds(), 10),
		)
	} else {
		row = append(row, "", "", "", "", "", "")
	}
	return append(row, strconv.Itoa(b.ExitStatus))
}

func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(lo.FromPtr(v), 10)
}

func optDuration(d *time.Duration) string {
	if d == nil {
		return ""
	}
	return strconv.FormatInt(lo.FromPtr(d).Nanoseconds(), 10)
}
