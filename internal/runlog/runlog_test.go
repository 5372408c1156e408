package runlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriter_HeaderWithoutRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "latency.csv")

	w, err := Create(path, RunColumns)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, RunColumns, rows[0])
}

func TestWriter_RowVisibleBeforeClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latency.csv")

	w, err := Create(path, RunColumns)
	require.NoError(t, err)
	defer w.Close()

	rec := RunRecord{
		Index:      0,
		Phase:      PhaseWarmup,
		StartNS:    lo.ToPtr(int64(1700000000000000000)),
		Duration:   lo.ToPtr(10 * time.Millisecond),
		ExitStatus: 0,
	}
	require.NoError(t, w.Append(RunRow(rec, 1, 2)))
	assert.Equal(t, 1, w.Rows())
	assert.Equal(t, path, w.Path())

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"0", "warmup", "1", "2", "1700000000000000000", "10000000", "0"}, rows[1])
}

func TestWriter_RejectsWrongWidth(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "latency.csv"), RunColumns)
	require.NoError(t, err)
	defer w.Close()

	assert.Error(t, w.Append([]string{"0"}))
	assert.Zero(t, w.Rows())
}

func TestRows_AbsentValuesAreEmpty(t *testing.T) {
	cancelled := RunRecord{Index: 3, Phase: PhaseMeasured, ExitStatus: -130}
	assert.Equal(t, []string{"3", "measured", "1", "2", "", "", "-130"}, RunRow(cancelled, 1, 2))
	assert.Equal(t, []string{"3", "100", "", "", "-130"}, RawRow(cancelled, 100*time.Millisecond))

	skipped := BlockSummary{Index: 1, Phase: PhaseMeasured, MinRunTime: 100 * time.Millisecond, ExitStatus: -130}
	row := BlockRow(skipped, 0, 2)
	require.Len(t, row, len(BlockColumns))
	assert.Equal(t, []string{"1", "measured", "0", "2", "100", "", "", "", "", "", "", "", "", "-130"}, row)
}

func TestBlockRow_Timed(t *testing.T) {
	b := BlockSummary{
		Index:        0,
		Phase:        PhaseWarmup,
		StartNS:      lo.ToPtr(int64(42)),
		WallTime:     lo.ToPtr(120 * time.Millisecond),
		MinRunTime:   100 * time.Millisecond,
		Iterations:   10,
		NumberPerRun: 1,
		Mean:         10 * time.Millisecond,
		Median:       9 * time.Millisecond,
		Std:          time.Millisecond,
		IQR:          2 * time.Millisecond,
	}
	assert.Equal(t, []string{
		"0", "warmup", "1", "1", "100", "42", "120000000",
		"10", "1", "10000000", "9000000", "1000000", "2000000", "0",
	}, BlockRow(b, 1, 1))
}

func TestPhaseOf(t *testing.T) {
	assert.Equal(t, PhaseWarmup, PhaseOf(0, 1))
	assert.Equal(t, PhaseMeasured, PhaseOf(1, 1))
	assert.Equal(t, PhaseMeasured, PhaseOf(0, 0))
}
