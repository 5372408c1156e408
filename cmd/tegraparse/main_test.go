package main

import (
	"path/filepath"
	"testing"

	"github.com/ciricc/e3bench/internal/tegrastats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablePath(t *testing.T) {
	tests := []struct {
		input, outDir, want string
	}{
		{"logs/run1.log", "", filepath.Join("logs", "run1.csv")},
		{"logs/run1.log.zst", "", filepath.Join("logs", "run1.csv")},
		{"run2.txt.gz", "", "run2.csv"},
		{"logs/run3", "tables", filepath.Join("tables", "run3.csv")},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, tablePath(tt.input, tt.outDir))
		})
	}
}

func TestNewJobs(t *testing.T) {
	jobs, err := newJobs([]string{"a.log", "b.log.zst"}, "out")
	require.NoError(t, err)
	assert.Equal(t, []tegrastats.Job{
		{Input: "a.log", Output: filepath.Join("out", "a.csv")},
		{Input: "b.log.zst", Output: filepath.Join("out", "b.csv")},
	}, jobs)
}

func TestNewJobs_RejectsOverwritingInput(t *testing.T) {
	_, err := newJobs([]string{"logs/run.csv"}, "")
	assert.ErrorContains(t, err, "overwrite input")

	_, err = newJobs([]string{"run.log", "other/run.csv"}, "other")
	assert.ErrorContains(t, err, "overwrite input")
}

func TestNewJobs_RejectsSharedTable(t *testing.T) {
	_, err := newJobs([]string{"run.log", "run.log.gz"}, "")
	assert.ErrorContains(t, err, "both convert to")
}
