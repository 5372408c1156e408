package ina

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ciricc/e3bench/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeHwmon(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"in1_label":   "VDD_IN\n",
		"in2_label":   "VDD_CPU_GPU_CV\n",
		"in3_label":   "VDD_SOC\n",
		"curr3_input": "412\n",
		"in3_input":   "5080\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestFindRail(t *testing.T) {
	dir := fakeHwmon(t)

	ch, err := FindRail(dir, "VDD_SOC")
	require.NoError(t, err)
	assert.Equal(t, 3, ch)

	_, err = FindRail(dir, "VDD_GPU")
	assert.ErrorIs(t, err, ErrRailNotFound)
}

func TestSampler_WritesFixedRateLines(t *testing.T) {
	dir := fakeHwmon(t)
	c := clock.Fake(time.Unix(100, 0))

	var out bytes.Buffer
	n, err := New(dir, 3, 5*time.Millisecond, WithClock(c), WithLimit(3)).Run(context.Background(), &out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"timestamp,current,voltage",
		"100000000000,412,5080",
		"100005000000,412,5080",
		"100010000000,412,5080",
	}, lines)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, c.Waits())
}

func TestSampler_StopsOnCancel(t *testing.T) {
	dir := fakeHwmon(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	n, err := New(dir, 3, time.Hour).Run(ctx, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSampler_MissingChannel(t *testing.T) {
	_, err := New(fakeHwmon(t), 1, time.Millisecond).Run(context.Background(), &bytes.Buffer{})
	assert.Error(t, err)
}
