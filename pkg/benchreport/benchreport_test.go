package benchreport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountOutcome(t *testing.T) {
	got := CountOutcome([]int{0, 0, 1, -15, -1, -130, -130}, -1, -130)
	assert.Equal(t, Outcome{Runs: 7, Succeeded: 2, Failed: 2, LaunchError: 1, Cancelled: 2}, got)
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	digest, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "blake3:6437b3ac38465133ffb63b75273a8db548c558465d79db03fd359c6cd5bd9d85", digest)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	out := filepath.Join(t.TempDir(), "runs", ManifestPath("latency.csv"))
	m := Manifest{
		Version:    Version,
		Mode:       "basic",
		Output:     "latency.csv",
		Command:    Command{Argv: []string{"true"}},
		Parameters: map[string]string{"warmup": "1"},
		Outcome:    Outcome{Runs: 1, Succeeded: 1},
	}
	require.NoError(t, Write(m, out))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var got Manifest
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, m, got)
	assert.True(t, strings.HasSuffix(out, "latency.csv.manifest.json"))
}

func TestDetectEnv(t *testing.T) {
	env := DetectEnv()
	assert.Equal(t, runtime.GOOS, env.OS)
	assert.Equal(t, runtime.GOARCH, env.Arch)
	assert.Positive(t, env.CPUNumLogical)
	assert.NotEmpty(t, env.CPUModel)
}

func TestDescribeCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	c := DescribeCommand([]string{"sh", "-c", "true"})
	assert.NotEmpty(t, c.Executable)
	assert.True(t, strings.HasPrefix(c.Digest, "blake3:"))

	missing := DescribeCommand([]string{"e3bench-no-such-tool"})
	assert.Empty(t, missing.Executable)
	assert.Empty(t, missing.Digest)
}
