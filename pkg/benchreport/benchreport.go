package benchreport

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/samber/lo"
)

const Version = "1"

type Env struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Hostname      string `json:"hostname"`
	CPUModel      string `json:"cpu_model"`
	CPUNumLogical int    `json:"cpu_num_logical"`
	BoardModel    string `json:"board_model,omitempty"`
}

type Command struct {
	Argv []string `json:"argv"`
	// Executable is the resolved path of Argv[0].
	Executable string `json:"executable,omitempty"`
	// Digest is the BLAKE3 digest of Executable.
	Digest string `json:"digest,omitempty"`
}

// Outcome counts runs by how they ended.
type Outcome struct {
	Runs        int `json:"runs"`
	Succeeded   int `json:"succeeded"`
	Failed      int `json:"failed"`
	LaunchError int `json:"launch_error"`
	Cancelled   int `json:"cancelled"`
}

// Manifest describes one measurement session and is written next to its
// output.
type Manifest struct {
	Version          string            `json:"version"`
	TimestampRFC3339 string            `json:"timestamp_rfc3339"`
	Mode             string            `json:"mode"`
	Output           string            `json:"output"`
	Command          Command           `json:"command"`
	Profiler         *Command          `json:"profiler,omitempty"`
	Env              Env               `json:"env"`
	Parameters       map[string]string `json:"parameters"`
	Outcome          Outcome           `json:"outcome"`
	WallSeconds      float64           `json:"wall_seconds"`
}

// CountOutcome classifies exit statuses. launchError and cancelled are
// the sentinel statuses used in place of a child exit code.
func CountOutcome(statuses []int, launchError, cancelled int) Outcome {
	return Outcome{
		Runs:        len(statuses),
		Succeeded:   lo.Count(statuses, 0),
		LaunchError: lo.Count(statuses, launchError),
		Cancelled:   lo.Count(statuses, cancelled),
		Failed: lo.CountBy(statuses, func(s int) bool {
			return s != 0 && s != launchError && s != cancelled
		}),
	}
}

// ManifestPath returns the manifest path that accompanies output.
func ManifestPath(output string) string {
	return output + ".manifest.json"
}

// Write encodes m as indented JSON to outPath, or to stdout when outPath
// is empty.
func Write(m Manifest, outPath string) error {
	if outPath == "" {
		return encode(os.Stdout, m)
	}
	if dir := filepath.Dir(outPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return encode(f, m)
}

func encode(w io.Writer, m Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
