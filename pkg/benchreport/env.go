package benchreport

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/zeebo/blake3"
)

const deviceTreeModel = "/proc/device-tree/model"

// DetectEnv describes the host the measurement runs on.
func DetectEnv() Env {
	host, _ := os.Hostname()
	return Env{
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		Hostname:      host,
		CPUModel:      detectCPUModel(),
		CPUNumLogical: runtime.NumCPU(),
		BoardModel:    detectBoardModel(),
	}
}

func detectCPUModel() string {
	if runtime.GOOS == "darwin" {
		out, err := exec.Command("sysctl", "-n", "machdep.cpu.brand_string").Output()
		if err == nil {
			return strings.TrimSpace(string(out))
		}
	}
	if runtime.GOOS == "linux" {
		f, err := os.Open("/proc/cpuinfo")
		if err == nil {
			defer f.Close()
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				line := sc.Text()
				// ARM kernels report "Model" or "CPU part" instead of "model name".
				if strings.HasPrefix(line, "model name") || strings.HasPrefix(line, "Model") {
					parts := strings.SplitN(line, ":", 2)
					if len(parts) == 2 {
						return strings.TrimSpace(parts[1])
					}
				}
			}
		}
	}
	return runtime.GOARCH + " CPU"
}

// detectBoardModel reads the device-tree model of embedded boards such
// as "NVIDIA Jetson Orin Nano Developer Kit".
func detectBoardModel() string {
	b, err := os.ReadFile(deviceTreeModel)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(bytes.TrimRight(b, "\x00")))
}

// HashFile returns the BLAKE3 digest of the file at path as
// "blake3:<hex>".
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil)), nil
}

// DescribeCommand resolves argv[0] on PATH and digests it. Resolution
// failures leave Executable and Digest empty.
func DescribeCommand(argv []string) Command {
	c := Command{Argv: argv}
	if len(argv) == 0 {
		return c
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return c
	}
	c.Executable = path
	if digest, err := HashFile(path); err == nil {
		c.Digest = digest
	}
	return c
}
