// Package ina samples one power rail of an INA3221 monitor through its
// hwmon sysfs interface.
package ina

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ciricc/e3bench/internal/clock"
	"github.com/ciricc/e3bench/internal/timing"
)

// DefaultHwmonDir is where the Jetson Orin Nano exposes its INA3221.
const DefaultHwmonDir = "/sys/bus/i2c/drivers/ina3221/1-0040/hwmon/hwmon3"

// Channels is the number of rails an INA3221 monitors.
const Channels = 3

var ErrRailNotFound = errors.New("rail not found")

// FindRail returns the channel whose in<N>_label equals rail.
func FindRail(hwmonDir, rail string) (int, error) {
	for ch := 1; ch <= Channels; ch++ {
		b, err := os.ReadFile(filepath.Join(hwmonDir, fmt.Sprintf("in%d_label", ch)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return 0, err
		}
		if strings.TrimSpace(string(b)) == rail {
			return ch, nil
		}
	}
	return 0, fmt.Errorf("%w: %s in %s", ErrRailNotFound, rail, hwmonDir)
}

// Sampler writes timestamp,current,voltage lines for one channel at a
// fixed rate. Current is in milliamperes, voltage in millivolts, as the
// driver reports them.
type Sampler struct {
	hwmonDir string
	channel  int
	interval time.Duration
	limit    int
	clock    clock.Clock
	logger   *slog.Logger
}

type Option func(s *Sampler)

func WithClock(c clock.Clock) Option {
	return func(s *Sampler) { s.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sampler) { s.logger = logger }
}

// WithLimit stops the sampler after n samples. Zero means no limit.
func WithLimit(n int) Option {
	return func(s *Sampler) { s.limit = n }
}

func New(hwmonDir string, channel int, interval time.Duration, opts ...Option) *Sampler {
	s := &Sampler{
		hwmonDir: hwmonDir,
		channel:  channel,
		interval: interval,
		clock:    clock.Real(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run samples until ctx is done or the limit is reached and returns the
// number of samples written. Cancellation is the normal way to stop and
// is not reported as an error.
func (s *Sampler) Run(ctx context.Context, w io.Writer) (int, error) {
	curr, err := os.Open(filepath.Join(s.hwmonDir, fmt.Sprintf("curr%d_input", s.channel)))
	if err != nil {
		return 0, err
	}
	defer curr.Close()
	volt, err := os.Open(filepath.Join(s.hwmonDir, fmt.Sprintf("in%d_input", s.channel)))
	if err != nil {
		return 0, err
	}
	defer volt.Close()

	bw := bufio.NewWriter(w)
	defer bw.Flush()
	if _, err := bw.WriteString("timestamp,current,voltage\n"); err != nil {
		return 0, err
	}

	sched := timing.NewScheduler(s.clock, s.interval)
	n := 0
	for s.limit == 0 || n < s.limit {
		ts := timing.WallNanos(s.clock)
		c, err := readValue(curr)
		if err != nil {
			return n, fmt.Errorf("read current: %w", err)
		}
		v, err := readValue(volt)
		if err != nil {
			return n, fmt.Errorf("read voltage: %w", err)
		}
		if _, err := fmt.Fprintf(bw, "%d,%s,%s\n", ts, c, v); err != nil {
			return n, err
		}
		n++
		if s.limit > 0 && n >= s.limit {
			break
		}

		if err := sched.Wait(ctx); err != nil {
			break
		}
	}

	if missed := sched.Missed(); missed > 0 {
		s.logger.WarnContext(ctx, "sampler fell behind schedule", "missed", missed)
	}
	return n, bw.Flush()
}

// readValue rereads a sysfs attribute from the start.
func readValue(f *os.File) (string, error) {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	s := strings.TrimSpace(string(buf[:n]))
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", fmt.Errorf("unexpected value %q", s)
	}
	return s, nil
}
