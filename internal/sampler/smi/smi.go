// Package smi samples NVIDIA GPU utilization and power through
// nvidia-smi's XML query output.
package smi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ciricc/e3bench/internal/clock"
	"github.com/ciricc/e3bench/internal/timing"
	"github.com/samber/lo"
)

const Header = "timestamp_ns,gpu,util_pct,mem_used_mb,mem_total_mb,power_w,sm_mhz"

// Sample contains a subset of NVIDIA SMI metrics. A nil reading was
// reported as N/A or could not be parsed.
type Sample struct {
	Name        string
	Index       int
	UtilPercent *float64
	MemUsedMB   *float64
	MemTotalMB  *float64
	PowerWatt   *float64
	SMClockMHz  *float64
}

// Minimal XML mapping for nvidia-smi -x -q
type smiLog struct {
	XMLName xml.Name `xml:"nvidia_smi_log"`
	GPU     smiGPU   `xml:"gpu"`
}

type smiGPU struct {
	ProductName string         `xml:"product_name"`
	Util        smiUtilization `xml:"utilization"`
	FBMem       smiFBMemory    `xml:"fb_memory_usage"`
	Power       smiPower       `xml:"power_readings"`
	GPUPower    smiPower       `xml:"gpu_power_readings"`
	Clocks      smiClocks      `xml:"clocks"`
}

type smiUtilization struct {
	GPU string `xml:"gpu_util"`
}

type smiFBMemory struct {
	Total string `xml:"total"`
	Used  string `xml:"used"`
}

type smiPower struct {
	Draw        string `xml:"power_draw"`
	InstantDraw string `xml:"instant_power_draw"`
}

type smiClocks struct {
	SMClock string `xml:"sm_clock"`
}

// QueryFunc returns the XML report of one device.
type QueryFunc func(ctx context.Context, device int) ([]byte, error)

// ExecQuery runs nvidia-smi -x -q for device.
func ExecQuery(ctx context.Context, device int) ([]byte, error) {
	return exec.CommandContext(ctx, "nvidia-smi", "-x", "-q", "-i", strconv.Itoa(device)).Output()
}

// Available reports whether nvidia-smi is on PATH.
func Available() bool {
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

// Decode parses one nvidia-smi -x -q report.
func Decode(b []byte, device int) (Sample, error) {
	var log smiLog
	if err := xml.NewDecoder(bytes.NewReader(b)).Decode(&log); err != nil {
		return Sample{}, err
	}
	gpu := log.GPU

	// Newer drivers moved the reading to gpu_power_readings.
	var power *float64
	for _, draw := range []string{gpu.Power.Draw, gpu.GPUPower.Draw, gpu.GPUPower.InstantDraw, gpu.Power.InstantDraw} {
		if power = parseUnit(draw, "W"); power != nil {
			break
		}
	}

	return Sample{
		Name:        strings.TrimSpace(gpu.ProductName),
		Index:       device,
		UtilPercent: parseUnit(gpu.Util.GPU, "%"),
		MemUsedMB:   parseUnit(gpu.FBMem.Used, "MiB"),
		MemTotalMB:  parseUnit(gpu.FBMem.Total, "MiB"),
		PowerWatt:   power,
		SMClockMHz:  parseUnit(gpu.Clocks.SMClock, "MHz"),
	}, nil
}

// parseUnit reads values like "66 %" or "1024 MiB". "N/A" and other
// unparsable readings give nil.
func parseUnit(s, unit string) *float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), unit))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return lo.ToPtr(v)
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
			return lo.ToPtr(v)
		}
	}
	return nil
}

// formatReading writes an absent reading as an empty cell.
func formatReading(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

type Sampler struct {
	device   int
	interval time.Duration
	timeout  time.Duration
	limit    int
	query    QueryFunc
	clock    clock.Clock
	logger   *slog.Logger
}

type Option func(s *Sampler)

func WithQuery(q QueryFunc) Option {
	return func(s *Sampler) { s.query = q }
}

func WithClock(c clock.Clock) Option {
	return func(s *Sampler) { s.clock = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sampler) { s.logger = logger }
}

// WithLimit stops the sampler after n queries. Zero means no limit.
func WithLimit(n int) Option {
	return func(s *Sampler) { s.limit = n }
}

func New(device int, interval time.Duration, opts ...Option) *Sampler {
	s := &Sampler{
		device:   device,
		interval: interval,
		timeout:  1500 * time.Millisecond,
		query:    ExecQuery,
		clock:    clock.Real(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run samples until ctx is done or the limit is reached. Failed queries
// are logged and skipped. It returns the number of lines written.
func (s *Sampler) Run(ctx context.Context, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	if _, err := fmt.Fprintln(bw, Header); err != nil {
		return 0, err
	}

	sched := timing.NewScheduler(s.clock, s.interval)
	n := 0
	for attempts := 0; s.limit == 0 || attempts < s.limit; attempts++ {
		ts := timing.WallNanos(s.clock)
		sample, err := s.sample(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.WarnContext(ctx, "nvidia-smi sample failed", "error", err)
		case err == nil:
			if _, err := fmt.Fprintf(bw, "%d,%d,%s,%s,%s,%s,%s\n",
				ts, sample.Index, formatReading(sample.UtilPercent), formatReading(sample.MemUsedMB),
				formatReading(sample.MemTotalMB), formatReading(sample.PowerWatt), formatReading(sample.SMClockMHz),
			); err != nil {
				return n, err
			}
			if err := bw.Flush(); err != nil {
				return n, err
			}
			n++
		}

		if s.limit > 0 && attempts+1 >= s.limit {
			break
		}
		if err := sched.Wait(ctx); err != nil {
			break
		}
	}
	return n, bw.Flush()
}

func (s *Sampler) sample(ctx context.Context) (Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	b, err := s.query(ctx, s.device)
	if err != nil {
		return Sample{}, err
	}
	return Decode(b, s.device)
}
