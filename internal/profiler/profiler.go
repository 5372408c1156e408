// Package profiler resolves a profiler name into the command line of a
// background power sampler.
package profiler

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	Tegrastats = "tegrastats"
	SMI        = "smiprof"
	INAPrefix  = "inaprof"

	// SamplerBinary is the name of the built-in sampler executable.
	SamplerBinary = "e3sampler"
)

var (
	ErrUnknownProfiler = errors.New("unknown profiler")
	ErrMissingRail     = errors.New("inaprof needs a rail name, e.g. inaprof-VDD_IN")
	ErrToolNotFound    = errors.New("profiler tool not found")
)

// Names lists the accepted profiler names.
func Names() []string {
	return []string{Tegrastats, SMI, INAPrefix + "-<RAIL>"}
}

type Resolver struct {
	samplerPath string
	lookPath    func(string) (string, error)
	executable  func() (string, error)
}

type Option func(r *Resolver)

// WithSamplerPath pins the built-in sampler executable.
func WithSamplerPath(path string) Option {
	return func(r *Resolver) { r.samplerPath = path }
}

// WithLookPath replaces the PATH lookup.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(r *Resolver) { r.lookPath = fn }
}

func New(opts ...Option) *Resolver {
	r := &Resolver{
		lookPath:   exec.LookPath,
		executable: os.Executable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Command returns the argv that samples at interval into output. Every
// tool the command needs is checked before returning.
func (r *Resolver) Command(name string, interval time.Duration, output string) ([]string, error) {
	switch {
	case name == Tegrastats:
		bin, err := r.require(Tegrastats)
		if err != nil {
			return nil, err
		}
		return []string{bin, "--interval", strconv.FormatInt(interval.Milliseconds(), 10), "--logfile", output}, nil

	case name == SMI:
		if _, err := r.require("nvidia-smi"); err != nil {
			return nil, err
		}
		sampler, err := r.sampler()
		if err != nil {
			return nil, err
		}
		return []string{sampler, "smi", "--interval", interval.String(), "--output", output}, nil

	case name == INAPrefix || strings.HasPrefix(name, INAPrefix+"-"):
		rail := strings.TrimPrefix(strings.TrimPrefix(name, INAPrefix), "-")
		if rail == "" {
			return nil, ErrMissingRail
		}
		sampler, err := r.sampler()
		if err != nil {
			return nil, err
		}
		return []string{sampler, "ina", "--rail", rail, "--interval", interval.String(), "--output", output}, nil

	default:
		return nil, fmt.Errorf("%w %q, use one of %v", ErrUnknownProfiler, name, Names())
	}
}

func (r *Resolver) require(tool string) (string, error) {
	path, err := r.lookPath(tool)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not in PATH", ErrToolNotFound, tool)
	}
	return path, nil
}

// sampler finds the built-in sampler: the configured path, then next to
// the running executable, then on PATH.
func (r *Resolver) sampler() (string, error) {
	if r.samplerPath != "" {
		if _, err := os.Stat(r.samplerPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrToolNotFound, r.samplerPath)
		}
		return r.samplerPath, nil
	}
	if self, err := r.executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), SamplerBinary)
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}
	return r.require(SamplerBinary)
}
