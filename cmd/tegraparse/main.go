package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ciricc/e3bench/internal/app"
	"github.com/ciricc/e3bench/internal/config"
	"github.com/ciricc/e3bench/internal/tegrastats"
	"github.com/spf13/pflag"
)

func main() {
	var (
		cfgPath     = pflag.StringP("config", "c", "", "path to config.yaml (defaults to $"+config.EnvPath+")")
		outDir      = pflag.StringP("output-dir", "d", "", "directory for the tables (defaults to next to each log)")
		parallelism = pflag.IntP("parallelism", "j", 0, "number of logs converted at once")
		timezone    = pflag.String("timezone", "", "IANA zone the logs were written in (defaults to local)")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] log [log...]\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if pflag.CommandLine.Changed("parallelism") {
		cfg.Parse.Parallelism = *parallelism
	}
	if pflag.CommandLine.Changed("timezone") {
		cfg.Parse.Timezone = *timezone
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}

	inputs := pflag.Args()
	if len(inputs) == 0 {
		pflag.Usage()
		fatalf("no input logs")
	}

	loc := time.Local
	if cfg.Parse.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Parse.Timezone); err != nil {
			fatalf("timezone: %v", err)
		}
	}

	application, err := app.New(cfg)
	if err != nil {
		fatalf("init error: %v", err)
	}
	defer application.Close()
	log := application.Logger.With("component", "tegraparse")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs, err := newJobs(inputs, *outDir)
	if err != nil {
		fatalf("%v", err)
	}

	summaries, err := tegrastats.ConvertAll(ctx, jobs, cfg.Parse.Parallelism, tegrastats.WithLocation(loc))
	if err != nil {
		// jobs cancelled by the failure have empty summaries too
		fatalf("convert: %v", err)
	}
	for i, s := range summaries {
		if s.Samples == 0 {
			log.Warn("no samples", "input", jobs[i].Input)
			continue
		}
		log.Info("converted", "input", jobs[i].Input, "output", jobs[i].Output, "summary", s)
	}
}

// newJobs pairs every input with its table. A table that would replace
// an input, or that two inputs would share, is an error.
func newJobs(inputs []string, outDir string) ([]tegrastats.Job, error) {
	sources := make(map[string]string, len(inputs))
	for _, in := range inputs {
		sources[filepath.Clean(in)] = in
	}

	jobs := make([]tegrastats.Job, 0, len(inputs))
	outputs := make(map[string]string, len(inputs))
	for _, in := range inputs {
		out := tablePath(in, outDir)
		key := filepath.Clean(out)
		if src, ok := sources[key]; ok {
			return nil, fmt.Errorf("table %s would overwrite input %s", out, src)
		}
		if prev, ok := outputs[key]; ok {
			return nil, fmt.Errorf("%s and %s both convert to %s", prev, in, out)
		}
		outputs[key] = in
		jobs = append(jobs, tegrastats.Job{Input: in, Output: out})
	}
	return jobs, nil
}

// tablePath derives the table name from the log name, dropping the
// compression and log suffixes: run.log.zst becomes run.csv.
func tablePath(input, outDir string) string {
	dir, base := filepath.Split(input)
	for _, ext := range []string{".zst", ".gz", ".log", ".txt"} {
		base = strings.TrimSuffix(base, ext)
	}
	if outDir != "" {
		dir = outDir
	}
	return filepath.Join(dir, base+".csv")
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
