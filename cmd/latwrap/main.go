package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ciricc/e3bench/internal/adaptive"
	"github.com/ciricc/e3bench/internal/app"
	"github.com/ciricc/e3bench/internal/autorange"
	"github.com/ciricc/e3bench/internal/clock"
	"github.com/ciricc/e3bench/internal/config"
	"github.com/ciricc/e3bench/internal/launch"
	"github.com/ciricc/e3bench/internal/recorder"
	"github.com/ciricc/e3bench/internal/runlog"
	"github.com/ciricc/e3bench/pkg/benchreport"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
)

const (
	modeBasic   = "basic"
	modeDynamic = "dynamic"
	modeMix     = "mix"
)

func main() {
	var (
		cfgPath    = pflag.StringP("config", "c", "", "path to config.yaml (defaults to $"+config.EnvPath+")")
		mode       = pflag.StringP("mode", "m", modeBasic, "measurement mode: basic|dynamic|mix")
		outPath    = pflag.StringP("output", "o", "", "path of the run log to write")
		warmup     = pflag.Int("warmup", 0, "number of unmeasured warmup runs (basic, mix)")
		repeat     = pflag.Int("repeat", 1, "number of measured runs (basic, mix)")
		minRunTime = pflag.Duration("min-run-time", adaptive.DefaultMinRunTime, "minimum timing window (dynamic, mix)")
		timerName  = pflag.String("timer", "adaptive", "timer implementation: adaptive|blocked")
		noManifest = pflag.Bool("no-manifest", false, "do not write the session manifest next to the output")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] -- command [args...]\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	if pflag.CommandLine.Changed("warmup") {
		cfg.Latency.Warmup = *warmup
	}
	if pflag.CommandLine.Changed("repeat") {
		cfg.Latency.Repeat = *repeat
	}
	if pflag.CommandLine.Changed("min-run-time") {
		cfg.Latency.MinRunTime = *minRunTime
	}
	if pflag.CommandLine.Changed("timer") {
		cfg.Latency.Timer = *timerName
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}

	argv := pflag.Args()
	if len(argv) == 0 {
		argv = cfg.Latency.Command
	}
	if len(argv) == 0 {
		pflag.Usage()
		fatalf("no command to measure")
	}
	if *outPath == "" {
		fatalf("--output is required")
	}

	application, err := app.New(cfg)
	if err != nil {
		fatalf("init error: %v", err)
	}
	defer application.Close()
	log := application.Logger.With("component", "latwrap", "mode", *mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	release, err := application.Session(ctx, "latency")
	if err != nil {
		fatalf("%v", err)
	}
	defer release()

	started := time.Now()
	statuses, err := measure(ctx, *mode, cfg, argv, *outPath, log)
	if err != nil {
		release()
		fatalf("%s: %v", *mode, err)
	}

	if !*noManifest {
		m := benchreport.Manifest{
			Version:          benchreport.Version,
			TimestampRFC3339: started.UTC().Format(time.RFC3339),
			Mode:             *mode,
			Output:           *outPath,
			Command:          benchreport.DescribeCommand(argv),
			Env:              benchreport.DetectEnv(),
			Parameters:       parameters(*mode, cfg),
			Outcome:          benchreport.CountOutcome(statuses, launch.StatusLaunchError, launch.StatusCancelled),
			WallSeconds:      time.Since(started).Seconds(),
		}
		if err := benchreport.Write(m, benchreport.ManifestPath(*outPath)); err != nil {
			log.Warn("write manifest", "error", err)
		}
	}

	log.Info("measurement finished",
		"output", *outPath,
		"runs", len(statuses),
		"wall_s", time.Since(started).Seconds(),
	)
	if ctx.Err() != nil {
		release()
		os.Exit(launch.ExitCode(launch.StatusCancelled))
	}
}

// measure runs the selected mode and returns the status of every
// recorded run or window.
func measure(ctx context.Context, mode string, cfg config.Config, argv []string, outPath string, log *slog.Logger) ([]int, error) {
	switch mode {
	case modeBasic:
		rec := recorder.New(recorder.WithLogger(log))
		records, err := rec.Run(ctx, argv, outPath, cfg.Latency.Warmup, cfg.Latency.Repeat)
		return lo.Map(records, func(r runlog.RunRecord, _ int) int { return r.ExitStatus }), err

	case modeDynamic, modeMix:
		engine, err := newEngine(cfg, log)
		if err != nil {
			return nil, err
		}
		if mode == modeDynamic {
			records, err := engine.RunRaw(ctx, argv, outPath)
			return lo.Map(records, func(r runlog.RunRecord, _ int) int { return r.ExitStatus }), err
		}
		blocks, err := engine.RunBlocks(ctx, argv, outPath, cfg.Latency.Warmup, cfg.Latency.Repeat)
		return lo.Map(blocks, func(b runlog.BlockSummary, _ int) int { return b.ExitStatus }), err

	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func newEngine(cfg config.Config, log *slog.Logger) (*adaptive.Engine, error) {
	timer, err := autorange.Lookup(cfg.Latency.Timer, clock.Real())
	if err != nil {
		if errors.Is(err, autorange.ErrUnavailable) {
			return nil, fmt.Errorf("no adaptive timer available: %w", err)
		}
		return nil, err
	}
	return adaptive.NewEngine(timer,
		adaptive.WithLogger(log),
		adaptive.WithMinRunTime(cfg.Latency.MinRunTime),
	)
}

func parameters(mode string, cfg config.Config) map[string]string {
	p := map[string]string{}
	if mode != modeDynamic {
		p["warmup"] = strconv.Itoa(cfg.Latency.Warmup)
		p["repeat"] = strconv.Itoa(cfg.Latency.Repeat)
	}
	if mode != modeBasic {
		p["min_run_time"] = cfg.Latency.MinRunTime.String()
		p["timer"] = cfg.Latency.Timer
	}
	return p
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
