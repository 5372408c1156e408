package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ciricc/e3bench/internal/app"
	"github.com/ciricc/e3bench/internal/config"
	"github.com/ciricc/e3bench/internal/launch"
	"github.com/ciricc/e3bench/internal/orchestrator"
	"github.com/ciricc/e3bench/internal/profiler"
	"github.com/ciricc/e3bench/pkg/benchreport"
	"github.com/spf13/pflag"
)

func main() {
	var (
		cfgPath     = pflag.StringP("config", "c", "", "path to config.yaml (defaults to $"+config.EnvPath+")")
		profName    = pflag.StringP("profiler", "p", "", "profiler: "+strings.Join(profiler.Names(), "|"))
		interval    = pflag.DurationP("interval", "i", 0, "sampling interval")
		outPath     = pflag.StringP("output", "o", "", "path of the telemetry log the profiler writes")
		settle      = pflag.Duration("settle", 0, "wait between sampler start and workload launch")
		cooldown    = pflag.Duration("cooldown", 0, "wait between workload exit and sampler shutdown")
		grace       = pflag.Duration("grace-period", 0, "how long the sampler may take to exit after SIGINT")
		samplerPath = pflag.String("sampler-path", "", "path to the e3sampler binary")
		noManifest  = pflag.Bool("no-manifest", false, "do not write the session manifest next to the output")
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
	if *cfgPath != "" {
		// e3sampler reads its sampler section from the same file
		if err := os.Setenv(config.EnvPath, *cfgPath); err != nil {
			fatalf("export config path: %v", err)
		}
	}
	flags := pflag.CommandLine
	if flags.Changed("profiler") {
		cfg.Power.Profiler = *profName
	}
	if flags.Changed("interval") {
		cfg.Power.Interval = *interval
	}
	if flags.Changed("settle") {
		cfg.Power.Settle = *settle
	}
	if flags.Changed("cooldown") {
		cfg.Power.Cooldown = *cooldown
	}
	if flags.Changed("grace-period") {
		cfg.Power.GracePeriod = *grace
	}
	if flags.Changed("sampler-path") {
		cfg.Power.SamplerPath = *samplerPath
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}

	argv := pflag.Args()
	if len(argv) == 0 {
		pflag.Usage()
		fatalf("no workload command")
	}
	if *outPath == "" {
		fatalf("--output is required")
	}

	profArgv, err := profiler.New(profiler.WithSamplerPath(cfg.Power.SamplerPath)).
		Command(cfg.Power.Profiler, cfg.Power.Interval, *outPath)
	if err != nil {
		fatalf("profiler: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		fatalf("init error: %v", err)
	}
	defer application.Close()
	log := application.Logger.With("component", "powwrap", "profiler", cfg.Power.Profiler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	release, err := application.Session(ctx, "power")
	if err != nil {
		fatalf("%v", err)
	}
	defer release()

	orch := orchestrator.New(
		orchestrator.WithLogger(log),
		orchestrator.WithTimings(orchestrator.Timings{
			Settle:      cfg.Power.Settle,
			Cooldown:    cfg.Power.Cooldown,
			GracePeriod: cfg.Power.GracePeriod,
			ReapTimeout: cfg.Power.ReapTimeout,
		}),
	)

	started := time.Now()
	status, err := orch.Run(ctx, profArgv, argv)
	if err != nil {
		release()
		fatalf("power measurement: %v", err)
	}

	if !*noManifest {
		prof := benchreport.DescribeCommand(profArgv)
		m := benchreport.Manifest{
			Version:          benchreport.Version,
			TimestampRFC3339: started.UTC().Format(time.RFC3339),
			Mode:             "power",
			Output:           *outPath,
			Command:          benchreport.DescribeCommand(argv),
			Profiler:         &prof,
			Env:              benchreport.DetectEnv(),
			Parameters: map[string]string{
				"profiler":     cfg.Power.Profiler,
				"interval":     cfg.Power.Interval.String(),
				"settle":       cfg.Power.Settle.String(),
				"cooldown":     cfg.Power.Cooldown.String(),
				"grace_period": cfg.Power.GracePeriod.String(),
			},
			Outcome:     benchreport.CountOutcome([]int{status}, launch.StatusLaunchError, launch.StatusCancelled),
			WallSeconds: time.Since(started).Seconds(),
		}
		if err := benchreport.Write(m, benchreport.ManifestPath(*outPath)); err != nil {
			log.Warn("write manifest", "error", err)
		}
	}

	log.Info("workload finished", "returncode", status, "output", *outPath)
	release()
	application.Close()
	os.Exit(launch.ExitCode(status))
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
