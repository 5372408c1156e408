// e3sampler records power telemetry until it is interrupted. It is the
// sampler powwrap starts for the smiprof and inaprof-<RAIL> profilers.
//
//	e3sampler ina --rail VDD_IN --interval 10ms --output power.csv
//	e3sampler smi --device 0 --interval 100ms --output gpu.csv
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ciricc/e3bench/internal/app"
	"github.com/ciricc/e3bench/internal/config"
	"github.com/ciricc/e3bench/internal/sampler/ina"
	"github.com/ciricc/e3bench/internal/sampler/smi"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("missing subcommand")
	}

	switch args[0] {
	case "ina":
		return runINA(args[1:])
	case "smi":
		return runSMI(args[1:])
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "usage: e3sampler ina|smi [flags]\n")
}

// common holds the flags every subcommand takes.
type common struct {
	configPath string
	interval   time.Duration
	output     string
	limit      int
}

func (c *common) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.configPath, "config", "c", "", "path to config.yaml (defaults to $"+config.EnvPath+")")
	fs.DurationVarP(&c.interval, "interval", "i", 100*time.Millisecond, "sampling interval")
	fs.StringVarP(&c.output, "output", "o", "", "CSV file to write (defaults to stdout)")
	fs.IntVar(&c.limit, "count", 0, "stop after this many samples (0 runs until interrupted)")
	fs.BoolP("help", "h", false, "show help")
}

// parse parses args and reports whether the caller should go on.
func parse(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			fs.PrintDefaults()
			return false, nil
		}
		return false, err
	}
	if help, _ := fs.GetBool("help"); help {
		fs.PrintDefaults()
		return false, nil
	}
	return true, nil
}

func runINA(args []string) error {
	var (
		flags    common
		rail     string
		hwmonDir string
	)
	fs := pflag.NewFlagSet("e3sampler ina", pflag.ContinueOnError)
	flags.addFlags(fs)
	fs.StringVar(&rail, "rail", "", "rail label to sample, e.g. VDD_IN")
	fs.StringVar(&hwmonDir, "hwmon-dir", "", "INA3221 hwmon directory")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	if rail == "" {
		return fmt.Errorf("--rail is required")
	}

	cfg, log, err := setup(flags.configPath)
	if err != nil {
		return err
	}
	if !fs.Changed("hwmon-dir") {
		hwmonDir = cfg.Samplers.INA.HwmonDir
	}

	channel, err := ina.FindRail(hwmonDir, rail)
	if err != nil {
		return err
	}
	log = log.With("sampler", "ina", "rail", rail, "channel", channel)
	s := ina.New(hwmonDir, channel, flags.interval,
		ina.WithLogger(log),
		ina.WithLimit(flags.limit),
	)
	return sample(flags.output, log, s.Run)
}

func runSMI(args []string) error {
	var (
		flags  common
		device int
	)
	fs := pflag.NewFlagSet("e3sampler smi", pflag.ContinueOnError)
	flags.addFlags(fs)
	fs.IntVar(&device, "device", 0, "GPU index")
	if ok, err := parse(fs, args); !ok {
		return err
	}

	cfg, log, err := setup(flags.configPath)
	if err != nil {
		return err
	}
	if !fs.Changed("device") {
		device = cfg.Samplers.SMI.Device
	}
	if !smi.Available() {
		return fmt.Errorf("nvidia-smi not found on PATH")
	}

	log = log.With("sampler", "smi", "device", device)
	s := smi.New(device, flags.interval,
		smi.WithLogger(log),
		smi.WithLimit(flags.limit),
	)
	return sample(flags.output, log, s.Run)
}

func setup(configPath string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := app.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log.With("component", "e3sampler"), nil
}

// sample runs fn into output until SIGINT or SIGTERM.
func sample(output string, log *slog.Logger, fn func(context.Context, io.Writer) (int, error)) error {
	var w io.Writer = os.Stdout
	if output != "" {
		if dir := filepath.Dir(output); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("sampling started", "output", output)
	n, err := fn(ctx, w)
	log.Info("sampling stopped", "samples", n)
	return err
}
