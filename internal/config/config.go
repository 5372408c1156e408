package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "E3BENCH_CONFIG"

type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Latency struct {
		Warmup     int           `yaml:"warmup"`
		Repeat     int           `yaml:"repeat"`
		MinRunTime time.Duration `yaml:"min_run_time"`
		Timer      string        `yaml:"timer"`
		Command    []string      `yaml:"command"`
	} `yaml:"latency"`

	Power struct {
		Profiler    string        `yaml:"profiler"`
		Interval    time.Duration `yaml:"interval"`
		Settle      time.Duration `yaml:"settle"`
		Cooldown    time.Duration `yaml:"cooldown"`
		GracePeriod time.Duration `yaml:"grace_period"`
		ReapTimeout time.Duration `yaml:"reap_timeout"`
		SamplerPath string        `yaml:"sampler_path"`
	} `yaml:"power"`

	Samplers struct {
		INA struct {
			HwmonDir string `yaml:"hwmon_dir"`
		} `yaml:"ina"`
		SMI struct {
			Device int `yaml:"device"`
		} `yaml:"smi"`
	} `yaml:"samplers"`

	Parse struct {
		Parallelism int    `yaml:"parallelism"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"parse"`

	Health struct {
		Address string `yaml:"address"`
	} `yaml:"health"`
}

func Default() Config {
	var c Config
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.Latency.Repeat = 1
	c.Latency.MinRunTime = 100 * time.Millisecond
	c.Latency.Timer = "adaptive"
	c.Power.Profiler = "tegrastats"
	c.Power.Interval = 100 * time.Millisecond
	c.Power.Settle = 4 * time.Second
	c.Power.Cooldown = 2 * time.Second
	c.Power.GracePeriod = 2 * time.Second
	c.Power.ReapTimeout = time.Second
	c.Samplers.INA.HwmonDir = "/sys/bus/i2c/drivers/ina3221/1-0040/hwmon/hwmon3"
	c.Parse.Parallelism = 4
	return c
}

// Load reads the YAML file at path over Default. Fields missing from the
// file keep their defaults.
func Load(path string) (Config, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, c.Validate()
}

// Resolve loads the file named by path, or by E3BENCH_CONFIG when path
// is empty. Without either, it returns Default.
func Resolve(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func (c Config) Validate() error {
	var errs []error
	if c.Latency.Warmup < 0 || c.Latency.Repeat < 0 {
		errs = append(errs, errors.New("latency: warmup and repeat must not be negative"))
	}
	if c.Latency.MinRunTime <= 0 {
		errs = append(errs, errors.New("latency: min_run_time must be positive"))
	}
	if c.Power.Interval <= 0 {
		errs = append(errs, errors.New("power: interval must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"settle":       c.Power.Settle,
		"cooldown":     c.Power.Cooldown,
		"grace_period": c.Power.GracePeriod,
		"reap_timeout": c.Power.ReapTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("power: %s must not be negative", name))
		}
	}
	if c.Parse.Parallelism < 1 {
		errs = append(errs, errors.New("parse: parallelism must be at least 1"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
