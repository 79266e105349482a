package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvCheckInterval = "WORKCTL_CHECK_INTERVAL"
	EnvRunFor        = "WORKCTL_RUN_FOR"
	EnvAbortAfter    = "WORKCTL_ABORT_AFTER"
	EnvIterations    = "WORKCTL_ITERATIONS"
	EnvWorkers       = "WORKCTL_WORKERS"
	EnvLogLevel      = "WORKCTL_LOG_LEVEL"
	EnvLogFormat     = "WORKCTL_LOG_FORMAT"
	EnvLogFile       = "WORKCTL_LOG_FILE"
	EnvMetricsAddr   = "WORKCTL_METRICS_ADDR"
)

// Config holds process-wide defaults. Tree files override the budgets per
// supervisor.
type Config struct {
	CheckInterval time.Duration
	// RunFor < 0 disables the run-time budget.
	RunFor     time.Duration
	AbortAfter time.Duration
	// Iterations of -1 disables the iteration budget.
	Iterations int
	Workers    int

	LogLevel    string
	LogFormat   string
	LogFile     string
	MetricsAddr string
}

func Default() Config {
	return Config{
		CheckInterval: 100 * time.Millisecond,
		RunFor:        time.Second,
		AbortAfter:    5 * time.Second,
		Iterations:    -1,
		Workers:       16,
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// LoadDotEnv loads .env files into the environment. Missing files are fine.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv reads WORKCTL_* variables on top of Default.
func FromEnv() (Config, error) {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvCheckInterval, &cfg.CheckInterval},
		{EnvRunFor, &cfg.RunFor},
		{EnvAbortAfter, &cfg.AbortAfter},
	}
	for _, d := range durations {
		if v, ok := get(d.key); ok {
			parsed, err := ParseDuration(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvIterations, &cfg.Iterations},
		{EnvWorkers, &cfg.Workers},
	}
	for _, i := range ints {
		if v, ok := get(i.key); ok {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", i.key, err)
			}
			*i.dst = parsed
		}
	}

	if v, ok := get(EnvLogLevel); ok {
		cfg.LogLevel = v
	}
	if v, ok := get(EnvLogFormat); ok {
		cfg.LogFormat = v
	}
	if v, ok := get(EnvLogFile); ok {
		cfg.LogFile = v
	}
	if v, ok := get(EnvMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if err := ValidateCheckInterval(c.CheckInterval); err != nil {
		return err
	}
	if err := ValidateRunFor(c.RunFor); err != nil {
		return err
	}
	if err := ValidateAbortAfter(c.AbortAfter); err != nil {
		return err
	}
	return ValidateIterations(c.Iterations)
}

var ErrInvalidBudget = errors.New("invalid budget")

func ValidateCheckInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: check interval must be positive, got %v", ErrInvalidBudget, d)
	}
	return nil
}

// ValidateRunFor accepts a non-negative run budget or exactly -1 for none.
func ValidateRunFor(d time.Duration) error {
	if d < 0 && d != -1 {
		return fmt.Errorf("%w: run budget must be non-negative or none, got %v", ErrInvalidBudget, d)
	}
	return nil
}

// ValidateAbortAfter rejects negative values, "none" included: a subtree
// always gets a finite time to terminate before it is aborted.
func ValidateAbortAfter(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: abort budget must not be negative, got %v", ErrInvalidBudget, d)
	}
	return nil
}

// ValidateIterations accepts a non-negative count or exactly -1 for none.
func ValidateIterations(n int) error {
	if n < -1 {
		return fmt.Errorf("%w: iterations must be non-negative or -1, got %d", ErrInvalidBudget, n)
	}
	return nil
}

// ParseDuration accepts Go duration strings; "-1", "none" and "unbounded"
// mean no budget and parse to -1.
func ParseDuration(v string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "-1", "none", "unbounded":
		return -1, nil
	}
	return time.ParseDuration(strings.TrimSpace(v))
}
