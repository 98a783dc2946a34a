// Package config loads the YAML deployment configuration. Durations are
// written as strings ("30m", "2h") and parsed after unmarshal, because
// yaml.v3 does not decode time.Duration on its own.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Version  string   `yaml:"version"`
	Provider string   `yaml:"provider"`
	Regions  []string `yaml:"regions"`

	Scan      Scan      `yaml:"scan,omitempty"`
	Rules     Rules     `yaml:"rules,omitempty"`
	Policy    Policy    `yaml:"policy,omitempty"`
	Storage   Storage   `yaml:"storage,omitempty"`
	Journal   Journal   `yaml:"journal,omitempty"`
	Telemetry Telemetry `yaml:"telemetry,omitempty"`
	Daemon    Daemon    `yaml:"daemon,omitempty"`
}

// Scan bounds one scan run.
type Scan struct {
	DeadlineStr string        `yaml:"deadline"`
	Deadline    time.Duration `yaml:"-"`
	Parallelism int           `yaml:"parallelism"`
	AccountCap  int           `yaml:"account_cap"`

	// RatePerSec budgets remote calls per (account, API); zero disables
	// throttling.
	RatePerSec float64 `yaml:"rate_per_sec"`
}

// Rules points at the scenario file. Empty means the embedded default
// library.
type Rules struct {
	Path string `yaml:"path"`
}

// Policy points at a directory of rego suppression policies. Empty
// disables suppression.
type Policy struct {
	Dir string `yaml:"dir"`
}

// Storage holds the findings database location.
type Storage struct {
	Dir string `yaml:"dir"`
}

// Journal holds the scan journal location and retention.
type Journal struct {
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// Telemetry holds OTLP export settings.
type Telemetry struct {
	Endpoint    string `yaml:"endpoint"`
	Environment string `yaml:"environment"`
	Insecure    bool   `yaml:"insecure"`
}

// Daemon holds the continuous-scan settings.
type Daemon struct {
	IntervalStr string        `yaml:"interval"`
	Interval    time.Duration `yaml:"-"`
	Listen      string        `yaml:"listen"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Version:  "v1",
		Provider: "aws",
		Regions:  []string{"us-east-1"},
	}
	applyDefaults(cfg)
	// Defaults are well formed; parse cannot fail on them.
	_ = parseDurations(cfg)
	return cfg
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := parseDurations(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Scan.DeadlineStr == "" {
		cfg.Scan.DeadlineStr = "30m"
	}
	if cfg.Daemon.IntervalStr == "" {
		cfg.Daemon.IntervalStr = "1h"
	}
	if cfg.Daemon.Listen == "" {
		cfg.Daemon.Listen = ":9090"
	}
	if cfg.Journal.RetentionDays == 0 {
		cfg.Journal.RetentionDays = 14
	}
}

func parseDurations(cfg *Config) error {
	deadline, err := time.ParseDuration(cfg.Scan.DeadlineStr)
	if err != nil {
		return fmt.Errorf("failed to parse scan.deadline %q: %w", cfg.Scan.DeadlineStr, err)
	}
	cfg.Scan.Deadline = deadline

	interval, err := time.ParseDuration(cfg.Daemon.IntervalStr)
	if err != nil {
		return fmt.Errorf("failed to parse daemon.interval %q: %w", cfg.Daemon.IntervalStr, err)
	}
	cfg.Daemon.Interval = interval
	return nil
}

// Validate ensures the config has required fields and sane bounds.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("at least one region is required")
	}
	if c.Scan.Parallelism < 0 {
		return fmt.Errorf("scan.parallelism must not be negative")
	}
	if c.Scan.AccountCap < 0 {
		return fmt.Errorf("scan.account_cap must not be negative")
	}
	if c.Scan.RatePerSec < 0 {
		return fmt.Errorf("scan.rate_per_sec must not be negative")
	}
	if c.Journal.RetentionDays < 0 {
		return fmt.Errorf("journal.retention_days must not be negative")
	}
	return nil
}
