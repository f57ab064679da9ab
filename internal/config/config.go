// Package config loads the orchestrator's ambient settings: default
// job limits, logging, persistence, and model-client configuration.
// It is distinct from model.JobSpec, which describes one job's
// submission; Config describes how the taskgraph process itself is
// set up to run jobs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggingConfig holds logging settings. The CLI applies Level to its
// console logger. EnableColor and LogDir are loaded and overridable
// but nothing reads them: console color follows whether the output is
// a terminal, and no log file is written.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	EnableColor bool   `yaml:"enable_color"`
	LogDir      string `yaml:"log_dir"`
}

// StoreConfig controls persistence of completed job results.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// PlannerConfig holds settings for the ai/orchestrate handler's model
// client. They are loaded, validated and overridable from the
// environment, but cmd/taskgraph does not read them: it registers a
// planner that runs the "claude" binary with the planner's own
// built-in retry and timeout defaults.
type PlannerConfig struct {
	BinaryPath string `yaml:"binary_path"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
}

// DefaultsConfig holds process-wide fallbacks for fields a JobSpec may
// leave unset.
type DefaultsConfig struct {
	MaxTasks       int  `yaml:"max_tasks"`
	MaxDepth       int  `yaml:"max_depth"`
	TimeoutMillis  int  `yaml:"timeout_millis"`
	AbortOnFailure bool `yaml:"abort_on_failure"`
	Concurrency    int  `yaml:"concurrency"`
}

// Config is the top-level process configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Store    StoreConfig    `yaml:"store"`
	Planner  PlannerConfig  `yaml:"planner"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Default returns the built-in configuration used when no config file
// is present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:       "info",
			EnableColor: true,
			LogDir:      ".taskgraph/logs",
		},
		Store: StoreConfig{
			Enabled: true,
			DBPath:  ".taskgraph/results.db",
		},
		Planner: PlannerConfig{
			BinaryPath: "claude",
			TimeoutMS:  120_000,
			MaxRetries: 3,
		},
		Defaults: DefaultsConfig{
			MaxTasks:       1000,
			MaxDepth:       10,
			TimeoutMillis:  0,
			AbortOnFailure: true,
			Concurrency:    8,
		},
	}
}

// envOverrides applies TASKGRAPH_-prefixed environment variables on
// top of whatever the config file (or the defaults) already set.
// Recognized variables:
//   - TASKGRAPH_LOG_LEVEL
//   - TASKGRAPH_LOG_COLOR ("true" or "1" to enable)
//   - TASKGRAPH_STORE_DB_PATH
//   - TASKGRAPH_PLANNER_BINARY
func envOverrides(cfg *Config) {
	if v := os.Getenv("TASKGRAPH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TASKGRAPH_LOG_COLOR"); v != "" {
		cfg.Logging.EnableColor = v == "true" || v == "1"
	}
	if v := os.Getenv("TASKGRAPH_STORE_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("TASKGRAPH_PLANNER_BINARY"); v != "" {
		cfg.Planner.BinaryPath = v
	}
}

// Load reads path and merges it over Default(). A missing file is not
// an error: Default() with env overrides applied is returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		envOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	envOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for internally inconsistent
// values that would otherwise surface as confusing errors later.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if c.Store.Enabled && c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path cannot be empty when store is enabled")
	}
	if c.Defaults.MaxTasks <= 0 {
		return fmt.Errorf("defaults.max_tasks must be > 0, got %d", c.Defaults.MaxTasks)
	}
	if c.Defaults.MaxDepth <= 0 {
		return fmt.Errorf("defaults.max_depth must be > 0, got %d", c.Defaults.MaxDepth)
	}
	if c.Defaults.TimeoutMillis < 0 {
		return fmt.Errorf("defaults.timeout_millis must be >= 0, got %d", c.Defaults.TimeoutMillis)
	}
	if c.Defaults.Concurrency <= 0 {
		return fmt.Errorf("defaults.concurrency must be > 0, got %d", c.Defaults.Concurrency)
	}
	if c.Planner.MaxRetries < 0 {
		return fmt.Errorf("planner.max_retries must be >= 0, got %d", c.Planner.MaxRetries)
	}
	return nil
}

// PlannerTimeout returns the configured planner timeout as a Duration.
func (c *Config) PlannerTimeout() time.Duration {
	return time.Duration(c.Planner.TimeoutMS) * time.Millisecond
}
