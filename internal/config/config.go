// Package config loads optional ambient defaults for coursesync: shell
// timeout and interpreter, the strict-mode preamble, log format, and the
// validation diff target. None of this is required — coursesync runs
// with its hardcoded defaults when no --config file is given.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LogFormat selects the synclog sink's on-disk and stdout rendering.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Config holds every ambient default coursesync's reconciler consults.
type Config struct {
	Shell      ShellConfig      `yaml:"shell"`
	Validation ValidationConfig `yaml:"validation"`
	Log        LogConfig        `yaml:"log"`
}

// ShellConfig configures internal/shellrun invocations.
type ShellConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Interpreter    string `yaml:"interpreter"`
	Preamble       string `yaml:"preamble"`
}

// Timeout returns the configured shell timeout as a time.Duration.
func (s ShellConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ValidationConfig configures the reconciler's finalization checks.
type ValidationConfig struct {
	// DiffRef is the remote-tracking ref the finalization diff check
	// compares against. It defaults to "origin/main" regardless of the
	// synced branch (see DESIGN.md, Open Question 1); cmd/coursesync
	// replaces it with "origin/<branch>".
	DiffRef string `yaml:"diff_ref"`
}

// LogConfig configures internal/synclog.
type LogConfig struct {
	Format   LogFormat `yaml:"format"`
	Filename string    `yaml:"filename"`
}

// Default returns the built-in defaults, used whenever no --config file
// is supplied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses a YAML config file, applying defaults for any
// field the file leaves unset and validating the result.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %q: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Shell.TimeoutSeconds == 0 {
		c.Shell.TimeoutSeconds = 120
	}
	if c.Shell.Interpreter == "" {
		c.Shell.Interpreter = "/bin/bash"
	}
	if c.Shell.Preamble == "" {
		c.Shell.Preamble = "set -eux -o pipefail\n"
	}
	if c.Validation.DiffRef == "" {
		c.Validation.DiffRef = "origin/main"
	}
	if c.Log.Format == "" {
		c.Log.Format = LogFormatText
	}
	if c.Log.Filename == "" {
		c.Log.Filename = "gs4.log"
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Shell.TimeoutSeconds <= 0 {
		return fmt.Errorf("shell.timeout_seconds must be positive")
	}
	if !filepath.IsAbs(c.Shell.Interpreter) {
		return fmt.Errorf("shell.interpreter must be an absolute path: %s", c.Shell.Interpreter)
	}
	switch c.Log.Format {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
