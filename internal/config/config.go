// Package config provides optional YAML configuration loading for
// accesswatch. The CLI's required surface (one target directory, an output
// format, a dedup toggle) never needs a config file; this package exists for
// the enrichment case where an operator wants to watch several directories
// and exclude some subtrees from the same invocation.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validFormats is the set of accepted output format strings.
var validFormats = map[string]bool{
	"text": true,
	"json": true,
}

// Config is the optional YAML configuration for accesswatch. Every field
// except Exclude has a CLI flag equivalent; a value in the config file
// applies only where that flag was left at its default value.
type Config struct {
	// Targets is the list of directories to mark for fanotify events.
	// Required: Load rejects a file with no entries, even when -dir is
	// also given.
	Targets []string `yaml:"targets"`

	// Exclude holds filepath.Match glob patterns. A resolved file path
	// matching any pattern is dropped before emission.
	Exclude []string `yaml:"exclude,omitempty"`

	// Format is "text" or "json". Defaults to "text" when omitted.
	Format string `yaml:"format,omitempty"`

	// DisableDedup turns off consecutive-duplicate suppression.
	DisableDedup bool `yaml:"disable_dedup,omitempty"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level,omitempty"`
}

// Load reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all fields. It returns a typed error describing
// every validation failure encountered, joined with errors.Join.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// validate checks that all required fields are populated and that
// enumerated fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if len(cfg.Targets) == 0 {
		errs = append(errs, errors.New("targets: at least one entry is required"))
	}
	for i, t := range cfg.Targets {
		if t == "" {
			errs = append(errs, fmt.Errorf("targets[%d]: must not be empty", i))
		}
	}
	if !validFormats[cfg.Format] {
		errs = append(errs, fmt.Errorf("format %q must be one of: text, json", cfg.Format))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}

	return errors.Join(errs...)
}
