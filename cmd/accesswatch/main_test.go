package main

import (
	"reflect"
	"testing"

	"github.com/tripwire/accesswatch/internal/config"
)

func TestApplyConfig_FillsTargetsWhenDirUnset(t *testing.T) {
	opts := observeOptions{format: "text", logLevel: "info"}
	cfg := &config.Config{
		Targets: []string{"/srv/data", "/srv/uploads"},
		Exclude: []string{"*.tmp", "*.swp"},
	}
	opts.applyConfig(cfg)

	if !reflect.DeepEqual(opts.dirs, cfg.Targets) {
		t.Errorf("dirs = %v, want %v", opts.dirs, cfg.Targets)
	}
	if !reflect.DeepEqual(opts.exclude, cfg.Exclude) {
		t.Errorf("exclude = %v, want %v", opts.exclude, cfg.Exclude)
	}
}

func TestApplyConfig_FlagDirTakesPrecedenceOverTargets(t *testing.T) {
	opts := observeOptions{dirs: []string{"/explicit"}, format: "text", logLevel: "info"}
	cfg := &config.Config{Targets: []string{"/srv/data", "/srv/uploads"}}
	opts.applyConfig(cfg)

	if !reflect.DeepEqual(opts.dirs, []string{"/explicit"}) {
		t.Errorf("dirs = %v, want the flag-supplied directory preserved", opts.dirs)
	}
}

func TestApplyConfig_FillsFormatDedupAndLogLevelOnlyAtDefaults(t *testing.T) {
	opts := observeOptions{format: "text", noDedup: false, logLevel: "info"}
	cfg := &config.Config{
		Targets:      []string{"/srv/data"},
		Format:       "json",
		DisableDedup: true,
		LogLevel:     "debug",
	}
	opts.applyConfig(cfg)

	if opts.format != "json" {
		t.Errorf("format = %q, want %q", opts.format, "json")
	}
	if !opts.noDedup {
		t.Error("noDedup = false, want true")
	}
	if opts.logLevel != "debug" {
		t.Errorf("logLevel = %q, want %q", opts.logLevel, "debug")
	}
}

func TestApplyConfig_ExplicitFlagsNotOverriddenByConfig(t *testing.T) {
	opts := observeOptions{dirs: []string{"/explicit"}, format: "json", noDedup: true, logLevel: "error"}
	cfg := &config.Config{
		Targets:      []string{"/srv/data"},
		Format:       "text",
		DisableDedup: false,
		LogLevel:     "debug",
	}
	opts.applyConfig(cfg)

	if opts.format != "json" {
		t.Errorf("format = %q, want flag value %q preserved", opts.format, "json")
	}
	if !opts.noDedup {
		t.Error("noDedup = false, want flag value true preserved")
	}
	if opts.logLevel != "error" {
		t.Errorf("logLevel = %q, want flag value %q preserved", opts.logLevel, "error")
	}
}
