// Command accesswatch monitors file-access activity in a directory subtree
// using Linux fanotify, attributing each event to the originating process
// and, when applicable, its Docker container. See the "observe" subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tripwire/accesswatch/internal/config"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "observe" {
		fmt.Fprintln(os.Stderr, "usage: accesswatch observe -dir <path> [-format text|json] [-no-dedup] [-config <file>] [-log-level info]")
		os.Exit(2)
	}

	fs := flag.NewFlagSet("observe", flag.ExitOnError)
	dir := fs.String("dir", "", "directory subtree to monitor")
	format := fs.String("format", "text", "output format: text or json")
	noDedup := fs.Bool("no-dedup", false, "emit every event without deduplication")
	configPath := fs.String("config", "", "optional YAML configuration file")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Parse(os.Args[2:])

	opts := observeOptions{
		format:   *format,
		noDedup:  *noDedup,
		logLevel: *logLevel,
	}
	if *dir != "" {
		opts.dirs = []string{*dir}
	}

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		opts.applyConfig(cfg)
	}

	if len(opts.dirs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -dir (or a config file's targets) is required")
		os.Exit(2)
	}

	runID := uuid.NewString()
	logger := newLogger(opts.logLevel).With(slog.String("run_id", runID))
	slog.SetDefault(logger)

	logger.Info("starting accesswatch observer",
		slog.Any("dirs", opts.dirs),
		slog.String("format", opts.format),
		slog.Bool("no_dedup", opts.noDedup),
	)

	ctx, cancel := context.WithCancel(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "accesswatch: received %s, shutting down\n", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := runObserve(ctx, opts); err != nil {
		cancel()
		_ = g.Wait()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cancel()
	_ = g.Wait()
}

// observeOptions holds the fully resolved configuration for the observe
// subcommand, merged from command-line flags and an optional YAML file.
type observeOptions struct {
	dirs     []string
	exclude  []string
	format   string
	noDedup  bool
	logLevel string
}

// applyConfig overlays cfg onto opts. A config file's targets replace the
// monitored directory list when -dir was not supplied on the command line,
// so a single invocation can fan out across every directory the file lists;
// its exclude globs, format, dedup, and log-level settings fill in anywhere
// the corresponding flag was left at its default.
func (o *observeOptions) applyConfig(cfg *config.Config) {
	if len(o.dirs) == 0 {
		o.dirs = cfg.Targets
	}
	o.exclude = cfg.Exclude
	if o.format == "text" && cfg.Format != "" {
		o.format = cfg.Format
	}
	if !o.noDedup && cfg.DisableDedup {
		o.noDedup = true
	}
	if o.logLevel == "info" && cfg.LogLevel != "" {
		o.logLevel = cfg.LogLevel
	}
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
