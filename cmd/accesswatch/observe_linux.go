//go:build linux

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tripwire/accesswatch/internal/event"
	"github.com/tripwire/accesswatch/internal/execpath"
	"github.com/tripwire/accesswatch/internal/fanotify"
	"github.com/tripwire/accesswatch/internal/observer"
)

// runObserve wires the fanotify source, executable path cache, and emitter
// into an observer.Controller and drives it until ctx is cancelled.
func runObserve(ctx context.Context, opts observeOptions) error {
	for _, dir := range opts.dirs {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("target directory: %w", err)
		}
	}

	src, err := fanotify.Open(opts.dirs...)
	if err != nil {
		return err
	}

	execCache := execpath.Build(os.Getenv("PATH"))
	emitter := event.NewEmitter(opts.format, os.Stdout)

	controllerOpts := []observer.Option{
		observer.WithExecCache(execCache),
		observer.WithEmitter(emitter),
	}
	if opts.noDedup {
		controllerOpts = append(controllerOpts, observer.WithoutDedup())
	}
	if len(opts.exclude) > 0 {
		controllerOpts = append(controllerOpts, observer.WithExcludeGlobs(opts.exclude))
	}

	ctl, err := observer.New(src, controllerOpts...)
	if err != nil {
		_ = src.Close()
		return err
	}

	return ctl.Run(ctx)
}
