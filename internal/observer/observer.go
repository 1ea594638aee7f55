// Package observer implements the lifecycle controller: it owns the
// fanotify source, the per-pid exe fallback cache, the deduplicator, and
// the emitter, and drives a single-threaded cooperative drain loop.
//
//go:build linux

package observer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tripwire/accesswatch/internal/dedup"
	"github.com/tripwire/accesswatch/internal/event"
	"github.com/tripwire/accesswatch/internal/execpath"
	"github.com/tripwire/accesswatch/internal/fanotify"
	"github.com/tripwire/accesswatch/internal/procfs"
)

// exeCacheCapacity bounds the pid→exe LRU so the controller's resource
// footprint never grows with uptime.
const exeCacheCapacity = 1024

// wouldBlockSleep is how long the drain loop yields the scheduler when
// Drain reports nothing pending.
const wouldBlockSleep = 100 * time.Microsecond

// Controller owns every piece of state touched by the drain loop: the
// kernel descriptor, the pid→exe LRU, and the deduplicator. It is built to
// run on a single goroutine; none of its fields are synchronised.
type Controller struct {
	src       fanotify.Source
	exeLRU    *lru.Cache[int, string]
	execCache *execpath.Cache
	dedup     *dedup.State
	emitter   event.Emitter
	logger    *slog.Logger
	noDedup   bool
	exclude   []string
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithExecCache supplies the executable path cache used as a fallback
// when a process snapshot cannot resolve exe directly.
func WithExecCache(c *execpath.Cache) Option {
	return func(ctl *Controller) { ctl.execCache = c }
}

// WithEmitter supplies the event emitter used to write resolved
// records.
func WithEmitter(e event.Emitter) Option {
	return func(ctl *Controller) { ctl.emitter = e }
}

// WithLogger supplies the structured logger used for startup, shutdown, and
// non-fatal per-event diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// WithoutDedup disables event deduplication, emitting
// every record exactly as received from the kernel.
func WithoutDedup() Option {
	return func(ctl *Controller) { ctl.noDedup = true }
}

// WithExcludeGlobs supplies filepath.Match patterns. An event whose resolved
// path matches any pattern is dropped before deduplication and emission.
func WithExcludeGlobs(patterns []string) Option {
	return func(ctl *Controller) { ctl.exclude = patterns }
}

// New constructs a Controller around an already-open fanotify.Source. Callers
// are expected to call Open themselves so that startup errors (privilege,
// unsupported platform) surface before Run is invoked.
func New(src fanotify.Source, opts ...Option) (*Controller, error) {
	exeLRU, err := lru.New[int, string](exeCacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("observer: build exe cache: %w", err)
	}

	ctl := &Controller{
		src:    src,
		exeLRU: exeLRU,
		dedup:  dedup.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(ctl)
	}
	if ctl.emitter == nil {
		return nil, errors.New("observer: an Emitter is required")
	}
	return ctl, nil
}

// Run performs the startup privilege check and then drives the drain loop
// until ctx is cancelled or Drain returns a fatal error. The fanotify source
// is closed before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		if err := c.src.Close(); err != nil {
			c.logger.Warn("observer: error closing fanotify source", slog.Any("error", err))
		}
	}()

	if os.Geteuid() != 0 {
		return errors.New("observer: must run as root (fanotify requires CAP_SYS_ADMIN)")
	}

	if err := c.emitter.Header(); err != nil {
		return fmt.Errorf("observer: write header: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("observer: shutdown requested, stopping")
			return nil
		default:
		}

		events, err := c.src.Drain()
		if err != nil {
			if !errors.Is(err, fanotify.ErrUnsupportedVersion) {
				return fmt.Errorf("observer: drain: %w", err)
			}
			// The records decoded before the bad one are still handled
			// (and their fds closed); the rest of the batch is dropped.
			c.logger.Warn("observer: truncated a batch at a record with an unsupported event version")
		}

		if len(events) == 0 {
			time.Sleep(wouldBlockSleep)
			continue
		}

		for _, raw := range events {
			c.handle(raw)
		}
	}
}

// handle resolves, attributes, deduplicates, and emits a single raw event,
// then releases its file descriptor. Errors are logged and never abort the
// loop; a malformed or vanished process still yields a best-effort record.
func (c *Controller) handle(raw fanotify.RawEvent) {
	defer procfs.CloseFD(raw.FD)

	path := procfs.ResolveFD(raw.FD)

	if matchesExclude(path, c.exclude) {
		return
	}

	snap, err := procfs.SnapshotProcess(raw.PID, c.execCache)
	switch {
	case err == nil:
		c.exeLRU.Add(raw.PID, snap.Exe)
	case errors.Is(err, procfs.ErrProcessGone):
		if cached, ok := c.exeLRU.Get(raw.PID); ok {
			snap.Exe = cached
		}
	default:
		c.logger.Warn("observer: snapshot failed", slog.Int("pid", raw.PID), slog.Any("error", err))
		return
	}

	containerID, _ := procfs.ContainerID(raw.PID)

	if !c.noDedup && c.dedup.IsDuplicate(raw.PID, raw.Mask, path) {
		return
	}

	rec := event.New(event.Classify(raw.Mask), raw.PID, snap.ContainerPID, snap.UID, snap.GID, snap.Exe, path, containerID)
	if err := c.emitter.Emit(rec); err != nil {
		c.logger.Warn("observer: emit failed", slog.Any("error", err))
	}
}

// matchesExclude reports whether path matches any of the given
// filepath.Match glob patterns. A malformed pattern never matches.
func matchesExclude(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := filepath.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
