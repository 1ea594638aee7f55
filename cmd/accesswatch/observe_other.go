//go:build !linux

package main

import (
	"context"

	"github.com/tripwire/accesswatch/internal/fanotify"
)

// runObserve fails immediately on non-Linux platforms: fanotify does not
// exist outside the Linux kernel.
func runObserve(ctx context.Context, opts observeOptions) error {
	return fanotify.ErrUnsupportedPlatform
}
