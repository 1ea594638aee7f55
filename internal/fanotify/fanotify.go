// Package fanotify wraps the Linux fanotify(7) kernel notification API
// behind a small synchronous Source: Open marks one or more directory
// subtrees for FAN_OPEN/FAN_ACCESS/FAN_MODIFY notifications, and Drain reads
// one batch of pending events per call.
package fanotify

import "errors"

// ErrUnsupportedPlatform is returned by Open on any platform other than
// Linux, where fanotify does not exist.
var ErrUnsupportedPlatform = errors.New("fanotify: unsupported on this platform")

// ErrUnsupportedVersion indicates a fanotify event metadata record arrived
// with a protocol version this package does not understand. The batch
// containing it is truncated; earlier records in the same batch are still
// valid and already returned to the caller.
var ErrUnsupportedVersion = errors.New("fanotify: unsupported event metadata version")

// RawEvent is one decoded fanotify_event_metadata record. FD is an open file
// descriptor in this process naming the accessed file; the caller is
// responsible for resolving and then closing it.
type RawEvent struct {
	Mask uint64
	FD   int
	PID  int
}

// Source delivers a synchronous stream of RawEvents for the marked
// directories. Open/Drain/Close are not safe for concurrent use; the caller
// is expected to run a single-threaded cooperative drain loop and Source is
// built to match that model rather than add its own locking.
type Source interface {
	// Drain blocks until at least one event is available (or the poll
	// timeout elapses) and returns every event decoded from the kernel's
	// buffer in this call. A nil, empty return with a nil error means
	// nothing was read: the poll timed out or was interrupted, or the read
	// would have blocked.
	Drain() ([]RawEvent, error)
	// Close releases the fanotify file descriptor.
	Close() error
}
