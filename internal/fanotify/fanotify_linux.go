//go:build linux

package fanotify

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// supportedVersion is the fanotify_event_metadata protocol version this
// package was written against (FANOTIFY_METADATA_VERSION in
// <linux/fanotify.h>).
const supportedVersion = 3

// watchMask marks for file opens, reads and content modifications,
// including events on files inside subdirectories of the target.
const watchMask = unix.FAN_OPEN | unix.FAN_ACCESS | unix.FAN_MODIFY | unix.FAN_EVENT_ON_CHILD

// metadataSize is the fixed-width portion of struct fanotify_event_metadata.
const metadataSize = int(unsafe.Sizeof(unix.FanotifyEventMetadata{}))

// readBufSize comfortably holds a burst of events without growing; the
// kernel never returns a partial record, so Drain simply stops at whatever
// whole records fit.
const readBufSize = 16 * 1024

// pollTimeoutMillis bounds how long Drain blocks with nothing pending, so
// callers retain control to check for shutdown between calls.
const pollTimeoutMillis = 250

// linuxSource is the Linux implementation of Source, built directly on
// FAN_CLASS_NOTIF fanotify.
type linuxSource struct {
	fd  int
	buf []byte
}

// Open initializes a FAN_CLASS_NOTIF fanotify group, non-blocking and
// close-on-exec, and marks every directory in dirs (and each one's
// children) for FAN_OPEN|FAN_ACCESS|FAN_MODIFY. A single group fd can carry
// marks on any number of independent subtrees, so multiple targets cost one
// fanotify_init call and one fanotify_mark call per directory. The caller
// must hold CAP_SYS_ADMIN (or run as uid 0); fanotify_init fails otherwise.
func Open(dirs ...string) (Source, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("fanotify: open: at least one directory is required")
	}

	fd, err := unix.FanotifyInit(uint(unix.FAN_CLASS_NOTIF|unix.FAN_CLOEXEC|unix.FAN_NONBLOCK), uint(unix.O_RDONLY))
	if err != nil {
		return nil, fmt.Errorf("fanotify: init: %w (are you running as root?)", err)
	}

	for _, dir := range dirs {
		if err := unix.FanotifyMark(fd, uint(unix.FAN_MARK_ADD), watchMask, unix.AT_FDCWD, dir); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("fanotify: mark %s: %w", dir, err)
		}
	}

	return &linuxSource{fd: fd, buf: make([]byte, readBufSize)}, nil
}

// Drain polls the fanotify fd for up to pollTimeoutMillis, then reads and
// decodes one batch of pending events. A poll timeout with nothing ready
// returns (nil, nil) so the caller's loop can check for shutdown.
func (s *linuxSource) Drain() ([]RawEvent, error) {
	pfd := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, pollTimeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("fanotify: poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	nr, err := unix.Read(s.fd, s.buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil
		}
		return nil, fmt.Errorf("fanotify: read: %w", err)
	}
	if nr <= 0 {
		return nil, nil
	}

	return s.decode(s.buf[:nr])
}

// decode walks a raw read buffer containing one or more consecutive
// fanotify_event_metadata records, per event_len, stopping at the first
// record whose version this package does not recognise with
// ErrUnsupportedVersion; earlier records in the batch are still returned
// alongside that error.
func (s *linuxSource) decode(buf []byte) ([]RawEvent, error) {
	var events []RawEvent

	for offset := 0; offset+metadataSize <= len(buf); {
		meta := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[offset]))

		if meta.Vers != supportedVersion {
			return events, ErrUnsupportedVersion
		}

		events = append(events, RawEvent{
			Mask: meta.Mask,
			FD:   int(meta.Fd),
			PID:  int(meta.Pid),
		})

		if meta.Event_len == 0 {
			break
		}
		offset += int(meta.Event_len)
	}

	return events, nil
}

// Close releases the fanotify notification group.
func (s *linuxSource) Close() error {
	return unix.Close(s.fd)
}
