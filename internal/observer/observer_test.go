//go:build linux

package observer

import (
	"os"
	"syscall"
	"testing"

	"github.com/tripwire/accesswatch/internal/event"
	"github.com/tripwire/accesswatch/internal/fanotify"
)

// dupFD returns an independent file descriptor for f so that handle's
// close-on-handoff behaviour can be exercised without invalidating f itself.
func dupFD(t *testing.T, f *os.File) int {
	t.Helper()
	fd, err := syscall.Dup(int(f.Fd()))
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	return fd
}

func closeFD(fd int) error {
	return syscall.Close(fd)
}

// captureEmitter records every emitted event.Record for inspection.
type captureEmitter struct {
	headerCalls int
	records     []event.Record
}

func (c *captureEmitter) Header() error {
	c.headerCalls++
	return nil
}

func (c *captureEmitter) Emit(r event.Record) error {
	c.records = append(c.records, r)
	return nil
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *captureEmitter) {
	t.Helper()
	emitter := &captureEmitter{}
	allOpts := append([]Option{WithEmitter(emitter)}, opts...)
	ctl, err := New(nil, allOpts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ctl, emitter
}

func TestHandle_EmitsRecordForRealSelfProcess(t *testing.T) {
	ctl, emitter := newTestController(t)

	f, err := os.Open("/proc/self/status")
	if err != nil {
		t.Fatalf("open /proc/self/status: %v", err)
	}
	defer f.Close()

	ctl.handle(fanotify.RawEvent{Mask: event.MaskOpen, FD: dupFD(t, f), PID: os.Getpid()})

	if len(emitter.records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(emitter.records))
	}
	rec := emitter.records[0]
	if rec.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", rec.PID, os.Getpid())
	}
	if rec.UID != os.Getuid() {
		t.Errorf("UID = %d, want %d", rec.UID, os.Getuid())
	}
	if rec.EventType != event.Open {
		t.Errorf("EventType = %s, want OPEN", rec.EventType)
	}
}

func TestHandle_DedupSuppressesRepeat(t *testing.T) {
	ctl, emitter := newTestController(t)

	emit := func() {
		f, err := os.Open("/proc/self/status")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer f.Close()
		ctl.handle(fanotify.RawEvent{Mask: event.MaskOpen, FD: dupFD(t, f), PID: os.Getpid()})
	}

	emit()
	emit()

	if len(emitter.records) != 1 {
		t.Fatalf("len(records) = %d, want 1 (second call deduplicated)", len(emitter.records))
	}
}

func TestHandle_NoDedupEmitsEveryEvent(t *testing.T) {
	ctl, emitter := newTestController(t, WithoutDedup())

	emit := func() {
		f, err := os.Open("/proc/self/status")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer f.Close()
		ctl.handle(fanotify.RawEvent{Mask: event.MaskOpen, FD: dupFD(t, f), PID: os.Getpid()})
	}

	emit()
	emit()

	if len(emitter.records) != 2 {
		t.Fatalf("len(records) = %d, want 2 with dedup disabled", len(emitter.records))
	}
}

func TestHandle_ClosesFileDescriptor(t *testing.T) {
	ctl, _ := newTestController(t)

	f, err := os.Open("/proc/self/status")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	fd := dupFD(t, f)

	ctl.handle(fanotify.RawEvent{Mask: event.MaskOpen, FD: fd, PID: os.Getpid()})

	// A double-close returns EBADF; confirm handle already closed it.
	if err := closeFD(fd); err == nil {
		t.Error("expected fd to already be closed by handle")
	}
}

func TestHandle_UnknownPIDFallsBackToSentinelExe(t *testing.T) {
	ctl, emitter := newTestController(t)

	f, err := os.Open("/proc/self/status")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	const bogusPID = 2000000000
	ctl.handle(fanotify.RawEvent{Mask: event.MaskOpen, FD: dupFD(t, f), PID: bogusPID})

	if len(emitter.records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(emitter.records))
	}
	want := "[2000000000]"
	if emitter.records[0].ProcessPath != want {
		t.Errorf("ProcessPath = %q, want %q", emitter.records[0].ProcessPath, want)
	}
}

func TestNew_RequiresEmitter(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected an error when no Emitter is configured")
	}
}

func TestHandle_ExcludeGlobSuppressesMatchingPath(t *testing.T) {
	ctl, emitter := newTestController(t, WithExcludeGlobs([]string{"/proc/*/status"}))

	f, err := os.Open("/proc/self/status")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	ctl.handle(fanotify.RawEvent{Mask: event.MaskOpen, FD: dupFD(t, f), PID: os.Getpid()})

	if len(emitter.records) != 0 {
		t.Fatalf("len(records) = %d, want 0 (path matches exclude glob)", len(emitter.records))
	}
}

func TestHandle_ExcludeGlobLeavesNonMatchingPathAlone(t *testing.T) {
	ctl, emitter := newTestController(t, WithExcludeGlobs([]string{"*.tmp"}))

	f, err := os.Open("/proc/self/status")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	ctl.handle(fanotify.RawEvent{Mask: event.MaskOpen, FD: dupFD(t, f), PID: os.Getpid()})

	if len(emitter.records) != 1 {
		t.Fatalf("len(records) = %d, want 1 (path does not match exclude glob)", len(emitter.records))
	}
}
