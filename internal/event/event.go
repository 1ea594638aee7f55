// Package event classifies raw fanotify masks into event kinds, composes the
// resolved event record, and emits it as text or JSON.
package event

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Type is the classified kind of a file access event.
type Type string

const (
	// Open indicates the file was opened without being written.
	Open Type = "OPEN"
	// Read indicates the file was accessed for reading (or carries a mask
	// bit this package does not specifically recognise).
	Read Type = "READ"
	// Write indicates the file's content was modified.
	Write Type = "WRITE"
)

// Mask bits as delivered by the kernel notification source. Mirrored here
// rather than imported from internal/fanotify so that this package has no
// build-tag dependency and can be unit tested on every platform.
const (
	MaskOpen   uint64 = 0x00000020
	MaskAccess uint64 = 0x00000001
	MaskModify uint64 = 0x00000002
)

// Classify maps a raw event mask to exactly one Type, applying the
// first-match rule: MODIFY wins over OPEN, which wins over everything else
// (including ACCESS and any residual bits).
func Classify(mask uint64) Type {
	switch {
	case mask&MaskModify != 0:
		return Write
	case mask&MaskOpen != 0:
		return Open
	default:
		return Read
	}
}

// Record is the resolved, emittable event for one file access.
type Record struct {
	EventType     Type   `json:"event_type"`
	Timestamp     string `json:"timestamp"`
	PID           int    `json:"pid"`
	ContainerPID  int    `json:"container_pid,omitempty"`
	UID           int    `json:"uid"`
	GID           int    `json:"gid"`
	ProcessPath   string `json:"process_path"`
	FilePath      string `json:"file_path"`
	ContainerID   string `json:"container_id,omitempty"`
}

// New composes a Record with the current local wall-clock timestamp
// formatted to second resolution ("YYYY-MM-DD HH:MM:SS").
func New(typ Type, pid, containerPID, uid, gid int, processPath, filePath, containerID string) Record {
	return Record{
		EventType:    typ,
		Timestamp:    time.Now().Format("2006-01-02 15:04:05"),
		PID:          pid,
		ContainerPID: containerPID,
		UID:          uid,
		GID:          gid,
		ProcessPath:  processPath,
		FilePath:     filePath,
		ContainerID:  containerID,
	}
}

// Emitter writes Records to an output stream in a specific format.
type Emitter interface {
	// Header writes any one-time preamble (e.g. a text table header).
	// JSON emitters write nothing.
	Header() error
	// Emit writes one Record.
	Emit(r Record) error
}

// NewEmitter constructs the Emitter for the given format ("text" or
// "json"), writing to w. An unrecognised format falls back to "text".
func NewEmitter(format string, w io.Writer) Emitter {
	if format == "json" {
		return &JSONEmitter{w: w}
	}
	return &TextEmitter{w: w}
}

// JSONEmitter writes one compact JSON object per event on its own line.
type JSONEmitter struct {
	w io.Writer
}

// Header is a no-op for JSON output.
func (e *JSONEmitter) Header() error { return nil }

// Emit marshals r as compact JSON followed by a newline.
func (e *JSONEmitter) Emit(r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("event: marshal record: %w", err)
	}
	_, err = fmt.Fprintf(e.w, "%s\n", b)
	return err
}

// textHeaderFormat and textRowFormat lay out the fixed-column table used
// for text output.
const (
	textHeaderFormat = "%-7s %-13s %-5s %-5s %-25s %-15s %s\n"
	textRowFormat    = "[%-5s] %-13s %-5d %-5d %-25s %-15s %s\n"
	textSeparator    = "-"
)

// TextEmitter writes a fixed-column table: a header printed once via
// Header, then one truncated row per event.
type TextEmitter struct {
	w io.Writer
}

// Header prints the column titles followed by a 130-dash separator.
func (e *TextEmitter) Header() error {
	if _, err := fmt.Fprintf(e.w, textHeaderFormat,
		"EVENT", "PID(H/C)", "UID", "GID", "PROCESS_PATH", "CONTAINER", "FILE_PATH"); err != nil {
		return err
	}
	_, err := fmt.Fprintln(e.w, strings.Repeat(textSeparator, 130))
	return err
}

// Emit prints one row. The PID column shows "PID" alone, or "PID/NSpid"
// when a container (namespace) PID is known. The process path is
// left-truncated with a "..." prefix to 25 characters. A missing
// container id prints as "-".
func (e *TextEmitter) Emit(r Record) error {
	pidCol := fmt.Sprintf("%d", r.PID)
	if r.ContainerPID != 0 {
		pidCol = fmt.Sprintf("%d/%d", r.PID, r.ContainerPID)
	}
	container := r.ContainerID
	if container == "" {
		container = "-"
	}
	_, err := fmt.Fprintf(e.w, textRowFormat,
		string(r.EventType), pidCol, r.UID, r.GID,
		truncate(r.ProcessPath, 25), container, r.FilePath)
	return err
}

// truncate left-truncates s to max characters, prefixing a "..." marker
// when truncation occurs. Strings at or under the limit are returned
// unchanged.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	const marker = "..."
	keep := max - len(marker)
	if keep < 0 {
		keep = 0
	}
	return marker + s[len(s)-keep:]
}
