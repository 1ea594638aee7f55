// Package procfs resolves /proc information for a pid: the file path behind
// an open file descriptor, a process snapshot (uid, gid, comm, exe,
// namespace pid), and the container id a process belongs to.
//
//go:build linux

package procfs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/tripwire/accesswatch/internal/execpath"
)

// ErrProcessGone indicates the process exited between the fanotify event
// being raised and /proc being read for it: ENOENT (the /proc/<pid> entry is
// gone) or ESRCH (the syscall targeting it failed because it no longer
// exists). Callers treat this as non-fatal and still emit the event, falling
// back to whatever identity information is cached.
var ErrProcessGone = errors.New("procfs: process gone")

// unknownPath is substituted when a file descriptor's target cannot be
// resolved by any means.
const unknownPath = "unknown"

// procRoot is the filesystem root this package reads process information
// from. Tests in this package override it to point at a synthetic
// /proc-shaped directory tree, since the real /proc cannot be shaped to
// exercise edge cases (a gone process, a malformed status file) on demand.
var procRoot = "/proc"

// ResolveFD returns the absolute path the given file descriptor (valid in
// this process, typically one handed back by fanotify) refers to, or
// unknownPath if the symlink cannot be read.
func ResolveFD(fd int) string {
	link := fmt.Sprintf("%s/self/fd/%d", procRoot, fd)
	target, err := os.Readlink(link)
	if err != nil {
		return unknownPath
	}
	return target
}

// CloseFD releases a file descriptor handed back by a fanotify event. Every
// event's fd must be closed before the next record is consumed; this is the
// single place callers do so after resolving its path.
func CloseFD(fd int) error {
	return syscall.Close(fd)
}

// Snapshot is the resolved identity of a process at the moment its status
// was read.
type Snapshot struct {
	PID          int
	UID          int
	GID          int
	Comm         string
	Exe          string
	ContainerPID int // 0 if the process is not namespaced
}

// SnapshotProcess reads /proc/<pid>/status once and extracts uid, gid, comm and the
// innermost namespace pid (NSpid's last field) from it, then resolves the
// executable path separately. If status cannot be read because the process
// has already exited, it returns ErrProcessGone with Exe set to the "[pid]"
// sentinel; comm was never read, so the caller (which may hold a pid-keyed
// cache of its own from an earlier successful snapshot) is in a better
// position than this package to recover a useful path.
func SnapshotProcess(pid int, cache *execpath.Cache) (Snapshot, error) {
	s := Snapshot{PID: pid, Comm: "unknown"}

	f, err := os.Open(fmt.Sprintf("%s/%d/status", procRoot, pid))
	if err != nil {
		if isProcessGone(err) {
			s.Exe = fmt.Sprintf("[%d]", pid)
			return s, ErrProcessGone
		}
		return s, fmt.Errorf("procfs: read status for pid %d: %w", pid, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Uid:"):
			s.UID = firstInt(line)
		case strings.HasPrefix(line, "Gid:"):
			s.GID = firstInt(line)
		case strings.HasPrefix(line, "Name:"):
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				s.Comm = fields[1]
			}
		case strings.HasPrefix(line, "NSpid:"):
			fields := strings.Fields(line)
			if len(fields) >= 3 {
				if v, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
					s.ContainerPID = v
				}
			}
		}
	}

	s.Exe = resolveExe(pid, s.Comm, cache)
	return s, nil
}

// fallbackExe consults cache for comm when /proc/<pid>/exe can no longer be
// read because the process is gone, returning the "[pid]" sentinel when
// that fails too.
func fallbackExe(pid int, comm string, cache *execpath.Cache) string {
	if cache == nil {
		return fmt.Sprintf("[%d]", pid)
	}
	if p, ok := cache.Resolve(comm); ok {
		return p
	}
	return fmt.Sprintf("[%d]", pid)
}

// resolveExe follows /proc/<pid>/exe, stripping the " (deleted)" suffix the
// kernel appends when the backing file no longer exists. If the symlink
// cannot be read, it falls back to the first argument of
// /proc/<pid>/cmdline (trying the /usr/bin/ and /bin/ prefixes, then the
// executable path cache, for a bare command name), then the executable
// path cache keyed by comm, and finally to "[pid]".
func resolveExe(pid int, comm string, cache *execpath.Cache) string {
	link, err := os.Readlink(fmt.Sprintf("%s/%d/exe", procRoot, pid))
	if err == nil {
		return strings.TrimSuffix(link, " (deleted)")
	}
	if exe, ok := exeFromCmdline(pid, cache); ok {
		return exe
	}
	return fallbackExe(pid, comm, cache)
}

// exeFromCmdline reads the first NUL-delimited argument of
// /proc/<pid>/cmdline. An absolute path is returned as-is; a bare command
// name is checked against /usr/bin/ and /bin/, then against cache, before
// being returned unresolved.
func exeFromCmdline(pid int, cache *execpath.Cache) (string, bool) {
	data, err := os.ReadFile(fmt.Sprintf("%s/%d/cmdline", procRoot, pid))
	if err != nil {
		return "", false
	}
	arg0, _, _ := strings.Cut(string(data), "\x00")
	if arg0 == "" {
		return "", false
	}
	if strings.HasPrefix(arg0, "/") {
		return arg0, true
	}
	for _, prefix := range []string{"/usr/bin/", "/bin/"} {
		candidate := prefix + arg0
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	if cache != nil {
		if p, ok := cache.Resolve(arg0); ok {
			return p, true
		}
	}
	return arg0, true
}

// firstInt parses the second whitespace-separated field of line as an int,
// returning 0 if it is absent or not numeric.
func firstInt(line string) int {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return v
}

// isProcessGone reports whether err reflects a process that exited before
// or during the read: ENOENT (the directory entry vanished) or ESRCH (the
// kernel rejected the operation because the process no longer exists).
func isProcessGone(err error) bool {
	if errors.Is(err, os.ErrNotExist) {
		return true
	}
	return errors.Is(err, syscall.ESRCH)
}

// ContainerID reports the container id for pid by scanning
// /proc/<pid>/cgroup for a docker or containerd line and extracting the
// final path segment's short id. It returns ("", false) if the process is
// not containerized or its cgroup file cannot be read.
func ContainerID(pid int) (string, bool) {
	f, err := os.Open(fmt.Sprintf("%s/%d/cgroup", procRoot, pid))
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "docker") && !strings.Contains(line, "containerd") {
			continue
		}
		if id, ok := extractContainerID(line); ok {
			return id, true
		}
	}
	return "", false
}

// extractContainerID takes the segment after the final '/' in a cgroup line
// and truncates it to a 12-character short id, matching the convention
// `docker ps` and `containerd` tooling both use.
func extractContainerID(line string) (string, bool) {
	idx := strings.LastIndex(line, "/")
	if idx == -1 {
		return "", false
	}
	id := strings.TrimSpace(line[idx+1:])
	if id == "" {
		return "", false
	}
	if len(id) >= 12 {
		return id[:12], true
	}
	return id, true
}
