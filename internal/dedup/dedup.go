// Package dedup suppresses consecutive identical (pid, mask, path) event
// triples.
package dedup

// sentinelPID is a value no real fanotify event carries (PIDs are >= 1),
// chosen so a freshly constructed State never reports a false positive
// against the very first real event. The original Rust deduplicator seeded this field to 0, which a genuine PID-0 kernel event
// could in principle collide with; -1 closes that gap.
const sentinelPID = -1

// State holds the last-seen (pid, mask, path) triple.
type State struct {
	lastPID  int
	lastMask uint64
	lastPath string
}

// New returns a State whose initial values cannot collide with any real
// event.
func New() *State {
	return &State{lastPID: sentinelPID}
}

// IsDuplicate reports whether (pid, mask, path) is identical to the
// previous call's arguments, then unconditionally updates the last-seen
// state to (pid, mask, path): the update happens whether or not this call
// was a duplicate.
func (s *State) IsDuplicate(pid int, mask uint64, path string) bool {
	dup := pid == s.lastPID && mask == s.lastMask && path == s.lastPath
	s.lastPID = pid
	s.lastMask = mask
	s.lastPath = path
	return dup
}
