// Package execpath implements an immutable, lock-free basename to
// absolute-path map built once at startup from a fixed set of binary
// directories plus the process's PATH, used to resolve short-lived
// processes that exit before /proc can be read.
package execpath

import (
	"os"
	"path/filepath"
)

// defaultDirs are consulted before any PATH entry, in this fixed order.
var defaultDirs = []string{
	"/usr/bin",
	"/bin",
	"/usr/sbin",
	"/sbin",
	"/usr/local/bin",
	"/usr/local/sbin",
}

// Cache maps a basename to the first absolute path found while scanning its
// search directories. It is immutable after Build returns and therefore
// safe for unsynchronised concurrent reads.
type Cache struct {
	byName map[string]string
}

// Build constructs a Cache by scanning defaultDirs followed by every entry
// in pathEnv (a PATH-style colon-separated string) not already present,
// preserving order and de-duplicating. For each directory, each entry's
// basename is inserted only if absent: the first directory to offer a given
// name wins, later duplicates are ignored.
func Build(pathEnv string) *Cache {
	dirs := searchDirs(pathEnv)

	c := &Cache{byName: make(map[string]string)}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if _, exists := c.byName[name]; exists {
				continue
			}
			c.byName[name] = filepath.Join(dir, name)
		}
	}
	return c
}

// searchDirs returns defaultDirs followed by the PATH entries not already
// present, in encounter order.
func searchDirs(pathEnv string) []string {
	seen := make(map[string]bool, len(defaultDirs))
	dirs := make([]string, 0, len(defaultDirs))
	for _, d := range defaultDirs {
		seen[d] = true
		dirs = append(dirs, d)
	}
	for _, d := range filepath.SplitList(pathEnv) {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		dirs = append(dirs, d)
	}
	return dirs
}

// Resolve returns the absolute path cached for basename and true, or ("",
// false) if no directory scanned at Build time contained an entry with that
// name.
func (c *Cache) Resolve(basename string) (string, bool) {
	p, ok := c.byName[basename]
	return p, ok
}
