//go:build !linux

package fanotify

// Open always fails on non-Linux platforms: fanotify is a Linux-only kernel
// facility unavailable on any other kernel.
func Open(dirs ...string) (Source, error) {
	return nil, ErrUnsupportedPlatform
}
