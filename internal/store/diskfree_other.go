//go:build !(linux || darwin || freebsd || windows)

package store

import "errors"

// FreeBytes is not supported on this platform.
func FreeBytes(string) (uint64, error) {
	return 0, errors.ErrUnsupported
}
