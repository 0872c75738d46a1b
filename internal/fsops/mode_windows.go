//go:build windows

package fsops

import "os"

// SetMode is a no-op on platforms lacking POSIX permission bits, and always
// reports success per the design's contract.
func SetMode(path string, mode os.FileMode) error {
	return nil
}

// ModeSupported reports whether the platform has POSIX permission bits.
const ModeSupported = false
