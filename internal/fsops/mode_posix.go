//go:build !windows

package fsops

import (
	"fmt"
	"os"
)

// SetMode applies POSIX permission bits to path.
func SetMode(path string, mode os.FileMode) error {
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("unable to set mode on %s: %w", path, err)
	}
	return nil
}

// ModeSupported reports whether the platform has POSIX permission bits.
const ModeSupported = true
