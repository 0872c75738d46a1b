package fsops

import (
	"fmt"
	"os"
	"time"
)

// SetMTime applies a modification time given as (seconds, nanoseconds) since
// the Unix epoch. The access time is set to the same value, since nothing in
// the design tracks access times separately.
func SetMTime(path string, seconds int64, nanos uint32) error {
	mtime := time.Unix(seconds, int64(nanos))
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return fmt.Errorf("unable to set modification time on %s: %w", path, err)
	}
	return nil
}

// ModTimeParts decomposes a FileInfo's modification time into the
// (seconds, nanoseconds) pair used throughout the manifest and hash cache.
func ModTimeParts(info os.FileInfo) (int64, uint32) {
	mtime := info.ModTime()
	return mtime.Unix(), uint32(mtime.Nanosecond())
}
