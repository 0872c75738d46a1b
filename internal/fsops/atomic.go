// Package fsops provides the low-level filesystem primitives that the rest
// of kibo builds on: atomic writes, symlink creation/replacement,
// permission and modification-time restoration, and idempotent directory
// creation. Every operation here either succeeds completely or leaves its
// target path in its pre-call state, by writing to a scratch file in the
// same directory and renaming it into place only once it is fully written,
// relying on the host filesystem's rename atomicity.
package fsops

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kibo-snap/kibo/internal/logging"
)

// temporaryNamePrefix marks every scratch file kibo creates so that it is
// unambiguously distinguishable from user content if left behind by a
// crash.
const temporaryNamePrefix = ".kibo-tmp-"

// TemporaryName returns a unique name suitable for a sibling temporary file,
// combining the process ID with a random UUID so that concurrent workers
// never collide.
func TemporaryName() string {
	return fmt.Sprintf("%s%d-%s", temporaryNamePrefix, os.Getpid(), uuid.NewString())
}

// WriteFileAtomic writes data to path by staging it in a sibling temporary
// file and renaming it into place. On any failure the temporary file is
// removed on a best-effort basis and the call reports the original error.
func WriteFileAtomic(path string, data []byte, permissions os.FileMode, logger *logging.Logger) error {
	dir := filepath.Dir(path)
	temporary := filepath.Join(dir, TemporaryName())

	file, err := os.OpenFile(temporary, os.O_WRONLY|os.O_CREATE|os.O_EXCL, permissions)
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		removeBestEffort(temporary, logger)
		return fmt.Errorf("unable to write temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		removeBestEffort(temporary, logger)
		return fmt.Errorf("unable to flush temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		removeBestEffort(temporary, logger)
		return fmt.Errorf("unable to close temporary file: %w", err)
	}
	if err := os.Chmod(temporary, permissions); err != nil {
		removeBestEffort(temporary, logger)
		return fmt.Errorf("unable to set temporary file permissions: %w", err)
	}
	if err := os.Rename(temporary, path); err != nil {
		removeBestEffort(temporary, logger)
		return fmt.Errorf("unable to rename temporary file into place: %w", err)
	}
	return nil
}

// WriteFileFromAtomic finalizes a pre-staged temporary file (for example one
// built up by streaming writes) by renaming it into place. It is a thin
// wrapper so that staging code need not duplicate the rename-or-cleanup
// pattern.
func WriteFileFromAtomic(temporary, path string, logger *logging.Logger) error {
	if err := os.Rename(temporary, path); err != nil {
		removeBestEffort(temporary, logger)
		return fmt.Errorf("unable to rename %s into place: %w", temporary, err)
	}
	return nil
}

func removeBestEffort(path string, logger *logging.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn(fmt.Errorf("unable to remove temporary file %s: %w", path, err))
	}
}

// EnsureDir idempotently and recursively creates a directory.
func EnsureDir(path string, permissions os.FileMode) error {
	if err := os.MkdirAll(path, permissions); err != nil {
		return fmt.Errorf("unable to create directory %s: %w", path, err)
	}
	return nil
}
