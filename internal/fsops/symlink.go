package fsops

import (
	"fmt"
	"os"
	"path/filepath"
)

// CreateSymlink creates a symlink at link pointing to target. If link
// already exists (as a regular file, directory, or a dangling symlink) it is
// removed first, matching the "create symlink" contract: ensure the parent
// exists, clear any existing entry, then create.
func CreateSymlink(target, link string) error {
	if err := EnsureDir(filepath.Dir(link), 0o755); err != nil {
		return err
	}

	if _, err := os.Lstat(link); err == nil {
		if err := os.RemoveAll(link); err != nil {
			return fmt.Errorf("unable to remove existing entry at %s: %w", link, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("unable to stat %s: %w", link, err)
	}

	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("unable to create symlink %s: %w", link, err)
	}
	return nil
}
