package selection

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// internalDirName is the engine's own metadata directory, always excluded
// from scanning regardless of policy.
const internalDirName = ".kibo"

// CollectTrackedDirectories walks root once and returns the absolute paths
// of every directory whose basename matches one of policy's tracked
// directory names, skipping the internal metadata directory and anything
// the policy ignores.
func CollectTrackedDirectories(root string, policy Policy) ([]string, error) {
	var found []string

	err := filepath.WalkDir(root, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if walkPath == root {
			return nil
		}
		relative, relErr := filepath.Rel(root, walkPath)
		if relErr != nil {
			return relErr
		}
		relative = ToSlash(relative)

		if entry.IsDir() && entry.Name() == internalDirName {
			return filepath.SkipDir
		}
		if policy.ShouldIgnore(relative) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() && policy.MatchesTrackedDirectory(entry.Name()) {
			found = append(found, walkPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// CollectFilesUnderDirectories recursively enumerates every non-directory
// entry under each of the given tracked-directory roots, filtering out
// entries the policy ignores. Deduplication is the caller's responsibility,
// keyed on AbsolutePath, since symlinks pointing at the same target must
// still be captured as distinct entries.
func CollectFilesUnderDirectories(root string, dirs []string, policy Policy) ([]CollectedFile, error) {
	var files []CollectedFile

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(walkPath string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			relative, relErr := filepath.Rel(root, walkPath)
			if relErr != nil {
				return relErr
			}
			relative = ToSlash(relative)

			if policy.ShouldIgnore(relative) {
				if entry.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if entry.IsDir() {
				return nil
			}
			files = append(files, CollectedFile{RelativePath: relative, AbsolutePath: walkPath})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// CollectFilesMatchingPatterns evaluates every tracked file pattern as a
// root-relative doublestar glob and returns the non-directory matches,
// excluding anything under the internal metadata directory or ignored by
// policy.
func CollectFilesMatchingPatterns(root string, patterns []string, policy Policy) ([]CollectedFile, error) {
	var files []CollectedFile

	for _, pattern := range patterns {
		glob := GlobFor(pattern)
		matches, err := doublestar.Glob(os.DirFS(root), glob)
		if err != nil {
			continue // An invalid pattern selects nothing; it is not reported.
		}
		for _, relative := range matches {
			absolute := filepath.Join(root, filepath.FromSlash(relative))
			info, statErr := os.Lstat(absolute)
			if statErr != nil {
				continue
			}
			if info.IsDir() {
				continue
			}
			if relative == internalDirName || hasPathPrefix(relative, internalDirName+"/") {
				continue
			}
			if policy.ShouldIgnore(relative) {
				continue
			}
			files = append(files, CollectedFile{RelativePath: relative, AbsolutePath: absolute})
		}
	}
	return files, nil
}

func hasPathPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

// CollectDirectoryEntries walks each tracked-directory root and returns the
// absolute path of every directory encountered, including the root itself
// and empty subdirectories, so restore can recreate the full tree.
func CollectDirectoryEntries(root string, dirs []string, policy Policy) ([]string, error) {
	var found []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(walkPath string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !entry.IsDir() {
				return nil
			}
			relative, relErr := filepath.Rel(root, walkPath)
			if relErr != nil {
				return relErr
			}
			relative = ToSlash(relative)
			if policy.ShouldIgnore(relative) {
				return filepath.SkipDir
			}
			found = append(found, walkPath)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}
