// Package selection implements the policy that decides which files and
// directories a snapshot covers: tracked directory names matched by
// basename, tracked file glob patterns, and ignore patterns layered on top
// of both. Ignore patterns use the same gitignore-style glob syntax as the
// tracked file patterns, applied as a one-shot filter over a single scan
// rather than a standing exclusion list.
package selection

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy is the combined set of tracked directory names, tracked file
// patterns, and ignore patterns that determine what a build captures and
// what a restore treats as stale.
type Policy struct {
	Directories []string
	Files       []string
	Ignores     []string
}

// IsEmpty reports whether the policy selects nothing at all, which callers
// must reject as a policy violation before starting a build.
func (p Policy) IsEmpty() bool {
	return len(p.Directories) == 0 && len(p.Files) == 0
}

// MatchesTrackedDirectory reports whether name is one of the policy's
// tracked directory basenames.
func (p Policy) MatchesTrackedDirectory(name string) bool {
	for _, tracked := range p.Directories {
		if tracked == name {
			return true
		}
	}
	return false
}

// GlobFor translates a tracked file pattern into the root-relative
// doublestar glob that should be evaluated against the repository root.
// This follows the three-way rule: a "./"-prefixed pattern is root-anchored,
// a pattern already containing "**" is used as written, and anything else is
// implicitly recursive.
func GlobFor(pattern string) string {
	switch {
	case strings.HasPrefix(pattern, "./"):
		return strings.TrimPrefix(pattern, "./")
	case strings.Contains(pattern, "**"):
		return strings.TrimPrefix(pattern, "/")
	default:
		if strings.HasPrefix(pattern, "/") {
			return "**" + pattern
		}
		return "**/" + pattern
	}
}

// ShouldIgnore reports whether relativePath matches any of the policy's
// ignore patterns, by glob, literal string prefix, or equality with any
// normal path component. relativePath must use forward slashes.
func (p Policy) ShouldIgnore(relativePath string) bool {
	for _, pattern := range p.Ignores {
		if matchesIgnorePattern(pattern, relativePath) {
			return true
		}
	}
	return false
}

func matchesIgnorePattern(pattern, relativePath string) bool {
	if matched, err := doublestar.Match(pattern, relativePath); err == nil && matched {
		return true
	}
	if strings.HasPrefix(relativePath, pattern) {
		return true
	}
	for _, component := range strings.Split(relativePath, "/") {
		if component == pattern {
			return true
		}
	}
	return false
}

// CollectedFile identifies one selected, non-directory path: its path
// relative to the repository root (forward-slash separated) and its literal
// absolute path on disk.
type CollectedFile struct {
	RelativePath string
	AbsolutePath string
}

// ToSlash normalises a path produced by the OS's path/filepath package into
// the forward-slash form the manifest always stores.
func ToSlash(p string) string {
	return filepath.ToSlash(p)
}
