// Package manifest implements the self-describing, per-snapshot metadata
// document: the binding from repository-relative paths to blob hashes and
// filesystem metadata, the selection policy that produced it, and running
// totals. Manifests are encoded as TOML, matching the configuration
// document format kibo already reads for .kibo_config, rather than JSON.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kibo-snap/kibo/internal/fsops"
	"github.com/kibo-snap/kibo/internal/kiboerr"
	"github.com/kibo-snap/kibo/internal/logging"
)

// FileEntry records everything restore needs to recreate one tracked file
// or symlink.
type FileEntry struct {
	Hash          string `toml:"hash"`
	Size          uint64 `toml:"size"`
	Mode          uint32 `toml:"mode"`
	IsSymlink     bool   `toml:"is_symlink"`
	SymlinkTarget string `toml:"symlink_target,omitempty"`
	MTimeSecs     int64  `toml:"mtime_secs"`
	MTimeNanos    uint32 `toml:"mtime_nanos"`
}

// DirectoryEntry records the metadata needed to recreate one tracked
// directory, including directories that contain no files of their own.
type DirectoryEntry struct {
	Mode       uint32 `toml:"mode"`
	MTimeSecs  int64  `toml:"mtime_secs"`
	MTimeNanos uint32 `toml:"mtime_nanos"`
}

// Manifest is the complete record of one snapshot.
type Manifest struct {
	Name               string                    `toml:"name"`
	CreatedAt          time.Time                 `toml:"created_at"`
	TrackedDirectories []string                  `toml:"tracked_directories"`
	TrackedFiles       []string                  `toml:"tracked_files"`
	IgnoredPatterns    []string                  `toml:"ignored_patterns"`
	Directories        map[string]DirectoryEntry `toml:"directories"`
	Files              map[string]FileEntry      `toml:"files"`
	TotalSize          uint64                    `toml:"total_size"`
	FileCount          int                       `toml:"file_count"`
	ToolVersion        string                    `toml:"tool_version"`
	DBDumpFilename     string                    `toml:"db_dump_filename,omitempty"`
}

// New creates an empty manifest ready to be populated by a build.
func New(name, toolVersion string) *Manifest {
	return &Manifest{
		Name:        name,
		CreatedAt:   time.Now().UTC(),
		Directories: make(map[string]DirectoryEntry),
		Files:       make(map[string]FileEntry),
		ToolVersion: toolVersion,
	}
}

// SetTrackedPaths records the selection policy's tracked directories and
// file patterns.
func (m *Manifest) SetTrackedPaths(directories, files []string) {
	m.TrackedDirectories = directories
	m.TrackedFiles = files
}

// SetIgnoredPatterns records the selection policy's ignore patterns.
func (m *Manifest) SetIgnoredPatterns(patterns []string) {
	m.IgnoredPatterns = patterns
}

// AddDirectory records one directory entry.
func (m *Manifest) AddDirectory(relativePath string, entry DirectoryEntry) {
	m.Directories[relativePath] = entry
}

// AddFile records one file entry and updates the running totals.
func (m *Manifest) AddFile(relativePath string, entry FileEntry) {
	m.Files[relativePath] = entry
	m.TotalSize += entry.Size
	m.FileCount = len(m.Files)
}

// ShouldIgnore reports whether relativePath matches any of the manifest's
// recorded ignore patterns, by glob, literal prefix, or exact path-component
// match. Restore uses this to avoid treating ignored files as stale.
func (m *Manifest) ShouldIgnore(relativePath string) bool {
	for _, pattern := range m.IgnoredPatterns {
		if matchesPattern(pattern, relativePath) {
			return true
		}
	}
	return false
}

func matchesPattern(pattern, relativePath string) bool {
	if matched, err := filepath.Match(pattern, relativePath); err == nil && matched {
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

const manifestsDirName = "manifests"
const manifestExtension = ".toml"

// manifestsDir returns the directory under root's internal metadata
// directory where manifest files live.
func manifestsDir(root string) string {
	return filepath.Join(root, ".kibo", manifestsDirName)
}

// PathFor returns the on-disk path of the manifest file for name.
func PathFor(root, name string) string {
	return filepath.Join(manifestsDir(root), name+manifestExtension)
}

// Exists reports whether a manifest named name exists under root.
func Exists(root, name string) bool {
	_, err := os.Stat(PathFor(root, name))
	return err == nil
}

// Load reads and parses the manifest named name under root.
func Load(root, name string) (*Manifest, error) {
	path := PathFor(root, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kiboerr.New(kiboerr.KindNotFound, name, fmt.Errorf("snapshot %q not found", name))
		}
		return nil, kiboerr.New(kiboerr.KindIOFailure, path, err)
	}

	var m Manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, kiboerr.New(kiboerr.KindMalformed, path, err)
	}
	if m.Directories == nil {
		m.Directories = make(map[string]DirectoryEntry)
	}
	if m.Files == nil {
		m.Files = make(map[string]FileEntry)
	}
	return &m, nil
}

// Save writes m to disk atomically under root.
func (m *Manifest) Save(root string, logger *logging.Logger) error {
	dir := manifestsDir(root)
	if err := fsops.EnsureDir(dir, 0o755); err != nil {
		return err
	}

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("unable to encode manifest: %w", err)
	}

	path := PathFor(root, m.Name)
	return fsops.WriteFileAtomic(path, []byte(buf.String()), 0o644, logger)
}

// Delete removes the manifest named name under root, if present. Deleting
// an absent manifest is not an error.
func Delete(root, name string) error {
	path := PathFor(root, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return kiboerr.New(kiboerr.KindIOFailure, path, err)
	}
	return nil
}

// List scans the manifests directory under root, loads each manifest, and
// returns them sorted by CreatedAt descending. A manifest that fails to
// parse is skipped, not fatal; callers that want to report the skip should
// pass a non-nil logger.
func List(root string, logger *logging.Logger) ([]*Manifest, error) {
	dir := manifestsDir(root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, kiboerr.New(kiboerr.KindIOFailure, dir, err)
	}

	var manifests []*Manifest
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != manifestExtension {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), manifestExtension)
		m, err := Load(root, name)
		if err != nil {
			logger.Warn(fmt.Errorf("skipping unreadable snapshot %q: %w", name, err))
			continue
		}
		manifests = append(manifests, m)
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
	})
	return manifests, nil
}
