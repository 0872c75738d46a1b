// Package snapshot implements the build/restore/remove/prune engine that
// ties the selection policy, hasher, blob store, and manifest together into
// the content-incremental capture-and-restore workflow. Restore proceeds in
// a fixed phase order: verify all referenced blobs are present, remove
// stale files, remove now-empty directories, restore directories, then
// restore files. Each phase assumes the previous one has fully completed
// before it starts.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kibo-snap/kibo/internal/blobstore"
	"github.com/kibo-snap/kibo/internal/fsops"
	"github.com/kibo-snap/kibo/internal/hashing"
	"github.com/kibo-snap/kibo/internal/kiboerr"
	"github.com/kibo-snap/kibo/internal/logging"
	"github.com/kibo-snap/kibo/internal/manifest"
	"github.com/kibo-snap/kibo/internal/parallel"
	"github.com/kibo-snap/kibo/internal/selection"
)

// missingBlobSampleSize caps how many missing paths are listed in an
// Integrity error, so a badly corrupted store doesn't produce an
// unreadable wall of text.
const missingBlobSampleSize = 10

// Engine orchestrates one repository's snapshots: its blob store, its hash
// cache, and the manifest documents that describe each snapshot.
type Engine struct {
	Root    string
	Store   *blobstore.Store
	Cache   *hashing.Cache
	Logger  *logging.Logger
	Workers int
	Version string
}

// NewEngine opens (without yet touching disk beyond reading the cache) an
// engine rooted at root.
func NewEngine(root string, compressionLevel int, version string, logger *logging.Logger) *Engine {
	store := blobstore.New(StoreDir(root), compressionLevel, logger)
	cache := hashing.LoadCache(HashCachePath(root))
	return &Engine{Root: root, Store: store, Cache: cache, Logger: logger, Version: version}
}

// BuildOptions configures one build invocation.
type BuildOptions struct {
	Name                 string
	Policy               selection.Policy
	Overwrite            bool
	SizeWarningThreshold uint64
	Progress             func(done, total int)
}

// BuildResult summarises the outcome of a build.
type BuildResult struct {
	Manifest    *manifest.Manifest
	NewBlobs    int
	ReusedBlobs int
}

type scannedEntry struct {
	relativePath string
	absolutePath string
	isSymlink    bool
}

// Build scans the workspace under opts.Policy, hashes and stores every
// selected file, and writes a new manifest named opts.Name.
func (e *Engine) Build(opts BuildOptions) (*BuildResult, error) {
	if err := ValidateName(opts.Name); err != nil {
		return nil, err
	}
	if opts.Policy.IsEmpty() {
		return nil, kiboerr.New(kiboerr.KindPolicyViolation, opts.Name, fmt.Errorf("selection policy has no tracked directories or files"))
	}
	if manifest.Exists(e.Root, opts.Name) && !opts.Overwrite {
		return nil, kiboerr.New(kiboerr.KindPolicyViolation, opts.Name, fmt.Errorf("snapshot %q already exists", opts.Name))
	}

	if err := e.Store.Init(); err != nil {
		return nil, err
	}

	trackedDirs, err := selection.CollectTrackedDirectories(e.Root, opts.Policy)
	if err != nil {
		return nil, kiboerr.New(kiboerr.KindIOFailure, e.Root, err)
	}
	if len(trackedDirs) == 0 && len(opts.Policy.Files) == 0 {
		e.Logger.Warn(fmt.Errorf("no directories matching tracked names found"))
	}

	filesFromDirs, err := selection.CollectFilesUnderDirectories(e.Root, trackedDirs, opts.Policy)
	if err != nil {
		return nil, kiboerr.New(kiboerr.KindIOFailure, e.Root, err)
	}
	filesFromPatterns, err := selection.CollectFilesMatchingPatterns(e.Root, opts.Policy.Files, opts.Policy)
	if err != nil {
		return nil, kiboerr.New(kiboerr.KindIOFailure, e.Root, err)
	}

	entries := dedupeAndClassify(e.Root, append(filesFromDirs, filesFromPatterns...))

	m := manifest.New(opts.Name, e.Version)
	m.SetTrackedPaths(opts.Policy.Directories, opts.Policy.Files)
	m.SetIgnoredPatterns(opts.Policy.Ignores)

	fileEntries := make([]manifest.FileEntry, len(entries))
	insertedFlags := make([]bool, len(entries))
	var cacheMu sync.Mutex
	var newBlobs, reusedBlobs int
	var insertMu sync.Mutex

	errs := parallel.ForEach(len(entries), e.Workers, func(i int) error {
		entry := entries[i]

		if entry.isSymlink {
			target, readErr := os.Readlink(entry.absolutePath)
			if readErr != nil {
				return fmt.Errorf("%s: %w", entry.absolutePath, readErr)
			}
			hash := hashing.HashSymlinkTarget(target)
			fileEntries[i] = manifest.FileEntry{
				Hash:          hash,
				Size:          0,
				IsSymlink:     true,
				SymlinkTarget: target,
			}
			insertMu.Lock()
			inserted, insertErr := e.Store.InsertSymlink(target, hash)
			insertMu.Unlock()
			if insertErr != nil {
				return fmt.Errorf("%s: %w", entry.absolutePath, insertErr)
			}
			insertedFlags[i] = inserted
			return nil
		}

		info, statErr := os.Lstat(entry.absolutePath)
		if statErr != nil {
			return fmt.Errorf("%s: %w", entry.absolutePath, statErr)
		}
		size := info.Size()
		secs, nanos := fsops.ModTimeParts(info)

		cacheMu.Lock()
		hash, hit := e.Cache.Get(entry.absolutePath, size, secs, nanos)
		cacheMu.Unlock()
		if !hit {
			var hashErr error
			hash, hashErr = hashing.HashFile(entry.absolutePath)
			if hashErr != nil {
				return fmt.Errorf("%s: %w", entry.absolutePath, hashErr)
			}
			cacheMu.Lock()
			e.Cache.Insert(entry.absolutePath, size, secs, nanos, hash)
			cacheMu.Unlock()
		}

		fileEntries[i] = manifest.FileEntry{
			Hash:       hash,
			Size:       uint64(size),
			Mode:       uint32(info.Mode().Perm()),
			MTimeSecs:  secs,
			MTimeNanos: nanos,
		}

		insertMu.Lock()
		inserted, insertErr := e.Store.InsertFile(entry.absolutePath, hash)
		insertMu.Unlock()
		if insertErr != nil {
			return fmt.Errorf("%s: %w", entry.absolutePath, insertErr)
		}
		insertedFlags[i] = inserted
		return nil
	})

	for i, err := range errs {
		if err == nil {
			m.AddFile(entries[i].relativePath, fileEntries[i])
			if insertedFlags[i] {
				newBlobs++
			} else {
				reusedBlobs++
			}
			continue
		}
		e.Logger.Warn(fmt.Errorf("skipping %s: %w", entries[i].relativePath, err))
		if opts.Progress != nil {
			opts.Progress(i+1, len(entries))
		}
	}
	if opts.Progress != nil {
		opts.Progress(len(entries), len(entries))
	}

	dirEntries, err := selection.CollectDirectoryEntries(e.Root, trackedDirs, opts.Policy)
	if err != nil {
		return nil, kiboerr.New(kiboerr.KindIOFailure, e.Root, err)
	}
	for _, dirPath := range dirEntries {
		info, statErr := os.Lstat(dirPath)
		if statErr != nil {
			continue
		}
		relative := selection.ToSlash(mustRel(e.Root, dirPath))
		secs, nanos := fsops.ModTimeParts(info)
		m.AddDirectory(relative, manifest.DirectoryEntry{
			Mode:       uint32(info.Mode().Perm()),
			MTimeSecs:  secs,
			MTimeNanos: nanos,
		})
	}

	if opts.Overwrite && manifest.Exists(e.Root, opts.Name) {
		if err := manifest.Delete(e.Root, opts.Name); err != nil {
			return nil, err
		}
	}
	if err := m.Save(e.Root, e.Logger); err != nil {
		return nil, err
	}
	if err := e.Cache.Save(HashCachePath(e.Root)); err != nil {
		e.Logger.Warn(fmt.Errorf("unable to persist hash cache: %w", err))
	}

	if opts.SizeWarningThreshold > 0 && m.TotalSize > opts.SizeWarningThreshold {
		e.Logger.Warn(fmt.Errorf("snapshot %q totals %d bytes, exceeding the configured warning threshold of %d", opts.Name, m.TotalSize, opts.SizeWarningThreshold))
	}

	return &BuildResult{Manifest: m, NewBlobs: newBlobs, ReusedBlobs: reusedBlobs}, nil
}

// dedupeAndClassify merges the two collected-file lists, deduplicating by
// literal absolute path (never by canonicalised path, so that multiple
// symlinks to one target remain distinct), and determines whether each
// surviving entry is a symlink.
func dedupeAndClassify(root string, collected []selection.CollectedFile) []scannedEntry {
	seen := make(map[string]bool, len(collected))
	var entries []scannedEntry
	for _, c := range collected {
		if seen[c.AbsolutePath] {
			continue
		}
		seen[c.AbsolutePath] = true
		info, err := os.Lstat(c.AbsolutePath)
		if err != nil {
			continue
		}
		entries = append(entries, scannedEntry{
			relativePath: c.RelativePath,
			absolutePath: c.AbsolutePath,
			isSymlink:    info.Mode()&os.ModeSymlink != 0,
		})
	}
	return entries
}

func mustRel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

// RestoreOptions configures one restore invocation.
type RestoreOptions struct {
	Name     string
	DryRun   bool
	Progress func(done, total int)
}

// RestoreResult carries the final tallies and the affected relative paths
// for each category, as required by the external reporter.
type RestoreResult struct {
	Copies    []string
	Unchanged []string
	Symlinks  []string
	Removed   []string
}

// Restore loads the named manifest and mutates the workspace to match it,
// running the phases in strict order: verify, stale-file cleanup,
// empty-directory cleanup, directory restore, file restore.
func (e *Engine) Restore(opts RestoreOptions) (*RestoreResult, error) {
	m, err := manifest.Load(e.Root, opts.Name)
	if err != nil {
		return nil, err
	}

	if err := e.verifyBlobsPresent(m); err != nil {
		return nil, err
	}

	result := &RestoreResult{}

	policy := selection.Policy{
		Directories: m.TrackedDirectories,
		Files:       m.TrackedFiles,
		Ignores:     m.IgnoredPatterns,
	}

	removed, err := e.cleanStaleFiles(m, policy, opts.DryRun)
	if err != nil {
		return nil, err
	}
	result.Removed = append(result.Removed, removed...)

	emptyRemoved, err := e.cleanEmptyDirectories(m, policy, opts.DryRun)
	if err != nil {
		return nil, err
	}
	result.Removed = append(result.Removed, emptyRemoved...)

	if !opts.DryRun {
		if err := e.restoreDirectories(m); err != nil {
			return nil, err
		}
	}

	copies, unchanged, symlinks, err := e.restoreFiles(m, opts.DryRun, opts.Progress)
	if err != nil {
		return nil, err
	}
	result.Copies = copies
	result.Unchanged = unchanged
	result.Symlinks = symlinks

	return result, nil
}

// verifyBlobsPresent fails the restore before any mutation if any
// referenced blob is missing from the store.
func (e *Engine) verifyBlobsPresent(m *manifest.Manifest) error {
	var missing []string
	for path, entry := range m.Files {
		if !e.Store.Has(entry.Hash) {
			missing = append(missing, path)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	sample := missing
	if len(sample) > missingBlobSampleSize {
		sample = sample[:missingBlobSampleSize]
	}
	return kiboerr.New(kiboerr.KindIntegrity, m.Name, fmt.Errorf("missing blobs for: %s", strings.Join(sample, ", ")))
}

// cleanStaleFiles removes any non-ignored file under a scanned region that
// has no corresponding manifest entry.
func (e *Engine) cleanStaleFiles(m *manifest.Manifest, policy selection.Policy, dryRun bool) ([]string, error) {
	manifestFiles := make(map[string]bool, len(m.Files))
	for relative := range m.Files {
		manifestFiles[relative] = true
	}

	trackedDirs, err := selection.CollectTrackedDirectories(e.Root, policy)
	if err != nil {
		return nil, kiboerr.New(kiboerr.KindIOFailure, e.Root, err)
	}
	currentFromDirs, err := selection.CollectFilesUnderDirectories(e.Root, trackedDirs, policy)
	if err != nil {
		return nil, kiboerr.New(kiboerr.KindIOFailure, e.Root, err)
	}
	currentFromPatterns, err := selection.CollectFilesMatchingPatterns(e.Root, policy.Files, policy)
	if err != nil {
		return nil, kiboerr.New(kiboerr.KindIOFailure, e.Root, err)
	}

	var removed []string
	seen := make(map[string]bool)
	for _, c := range append(currentFromDirs, currentFromPatterns...) {
		if seen[c.RelativePath] {
			continue
		}
		seen[c.RelativePath] = true
		if manifestFiles[c.RelativePath] {
			continue
		}
		if m.ShouldIgnore(c.RelativePath) {
			continue
		}
		removed = append(removed, c.RelativePath)
		if !dryRun {
			if err := os.Remove(c.AbsolutePath); err != nil && !os.IsNotExist(err) {
				e.Logger.Warn(fmt.Errorf("unable to remove stale file %s: %w", c.RelativePath, err))
			}
		}
	}
	sort.Strings(removed)
	return removed, nil
}

// cleanEmptyDirectories removes directories under the scanned regions that
// are neither required by the manifest's files nor themselves recorded as a
// DirectoryEntry, visiting deepest-first so a directory emptied by this pass
// is eligible for removal in the same pass.
func (e *Engine) cleanEmptyDirectories(m *manifest.Manifest, policy selection.Policy, dryRun bool) ([]string, error) {
	required := requiredDirectories(m)

	trackedDirs, err := selection.CollectTrackedDirectories(e.Root, policy)
	if err != nil {
		return nil, kiboerr.New(kiboerr.KindIOFailure, e.Root, err)
	}
	allDirs, err := selection.CollectDirectoryEntries(e.Root, trackedDirs, policy)
	if err != nil {
		return nil, kiboerr.New(kiboerr.KindIOFailure, e.Root, err)
	}

	sort.Slice(allDirs, func(i, j int) bool {
		return strings.Count(allDirs[i], string(filepath.Separator)) > strings.Count(allDirs[j], string(filepath.Separator))
	})

	var removed []string
	for _, dirPath := range allDirs {
		relative := selection.ToSlash(mustRel(e.Root, dirPath))
		if required[relative] {
			continue
		}
		if _, inManifest := m.Directories[relative]; inManifest {
			continue
		}
		entries, readErr := os.ReadDir(dirPath)
		if readErr != nil || len(entries) != 0 {
			continue
		}
		removed = append(removed, relative)
		if !dryRun {
			if err := os.Remove(dirPath); err != nil {
				e.Logger.Warn(fmt.Errorf("unable to remove empty directory %s: %w", relative, err))
			}
		}
	}
	sort.Strings(removed)
	return removed, nil
}

// requiredDirectories returns the set of every ancestor directory (relative,
// forward-slash form) of any manifest file, stopping at the repository
// root.
func requiredDirectories(m *manifest.Manifest) map[string]bool {
	required := make(map[string]bool)
	for relative := range m.Files {
		dir := relativeDir(relative)
		for dir != "." && dir != "" {
			required[dir] = true
			dir = relativeDir(dir)
		}
	}
	return required
}

// relativeDir is a forward-slash-only directory-of computation, since manifest
// paths are always stored with forward slashes regardless of platform.
func relativeDir(p string) string {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return "."
	}
	return p[:idx]
}

// restoreDirectories ensures every manifest directory exists with the
// recorded mode and mtime, shallowest first.
func (e *Engine) restoreDirectories(m *manifest.Manifest) error {
	dirs := make([]string, 0, len(m.Directories))
	for relative := range m.Directories {
		dirs = append(dirs, relative)
	}
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], "/") < strings.Count(dirs[j], "/")
	})

	for _, relative := range dirs {
		entry := m.Directories[relative]
		absolute := filepath.Join(e.Root, filepath.FromSlash(relative))
		if err := fsops.EnsureDir(absolute, os.FileMode(entry.Mode)); err != nil {
			return err
		}
		if fsops.ModeSupported {
			if err := fsops.SetMode(absolute, os.FileMode(entry.Mode)); err != nil {
				return kiboerr.New(kiboerr.KindIOFailure, absolute, err)
			}
		}
		if err := fsops.SetMTime(absolute, entry.MTimeSecs, entry.MTimeNanos); err != nil {
			return kiboerr.New(kiboerr.KindIOFailure, absolute, err)
		}
	}
	return nil
}

// restoreFiles materialises every out-of-date manifest entry and leaves
// unchanged entries untouched, returning the affected relative paths by
// category.
func (e *Engine) restoreFiles(m *manifest.Manifest, dryRun bool, progress func(done, total int)) (copies, unchanged, symlinks []string, err error) {
	paths := make([]string, 0, len(m.Files))
	for relative := range m.Files {
		paths = append(paths, relative)
	}
	sort.Strings(paths)

	existing := make(map[string]string, len(paths))
	for _, relative := range paths {
		absolute := filepath.Join(e.Root, filepath.FromSlash(relative))
		info, statErr := os.Lstat(absolute)
		if statErr != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, readErr := os.Readlink(absolute)
			if readErr != nil {
				continue
			}
			existing[relative] = hashing.HashSymlinkTarget(target)
			continue
		}
		hash, hashErr := hashing.HashFile(absolute)
		if hashErr != nil {
			continue
		}
		existing[relative] = hash
	}

	type outcome struct {
		kind string // "copy", "unchanged", "symlink"
		err  error
	}
	outcomes := make([]outcome, len(paths))

	errs := parallel.ForEach(len(paths), e.Workers, func(i int) error {
		relative := paths[i]
		entry := m.Files[relative]
		absolute := filepath.Join(e.Root, filepath.FromSlash(relative))

		if entry.IsSymlink {
			if existing[relative] == entry.Hash {
				outcomes[i] = outcome{kind: "unchanged"}
				return nil
			}
			outcomes[i] = outcome{kind: "symlink"}
			if dryRun {
				return nil
			}
			target, retrieveErr := e.Store.RetrieveSymlinkTarget(entry.Hash)
			if retrieveErr != nil {
				return retrieveErr
			}
			return fsops.CreateSymlink(target, absolute)
		}

		if existing[relative] == entry.Hash {
			outcomes[i] = outcome{kind: "unchanged"}
			return nil
		}
		outcomes[i] = outcome{kind: "copy"}
		if dryRun {
			return nil
		}
		if err := e.Store.Materialise(entry.Hash, absolute); err != nil {
			return err
		}
		if fsops.ModeSupported {
			if err := fsops.SetMode(absolute, os.FileMode(entry.Mode)); err != nil {
				return err
			}
		}
		return fsops.SetMTime(absolute, entry.MTimeSecs, entry.MTimeNanos)
	})

	for i, restoreErr := range errs {
		if progress != nil {
			progress(i+1, len(paths))
		}
		if restoreErr != nil {
			return nil, nil, nil, kiboerr.New(kiboerr.KindIOFailure, paths[i], restoreErr)
		}
		switch outcomes[i].kind {
		case "copy":
			copies = append(copies, paths[i])
		case "unchanged":
			unchanged = append(unchanged, paths[i])
		case "symlink":
			symlinks = append(symlinks, paths[i])
		}
	}
	return copies, unchanged, symlinks, nil
}

// Remove deletes the named manifests and runs garbage collection against
// the blobs still referenced by the manifests that survive.
func (e *Engine) Remove(names []string) (blobstore.GCResult, error) {
	for _, name := range names {
		if err := manifest.Delete(e.Root, name); err != nil {
			return blobstore.GCResult{}, err
		}
	}
	return e.gcAgainstSurvivingManifests()
}

// Prune runs garbage collection against every surviving manifest without
// deleting any of them.
func (e *Engine) Prune() (blobstore.GCResult, error) {
	return e.gcAgainstSurvivingManifests()
}

func (e *Engine) gcAgainstSurvivingManifests() (blobstore.GCResult, error) {
	manifests, err := manifest.List(e.Root, e.Logger)
	if err != nil {
		return blobstore.GCResult{}, err
	}
	live := make(map[string]bool)
	for _, m := range manifests {
		for _, entry := range m.Files {
			live[entry.Hash] = true
		}
	}
	return e.Store.GC(live, nil)
}
