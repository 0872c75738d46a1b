package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kibo-snap/kibo/internal/manifest"
	"github.com/kibo-snap/kibo/internal/selection"
)

func newTestEngine(t *testing.T, root string) *Engine {
	t.Helper()
	return NewEngine(root, 0, "0.1.0-test", nil)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildRejectsEmptyPolicy(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(t, root)
	_, err := e.Build(BuildOptions{Name: "v1", Policy: selection.Policy{}})
	if err == nil {
		t.Fatal("expected an error building with an empty policy")
	}
}

func TestBuildRejectsInvalidName(t *testing.T) {
	root := t.TempDir()
	e := newTestEngine(t, root)
	_, err := e.Build(BuildOptions{Name: "../escape", Policy: selection.Policy{Directories: []string{"src"}}})
	if err == nil {
		t.Fatal("expected an error building with an invalid snapshot name")
	}
}

func TestBuildRejectsOverwriteWithoutFlag(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "a.txt"), "hello")
	e := newTestEngine(t, root)

	opts := BuildOptions{Name: "v1", Policy: selection.Policy{Directories: []string{"src"}}}
	if _, err := e.Build(opts); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Build(opts); err == nil {
		t.Fatal("expected an error re-building the same name without overwrite")
	}
}

func TestBasicRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "src", "b.bin"), "some binary content")

	e := newTestEngine(t, root)
	opts := BuildOptions{Name: "v1", Policy: selection.Policy{Directories: []string{"src"}}}
	result, err := e.Build(opts)
	if err != nil {
		t.Fatal(err)
	}
	if result.Manifest.FileCount != 2 {
		t.Fatalf("expected 2 files captured, got %d", result.Manifest.FileCount)
	}

	writeFile(t, filepath.Join(root, "src", "a.txt"), "bye")

	restoreEngine := newTestEngine(t, root)
	restoreResult, err := restoreEngine.Restore(RestoreOptions{Name: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(restoreResult.Copies) != 1 {
		t.Fatalf("expected 1 file copied, got %d: %v", len(restoreResult.Copies), restoreResult.Copies)
	}
	if len(restoreResult.Unchanged) != 1 {
		t.Fatalf("expected 1 file unchanged, got %d: %v", len(restoreResult.Unchanged), restoreResult.Unchanged)
	}

	restored, err := os.ReadFile(filepath.Join(root, "src", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != "hello" {
		t.Fatalf("expected restored content %q, got %q", "hello", restored)
	}
}

func TestRestoreRemovesStaleFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "a.txt"), "hello")

	e := newTestEngine(t, root)
	if _, err := e.Build(BuildOptions{Name: "v1", Policy: selection.Policy{Directories: []string{"src"}}}); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(root, "src", "c.tmp"), "junk")

	restoreEngine := newTestEngine(t, root)
	result, err := restoreEngine.Restore(RestoreOptions{Name: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Removed) != 1 || result.Removed[0] != "src/c.tmp" {
		t.Fatalf("expected src/c.tmp to be reported removed, got %v", result.Removed)
	}
	if _, err := os.Stat(filepath.Join(root, "src", "c.tmp")); !os.IsNotExist(err) {
		t.Fatal("expected stale file to actually be removed from disk")
	}
}

func TestRootAnchoredPatternOnlyCapturesTopLevel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config.txt"), "top")
	writeFile(t, filepath.Join(root, "sub", "config.txt"), "nested")

	e := newTestEngine(t, root)
	result, err := e.Build(BuildOptions{Name: "v1", Policy: selection.Policy{Files: []string{"./config.txt"}}})
	if err != nil {
		t.Fatal(err)
	}
	if result.Manifest.FileCount != 1 {
		t.Fatalf("expected only the root config.txt to be captured, got %d files", result.Manifest.FileCount)
	}
	if _, ok := result.Manifest.Files["config.txt"]; !ok {
		t.Fatal("expected config.txt to be captured")
	}
}

func TestSymlinkIdentityProducesDistinctEntriesSharedHash(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "data"), "data")
	if err := os.Symlink("data", filepath.Join(root, "src", "a")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("data", filepath.Join(root, "src", "b")); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t, root)
	result, err := e.Build(BuildOptions{Name: "v1", Policy: selection.Policy{Directories: []string{"src"}}})
	if err != nil {
		t.Fatal(err)
	}

	a, aok := result.Manifest.Files["src/a"]
	b, bok := result.Manifest.Files["src/b"]
	if !aok || !bok {
		t.Fatalf("expected both symlinks captured as distinct entries: %+v", result.Manifest.Files)
	}
	if a.Hash != b.Hash {
		t.Fatal("expected both symlinks to the same target to share a hash")
	}
	if !a.IsSymlink || !b.IsSymlink {
		t.Fatal("expected both entries to be marked as symlinks")
	}
}

func TestRemoveCollectsOnlyUnreferencedBlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "a.txt"), "A")
	writeFile(t, filepath.Join(root, "src", "b.txt"), "B")

	e := newTestEngine(t, root)
	if _, err := e.Build(BuildOptions{Name: "v1", Policy: selection.Policy{Directories: []string{"src"}}}); err != nil {
		t.Fatal(err)
	}

	os.Remove(filepath.Join(root, "src", "a.txt"))
	writeFile(t, filepath.Join(root, "src", "c.txt"), "C")

	e2 := newTestEngine(t, root)
	if _, err := e2.Build(BuildOptions{Name: "v2", Policy: selection.Policy{Directories: []string{"src"}}}); err != nil {
		t.Fatal(err)
	}

	e3 := newTestEngine(t, root)
	if _, err := e3.Remove([]string{"v1"}); err != nil {
		t.Fatal(err)
	}

	v2, err := manifest.Load(root, "v2")
	if err != nil {
		t.Fatal(err)
	}
	bEntry, ok := v2.Files["src/b.txt"]
	if !ok {
		t.Fatal("expected v2 to reference src/b.txt")
	}

	e4 := newTestEngine(t, root)
	if !e4.Store.Has(bEntry.Hash) {
		t.Fatal("blob B should survive since v2 still references it")
	}
}

func TestEmptyManifestRoundTrip(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "src"), 0o755)

	e := newTestEngine(t, root)
	result, err := e.Build(BuildOptions{Name: "v1", Policy: selection.Policy{Directories: []string{"src"}}})
	if err != nil {
		t.Fatal(err)
	}
	if result.Manifest.FileCount != 0 {
		t.Fatalf("expected zero files, got %d", result.Manifest.FileCount)
	}

	restoreEngine := newTestEngine(t, root)
	restoreResult, err := restoreEngine.Restore(RestoreOptions{Name: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(restoreResult.Copies) != 0 || len(restoreResult.Removed) != 0 {
		t.Fatalf("expected no mutations restoring an empty manifest, got %+v", restoreResult)
	}
}

func TestDryRunRestoreMakesNoMutations(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "a.txt"), "hello")

	e := newTestEngine(t, root)
	if _, err := e.Build(BuildOptions{Name: "v1", Policy: selection.Policy{Directories: []string{"src"}}}); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(root, "src", "a.txt"), "changed")
	writeFile(t, filepath.Join(root, "src", "stale.tmp"), "junk")

	restoreEngine := newTestEngine(t, root)
	result, err := restoreEngine.Restore(RestoreOptions{Name: "v1", DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Copies) != 1 || len(result.Removed) != 1 {
		t.Fatalf("expected dry run to still report the would-be changes, got %+v", result)
	}

	content, err := os.ReadFile(filepath.Join(root, "src", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "changed" {
		t.Fatal("dry run must not have mutated the file")
	}
	if _, err := os.Stat(filepath.Join(root, "src", "stale.tmp")); err != nil {
		t.Fatal("dry run must not have removed the stale file")
	}
}
