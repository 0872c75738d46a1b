package manifest

import (
	"os"
	"testing"
	"time"
)

func TestAddFileUpdatesTotals(t *testing.T) {
	m := New("snap1", "0.1.0")
	m.AddFile("a.txt", FileEntry{Hash: "deadbeef", Size: 10})
	m.AddFile("b.txt", FileEntry{Hash: "cafef00d", Size: 20})

	if m.TotalSize != 30 {
		t.Fatalf("expected total size 30, got %d", m.TotalSize)
	}
	if m.FileCount != 2 {
		t.Fatalf("expected file count 2, got %d", m.FileCount)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()

	m := New("snap1", "0.1.0")
	m.SetTrackedPaths([]string{"build"}, []string{"*.log"})
	m.SetIgnoredPatterns([]string{"*.tmp"})
	m.AddDirectory("build", DirectoryEntry{Mode: 0o755, MTimeSecs: 1000})
	m.AddFile("build/out.bin", FileEntry{
		Hash:       "abc123",
		Size:       4,
		Mode:       0o644,
		MTimeSecs:  1000,
		MTimeNanos: 500,
	})

	if err := m.Save(root, nil); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(root, "snap1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Name != "snap1" {
		t.Fatalf("expected name snap1, got %q", loaded.Name)
	}
	if loaded.TotalSize != 4 || loaded.FileCount != 1 {
		t.Fatalf("unexpected totals after round trip: %+v", loaded)
	}
	entry, ok := loaded.Files["build/out.bin"]
	if !ok {
		t.Fatal("expected build/out.bin to survive round trip")
	}
	if entry.Hash != "abc123" {
		t.Fatalf("expected hash abc123, got %q", entry.Hash)
	}
}

func TestLoadMissingSnapshotReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	if _, err := Load(root, "does-not-exist"); err == nil {
		t.Fatal("expected an error loading a missing snapshot")
	}
}

func TestExistsAndDelete(t *testing.T) {
	root := t.TempDir()
	m := New("snap1", "0.1.0")
	if err := m.Save(root, nil); err != nil {
		t.Fatal(err)
	}
	if !Exists(root, "snap1") {
		t.Fatal("expected snapshot to exist after save")
	}
	if err := Delete(root, "snap1"); err != nil {
		t.Fatal(err)
	}
	if Exists(root, "snap1") {
		t.Fatal("expected snapshot to be gone after delete")
	}
	if err := Delete(root, "snap1"); err != nil {
		t.Fatal("deleting an already-absent manifest should not be an error")
	}
}

func TestListSortsByCreatedAtDescending(t *testing.T) {
	root := t.TempDir()

	older := New("older", "0.1.0")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	if err := older.Save(root, nil); err != nil {
		t.Fatal(err)
	}

	newer := New("newer", "0.1.0")
	newer.CreatedAt = time.Now().UTC()
	if err := newer.Save(root, nil); err != nil {
		t.Fatal(err)
	}

	list, err := List(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(list))
	}
	if list[0].Name != "newer" || list[1].Name != "older" {
		t.Fatalf("expected newer before older, got %q then %q", list[0].Name, list[1].Name)
	}
}

func TestListSkipsCorruptManifest(t *testing.T) {
	root := t.TempDir()
	good := New("good", "0.1.0")
	if err := good.Save(root, nil); err != nil {
		t.Fatal(err)
	}

	badPath := PathFor(root, "bad")
	if err := os.WriteFile(badPath, []byte("not = valid [[[ toml"), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := List(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "good" {
		t.Fatalf("expected only the good manifest to survive listing, got %+v", list)
	}
}

func TestShouldIgnoreByComponent(t *testing.T) {
	m := New("snap1", "0.1.0")
	m.SetIgnoredPatterns([]string{"node_modules"})
	if !m.ShouldIgnore("src/node_modules/pkg/index.js") {
		t.Fatal("expected component match")
	}
	if m.ShouldIgnore("src/other/pkg/index.js") {
		t.Fatal("did not expect unrelated path to be ignored")
	}
}
