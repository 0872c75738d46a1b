package fsops

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicNonExistentDirectory(t *testing.T) {
	if WriteFileAtomic("/does/not/exist/file", []byte{}, 0o600, nil) == nil {
		t.Error("atomic file write did not fail for non-existent directory")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	directory := t.TempDir()
	target := filepath.Join(directory, "file")
	contents := []byte{0, 1, 2, 3, 4, 5, 6}

	if err := WriteFileAtomic(target, contents, 0o600, nil); err != nil {
		t.Fatal("atomic file write failed:", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal("unable to read back file:", err)
	}
	if !bytes.Equal(data, contents) {
		t.Error("file contents did not match expected")
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one entry in directory, found %d", len(entries))
	}
}

func TestWriteFileAtomicOverwrites(t *testing.T) {
	directory := t.TempDir()
	target := filepath.Join(directory, "file")

	if err := WriteFileAtomic(target, []byte("first"), 0o600, nil); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(target, []byte("second"), 0o600, nil); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("expected overwritten contents, got %q", data)
	}
}

func TestCreateSymlinkReplacesExisting(t *testing.T) {
	directory := t.TempDir()
	link := filepath.Join(directory, "link")

	if err := CreateSymlink("first-target", link); err != nil {
		t.Fatal(err)
	}
	if err := CreateSymlink("second-target", link); err != nil {
		t.Fatal(err)
	}

	target, err := os.Readlink(link)
	if err != nil {
		t.Fatal(err)
	}
	if target != "second-target" {
		t.Errorf("expected second-target, got %q", target)
	}
}

func TestEnsureDirIdempotent(t *testing.T) {
	directory := t.TempDir()
	nested := filepath.Join(directory, "a", "b", "c")

	if err := EnsureDir(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDir(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(nested)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Error("expected directory")
	}
}
