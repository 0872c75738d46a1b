package hashing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCacheGetMissOnEmptyCache(t *testing.T) {
	c := NewCache()
	if _, ok := c.Get("/a/b", 10, 1, 2); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestCacheInsertThenGet(t *testing.T) {
	c := NewCache()
	c.Insert("/a/b", 10, 1000, 500, "deadbeef")

	hash, ok := c.Get("/a/b", 10, 1000, 500)
	if !ok || hash != "deadbeef" {
		t.Fatalf("expected hit with deadbeef, got %q, %v", hash, ok)
	}
}

func TestCacheGetMissOnSizeChange(t *testing.T) {
	c := NewCache()
	c.Insert("/a/b", 10, 1000, 500, "deadbeef")
	if _, ok := c.Get("/a/b", 11, 1000, 500); ok {
		t.Fatal("expected miss after size change")
	}
}

func TestCacheGetMissOnMTimeChange(t *testing.T) {
	c := NewCache()
	c.Insert("/a/b", 10, 1000, 500, "deadbeef")
	if _, ok := c.Get("/a/b", 10, 1001, 500); ok {
		t.Fatal("expected miss after mtime seconds change")
	}
	if _, ok := c.Get("/a/b", 10, 1000, 501); ok {
		t.Fatal("expected miss after mtime nanos change")
	}
}

func TestCacheSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hash_cache.json")

	c := NewCache()
	c.Insert("/a/b", 10, 1000, 500, "deadbeef")
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded := LoadCache(path)
	hash, ok := loaded.Get("/a/b", 10, 1000, 500)
	if !ok || hash != "deadbeef" {
		t.Fatalf("expected round-tripped hit, got %q, %v", hash, ok)
	}
}

func TestLoadCacheMissingFileIsEmpty(t *testing.T) {
	c := LoadCache(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if len(c.Entries) != 0 {
		t.Fatal("expected empty cache for missing file")
	}
}

func TestLoadCacheCorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hash_cache.json")
	if err := os.WriteFile(path, []byte("not json at all{{{"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := LoadCache(path)
	if len(c.Entries) != 0 {
		t.Fatal("expected empty cache for corrupt file")
	}
}
