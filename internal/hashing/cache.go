package hashing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kibo-snap/kibo/internal/fsops"
)

// CacheEntry is the memoized record for a single absolute path: the file
// attributes observed the last time it was hashed, and the hash that
// resulted.
type CacheEntry struct {
	Size       int64  `json:"size"`
	MTimeSecs  int64  `json:"mtime_secs"`
	MTimeNanos uint32 `json:"mtime_nanos"`
	Hash       string `json:"hash"`
}

// Cache is a persistent, mutex-guarded mapping from absolute path to its
// last-known (size, mtime, hash) triple. It exists purely as a performance
// optimization: discarding it can never change the result of a build, only
// how much work a build must redo.
type Cache struct {
	mu      sync.Mutex
	Entries map[string]CacheEntry `json:"entries"`
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{Entries: make(map[string]CacheEntry)}
}

// LoadCache reads a cache document from path. A missing file yields an
// empty cache. A corrupt file also yields an empty cache rather than an
// error, per the design's recovery contract for the hash cache.
func LoadCache(path string) *Cache {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewCache()
	}

	var onDisk struct {
		Entries map[string]CacheEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return NewCache()
	}
	if onDisk.Entries == nil {
		onDisk.Entries = make(map[string]CacheEntry)
	}
	return &Cache{Entries: onDisk.Entries}
}

// Save writes the cache to path atomically.
func (c *Cache) Save(path string) error {
	c.mu.Lock()
	data, err := json.Marshal(struct {
		Entries map[string]CacheEntry `json:"entries"`
	}{Entries: c.Entries})
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("unable to marshal hash cache: %w", err)
	}

	if err := fsops.EnsureDir(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return fsops.WriteFileAtomic(path, data, 0o600, nil)
}

// Get returns the cached hash for path iff its size and modification time
// match exactly what was recorded; otherwise it reports a miss.
func (c *Cache) Get(path string, size int64, mtimeSecs int64, mtimeNanos uint32) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.Entries[path]
	if !ok {
		return "", false
	}
	if entry.Size != size || entry.MTimeSecs != mtimeSecs || entry.MTimeNanos != mtimeNanos {
		return "", false
	}
	return entry.Hash, true
}

// Insert overwrites any prior entry for path with a fresh (size, mtime,
// hash) triple.
func (c *Cache) Insert(path string, size int64, mtimeSecs int64, mtimeNanos uint32, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Entries[path] = CacheEntry{
		Size:       size,
		MTimeSecs:  mtimeSecs,
		MTimeNanos: mtimeNanos,
		Hash:       hash,
	}
}
