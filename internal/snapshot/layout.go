package snapshot

import "path/filepath"

// internalDirName is the engine's own metadata directory under a repository
// root, always excluded from scanning and cleanup.
const internalDirName = ".kibo"

// StoreDir returns the blob store's root directory under the repository.
func StoreDir(root string) string {
	return filepath.Join(root, internalDirName, "store")
}

// HashCachePath returns the hash cache document's path under the repository.
func HashCachePath(root string) string {
	return filepath.Join(root, internalDirName, "hash_cache.json")
}

// HistoryLogPath returns the append-only history log's path under the
// repository.
func HistoryLogPath(root string) string {
	return filepath.Join(root, internalDirName, "history.log")
}

// DBSnapshotsDir returns the directory holding opaque external database
// dump side-data.
func DBSnapshotsDir(root string) string {
	return filepath.Join(root, internalDirName, "db_snapshots")
}
