// Package blobstore implements the content-addressed blob store: a
// write-once, two-level fan-out directory of immutable blobs keyed by their
// content hash, with optional transparent zstd compression and mark-and-
// sweep garbage collection. Inserts go through a staging area (temp file
// plus hash-prefixed rename) so a blob is only ever visible under its final
// name once it is fully and correctly written, generalized from an
// ephemeral cache technique into permanent, read-only storage.
package blobstore

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/kibo-snap/kibo/internal/compression"
	"github.com/kibo-snap/kibo/internal/fsops"
	"github.com/kibo-snap/kibo/internal/hashing"
	"github.com/kibo-snap/kibo/internal/kiboerr"
	"github.com/kibo-snap/kibo/internal/logging"
)

// blobPermissions is the read-only mode applied to a blob immediately after
// it is written; garbage collection must restore write permission before
// unlinking.
const blobPermissions = 0o444

// Store is a content-addressed blob store rooted at a directory.
type Store struct {
	root             string
	compressionLevel int
	logger           *logging.Logger
}

// New creates a Store rooted at root. A compressionLevel of 0 disables
// compression; 1-10 select increasing zstd effort.
func New(root string, compressionLevel int, logger *logging.Logger) *Store {
	return &Store{root: root, compressionLevel: compressionLevel, logger: logger}
}

// Init ensures the store's root directory exists.
func (s *Store) Init() error {
	return fsops.EnsureDir(s.root, 0o755)
}

// pathForHash validates that hash is a well-formed hex digest and
// computes its two-level fan-out path. Per the design's handling of the
// source tool's lossy-decoding hazard, a hash that is not valid hex is
// rejected outright rather than silently coerced.
func (s *Store) pathForHash(hash string) (string, error) {
	if len(hash) < 3 {
		return "", fmt.Errorf("hash too short: %q", hash)
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return "", fmt.Errorf("hash is not valid hex: %q: %w", hash, err)
	}
	return filepath.Join(s.root, hash[:2], hash[2:]), nil
}

// Has reports whether a blob with the given hash already exists.
func (s *Store) Has(hash string) bool {
	path, err := s.pathForHash(hash)
	if err != nil {
		return false
	}
	_, err = os.Lstat(path)
	return err == nil
}

// InsertFile copies src into the store under hash, applying compression if
// configured. It returns false without copying anything if the blob already
// exists (insertion is idempotent).
func (s *Store) InsertFile(src, hash string) (bool, error) {
	dst, err := s.pathForHash(hash)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(dst); err == nil {
		return false, nil
	}

	if err := fsops.EnsureDir(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}

	temp := filepath.Join(filepath.Dir(dst), fsops.TemporaryName())
	if err := s.writeBlob(temp, src); err != nil {
		os.Remove(temp)
		return false, err
	}
	if err := os.Chmod(temp, blobPermissions); err != nil {
		os.Remove(temp)
		return false, fmt.Errorf("unable to mark blob read-only: %w", err)
	}
	if err := fsops.WriteFileFromAtomic(temp, dst, s.logger); err != nil {
		return false, err
	}
	return true, nil
}

// writeBlob streams src's content into temp, compressing it first if the
// store is configured to do so.
func (s *Store) writeBlob(temp, src string) error {
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("unable to open source file %s: %w", src, err)
	}
	defer source.Close()

	destination, err := os.Create(temp)
	if err != nil {
		return fmt.Errorf("unable to create temporary blob: %w", err)
	}
	defer destination.Close()

	if s.compressionLevel > 0 {
		return compression.CompressTo(destination, source, s.compressionLevel)
	}
	_, err = io.Copy(destination, source)
	if err != nil {
		return fmt.Errorf("unable to copy blob content: %w", err)
	}
	return nil
}

// InsertSymlink stores target's raw bytes as the blob for hash. Symlink
// blobs are never compressed, since their content is always a handful of
// bytes.
func (s *Store) InsertSymlink(target, hash string) (bool, error) {
	dst, err := s.pathForHash(hash)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(dst); err == nil {
		return false, nil
	}
	if err := fsops.EnsureDir(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}
	if err := fsops.WriteFileAtomic(dst, []byte(target), 0o644, s.logger); err != nil {
		return false, err
	}
	if err := os.Chmod(dst, blobPermissions); err != nil {
		return false, fmt.Errorf("unable to mark blob read-only: %w", err)
	}
	return true, nil
}

// RetrieveSymlinkTarget reads back the target string stored for hash.
func (s *Store) RetrieveSymlinkTarget(hash string) (string, error) {
	path, err := s.pathForHash(hash)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", kiboerr.New(kiboerr.KindNotFound, hash, err)
		}
		return "", kiboerr.New(kiboerr.KindIOFailure, path, err)
	}
	return string(data), nil
}

// Materialise copies the blob for hash to dst, transparently decompressing
// it if it was stored compressed. It fails if the blob is absent.
func (s *Store) Materialise(hash, dst string) error {
	src, err := s.pathForHash(hash)
	if err != nil {
		return err
	}

	source, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return kiboerr.New(kiboerr.KindNotFound, hash, err)
		}
		return kiboerr.New(kiboerr.KindIOFailure, src, err)
	}
	defer source.Close()

	header := make([]byte, 4)
	n, _ := io.ReadFull(source, header)
	if _, err := source.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("unable to rewind blob reader: %w", err)
	}

	if err := fsops.EnsureDir(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	temp := filepath.Join(filepath.Dir(dst), fsops.TemporaryName())
	destination, err := os.Create(temp)
	if err != nil {
		return fmt.Errorf("unable to create temporary destination: %w", err)
	}

	var copyErr error
	if n == 4 && compression.IsCompressed(header) {
		copyErr = compression.DecompressFrom(destination, source)
	} else {
		_, copyErr = io.Copy(destination, source)
	}
	destination.Close()
	if copyErr != nil {
		os.Remove(temp)
		return fmt.Errorf("unable to materialise blob %s: %w", hash, copyErr)
	}

	return fsops.WriteFileFromAtomic(temp, dst, s.logger)
}

// TotalSize walks the store and sums the on-disk size of every blob.
func (s *Store) TotalSize() (uint64, error) {
	var total uint64
	err := s.walkBlobs(func(_, path string, info os.FileInfo) error {
		total += uint64(info.Size())
		return nil
	})
	return total, err
}

// BlobCount walks the store and counts every blob.
func (s *Store) BlobCount() (int, error) {
	count := 0
	err := s.walkBlobs(func(_, _ string, _ os.FileInfo) error {
		count++
		return nil
	})
	return count, err
}

// GCResult summarises the effect of a garbage collection pass.
type GCResult struct {
	RemovedCount int
	BytesFreed   uint64
}

// GC removes every blob whose hash is not present in live. A blob's write
// permission is restored immediately before it is unlinked, since blobs are
// stored read-only. After a prefix directory is emptied it is removed too.
// A failure removing one blob aborts the pass at that blob; blobs already
// removed remain removed.
func (s *Store) GC(live map[string]bool, progress func(removed int)) (GCResult, error) {
	var result GCResult

	prefixes, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, kiboerr.New(kiboerr.KindIOFailure, s.root, err)
	}

	for _, prefixEntry := range prefixes {
		if !prefixEntry.IsDir() {
			continue
		}
		prefix := prefixEntry.Name()
		prefixPath := filepath.Join(s.root, prefix)

		blobs, err := os.ReadDir(prefixPath)
		if err != nil {
			return result, kiboerr.New(kiboerr.KindIOFailure, prefixPath, err)
		}

		remaining := 0
		for _, blobEntry := range blobs {
			if blobEntry.IsDir() {
				remaining++
				continue
			}
			hash := prefix + blobEntry.Name()
			if _, err := hex.DecodeString(hash); err != nil {
				// Not a valid hex hash; leave it alone rather than risk
				// coercing a non-UTF-8 or malformed name into a live hash.
				remaining++
				continue
			}
			if live[hash] {
				remaining++
				continue
			}

			blobPath := filepath.Join(prefixPath, blobEntry.Name())
			info, err := blobEntry.Info()
			if err != nil {
				return result, errors.Wrapf(err, "unable to stat blob %s", blobPath)
			}
			if err := os.Chmod(blobPath, 0o644); err != nil {
				return result, errors.Wrapf(err, "unable to restore write permission on %s", blobPath)
			}
			if err := os.Remove(blobPath); err != nil {
				return result, errors.Wrapf(err, "unable to remove blob %s", blobPath)
			}
			result.RemovedCount++
			result.BytesFreed += uint64(info.Size())
			if progress != nil {
				progress(result.RemovedCount)
			}
		}

		if remaining == 0 {
			os.Remove(prefixPath)
		}
	}

	return result, nil
}

// walkBlobs invokes visit for every file found at the store's two-level
// fan-out, skipping anything that doesn't look like a valid hex hash.
func (s *Store) walkBlobs(visit func(hash, path string, info os.FileInfo) error) error {
	prefixes, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return kiboerr.New(kiboerr.KindIOFailure, s.root, err)
	}

	for _, prefixEntry := range prefixes {
		if !prefixEntry.IsDir() {
			continue
		}
		prefixPath := filepath.Join(s.root, prefixEntry.Name())
		blobs, err := os.ReadDir(prefixPath)
		if err != nil {
			return kiboerr.New(kiboerr.KindIOFailure, prefixPath, err)
		}
		for _, blobEntry := range blobs {
			if blobEntry.IsDir() {
				continue
			}
			hash := prefixEntry.Name() + blobEntry.Name()
			if _, err := hex.DecodeString(hash); err != nil {
				continue
			}
			info, err := blobEntry.Info()
			if err != nil {
				return errors.Wrapf(err, "unable to stat blob %s", hash)
			}
			if err := visit(hash, filepath.Join(prefixPath, blobEntry.Name()), info); err != nil {
				return err
			}
		}
	}
	return nil
}

// HashReader computes the content hash of the blob stored under hash,
// re-deriving it from the stored (possibly compressed) bytes. The
// build/restore paths do not call it; they hash the original source file
// directly via the hashing package.
func HashReader(hash string, store *Store) (string, error) {
	path, err := store.pathForHash(hash)
	if err != nil {
		return "", err
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := make([]byte, 4)
	n, _ := io.ReadFull(file, header)
	file.Seek(0, io.SeekStart)

	if n == 4 && compression.IsCompressed(header) {
		var buf fileBuffer
		if err := compression.DecompressFrom(&buf, file); err != nil {
			return "", err
		}
		return hashing.HashBytes(buf.data), nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	return hashing.HashBytes(data), nil
}

type fileBuffer struct {
	data []byte
}

func (b *fileBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
