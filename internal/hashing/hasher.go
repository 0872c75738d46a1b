// Package hashing computes the content hashes that identify blobs and
// memoizes them across scans. A file is hashed by streaming its bytes
// through a SHA-256 digest; a symlink is hashed by digesting the UTF-8
// bytes of its target string without ever following the link, so the two
// modes operate over disjoint, differently-shaped input and never collide.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// bufferSize is the size of the streaming copy buffer used when hashing
// regular files.
const bufferSize = 64 * 1024

// HashFile streams path's contents through SHA-256 and returns the lowercase
// hex digest.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer file.Close()

	digest := sha256.New()
	buffer := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(digest, file, buffer); err != nil {
		return "", fmt.Errorf("unable to read %s: %w", path, err)
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}

// HashSymlinkTarget hashes the UTF-8 bytes of a symlink's target string. The
// link itself is never followed.
func HashSymlinkTarget(target string) string {
	digest := sha256.Sum256([]byte(target))
	return hex.EncodeToString(digest[:])
}

// HashBytes hashes an arbitrary byte slice, used by the blob store when it
// needs to re-derive a digest from already-read data.
func HashBytes(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}
