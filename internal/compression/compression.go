// Package compression implements the transparent, per-blob zstd compression
// described in the design: a compressed blob is the four-byte magic header
// "KBCP" followed by a zstd stream of the logical content; an uncompressed
// blob never begins with that header. Callers decide how to read a blob by
// sniffing its first four bytes, never by consulting external metadata.
package compression

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Magic is the four-byte header that marks a compressed blob.
var Magic = [4]byte{'K', 'B', 'C', 'P'}

// defaultLevel is substituted whenever the store is asked to compress with
// level 0, since 0 is reserved to mean "write raw" at the store's public
// API; this mirrors the source tool's own substitution of a middle default.
const defaultLevel = 3

// maxLevel caps the level passed through to zstd.
const maxLevel = 22

// encoderLevel maps a resolved numeric zstd level onto the klauspost/compress
// library's named speed tiers, which is the API it actually exposes rather
// than a raw 1-22 numeric level.
func encoderLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 2:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 10:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// ResolveLevel clamps a requested 0-10 store compression level into the
// level actually passed to zstd, substituting defaultLevel for an internal
// request to compress at level 0 (the store itself treats level 0 as "write
// raw" before ever reaching this function; this clamp exists for callers
// that pass through a raw numeric level from configuration).
func ResolveLevel(level int) int {
	if level <= 0 {
		return defaultLevel
	}
	if level > maxLevel {
		return maxLevel
	}
	return level
}

// CompressTo reads all of src, compresses it with the given zstd level, and
// writes the magic header followed by the compressed stream to dst.
func CompressTo(dst io.Writer, src io.Reader, level int) error {
	if _, err := dst.Write(Magic[:]); err != nil {
		return fmt.Errorf("unable to write compression header: %w", err)
	}

	encoder, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(encoderLevel(ResolveLevel(level))))
	if err != nil {
		return fmt.Errorf("unable to create compressor: %w", err)
	}
	if _, err := io.Copy(encoder, src); err != nil {
		encoder.Close()
		return fmt.Errorf("unable to compress data: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("unable to finalize compressed stream: %w", err)
	}
	return nil
}

// IsCompressed sniffs whether the given buffer begins with the magic
// header. The buffer must contain at least the first four bytes of the
// blob; shorter buffers are never compressed.
func IsCompressed(header []byte) bool {
	return len(header) >= len(Magic) && bytes.Equal(header[:len(Magic)], Magic[:])
}

// DecompressFrom reads a magic header followed by a zstd stream from src and
// writes the decompressed logical content to dst. It fails if src does not
// begin with the magic header.
func DecompressFrom(dst io.Writer, src io.Reader) error {
	buffered := bufio.NewReaderSize(src, 4)
	header := make([]byte, len(Magic))
	if _, err := io.ReadFull(buffered, header); err != nil {
		return fmt.Errorf("unable to read compression header: %w", err)
	}
	if !IsCompressed(header) {
		return fmt.Errorf("blob is not compressed: missing magic header")
	}

	decoder, err := zstd.NewReader(buffered)
	if err != nil {
		return fmt.Errorf("unable to create decompressor: %w", err)
	}
	defer decoder.Close()

	if _, err := io.Copy(dst, decoder); err != nil {
		return fmt.Errorf("unable to decompress data: %w", err)
	}
	return nil
}
