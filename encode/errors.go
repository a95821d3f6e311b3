// Package encode implements the symmetric write side of the four
// compression methods that support round-tripping (spec.md §8): None,
// LZSS, MSZIP, and LZX (verbatim-only), plus a Quantum subset encoder used
// only by tests. Ratio is not a goal — encoders here favour simplicity and
// correctness over matching the reference compressors' output byte-for-byte.
package encode

import "github.com/pkg/errors"

// ErrUnsupportedAlgorithm is returned when a caller asks for an encoder
// variant this package does not implement (e.g. LZX aligned-offset or
// Intel E8 encoding, which spec.md's round-trip property does not require).
var ErrUnsupportedAlgorithm = errors.New("encode: unsupported algorithm or variant")

// BlockSink is the write-side mirror of decode.BlockSource: an encoder
// hands it one already-framed compressed block plus the uncompressed size
// it represents, and the cabinet writer turns that into a checksummed
// CFDATA record.
type BlockSink interface {
	WriteBlock(compressed []byte, uncompressedSize int) error
}

// Encoder is the write-side mirror of decode.Decoder.
type Encoder interface {
	// Compress consumes p, in full, emitting zero or more blocks to the
	// sink. Implementations may buffer until a natural block boundary
	// (a frame, or a fixed chunk size) before calling WriteBlock.
	Compress(p []byte) error
	// Flush emits any buffered, not-yet-block-sized data as a final,
	// possibly short, block.
	Flush() error
}
