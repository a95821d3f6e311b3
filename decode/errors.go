package decode

import "github.com/pkg/errors"

// ErrCorruptInput is returned when a decoder detects a violation of its
// own format: an invalid block type, a Kraft-violating Huffman table, a
// match offset beyond the window or beyond the start of the stream, a
// length-tree symbol needed but the length tree is empty, a missing CK
// signature, or a checksum mismatch.
var ErrCorruptInput = errors.New("decode: corrupt input")

// ErrUnsupportedFormat is returned for a compression method code outside
// 0-3, or a format variant the decoder does not implement (e.g. LZX DELTA
// when built without that option).
var ErrUnsupportedFormat = errors.New("decode: unsupported format")

// Decoder is the common contract every L1 decoder implements. A decoder is
// a single state machine owned by the CAB extractor for the lifetime of
// one folder; Reset rebuilds that state from scratch so that
// re-extracting an earlier file in the folder starts clean.
type Decoder interface {
	// Decompress fills w with decompressed output and returns the count
	// written. A count short of len(w) comes with an error, except from
	// LZSSDecoder, which returns a short count and a nil error once its
	// input is exhausted. It is called repeatedly as the extractor drains
	// a folder's stream; decoder state persists across calls.
	Decompress(w []byte) (int, error)
	// Reset discards all decoder state and starts over from the
	// beginning of the folder's stream.
	Reset()
}

// BlockSource supplies the compressed bytes of one CFDATA block at a time;
// the CAB block reader implements this so decoders never see block
// framing directly (except MSZIP, which frames its own CK-prefixed
// sub-streams inside the compressed bytes).
type BlockSource interface {
	// NextBlock returns the compressed payload and declared uncompressed
	// size of the next CFDATA block, or io.EOF when the folder's blocks
	// are exhausted.
	NextBlock() (compressed []byte, uncompressedSize int, err error)
}
