// Package bitio provides the byte- and bit-level primitives shared by every
// CAB decoder: a uniform reader/writer over file or in-memory handles, and
// the two bit orderings the format family needs (MSZIP's DEFLATE streams
// are LSB-first; LZX and Quantum are big-endian within 16-bit words).
package bitio

import (
	"io"

	"github.com/pkg/errors"
)

// ErrUnderflow is returned by a non-salvage reader when fewer bits remain
// than were requested.
var ErrUnderflow = errors.New("bitio: bitstream underflow")

// ByteReader adapts an io.Reader into something that tracks how many bytes
// it has served, which the CAB block reader and decoders use to bound reads
// to a single CFDATA block's payload.
type ByteReader struct {
	r    io.Reader
	read int64
}

// NewByteReader wraps r.
func NewByteReader(r io.Reader) *ByteReader {
	return &ByteReader{r: r}
}

// ReadByte implements io.ByteReader.
func (b *ByteReader) ReadByte() (byte, error) {
	var buf [1]byte
	n, err := io.ReadFull(b.r, buf[:])
	b.read += int64(n)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Read implements io.Reader.
func (b *ByteReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.read += int64(n)
	return n, err
}

// BytesRead reports the total number of bytes successfully read so far.
func (b *ByteReader) BytesRead() int64 { return b.read }
