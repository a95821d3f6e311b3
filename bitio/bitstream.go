package bitio

import (
	"io"

	"github.com/pkg/errors"
)

// BitReader is the contract every decoder drives its bitstream through.
// Implementations buffer at least 17 bits ahead so a single PeekBits(17)
// never fails except at genuine end of stream.
type BitReader interface {
	// ReadBits consumes and returns the next n bits, 1 <= n <= 17.
	ReadBits(n uint) (uint32, error)
	// PeekBits returns the next n bits without consuming them.
	PeekBits(n uint) (uint32, error)
	// SkipBits consumes n bits already returned by a prior PeekBits.
	SkipBits(n uint) error
	// ByteAlign discards bits up to the next byte boundary of the
	// underlying stream.
	ByteAlign()
	// Salvaged reports whether an underflow was silently papered over
	// with zero bits since construction; the flag is never cleared.
	Salvaged() bool
}

const maxBits = 17

// lsbReader implements the little-endian bit ordering DEFLATE/MSZIP uses:
// bytes arrive in stream order and within a byte bits are consumed from the
// low (least significant) end first.
type lsbReader struct {
	r        io.ByteReader
	bitBuf   uint32
	bitCount uint
	salvage  bool
	salvaged bool
}

// NewLSBReader returns a BitReader in DEFLATE/MSZIP bit order. When salvage
// is true, underflow returns zero bits instead of an error.
func NewLSBReader(r io.ByteReader, salvage bool) BitReader {
	return &lsbReader{r: r, salvage: salvage}
}

func (b *lsbReader) fill(n uint) error {
	for b.bitCount < n {
		c, err := b.r.ReadByte()
		if err != nil {
			if b.salvage {
				b.salvaged = true
				b.bitBuf |= 0 << b.bitCount
				b.bitCount += 8
				continue
			}
			return errors.Wrap(ErrUnderflow, "lsb bitstream")
		}
		b.bitBuf |= uint32(c) << b.bitCount
		b.bitCount += 8
	}
	return nil
}

func (b *lsbReader) PeekBits(n uint) (uint32, error) {
	if n == 0 || n > maxBits {
		return 0, errors.Errorf("bitio: invalid peek width %d", n)
	}
	if err := b.fill(n); err != nil {
		return 0, err
	}
	return b.bitBuf & ((1 << n) - 1), nil
}

func (b *lsbReader) SkipBits(n uint) error {
	if n > b.bitCount {
		if _, err := b.PeekBits(n); err != nil {
			return err
		}
	}
	b.bitBuf >>= n
	b.bitCount -= n
	return nil
}

func (b *lsbReader) ReadBits(n uint) (uint32, error) {
	v, err := b.PeekBits(n)
	if err != nil {
		return 0, err
	}
	if err := b.SkipBits(n); err != nil {
		return 0, err
	}
	return v, nil
}

func (b *lsbReader) ByteAlign() {
	drop := b.bitCount % 8
	b.bitBuf >>= drop
	b.bitCount -= drop
}

func (b *lsbReader) Salvaged() bool { return b.salvaged }

// msb16Reader implements the ordering LZX and Quantum use: the stream is a
// sequence of 16-bit little-endian words, and within each word bits are
// consumed MSB-first.
type msb16Reader struct {
	r        io.Reader
	bitBuf   uint32
	bitCount uint
	salvage  bool
	salvaged bool
}

// NewMSB16Reader returns a BitReader in LZX/Quantum bit order.
func NewMSB16Reader(r io.Reader, salvage bool) BitReader {
	return &msb16Reader{r: r, salvage: salvage}
}

func (b *msb16Reader) nextWord() (uint16, error) {
	var buf [2]byte
	n, err := io.ReadFull(b.r, buf[:])
	if n == 2 {
		return uint16(buf[0]) | uint16(buf[1])<<8, nil
	}
	return 0, err
}

func (b *msb16Reader) fill(n uint) error {
	for b.bitCount < n {
		w, err := b.nextWord()
		if err != nil {
			if b.salvage {
				b.salvaged = true
				b.bitBuf = (b.bitBuf << 16) | 0
				b.bitCount += 16
				continue
			}
			return errors.Wrap(ErrUnderflow, "msb16 bitstream")
		}
		b.bitBuf = (b.bitBuf << 16) | uint32(w)
		b.bitCount += 16
	}
	return nil
}

func (b *msb16Reader) PeekBits(n uint) (uint32, error) {
	if n == 0 || n > maxBits {
		return 0, errors.Errorf("bitio: invalid peek width %d", n)
	}
	if err := b.fill(n); err != nil {
		return 0, err
	}
	return (b.bitBuf >> (b.bitCount - n)) & ((1 << n) - 1), nil
}

func (b *msb16Reader) SkipBits(n uint) error {
	if n > b.bitCount {
		if _, err := b.PeekBits(n); err != nil {
			return err
		}
	}
	b.bitCount -= n
	b.bitBuf &= (1 << b.bitCount) - 1
	return nil
}

func (b *msb16Reader) ReadBits(n uint) (uint32, error) {
	v, err := b.PeekBits(n)
	if err != nil {
		return 0, err
	}
	if err := b.SkipBits(n); err != nil {
		return 0, err
	}
	return v, nil
}

// ByteAlign in the 16-bit word ordering discards whatever is left of the
// current byte lane: it drops down to the nearest multiple of 8 remaining
// bits, so the low byte of the current word, if unread, is kept. It does
// not align to a whole 16-bit word.
func (b *msb16Reader) ByteAlign() {
	drop := b.bitCount % 8
	b.bitCount -= drop
	b.bitBuf &= (1 << b.bitCount) - 1
}

func (b *msb16Reader) Salvaged() bool { return b.salvaged }
