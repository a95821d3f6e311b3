package decode

import (
	"io"
)

// LZSSMode selects the window-origin and control-byte-inversion quirks of
// the three historical LZSS variants this decoder reproduces.
type LZSSMode int

const (
	// ModeExpand matches MS-DOS EXPAND.EXE / SZDD containers.
	ModeExpand LZSSMode = iota
	// ModeMSHelp matches old Windows HLP (WinHelp) containers; it
	// inverts every control byte read.
	ModeMSHelp
	// ModeQBasic matches QBasic help containers, which start the window
	// cursor 18 bytes from the end instead of 16.
	ModeQBasic
)

const lzssWindowSize = 4096

// LZSSDecoder implements the 4 KiB sliding-window LZ used by the LZSS
// family: a control byte selects, bit by bit, either a literal byte or a
// 2-byte (window-index, length) back-reference.
type LZSSDecoder struct {
	src  BlockSource
	mode LZSSMode

	window   [lzssWindowSize]byte
	winPos   int
	pending  []byte
	eof      bool
	ctrlByte byte
	ctrlBits int // bits remaining in ctrlByte before a new one must be read

	// matchRemaining/matchIdx resume a back-reference copy that a prior
	// Decompress call had to stop part-way through because the caller's
	// buffer filled up first.
	matchRemaining int
	matchIdx       int
}

// NewLZSSDecoder returns a Decoder for the given variant.
func NewLZSSDecoder(src BlockSource, mode LZSSMode) *LZSSDecoder {
	d := &LZSSDecoder{src: src, mode: mode}
	d.Reset()
	return d
}

func (d *LZSSDecoder) Reset() {
	for i := range d.window {
		d.window[i] = 0x20
	}
	switch d.mode {
	case ModeQBasic:
		d.winPos = lzssWindowSize - 18
	default:
		d.winPos = lzssWindowSize - 16
	}
	d.pending = nil
	d.eof = false
	d.ctrlBits = 0
	d.matchRemaining = 0
}

func (d *LZSSDecoder) readByte() (byte, bool, error) {
	for len(d.pending) == 0 {
		if d.eof {
			return 0, false, nil
		}
		block, _, err := d.src.NextBlock()
		if err != nil {
			if err == io.EOF {
				d.eof = true
				return 0, false, nil
			}
			return 0, false, err
		}
		d.pending = block
	}
	b := d.pending[0]
	d.pending = d.pending[1:]
	return b, true, nil
}

func (d *LZSSDecoder) emit(b byte) byte {
	d.window[d.winPos] = b
	d.winPos = (d.winPos + 1) % lzssWindowSize
	return b
}

// Decompress fills out with up to len(out) decoded bytes, stopping short
// only at genuine input exhaustion.
func (d *LZSSDecoder) Decompress(out []byte) (int, error) {
	got := 0

	if d.matchRemaining > 0 {
		got = d.copyMatch(out, got)
		if got == len(out) {
			return got, nil
		}
	}

	for got < len(out) {
		if d.ctrlBits == 0 {
			b, ok, err := d.readByte()
			if err != nil {
				return got, err
			}
			if !ok {
				return got, nil
			}
			if d.mode == ModeMSHelp {
				b = ^b
			}
			d.ctrlByte = b
			d.ctrlBits = 8
		}
		isLiteral := d.ctrlByte&1 != 0
		d.ctrlByte >>= 1
		d.ctrlBits--

		if isLiteral {
			b, ok, err := d.readByte()
			if err != nil {
				return got, err
			}
			if !ok {
				return got, nil
			}
			out[got] = d.emit(b)
			got++
			continue
		}

		lo, ok, err := d.readByte()
		if err != nil {
			return got, err
		}
		if !ok {
			return got, nil
		}
		hi, ok, err := d.readByte()
		if err != nil {
			return got, err
		}
		if !ok {
			return got, nil
		}
		d.matchIdx = int(lo) | (int(hi)&0xF0)<<4
		d.matchRemaining = int(hi&0x0F) + 3
		got = d.copyMatch(out, got)
	}
	return got, nil
}

// copyMatch emits as much of the pending back-reference as fits in the
// remainder of out, leaving matchRemaining/matchIdx set to resume on the
// next call if the buffer filled up first. Match copies are
// self-overlapping: the window may be read from bytes this very call just
// wrote, which the byte-at-a-time loop naturally supports.
func (d *LZSSDecoder) copyMatch(out []byte, got int) int {
	for d.matchRemaining > 0 && got < len(out) {
		b := d.window[d.matchIdx]
		d.matchIdx = (d.matchIdx + 1) % lzssWindowSize
		out[got] = d.emit(b)
		got++
		d.matchRemaining--
	}
	return got
}
