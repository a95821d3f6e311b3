package encode

import (
	"github.com/google/gocab/bitio"
	"github.com/google/gocab/huffman"
)

const (
	lzxFrameSize    = 32768
	lzxNumChars     = 256
	lzxPretreeSize  = 20
	lzxLengthSize   = 249
	lzxBlockVerb    = 1
	lzxPretreeBits  = 5 // flat code length this encoder assigns every used pretree symbol
	lzxPretreeUsed  = 17
	lzxMainCodeBits = 8 // flat code length for all 256 literal symbols
)

// lzxPositionBase mirrors decode's table; only its length, not its values,
// matters here since this encoder never emits a match symbol.
var lzxPositionBase = [51]uint32{
	0, 1, 2, 3, 4, 6, 8, 12, 16, 24, 32, 48, 64, 96, 128, 192,
	256, 384, 512, 768, 1024, 1536, 2048, 3072, 4096, 6144, 8192, 12288,
	16384, 24576, 32768, 49152, 65536, 98304, 131072, 196608, 262144,
	393216, 524288, 655360, 786432, 917504, 1048576, 1179648, 1310720,
	1441792, 1572864, 1703936, 1835008, 1966080, 2097152,
}

func numOffsets(windowBits uint) int {
	n := 0
	for n < len(lzxPositionBase) && lzxPositionBase[n] < uint32(1<<windowBits) {
		n++
	}
	return n
}

// LZXOptions configures the encoder's window size, which must match the
// folder's window-bits parameter the decoder will be constructed with.
type LZXOptions struct {
	WindowBits uint
}

// LZXVerbatimEncoder implements the "LZX-verbatim where implemented"
// subset of spec.md §8's round-trip property: every block is a verbatim
// block of literal-only symbols (no match-finding, no aligned offsets, no
// Intel E8), which decode.LZXDecoder decodes with no special-casing.
type LZXVerbatimEncoder struct {
	dst  BlockSink
	opts LZXOptions

	pend []byte

	mainPrev []byte
	lenPrev  []byte
	started  bool

	bw  *bitio.MSB16Writer
	buf *countingWriter
}

func NewLZXVerbatimEncoder(dst BlockSink, opts LZXOptions) *LZXVerbatimEncoder {
	n := numOffsets(opts.WindowBits)
	return &LZXVerbatimEncoder{
		dst:      dst,
		opts:     opts,
		mainPrev: make([]byte, lzxNumChars+n*8),
		lenPrev:  make([]byte, lzxLengthSize),
	}
}

func (e *LZXVerbatimEncoder) Compress(p []byte) error {
	e.pend = append(e.pend, p...)
	for len(e.pend) >= lzxFrameSize {
		if err := e.emitFrame(e.pend[:lzxFrameSize]); err != nil {
			return err
		}
		e.pend = e.pend[lzxFrameSize:]
	}
	return nil
}

func (e *LZXVerbatimEncoder) Flush() error {
	if len(e.pend) == 0 {
		return nil
	}
	frame := e.pend
	e.pend = nil
	return e.emitFrame(frame)
}

// countingWriter buffers bytes for a single CFDATA block payload.
type countingWriter struct{ buf []byte }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.buf = append(c.buf, p...)
	return len(p), nil
}

// writeTreeLengths is the write-side mirror of decode.LZXDecoder's
// readTreeLengths, restricted to the subset of the alphabet this encoder
// needs: direct delta-coded lengths (symbols 0-16), never the run-length
// symbols 17-19. prev holds the previous (persistent) length per symbol
// and is updated to target in place.
func writeTreeLengths(bw *bitio.MSB16Writer, target, prev []byte) error {
	var pretreeLen [lzxPretreeSize]byte
	for i := 0; i < lzxPretreeUsed; i++ {
		pretreeLen[i] = lzxPretreeBits
	}
	for i := range pretreeLen {
		if err := bw.WriteBits(uint32(pretreeLen[i]), 4); err != nil {
			return err
		}
	}
	codes, err := huffman.Codes(pretreeLen[:])
	if err != nil {
		return err
	}

	for i := range target {
		delta := (int(prev[i]) - int(target[i]) + 17) % 17
		if err := bw.WriteBits(codes[delta], lzxPretreeBits); err != nil {
			return err
		}
		prev[i] = target[i]
	}
	return nil
}

func (e *LZXVerbatimEncoder) emitFrame(frame []byte) error {
	e.buf = &countingWriter{}
	e.bw = bitio.NewMSB16Writer(e.buf)

	if !e.started {
		if err := e.bw.WriteBits(0, 1); err != nil { // Intel E8 disabled
			return err
		}
		e.started = true
	}

	// Block header: type=verbatim, 24-bit length split 16 high + 8 low.
	if err := e.bw.WriteBits(lzxBlockVerb, 3); err != nil {
		return err
	}
	if err := e.bw.WriteBits(uint32(len(frame)>>8), 16); err != nil {
		return err
	}
	if err := e.bw.WriteBits(uint32(len(frame)&0xFF), 8); err != nil {
		return err
	}

	mainTarget := make([]byte, len(e.mainPrev))
	for i := 0; i < lzxNumChars; i++ {
		mainTarget[i] = lzxMainCodeBits
	}
	if err := writeTreeLengths(e.bw, mainTarget[:lzxNumChars], e.mainPrev[:lzxNumChars]); err != nil {
		return err
	}
	if err := writeTreeLengths(e.bw, mainTarget[lzxNumChars:], e.mainPrev[lzxNumChars:]); err != nil {
		return err
	}
	lenTarget := make([]byte, lzxLengthSize)
	if err := writeTreeLengths(e.bw, lenTarget, e.lenPrev); err != nil {
		return err
	}

	mainCodes, err := huffman.Codes(mainTarget)
	if err != nil {
		return err
	}
	for _, b := range frame {
		if err := e.bw.WriteBits(mainCodes[b], lzxMainCodeBits); err != nil {
			return err
		}
	}

	if err := e.bw.ByteAlign(); err != nil {
		return err
	}
	if err := e.bw.Flush(); err != nil {
		return err
	}

	return e.dst.WriteBlock(e.buf.buf, len(frame))
}
