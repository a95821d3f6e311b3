package encode

// LZSSMode mirrors decode.LZSSMode; redeclared here so encode has no
// dependency on decode (the two packages are siblings, not layered).
type LZSSMode int

const (
	ModeExpand LZSSMode = iota
	ModeMSHelp
	ModeQBasic
)

const (
	lzssWindowSize = 4096
	lzssMinMatch   = 3
	lzssMaxMatch   = 3 + 0x0F // high nibble encodes length-3 in 4 bits
)

// LZSSEncoder is a greedy longest-match matcher against the same
// 4 KiB space-prefilled sliding window decode.LZSSDecoder maintains,
// producing the identical control-byte/token framing so the round trip in
// spec.md §8 holds.
type LZSSEncoder struct {
	dst  BlockSink
	mode LZSSMode

	window [lzssWindowSize]byte
	winPos int

	out      []byte
	ctrl     byte
	ctrlBits int
	tokens   []byte
}

func NewLZSSEncoder(dst BlockSink, mode LZSSMode) *LZSSEncoder {
	e := &LZSSEncoder{dst: dst, mode: mode}
	for i := range e.window {
		e.window[i] = 0x20
	}
	switch mode {
	case ModeQBasic:
		e.winPos = lzssWindowSize - 18
	default:
		e.winPos = lzssWindowSize - 16
	}
	return e
}

func (e *LZSSEncoder) putByte(b byte) {
	e.window[e.winPos] = b
	e.winPos = (e.winPos + 1) % lzssWindowSize
}

// bestMatch searches the whole window for the longest run (up to
// lzssMaxMatch) equal to p's prefix, returning its window index and
// length; length < lzssMinMatch means no usable match was found.
func (e *LZSSEncoder) bestMatch(p []byte) (idx, length int) {
	limit := len(p)
	if limit > lzssMaxMatch {
		limit = lzssMaxMatch
	}
	bestLen := 0
	bestIdx := 0
	for start := 0; start < lzssWindowSize; start++ {
		l := 0
		for l < limit && e.window[(start+l)%lzssWindowSize] == p[l] {
			l++
		}
		if l > bestLen {
			bestLen = l
			bestIdx = start
		}
	}
	return bestIdx, bestLen
}

// emitCtrl writes the accumulated control byte and its tokens, inverting
// the control byte for ModeMSHelp to match decode.LZSSDecoder's inversion
// on read.
func (e *LZSSEncoder) emitCtrl() {
	ctrl := e.ctrl
	if e.mode == ModeMSHelp {
		ctrl = ^ctrl
	}
	e.out = append(e.out, ctrl)
	e.out = append(e.out, e.tokens...)
	e.tokens = e.tokens[:0]
	e.ctrl = 0
	e.ctrlBits = 0
}

func (e *LZSSEncoder) flushCtrlIfFull() {
	if e.ctrlBits == 8 {
		e.emitCtrl()
	}
}

func (e *LZSSEncoder) addLiteral(b byte) {
	e.ctrl |= 1 << uint(e.ctrlBits)
	e.tokens = append(e.tokens, b)
	e.ctrlBits++
	e.putByte(b)
	e.flushCtrlIfFull()
}

func (e *LZSSEncoder) addMatch(idx, length int) {
	hi := byte((idx>>8)&0x0F)<<4 | byte(length-lzssMinMatch)
	lo := byte(idx & 0xFF)
	e.tokens = append(e.tokens, lo, hi)
	e.ctrlBits++
	for i := 0; i < length; i++ {
		// The matched bytes are read from the window positions the
		// match referenced, which is where putByte already wrote them.
		e.putByte(e.window[(idx+i)%lzssWindowSize])
	}
	e.flushCtrlIfFull()
}

func (e *LZSSEncoder) Compress(p []byte) error {
	for len(p) > 0 {
		idx, length := e.bestMatch(p)
		if length >= lzssMinMatch {
			e.addMatch(idx, length)
			p = p[length:]
		} else {
			e.addLiteral(p[0])
			p = p[1:]
		}
	}
	return nil
}

func (e *LZSSEncoder) Flush() error {
	if e.ctrlBits > 0 {
		e.emitCtrl()
	}
	if len(e.out) == 0 {
		return nil
	}
	buf := e.out
	e.out = nil
	return e.dst.WriteBlock(buf, len(buf))
}
