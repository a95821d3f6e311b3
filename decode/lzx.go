package decode

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/google/gocab/bitio"
	"github.com/google/gocab/huffman"
)

const (
	lzxFrameSize   = 32768
	lzxMinMatch    = 2
	lzxNumChars    = 256
	lzxPretreeSize = 20
	lzxAlignedSize = 8
	lzxLengthSize  = 249
)

// lzxPositionBase/lzxExtraBits are the per-position-slot base offset and
// extra-bit counts from spec.md §4.6.
var lzxPositionBase = [51]uint32{
	0, 1, 2, 3, 4, 6, 8, 12, 16, 24, 32, 48, 64, 96, 128, 192,
	256, 384, 512, 768, 1024, 1536, 2048, 3072, 4096, 6144, 8192, 12288,
	16384, 24576, 32768, 49152, 65536, 98304, 131072, 196608, 262144,
	393216, 524288, 655360, 786432, 917504, 1048576, 1179648, 1310720,
	1441792, 1572864, 1703936, 1835008, 1966080, 2097152,
}

var lzxExtraBits = [51]uint{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12,
	13, 13, 14, 14, 15, 15, 16, 16, 17, 17, 17, 17, 17, 17,
	17, 17, 17, 17, 17, 17, 17, 17, 17,
}

// Direct-lookup widths of the pretree, main, length and aligned decode
// tables. The pretree's code lengths (spec.md §4.6's 20-symbol alphabet)
// are read in natural order 0..19, unlike DEFLATE's permuted order.
const lzxPretreeTableBits = 8
const lzxMainTableBits = 10
const lzxLenTableBits = 8
const lzxAlignTableBits = 7

// LZXOptions configures window size, frame reset interval, Intel E8
// pre-processing and the DELTA variant (spec.md §4.6, §11).
type LZXOptions struct {
	WindowBits    uint // 15..21 (17..25 for Delta)
	ResetInterval int  // in 32 KiB frames; 0 = never
	Delta         bool
	Salvage       bool
	Log           *logrus.Logger
}

type lzxBlockType int

const (
	lzxBlockVerbatim     lzxBlockType = 1
	lzxBlockAligned      lzxBlockType = 2
	lzxBlockUncompressed lzxBlockType = 3
)

// lzxActiveBlock tracks a single LZX block whose body may span several
// calls if the caller's per-frame budget runs out first.
type lzxActiveBlock struct {
	typ       lzxBlockType
	remaining int
}

// LZXDecoder implements the full LZX algorithm: aligned/verbatim/
// uncompressed blocks, three LRU offset registers, persistent code-length
// tables that carry across blocks via delta updates, and the Intel E8
// post-pass.
type LZXDecoder struct {
	src    BlockSource
	opts   LZXOptions
	stream *blockStream
	br     bitio.BitReader

	window    []byte
	streamPos uint64 // absolute count of bytes produced so far

	r0, r1, r2 uint32

	mainLen   []byte
	lengthLen []byte
	alignLen  []byte
	mainTree  *huffman.Table
	lenTree   *huffman.Table
	alnTree   *huffman.Table

	e8Enabled  bool
	e8FileSize uint32
	started    bool
	framesDone int

	active *lzxActiveBlock

	frameBuf []byte
	framePos int
}

// NewLZXDecoder returns a Decoder for compression method 3.
func NewLZXDecoder(src BlockSource, opts LZXOptions) *LZXDecoder {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	d := &LZXDecoder{src: src, opts: opts}
	d.Reset()
	return d
}

func (d *LZXDecoder) numOffsets() int {
	n := 0
	for n < len(lzxPositionBase) && lzxPositionBase[n] < uint32(1<<d.opts.WindowBits) {
		n++
	}
	return n
}

func (d *LZXDecoder) Reset() {
	d.window = make([]byte, 1<<d.opts.WindowBits)
	d.streamPos = 0
	d.r0, d.r1, d.r2 = 1, 1, 1
	d.mainLen = make([]byte, lzxNumChars+d.numOffsets()*8)
	d.lengthLen = make([]byte, lzxLengthSize)
	d.alignLen = make([]byte, lzxAlignedSize)
	d.mainTree, d.lenTree, d.alnTree = nil, nil, nil
	d.e8Enabled = false
	d.e8FileSize = 0
	d.started = false
	d.framesDone = 0
	d.active = nil
	d.frameBuf = nil
	d.framePos = 0
	d.stream = newBlockStream(d.src)
	d.br = bitio.NewMSB16Reader(d.stream, d.opts.Salvage)
}

func (d *LZXDecoder) Decompress(out []byte) (int, error) {
	got := 0
	for got < len(out) {
		if d.framePos >= len(d.frameBuf) {
			if err := d.decodeNextFrame(); err != nil {
				return got, err
			}
		}
		n := copy(out[got:], d.frameBuf[d.framePos:])
		d.framePos += n
		got += n
	}
	return got, nil
}

func (d *LZXDecoder) decodeNextFrame() error {
	if !d.started {
		bit, err := d.br.ReadBits(1)
		if err != nil {
			return err
		}
		d.e8Enabled = bit != 0
		if d.e8Enabled {
			hi, err := d.br.ReadBits(16)
			if err != nil {
				return err
			}
			lo, err := d.br.ReadBits(16)
			if err != nil {
				return err
			}
			d.e8FileSize = hi<<16 | lo
		}
		d.started = true
	}

	if d.opts.ResetInterval > 0 && d.framesDone > 0 && d.framesDone%d.opts.ResetInterval == 0 {
		d.r0, d.r1, d.r2 = 1, 1, 1
	}

	if d.opts.Delta {
		if _, err := d.br.ReadBits(16); err != nil {
			return err
		}
	}

	startPos := d.streamPos
	frameIndex := d.framesDone
	frame := make([]byte, 0, lzxFrameSize)
	for len(frame) < lzxFrameSize {
		startingNewBlock := d.active == nil
		if err := d.fillFromActiveBlock(&frame); err != nil {
			if startingNewBlock && errors.Is(err, bitio.ErrUnderflow) {
				// The bitstream ended cleanly between blocks: this is the
				// folder's final, short-of-32768 frame, not corruption.
				break
			}
			return err
		}
	}

	if d.e8Enabled && d.e8FileSize > 0 && frameIndex < 32768 && len(frame) >= 11 {
		applyIntelE8(frame, uint32(startPos), d.e8FileSize)
	}
	d.br.ByteAlign()
	d.framesDone++

	d.frameBuf = frame
	d.framePos = 0
	return nil
}

// fillFromActiveBlock decodes into frame until either the frame reaches
// lzxFrameSize or the active block is exhausted (in which case the next
// call reads a fresh block header).
func (d *LZXDecoder) fillFromActiveBlock(frame *[]byte) error {
	if d.active == nil {
		if err := d.readBlockHeader(); err != nil {
			return err
		}
	}
	for d.active.remaining > 0 && len(*frame) < lzxFrameSize {
		if err := d.decodeOneUnit(frame); err != nil {
			return err
		}
	}
	if d.active.remaining == 0 {
		d.active = nil
	}
	return nil
}

func (d *LZXDecoder) readBlockHeader() error {
	typBits, err := d.br.ReadBits(3)
	if err != nil {
		return err
	}
	typ := lzxBlockType(typBits)
	switch typ {
	case lzxBlockVerbatim, lzxBlockAligned, lzxBlockUncompressed:
	default:
		return errors.Wrapf(ErrCorruptInput, "lzx: invalid block type %d", typBits)
	}

	hi, err := d.br.ReadBits(16)
	if err != nil {
		return err
	}
	lo, err := d.br.ReadBits(8)
	if err != nil {
		return err
	}
	length := int(hi)<<8 | int(lo)

	d.active = &lzxActiveBlock{typ: typ, remaining: length}

	switch typ {
	case lzxBlockAligned:
		for i := range d.alignLen {
			v, err := d.br.ReadBits(3)
			if err != nil {
				return err
			}
			d.alignLen[i] = byte(v)
		}
		d.alnTree, err = huffman.Build(d.alignLen, lzxAlignTableBits, huffman.AllowIncomplete())
		if err != nil {
			return err
		}
		if err := d.readMainAndLengthTrees(); err != nil {
			return err
		}
	case lzxBlockVerbatim:
		if err := d.readMainAndLengthTrees(); err != nil {
			return err
		}
	case lzxBlockUncompressed:
		d.br.ByteAlign()
		var regs [12]byte
		for i := range regs {
			v, err := d.br.ReadBits(8)
			if err != nil {
				return err
			}
			regs[i] = byte(v)
		}
		d.r0 = le32(regs[0:4])
		d.r1 = le32(regs[4:8])
		d.r2 = le32(regs[8:12])
	}
	return nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (d *LZXDecoder) readMainAndLengthTrees() error {
	if err := d.readTreeLengths(d.mainLen[:lzxNumChars]); err != nil {
		return err
	}
	if err := d.readTreeLengths(d.mainLen[lzxNumChars:]); err != nil {
		return err
	}
	var err error
	d.mainTree, err = huffman.Build(d.mainLen, lzxMainTableBits)
	if err != nil {
		return err
	}
	if err := d.readTreeLengths(d.lengthLen); err != nil {
		return err
	}
	d.lenTree, err = huffman.Build(d.lengthLen, lzxLenTableBits, huffman.AllowIncomplete())
	if err != nil {
		return err
	}
	return nil
}

// readTreeLengths decodes one pass of the delta-coded length alphabet
// (spec.md §4.6 "Tree reads") into dst, updating it in place from its
// previous values (persistent across blocks).
func (d *LZXDecoder) readTreeLengths(dst []byte) error {
	var pretreeLen [lzxPretreeSize]byte
	for i := range pretreeLen {
		v, err := d.br.ReadBits(4)
		if err != nil {
			return err
		}
		pretreeLen[i] = byte(v)
	}
	pretree, err := huffman.Build(pretreeLen[:], lzxPretreeTableBits, huffman.AllowIncomplete())
	if err != nil {
		return err
	}

	i := 0
	for i < len(dst) {
		sym, err := pretree.Decode(d.br)
		if err != nil {
			return err
		}
		switch {
		case sym <= 16:
			delta := int(sym)
			dst[i] = byte((int(dst[i]) - delta + 17) % 17)
			i++
		case sym == 17:
			extra, err := d.br.ReadBits(4)
			if err != nil {
				return err
			}
			n := 4 + int(extra)
			for j := 0; j < n && i < len(dst); j++ {
				dst[i] = 0
				i++
			}
		case sym == 18:
			extra, err := d.br.ReadBits(5)
			if err != nil {
				return err
			}
			n := 20 + int(extra)
			for j := 0; j < n && i < len(dst); j++ {
				dst[i] = 0
				i++
			}
		case sym == 19:
			extra, err := d.br.ReadBits(1)
			if err != nil {
				return err
			}
			n := 4 + int(extra)
			sym2, err := pretree.Decode(d.br)
			if err != nil {
				return err
			}
			delta := int(sym2)
			if delta > 16 {
				return errors.Wrap(ErrCorruptInput, "lzx: invalid nested pretree symbol")
			}
			val := byte((int(dst[i]) - delta + 17) % 17)
			for j := 0; j < n && i < len(dst); j++ {
				dst[i] = val
				i++
			}
		default:
			return errors.Wrapf(ErrCorruptInput, "lzx: invalid pretree symbol %d", sym)
		}
	}
	return nil
}

// decodeOneUnit decodes one literal or match and appends its output bytes
// to frame, maintaining the sliding window and LRU registers.
func (d *LZXDecoder) decodeOneUnit(frame *[]byte) error {
	if d.active.typ == lzxBlockUncompressed {
		v, err := d.br.ReadBits(8)
		if err != nil {
			return err
		}
		d.emit(frame, byte(v))
		d.active.remaining--
		return nil
	}

	m, err := d.mainTree.Decode(d.br)
	if err != nil {
		return err
	}
	if m < lzxNumChars {
		d.emit(frame, byte(m))
		d.active.remaining--
		return nil
	}

	slotAndLen := int(m) - lzxNumChars
	posSlot := slotAndLen >> 3
	lenHeader := slotAndLen & 7

	length := lenHeader + lzxMinMatch
	if lenHeader == 7 {
		extraSym, err := d.lenTree.Decode(d.br)
		if err != nil {
			return err
		}
		length = int(extraSym) + 7 + lzxMinMatch
	}

	var offset uint32
	switch posSlot {
	case 0:
		offset = d.r0
	case 1:
		d.r0, d.r1 = d.r1, d.r0
		offset = d.r0
	case 2:
		d.r0, d.r2 = d.r2, d.r0
		offset = d.r0
	default:
		if posSlot >= len(lzxPositionBase) {
			return errors.Wrapf(ErrCorruptInput, "lzx: invalid position slot %d", posSlot)
		}
		extra := lzxExtraBits[posSlot]
		base := lzxPositionBase[posSlot] - 2
		var add uint32
		if d.active.typ == lzxBlockAligned && extra >= 3 {
			verbatimBits := extra - 3
			v, err := d.br.ReadBits(verbatimBits)
			if err != nil {
				return err
			}
			aln, err := d.alnTree.Decode(d.br)
			if err != nil {
				return err
			}
			add = (v << 3) | uint32(aln)
		} else if extra > 0 {
			v, err := d.br.ReadBits(extra)
			if err != nil {
				return err
			}
			add = v
		}
		offset = base + add + 2
		d.r2, d.r1, d.r0 = d.r1, d.r0, offset
	}

	if length == 257 && d.opts.Delta {
		ext, err := d.readDeltaExtendedLength()
		if err != nil {
			return err
		}
		length = ext
	}

	if uint64(offset) > d.streamPos {
		return errors.Wrapf(ErrCorruptInput, "lzx: match offset %d exceeds %d bytes produced so far", offset, d.streamPos)
	}

	winSize := len(d.window)
	srcPos := (int64(d.streamPos) - int64(offset)) % int64(winSize)
	if srcPos < 0 {
		srcPos += int64(winSize)
	}
	for i := 0; i < length; i++ {
		b := d.window[srcPos]
		srcPos = (srcPos + 1) % int64(winSize)
		d.emit(frame, b)
	}
	d.active.remaining -= length
	return nil
}

// readDeltaExtendedLength decodes the DELTA-variant extended-length tail
// (spec.md §4.6 "Match copy"): a tiny prefix code selecting how many raw
// bits follow.
func (d *LZXDecoder) readDeltaExtendedLength() (int, error) {
	b0, err := d.br.ReadBits(1)
	if err != nil {
		return 0, err
	}
	if b0 == 0 {
		v, err := d.br.ReadBits(8)
		if err != nil {
			return 0, err
		}
		return int(v), nil
	}
	b1, err := d.br.ReadBits(1)
	if err != nil {
		return 0, err
	}
	if b1 == 0 {
		v, err := d.br.ReadBits(10)
		if err != nil {
			return 0, err
		}
		return int(v) + 0x100, nil
	}
	b2, err := d.br.ReadBits(1)
	if err != nil {
		return 0, err
	}
	if b2 == 0 {
		v, err := d.br.ReadBits(12)
		if err != nil {
			return 0, err
		}
		return int(v) + 0x500, nil
	}
	v, err := d.br.ReadBits(15)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

func (d *LZXDecoder) emit(frame *[]byte, b byte) {
	*frame = append(*frame, b)
	d.window[d.streamPos%uint64(len(d.window))] = b
	d.streamPos++
}

// applyIntelE8 reverses LZX's x86 CALL-operand preprocessing: each 0xE8
// byte followed by a 32-bit little-endian operand that falls within
// [-currentPos, fileSize) is treated as an absolute address and rewritten
// as a relative one: currentPos is subtracted, and fileSize is added when
// the result is negative.
func applyIntelE8(frame []byte, framePos, fileSize uint32) {
	if len(frame) < 10 {
		return
	}
	end := len(frame) - 10
	for i := 0; i <= end; {
		if frame[i] != 0xE8 {
			i++
			continue
		}
		operand := int64(int32(le32(frame[i+1 : i+5])))
		pos := int64(framePos) + int64(i)
		if operand >= -pos && operand < int64(fileSize) {
			rel := operand - pos
			if rel < 0 {
				rel += int64(fileSize)
			}
			newOperand := uint32(rel)
			frame[i+1] = byte(newOperand)
			frame[i+2] = byte(newOperand >> 8)
			frame[i+3] = byte(newOperand >> 16)
			frame[i+4] = byte(newOperand >> 24)
		}
		i += 5
	}
}
