package decode

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/google/gocab/bitio"
)

const (
	quantumFrameSize  = 32768
	quantumRescaleAt  = 3800
	quantumNumLitMods = 4
	quantumLitSyms    = 64
	quantumLenSyms    = 27
	quantumSelSyms    = 7
)

// quantumPositionBase/quantumExtraBits size the position alphabet used by
// selectors 4, 5 and 6 (spec.md §4.7).
var quantumPositionBase = [42]uint32{
	0, 1, 2, 3, 4, 6, 8, 12, 16, 24, 32, 48, 64, 96, 128, 192,
	256, 384, 512, 768, 1024, 1536, 2048, 3072, 4096, 6144, 8192, 12288,
	16384, 24576, 32768, 49152, 65536, 98304, 131072, 196608, 262144,
	393216, 524288, 655360, 786432, 917504,
}

var quantumExtraBits = [42]uint{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
	7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12,
	13, 13, 14, 14, 15, 15, 16, 16, 17, 17, 18, 18, 19, 19,
}

var quantumLengthBase = [27]uint32{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 10, 12, 14, 16, 20, 24, 28,
	32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192,
}

var quantumLengthExtra = [27]uint{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
	3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 15,
}

// qModel is one adaptive frequency table: symbols kept in descending-
// frequency order, re-sorted in place as frequencies change, and rescaled
// once the total exceeds quantumRescaleAt.
type qModel struct {
	syms []uint16
	freq []uint16
}

func newQModel(numSyms, firstSym int) *qModel {
	m := &qModel{syms: make([]uint16, numSyms), freq: make([]uint16, numSyms)}
	for i := 0; i < numSyms; i++ {
		m.syms[i] = uint16(firstSym + i)
		m.freq[i] = uint16(numSyms - i)
	}
	return m
}

func (m *qModel) total() uint32 {
	var t uint32
	for _, f := range m.freq {
		t += uint32(f)
	}
	return t
}

// cumAbove returns the cumulative frequency of all entries strictly above
// index i (i.e. the lower bound of i's interval counted from the top).
func (m *qModel) cumAbove(i int) uint32 {
	var c uint32
	for j := 0; j < i; j++ {
		c += uint32(m.freq[j])
	}
	return c
}

func (m *qModel) update(i int) {
	m.freq[i] += 8
	for i > 0 && m.freq[i] > m.freq[i-1] {
		m.syms[i], m.syms[i-1] = m.syms[i-1], m.syms[i]
		m.freq[i], m.freq[i-1] = m.freq[i-1], m.freq[i]
		i--
	}
	if m.total() > quantumRescaleAt {
		for j := range m.freq {
			m.freq[j] = (m.freq[j] + 1) / 2
		}
	}
}

// QuantumOptions configures the window size and salvage tolerance.
type QuantumOptions struct {
	WindowBits uint // 10..21
	Salvage    bool
	Log        *logrus.Logger
}

// QuantumDecoder implements the seven-model adaptive arithmetic coder
// described in spec.md §4.7.
type QuantumDecoder struct {
	src    BlockSource
	opts   QuantumOptions
	stream *blockStream
	br     bitio.BitReader

	window    []byte
	streamPos uint64

	h, l, c uint32

	litModels [4]*qModel
	posModels [3]*qModel // indexed 0,1,2 for selectors 4,5,6
	lenModel  *qModel
	selModel  *qModel

	frameBuf []byte
	framePos int
	started  bool
}

// NewQuantumDecoder returns a Decoder for compression method 2.
func NewQuantumDecoder(src BlockSource, opts QuantumOptions) *QuantumDecoder {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	d := &QuantumDecoder{src: src, opts: opts}
	d.Reset()
	return d
}

func (d *QuantumDecoder) posModelSize(which int) int {
	w := 2 * int(d.opts.WindowBits)
	switch which {
	case 0:
		if w > 24 {
			w = 24
		}
	case 1:
		if w > 36 {
			w = 36
		}
	}
	return w
}

func (d *QuantumDecoder) Reset() {
	d.window = make([]byte, 1<<d.opts.WindowBits)
	d.streamPos = 0
	for i := range d.litModels {
		d.litModels[i] = newQModel(quantumLitSyms, 0)
	}
	for i := range d.posModels {
		d.posModels[i] = newQModel(d.posModelSize(i), 0)
	}
	d.lenModel = newQModel(quantumLenSyms, 0)
	d.selModel = newQModel(quantumSelSyms, 0)
	d.stream = newBlockStream(d.src)
	d.br = bitio.NewMSB16Reader(d.stream, d.opts.Salvage)
	d.frameBuf = nil
	d.framePos = 0
	d.started = false
}

func (d *QuantumDecoder) Decompress(out []byte) (int, error) {
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

func (d *QuantumDecoder) initFrameCoder() error {
	d.h = 0xFFFF
	d.l = 0
	v, err := d.br.ReadBits(16)
	if err != nil {
		return err
	}
	d.c = v
	return nil
}

func (d *QuantumDecoder) decodeNextFrame() error {
	if err := d.initFrameCoder(); err != nil {
		return err
	}

	frame := make([]byte, 0, quantumFrameSize)
	for len(frame) < quantumFrameSize {
		sel, err := d.decodeSymbol(d.selModel)
		if err != nil {
			return err
		}
		switch {
		case sel <= 3:
			litSym, err := d.decodeSymbol(d.litModels[sel])
			if err != nil {
				return err
			}
			d.emit(&frame, byte(sel*quantumLitSyms+litSym))
		case sel == 4:
			if err := d.decodeMatch(&frame, 0, 3); err != nil {
				return err
			}
		case sel == 5:
			if err := d.decodeMatch(&frame, 1, 4); err != nil {
				return err
			}
		case sel == 6:
			lenSym, err := d.decodeSymbol(d.lenModel)
			if err != nil {
				return err
			}
			if lenSym >= len(quantumLengthBase) {
				return errors.Wrapf(ErrCorruptInput, "quantum: invalid length symbol %d", lenSym)
			}
			extra := quantumLengthExtra[lenSym]
			var extraBits uint32
			if extra > 0 {
				v, err := d.br.ReadBits(extra)
				if err != nil {
					return err
				}
				extraBits = v
			}
			length := int(quantumLengthBase[lenSym]) + int(extraBits)
			if err := d.decodeMatch(&frame, 2, length); err != nil {
				return err
			}
		default:
			return errors.Wrapf(ErrCorruptInput, "quantum: invalid selector %d", sel)
		}
	}

	// Frame trailer: byte-align then consume bytes until 0xFF.
	d.br.ByteAlign()
	for {
		v, err := d.br.ReadBits(8)
		if err != nil {
			return err
		}
		if v == 0xFF {
			break
		}
	}

	d.frameBuf = frame
	d.framePos = 0
	return nil
}

// decodeMatch decodes a position from posModels[which] and copies length
// bytes from the window.
func (d *QuantumDecoder) decodeMatch(frame *[]byte, which, length int) error {
	posSym, err := d.decodeSymbol(d.posModels[which])
	if err != nil {
		return err
	}
	if posSym >= len(quantumExtraBits) {
		return errors.Wrapf(ErrCorruptInput, "quantum: invalid position symbol %d", posSym)
	}
	extra := quantumExtraBits[posSym]
	var extraBits uint32
	if extra > 16 {
		// ReadBits takes at most 17 bits; the top slots of a 20- or
		// 21-bit window carry 18 or 19, so read the high part first.
		hi, err := d.br.ReadBits(extra - 16)
		if err != nil {
			return err
		}
		extraBits = hi << 16
		extra = 16
	}
	if extra > 0 {
		v, err := d.br.ReadBits(extra)
		if err != nil {
			return err
		}
		extraBits |= v
	}
	offset := quantumPositionBase[posSym] + extraBits + 1

	winSize := uint64(len(d.window))
	if uint64(offset) > winSize {
		return errors.Wrapf(ErrCorruptInput, "quantum: match offset %d exceeds window size %d", offset, winSize)
	}
	if uint64(offset) > d.streamPos {
		return errors.Wrapf(ErrCorruptInput, "quantum: match offset %d exceeds %d bytes produced so far", offset, d.streamPos)
	}

	srcPos := (int64(d.streamPos) - int64(offset)) % int64(winSize)
	if srcPos < 0 {
		srcPos += int64(winSize)
	}
	for i := 0; i < length; i++ {
		b := d.window[srcPos]
		srcPos = (srcPos + 1) % int64(winSize)
		d.emit(frame, b)
	}
	return nil
}

func (d *QuantumDecoder) emit(frame *[]byte, b byte) {
	*frame = append(*frame, b)
	d.window[d.streamPos%uint64(len(d.window))] = b
	d.streamPos++
}

// decodeSymbol decodes one symbol from model using the shared H/L/C
// registers, per spec.md §4.7's arithmetic coder description.
func (d *QuantumDecoder) decodeSymbol(m *qModel) (int, error) {
	total := m.total()
	rangeW := (d.h - d.l) + 1
	target := (((d.c - d.l + 1) * total) - 1) / rangeW

	var idx int
	var cumAbove, freq uint32
	acc := uint32(0)
	for i, f := range m.freq {
		if target < acc+uint32(f) {
			idx = i
			cumAbove = acc
			freq = uint32(f)
			break
		}
		acc += uint32(f)
		idx = i + 1
	}
	if idx >= len(m.freq) {
		return 0, errors.Wrap(ErrCorruptInput, "quantum: arithmetic decode selected an out-of-range symbol")
	}

	d.h = d.l + (rangeW*(cumAbove+freq))/total - 1
	d.l = d.l + (rangeW*cumAbove)/total

	sym := int(m.syms[idx])
	m.update(idx)

	if err := d.renormalize(); err != nil {
		return 0, err
	}
	return sym, nil
}

func (d *QuantumDecoder) renormalize() error {
	for {
		if (d.h & 0x8000) == (d.l & 0x8000) {
			d.h = ((d.h << 1) & 0xFFFF) | 1
			d.l = (d.l << 1) & 0xFFFF
			bit, err := d.br.ReadBits(1)
			if err != nil {
				return err
			}
			d.c = ((d.c << 1) & 0xFFFF) | bit
		} else if (d.l&0x4000) != 0 && (d.h&0x4000) == 0 {
			d.c ^= 0x4000
			d.l &= 0x3FFF
			d.h |= 0x4000
			d.h = ((d.h << 1) & 0xFFFF) | 1
			d.l = (d.l << 1) & 0xFFFF
			bit, err := d.br.ReadBits(1)
			if err != nil {
				return err
			}
			d.c = ((d.c << 1) & 0xFFFF) | bit
		} else {
			break
		}
	}
	return nil
}
