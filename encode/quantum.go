package encode

import "github.com/google/gocab/bitio"

const (
	quantumFrameSize = 32768
	quantumRescaleAt = 3800
	quantumLitSyms   = 64
	quantumSelSyms   = 7
)

// qModel mirrors decode's adaptive frequency table exactly (descending
// order, +8 bump, resort, rescale past quantumRescaleAt) so encoder and
// decoder update state identically symbol-for-symbol.
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

func (m *qModel) find(sym int) (idx int, cumAbove uint32) {
	var c uint32
	for i, s := range m.syms {
		if int(s) == sym {
			return i, c
		}
		c += uint32(m.freq[i])
	}
	return -1, 0
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

// QuantumSubsetEncoder implements only the literal path of the Quantum
// coder (selectors 0-3, no matches): enough to satisfy spec.md §8's
// "Quantum-subset" round-trip property against decode.QuantumDecoder,
// which never special-cases an all-literal stream. Not registered in the
// algorithm factory since it cannot represent match references.
type QuantumSubsetEncoder struct {
	dst BlockSink

	litModels [4]*qModel
	selModel  *qModel

	pend []byte

	h, l    uint32
	pending int

	bw  *bitio.MSB16Writer
	buf *countingWriter
}

func NewQuantumSubsetEncoder(dst BlockSink) *QuantumSubsetEncoder {
	e := &QuantumSubsetEncoder{dst: dst}
	e.resetModels()
	return e
}

func (e *QuantumSubsetEncoder) resetModels() {
	for i := range e.litModels {
		e.litModels[i] = newQModel(quantumLitSyms, 0)
	}
	e.selModel = newQModel(quantumSelSyms, 0)
}

func (e *QuantumSubsetEncoder) Compress(p []byte) error {
	e.pend = append(e.pend, p...)
	for len(e.pend) >= quantumFrameSize {
		if err := e.emitFrame(e.pend[:quantumFrameSize]); err != nil {
			return err
		}
		e.pend = e.pend[quantumFrameSize:]
	}
	return nil
}

func (e *QuantumSubsetEncoder) Flush() error {
	if len(e.pend) == 0 {
		return nil
	}
	frame := e.pend
	e.pend = nil
	return e.emitFrame(frame)
}

func (e *QuantumSubsetEncoder) emitBit(bit uint32) error {
	if err := e.bw.WriteBits(bit, 1); err != nil {
		return err
	}
	opp := uint32(1) - bit
	for ; e.pending > 0; e.pending-- {
		if err := e.bw.WriteBits(opp, 1); err != nil {
			return err
		}
	}
	return nil
}

func (e *QuantumSubsetEncoder) renormalize() error {
	for {
		if (e.h & 0x8000) == (e.l & 0x8000) {
			bit := (e.h >> 15) & 1
			if err := e.emitBit(bit); err != nil {
				return err
			}
			e.h = ((e.h << 1) & 0xFFFF) | 1
			e.l = (e.l << 1) & 0xFFFF
		} else if (e.l&0x4000) != 0 && (e.h&0x4000) == 0 {
			e.pending++
			e.l &= 0x3FFF
			e.h |= 0x4000
			e.h = ((e.h << 1) & 0xFFFF) | 1
			e.l = (e.l << 1) & 0xFFFF
		} else {
			break
		}
	}
	return nil
}

func (e *QuantumSubsetEncoder) encodeSymbol(m *qModel, sym int) error {
	idx, cumAbove := m.find(sym)
	total := m.total()
	freq := uint32(m.freq[idx])

	rangeW := (e.h - e.l) + 1
	e.h = e.l + (rangeW*(cumAbove+freq))/total - 1
	e.l = e.l + (rangeW*cumAbove)/total

	m.update(idx)
	return e.renormalize()
}

func (e *QuantumSubsetEncoder) emitFrame(frame []byte) error {
	e.buf = &countingWriter{}
	e.bw = bitio.NewMSB16Writer(e.buf)
	e.h, e.l, e.pending = 0xFFFF, 0, 0

	for _, b := range frame {
		sel := int(b >> 6) // 0-3, matching litModels[sel] covering that quarter of the byte range
		lit := int(b) - sel*quantumLitSyms
		if err := e.encodeSymbol(e.selModel, sel); err != nil {
			return err
		}
		if err := e.encodeSymbol(e.litModels[sel], lit); err != nil {
			return err
		}
	}

	// Flush: two bits of L disambiguate the final interval, per the
	// standard arithmetic-coder finish.
	if err := e.emitBit((e.l >> 14) & 1); err != nil {
		return err
	}
	if err := e.emitBit((e.l >> 13) & 1); err != nil {
		return err
	}
	if err := e.bw.ByteAlign(); err != nil {
		return err
	}
	if err := e.bw.WriteBits(0xFF, 8); err != nil {
		return err
	}
	if err := e.bw.Flush(); err != nil {
		return err
	}

	return e.dst.WriteBlock(e.buf.buf, len(frame))
}
