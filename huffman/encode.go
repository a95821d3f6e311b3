package huffman

import "github.com/pkg/errors"

// Codes assigns each non-zero-length symbol its canonical Huffman code,
// using the same bl_count/nextCode algorithm Build uses to decode — so a
// table built from lengths and a code assigned from Codes always agree.
// codes[sym] is meaningful only where lengths[sym] > 0; the code occupies
// the low lengths[sym] bits of the returned value, MSB-first.
func Codes(lengths []byte) ([]uint32, error) {
	var blCount [maxCodeLen + 1]int
	for _, l := range lengths {
		if l > maxCodeLen {
			return nil, errors.Errorf("huffman: code length %d exceeds maximum %d", l, maxCodeLen)
		}
		blCount[l]++
	}
	var kraft uint64
	for l := 1; l <= maxCodeLen; l++ {
		kraft += uint64(blCount[l]) << (maxCodeLen - l)
	}
	if kraft > (1 << maxCodeLen) {
		return nil, ErrBadTable
	}

	var code uint32
	var nextCode [maxCodeLen + 1]uint32
	blCount[0] = 0
	for bits := 1; bits <= maxCodeLen; bits++ {
		code = (code + uint32(blCount[bits-1])) << 1
		nextCode[bits] = code
	}

	codes := make([]uint32, len(lengths))
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		codes[sym] = nextCode[l]
		nextCode[l]++
	}
	return codes, nil
}
