package decode

import (
	"io"

	"github.com/pkg/errors"
)

// NoneDecoder passes CFDATA block payloads straight through. It is the
// only decoder with no state beyond "how far into the current block am
// I", but it still has to honour the caller's requested length across
// short reads and block boundaries.
type NoneDecoder struct {
	src     BlockSource
	pending []byte // unread tail of the current block
}

// NewNoneDecoder returns a Decoder for compression method 0.
func NewNoneDecoder(src BlockSource) *NoneDecoder {
	return &NoneDecoder{src: src}
}

func (d *NoneDecoder) Reset() {
	d.pending = nil
}

func (d *NoneDecoder) Decompress(out []byte) (int, error) {
	need := len(out)
	got := 0
	for got < need {
		if len(d.pending) == 0 {
			block, uncompSize, err := d.src.NextBlock()
			if err != nil {
				if err == io.EOF {
					return got, errors.Wrap(ErrCorruptInput, "none: input exhausted before requested length satisfied")
				}
				return got, err
			}
			if len(block) != uncompSize {
				return got, errors.Wrapf(ErrCorruptInput, "none: compressed length %d does not equal uncompressed length %d", len(block), uncompSize)
			}
			d.pending = block
		}
		n := copy(out[got:], d.pending)
		d.pending = d.pending[n:]
		got += n
	}
	return got, nil
}
