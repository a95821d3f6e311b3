package encode

// NoneEncoder writes each Compress call straight through, split into
// blocks of at most 32 KiB, the symmetric counterpart to
// decode.NoneDecoder.
type NoneEncoder struct {
	dst BlockSink
}

func NewNoneEncoder(dst BlockSink) *NoneEncoder {
	return &NoneEncoder{dst: dst}
}

func (e *NoneEncoder) Compress(p []byte) error {
	// A CFDATA record's cbData is 16 bits wide, so large inputs are cut
	// into 32 KiB blocks.
	for len(p) > 0 {
		n := len(p)
		if n > 32768 {
			n = 32768
		}
		buf := make([]byte, n)
		copy(buf, p[:n])
		if err := e.dst.WriteBlock(buf, n); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (e *NoneEncoder) Flush() error { return nil }
