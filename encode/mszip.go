package encode

import (
	"bytes"
	"compress/flate"
)

const mszipFrameSize = 32768

var mszipSignature = [2]byte{'C', 'K'}

// MSZIPEncoder frames input into 32 KiB chunks, each deflated against the
// previous chunk's plaintext as dictionary and prefixed with the "CK"
// signature decode.MSZIPDecoder expects.
type MSZIPEncoder struct {
	dst    BlockSink
	pend   []byte
	window []byte // previous frame's plaintext, used as dict
}

func NewMSZIPEncoder(dst BlockSink) *MSZIPEncoder {
	return &MSZIPEncoder{dst: dst}
}

func (e *MSZIPEncoder) Compress(p []byte) error {
	e.pend = append(e.pend, p...)
	for len(e.pend) >= mszipFrameSize {
		if err := e.emitFrame(e.pend[:mszipFrameSize]); err != nil {
			return err
		}
		e.pend = e.pend[mszipFrameSize:]
	}
	return nil
}

func (e *MSZIPEncoder) Flush() error {
	if len(e.pend) == 0 {
		return nil
	}
	frame := e.pend
	e.pend = nil
	return e.emitFrame(frame)
}

func (e *MSZIPEncoder) emitFrame(frame []byte) error {
	var buf bytes.Buffer
	buf.Write(mszipSignature[:])

	fw, err := flate.NewWriterDict(&buf, flate.BestCompression, e.window)
	if err != nil {
		return err
	}
	if _, err := fw.Write(frame); err != nil {
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}

	e.window = append([]byte(nil), frame...)
	return e.dst.WriteBlock(buf.Bytes(), len(frame))
}
