package cabfile

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultSearchBufferSize = 32768

var installShieldSignature = []byte("ISc(")

// Search scans r in searchBufferSize-byte chunks for "MSCF" headers
// (spec.md §4.10), tentatively parsing each candidate and linking valid
// cabinets together via Next in the order found. It returns the head of
// the chain, or nil if nothing valid was found.
func Search(r io.ReadSeeker, searchBufferSize int, opts Options) (*Cabinet, error) {
	if searchBufferSize <= 0 {
		searchBufferSize = defaultSearchBufferSize
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	fileLen, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "cabfile: could not determine file length")
	}

	var head, tail *Cabinet
	buf := make([]byte, searchBufferSize)
	// Overlap each chunk by 3 bytes so a signature straddling a chunk
	// boundary is not missed.
	const overlap = 3

	var pos int64
	for pos < fileLen {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return nil, errors.Wrap(err, "cabfile: could not seek while searching")
		}
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, errors.Wrap(err, "cabfile: read error while searching")
		}
		chunk := buf[:n]

		if idx := bytes.Index(chunk, installShieldSignature); idx >= 0 {
			opts.Log.Warnf("cabfile: found InstallShield signature at offset %d, not a Microsoft cabinet", pos+int64(idx))
		}

		for i := 0; i < len(chunk); i++ {
			if i+4 > len(chunk) || string(chunk[i:i+4]) != signature {
				continue
			}
			candidate := pos + int64(i)
			if _, err := r.Seek(candidate, io.SeekStart); err != nil {
				continue
			}
			c, err := Parse(r, opts)
			if err != nil {
				continue
			}
			if int64(c.Length) > fileLen-candidate+32 {
				if !opts.Salvage {
					continue
				}
			}
			if head == nil {
				head = c
			} else {
				tail.Next = c
				c.Prev = tail
			}
			tail = c
		}

		if n < len(buf) {
			// Reached end of file this chunk.
			break
		}
		pos += int64(len(chunk) - overlap)
	}

	return head, nil
}
