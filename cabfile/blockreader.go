package cabfile

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// checksum implements the MS-CAB CFDATA checksum (spec.md §4.8): fold the
// reserve area and payload as little-endian uint32 words, XOR-accumulated,
// XOR in the cbData/cbUncomp pair packed as one little-endian uint32
// (cbData low, cbUncomp high), and fold any trailing 1-3 byte fragment in as a
// big-endian partial word (the first remaining byte is the most-significant
// byte of the fragment).
func checksum(reserve, payload []byte, cbData, cbUncomp uint16) uint32 {
	var csum uint32
	fold := func(b []byte) {
		i := 0
		for ; i+4 <= len(b); i += 4 {
			csum ^= binary.LittleEndian.Uint32(b[i : i+4])
		}
		if rem := len(b) - i; rem > 0 {
			var word uint32
			for j := 0; j < rem; j++ {
				word = word<<8 | uint32(b[i+j])
			}
			csum ^= word
		}
	}
	fold(reserve)
	fold(payload)
	seed := uint32(cbData) | uint32(cbUncomp)<<16
	csum ^= seed
	return csum
}

// blockReader implements decode.BlockSource over a Folder's CFDATA
// records. It reads sequentially from the point it last left off, so no
// block boundary needs to be recomputed from the folder's block count;
// when a folder's blocks run out it moves on to MergeNext (set by Append/
// Prepend fusing continuation files across a multi-part set), opening
// that folder's own cabinet and seeking to its data offset.
type blockReader struct {
	cab    *Cabinet
	folder *Folder
	opts   Options

	remaining uint16 // CFDATA records left to read from folder in cab
	done      bool
	started   bool
}

func newBlockReader(c *Cabinet, f *Folder, opts Options) *blockReader {
	if opts.Log == nil {
		opts.Log = c.Log
	}
	return &blockReader{cab: c, folder: f, opts: opts, remaining: f.BlockCount}
}

func (b *blockReader) seekToFolderStart() error {
	_, err := b.cab.r.Seek(b.cab.BaseOffset+int64(b.folder.DataOffset), io.SeekStart)
	return err
}

// NextBlock returns the next CFDATA block's payload and declared
// uncompressed size, transparently splicing a cbUncomp==0 continuation
// marker's payload onto the first block of the next physical folder in
// the chain (spec.md §4.8).
func (b *blockReader) NextBlock() ([]byte, int, error) {
	if !b.started {
		b.started = true
		if err := b.seekToFolderStart(); err != nil {
			return nil, 0, errors.Wrap(err, "cabfile: could not seek to folder start")
		}
	}
	for b.remaining == 0 {
		if b.done {
			return nil, 0, io.EOF
		}
		next := b.folder.MergeNext
		if next == nil {
			b.done = true
			return nil, 0, io.EOF
		}
		b.folder = next
		b.cab = next.cab
		b.remaining = next.BlockCount
		if err := b.seekToFolderStart(); err != nil {
			return nil, 0, errors.Wrap(err, "cabfile: could not seek to continuation folder")
		}
	}

	payload, cbUncomp, err := b.readOneBlock()
	if err != nil {
		return nil, 0, err
	}
	b.remaining--

	for cbUncomp == 0 {
		// The compressed unit spans into the next cabinet: its first
		// block continues this one, undeclared-size until that read.
		if b.remaining != 0 {
			return nil, 0, errors.Wrap(ErrCorruptDirectory, "cabfile: continuation marker not on a folder's final block")
		}
		next := b.folder.MergeNext
		if next == nil {
			return nil, 0, errors.Wrap(ErrCorruptDirectory, "cabfile: continuation marker with no next cabinet in set")
		}
		b.folder = next
		b.cab = next.cab
		b.remaining = next.BlockCount
		if err := b.seekToFolderStart(); err != nil {
			return nil, 0, errors.Wrap(err, "cabfile: could not seek to continuation folder")
		}
		more, uncomp, err := b.readOneBlock()
		if err != nil {
			return nil, 0, err
		}
		b.remaining--
		payload = append(payload, more...)
		cbUncomp = uncomp
	}

	return payload, cbUncomp, nil
}

func (b *blockReader) readOneBlock() ([]byte, int, error) {
	var hdr [8]byte
	if err := readFull(b.cab.r, hdr[:]); err != nil {
		return nil, 0, errors.Wrap(ErrCorruptDirectory, "cabfile: truncated CFDATA header")
	}
	csum := binary.LittleEndian.Uint32(hdr[0:4])
	cbData := binary.LittleEndian.Uint16(hdr[4:6])
	cbUncomp := binary.LittleEndian.Uint16(hdr[6:8])

	var reserve []byte
	if b.cab.BlockReserveSize > 0 {
		reserve = make([]byte, b.cab.BlockReserveSize)
		if err := readFull(b.cab.r, reserve); err != nil {
			return nil, 0, errors.Wrap(ErrCorruptDirectory, "cabfile: truncated CFDATA reserve")
		}
	}

	payload := make([]byte, cbData)
	if err := readFull(b.cab.r, payload); err != nil {
		return nil, 0, errors.Wrap(ErrCorruptDirectory, "cabfile: truncated CFDATA payload")
	}

	if csum != 0 {
		if got := checksum(reserve, payload, cbData, cbUncomp); got != csum {
			if !b.opts.Salvage {
				return nil, 0, errors.Wrapf(ErrCorruptInput, "cabfile: CFDATA checksum mismatch: got %#x, want %#x", got, csum)
			}
			b.opts.Log.Warnf("cabfile: CFDATA checksum mismatch (salvaging): got %#x, want %#x", got, csum)
		}
	}

	return payload, int(cbUncomp), nil
}
