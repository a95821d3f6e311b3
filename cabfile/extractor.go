package cabfile

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/google/gocab/decode"
)

// maxStalledDecompress bounds how many consecutive Decompress calls may
// return zero bytes with no error before the extractor gives up on the
// stream as corrupt. Some malformed inputs (e.g. the cve-2010-2800 MSZIP
// fixture class) drive a decoder into producing empty frames forever
// without ever raising an error; without this bound Extract/discardUntil
// would spin indefinitely instead of failing with ErrCorruptInput.
const maxStalledDecompress = 4096

// folderState is one folder's live decoder plus the block reader feeding
// it and a running count of decompressed bytes produced so far, spec.md
// §4.12.
type folderState struct {
	decoder  decode.Decoder
	reader   *blockReader
	produced uint64
}

// Extractor drives a cabinet's decompression pipelines, one per folder,
// reusing each folder's decoder state across Extract calls so that
// re-extracting an already-passed
// offset is the only thing that forces a rebuild from the folder's first
// block.
type Extractor struct {
	cab  *Cabinet
	opts Options
}

// NewExtractor returns an Extractor bound to c.
func NewExtractor(c *Cabinet, opts Options) *Extractor {
	if opts.Log == nil {
		opts.Log = c.Log
	}
	return &Extractor{cab: c, opts: opts}
}

func (e *Extractor) stateFor(f *Folder) (*folderState, error) {
	if st, ok := e.cab.extractors[f]; ok {
		return st, nil
	}
	st, err := e.newState(f)
	if err != nil {
		return nil, err
	}
	e.cab.extractors[f] = st
	return st, nil
}

func (e *Extractor) newState(f *Folder) (*folderState, error) {
	reader := newBlockReader(f.cab, f, e.opts)
	dec, err := e.newDecoder(f, reader)
	if err != nil {
		return nil, err
	}
	return &folderState{decoder: dec, reader: reader}, nil
}

func (e *Extractor) newDecoder(f *Folder, src decode.BlockSource) (decode.Decoder, error) {
	switch f.Method() {
	case CompressNone:
		return decode.NewNoneDecoder(src), nil
	case CompressMSZIP:
		return decode.NewMSZIPDecoder(src, decode.MSZIPOptions{
			Salvage:   e.opts.Salvage,
			FixFrames: e.opts.FixMSZIP,
			Log:       e.opts.Log,
		}), nil
	case CompressQuantum:
		return decode.NewQuantumDecoder(src, decode.QuantumOptions{
			WindowBits: uint(f.Param()),
			Salvage:    e.opts.Salvage,
			Log:        e.opts.Log,
		}), nil
	case CompressLZX:
		return decode.NewLZXDecoder(src, decode.LZXOptions{
			WindowBits: uint(f.Param()),
			Salvage:    e.opts.Salvage,
			Log:        e.opts.Log,
		}), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "cabfile: folder compression method %d", f.Method())
	}
}

// Extract writes file f's decompressed bytes to w, per spec.md §4.12:
// rebuilding the folder's decoder from scratch if f's offset precedes
// what has already been produced, otherwise draining forward from the
// current position.
func (e *Extractor) Extract(f *File, w io.Writer) error {
	if f.IsContinuation() {
		return errors.Wrap(ErrCorruptDirectory, "cabfile: file has no resolvable folder (continuation sentinel)")
	}
	folder := f.folder

	st, err := e.stateFor(folder)
	if err != nil {
		return err
	}
	if st.produced > uint64(f.FolderOffset) {
		st, err = e.newState(folder)
		if err != nil {
			return err
		}
		e.cab.extractors[folder] = st
	}

	if err := e.discardUntil(st, uint64(f.FolderOffset)); err != nil {
		return err
	}

	remaining := int(f.Length)
	buf := make([]byte, 32*1024)
	stalled := 0
	for remaining > 0 {
		n := len(buf)
		if n > remaining {
			n = remaining
		}
		got, err := st.decoder.Decompress(buf[:n])
		st.produced += uint64(got)
		if got > 0 {
			stalled = 0
			if _, werr := w.Write(buf[:got]); werr != nil {
				return errors.Wrap(ErrDecompression, "cabfile: output write failed: "+werr.Error())
			}
		} else if err == nil {
			stalled++
			if stalled > maxStalledDecompress {
				return errors.Wrap(ErrCorruptInput, "cabfile: decoder made no progress; corrupt stream")
			}
		}
		remaining -= got
		if err != nil {
			if e.opts.Salvage {
				e.opts.Log.Warnf("cabfile: salvaging %q after decode error: %v", f.Name, err)
				return nil
			}
			return err
		}
	}
	return nil
}

func (e *Extractor) discardUntil(st *folderState, target uint64) error {
	if st.produced > target {
		return errors.Wrap(ErrCorruptDirectory, "cabfile: folder decoder already past requested offset")
	}
	buf := make([]byte, 32*1024)
	stalled := 0
	for st.produced < target {
		n := len(buf)
		if want := target - st.produced; want < uint64(n) {
			n = int(want)
		}
		got, err := st.decoder.Decompress(buf[:n])
		st.produced += uint64(got)
		if got > 0 {
			stalled = 0
		} else if err == nil {
			stalled++
			if stalled > maxStalledDecompress {
				return errors.Wrap(ErrCorruptInput, "cabfile: decoder made no progress; corrupt stream")
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyMetadata sets path's modification time (if setTimestamps) and
// permission bits from f's attributes (if setPerms), per spec.md §4.12.
func ApplyMetadata(path string, f *File, setTimestamps, setPerms bool) error {
	if setTimestamps {
		t := f.ModTime()
		if err := os.Chtimes(path, t, t); err != nil {
			return errors.Wrap(err, "cabfile: could not set timestamp")
		}
	}
	if setPerms {
		mode := os.FileMode(0644)
		if f.Attributes&AttrReadOnly != 0 {
			mode &^= 0200
		}
		if f.Attributes&AttrExecute != 0 {
			mode |= 0100
		}
		if err := os.Chmod(path, mode); err != nil {
			return errors.Wrap(err, "cabfile: could not set permissions")
		}
	}
	return nil
}
