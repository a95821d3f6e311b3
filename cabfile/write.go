package cabfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/google/gocab/encode"
	"github.com/google/gocab/internal/dostime"
	"github.com/google/gocab/registry"
)

// NewFile describes one member to be written into a new cabinet by
// Create.
type NewFile struct {
	Name    string
	Data    []byte
	ModTime time.Time // zero value is encoded as "now"
}

// CreateOptions configures Create's output cabinet.
type CreateOptions struct {
	Compression string // "none", "mszip", "lzx"; "lzss" has no folder tag and "quantum" no encoder, so both fail
	WindowBits  uint   // lzx only; 15 if zero
	SetID       uint16
	CabinetIndex uint16
	Registry    *registry.Registry // nil uses registry.Default
}

// dataBlockSink collects one folder's CFDATA records as Compress/Flush
// calls produce them, computing and prepending each record's checksum.
type dataBlockSink struct {
	blocks bytes.Buffer
	count  uint16
}

func (s *dataBlockSink) WriteBlock(compressed []byte, uncompressedSize int) error {
	if len(compressed) > 0xFFFF || uncompressedSize > 0xFFFF {
		return errors.Wrap(ErrDecompression, "cabfile: block exceeds 64 KiB limit")
	}
	cbData := uint16(len(compressed))
	cbUncomp := uint16(uncompressedSize)
	csum := checksum(nil, compressed, cbData, cbUncomp)

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], csum)
	binary.LittleEndian.PutUint16(hdr[4:6], cbData)
	binary.LittleEndian.PutUint16(hdr[6:8], cbUncomp)
	s.blocks.Write(hdr[:])
	s.blocks.Write(compressed)
	s.count++
	return nil
}

// Create writes a new single-folder cabinet containing files to w, using
// opts.Compression's registered encoder (spec.md §4.13/§6's `create`
// command). All files are placed in one folder, back to back in the
// order given, so the written cabinet round-trips through Parse and
// Extractor.Extract.
func Create(w io.Writer, files []NewFile, opts CreateOptions) error {
	reg := opts.Registry
	if reg == nil {
		reg = registry.Default
	}
	if opts.Compression == "" {
		opts.Compression = "none"
	}
	if opts.WindowBits == 0 {
		opts.WindowBits = 15
	}

	sink := &dataBlockSink{}
	params := map[string]interface{}{
		registry.ParamSink:       encode.BlockSink(sink),
		registry.ParamWindowBits: opts.WindowBits,
	}
	inst, err := reg.Create(opts.Compression, registry.Encoder, params)
	if err != nil {
		return err
	}
	enc, ok := inst.(encode.Encoder)
	if !ok {
		return errors.Wrapf(ErrUnsupportedFormat, "cabfile: %q did not produce an encode.Encoder", opts.Compression)
	}

	type placed struct {
		file   NewFile
		offset uint32
	}
	var offset uint32
	plan := make([]placed, len(files))
	for i, f := range files {
		plan[i] = placed{file: f, offset: offset}
		offset += uint32(len(f.Data))
	}

	for _, p := range plan {
		if err := enc.Compress(p.file.Data); err != nil {
			return errors.Wrap(err, "cabfile: compress failed")
		}
	}
	if err := enc.Flush(); err != nil {
		return errors.Wrap(err, "cabfile: flush failed")
	}

	compressTag, err := compressionTag(opts.Compression, opts.WindowBits)
	if err != nil {
		return err
	}

	// Lay out: header, one CFFOLDER, len(files) CFFILEs, then the data
	// blocks. coffFiles and the folder's data-offset are both relative
	// to the cabinet's own start.
	const headerSize = 36
	const folderSize = 8
	fileDirSize := 0
	for _, f := range files {
		fileDirSize += 16 + len(f.Name) + 1
	}
	coffFiles := uint32(headerSize + folderSize)
	dataOffset := coffFiles + uint32(fileDirSize)
	cbCabinet := dataOffset + uint32(sink.blocks.Len())

	var hdr bytes.Buffer
	hdr.WriteString(signature)
	writeU32(&hdr, 0)
	writeU32(&hdr, cbCabinet)
	writeU32(&hdr, 0)
	writeU32(&hdr, coffFiles)
	writeU32(&hdr, 0)
	hdr.WriteByte(3) // version minor
	hdr.WriteByte(1) // version major
	writeU16(&hdr, 1)
	writeU16(&hdr, uint16(len(files)))
	writeU16(&hdr, 0) // flags: no prev/next/reserve
	writeU16(&hdr, opts.SetID)
	writeU16(&hdr, opts.CabinetIndex)

	writeU32(&hdr, dataOffset)
	writeU16(&hdr, sink.count)
	writeU16(&hdr, compressTag)

	for _, p := range plan {
		writeU32(&hdr, uint32(len(p.file.Data)))
		writeU32(&hdr, p.offset)
		writeU16(&hdr, 0) // folder index: the only folder
		mtime := p.file.ModTime
		if mtime.IsZero() {
			mtime = time.Now()
		}
		date, t := dostime.Encode(mtime)
		writeU16(&hdr, date)
		writeU16(&hdr, t)
		writeU16(&hdr, AttrArchive)
		hdr.WriteString(p.file.Name)
		hdr.WriteByte(0)
	}

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return errors.Wrap(err, "cabfile: write failed")
	}
	if _, err := w.Write(sink.blocks.Bytes()); err != nil {
		return errors.Wrap(err, "cabfile: write failed")
	}
	return nil
}

func compressionTag(name string, windowBits uint) (uint16, error) {
	switch name {
	case "none":
		return CompressNone, nil
	case "lzss":
		// LZSS has no place in the CAB compression-tag enumeration
		// (spec.md §6 lists only none/mszip/quantum/lzx); it is a SZDD/
		// HLP-container algorithm, not a folder compression method, so a
		// cabinet cannot declare it in TypeCompress. Treat it the same
		// as an unsupported folder format here.
		return 0, errors.Wrap(ErrUnsupportedFormat, "cabfile: lzss has no CFFOLDER compression tag")
	case "mszip":
		return CompressMSZIP, nil
	case "lzx":
		if windowBits == 0 {
			windowBits = 15
		}
		return CompressLZX | uint16(windowBits)<<8, nil
	case "quantum":
		if windowBits == 0 {
			windowBits = 15
		}
		return CompressQuantum | uint16(windowBits)<<8, nil
	default:
		return 0, errors.Wrapf(ErrUnsupportedFormat, "cabfile: unknown compression %q", name)
	}
}

func writeU32(b *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.Write(tmp[:])
}

func writeU16(b *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.Write(tmp[:])
}
