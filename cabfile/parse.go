package cabfile

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"
)

const signature = "MSCF"

const maxCStringLen = 256

// Options configures Parse and the operations built on top of it.
type Options struct {
	Salvage   bool
	FixMSZIP  bool
	Log       *logrus.Logger
}

// Parse implements spec.md §4.9: sequential read of the CFHEADER, the
// optional reserve area and prev/next strings, the folder directory, and
// the file directory, seeking to hdr.coffFiles in between.
func Parse(r io.ReadSeeker, opts Options) (*Cabinet, error) {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	c := newCabinet(r, opts.Log)

	base, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "cabfile: could not read current offset")
	}
	c.BaseOffset = base

	var sig [4]byte
	if err := readFull(r, sig[:]); err != nil {
		return nil, errors.Wrap(ErrInvalidSignature, "cabfile: could not read signature")
	}
	if string(sig[:]) != signature {
		return nil, errors.Wrapf(ErrInvalidSignature, "cabfile: got %q", sig[:])
	}

	hdr, err := readHeaderFixed(r)
	if err != nil {
		return nil, err
	}
	if hdr.versionMajor != 1 || hdr.versionMinor != 3 {
		if !opts.Salvage {
			return nil, errors.Wrapf(ErrCorruptDirectory, "cabfile: unsupported version %d.%d", hdr.versionMajor, hdr.versionMinor)
		}
	}
	if hdr.folderCount == 0 || hdr.fileCount == 0 {
		return nil, errors.Wrap(ErrCorruptDirectory, "cabfile: folder_count and file_count must both be nonzero")
	}

	c.Length = hdr.cbCabinet
	c.SetID = hdr.setID
	c.SetIndex = hdr.setIndex
	c.HasReserve = hdr.flags&flagReservePresent != 0

	if c.HasReserve {
		var sizes [4]byte
		if err := readFull(r, sizes[:]); err != nil {
			return nil, errors.Wrap(ErrCorruptDirectory, "cabfile: could not read reserve sizes")
		}
		hdr.headerReserveSize = binary.LittleEndian.Uint16(sizes[0:2])
		hdr.folderReserveSize = sizes[2]
		hdr.blockReserveSize = sizes[3]
		c.FolderReserveSize = hdr.folderReserveSize
		c.BlockReserveSize = hdr.blockReserveSize
		if hdr.headerReserveSize > 0 {
			c.HeaderReserve = make([]byte, hdr.headerReserveSize)
			if err := readFull(r, c.HeaderReserve); err != nil {
				return nil, errors.Wrap(ErrCorruptDirectory, "cabfile: could not read header reserve area")
			}
		}
	}

	if hdr.flags&flagPrevCabinet != 0 {
		name, err := readCString(r)
		if err != nil {
			return nil, errors.Wrap(ErrCorruptDirectory, "cabfile: could not read prevname")
		}
		info, err := readCString(r)
		if err != nil {
			return nil, errors.Wrap(ErrCorruptDirectory, "cabfile: could not read previnfo")
		}
		c.PrevName, c.PrevInfo = name, info
	}
	if hdr.flags&flagNextCabinet != 0 {
		name, err := readCString(r)
		if err != nil {
			return nil, errors.Wrap(ErrCorruptDirectory, "cabfile: could not read nextname")
		}
		info, err := readCString(r)
		if err != nil {
			return nil, errors.Wrap(ErrCorruptDirectory, "cabfile: could not read nextinfo")
		}
		c.NextName, c.NextInfo = name, info
	}

	for i := uint16(0); i < hdr.folderCount; i++ {
		f, err := readFolder(r, hdr.folderReserveSize)
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptDirectory, "cabfile: folder %d: %v", i, err)
		}
		f.cab = c
		c.Folders = append(c.Folders, f)
	}

	if _, err := r.Seek(base+int64(hdr.coffFiles), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "cabfile: could not seek to file directory")
	}
	for i := uint16(0); i < hdr.fileCount; i++ {
		f, err := readFile(r, base, c.Length)
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptDirectory, "cabfile: file %d: %v", i, err)
		}
		if !f.IsContinuation() {
			if int(f.FolderIndex) >= len(c.Folders) {
				return nil, errors.Wrapf(ErrCorruptDirectory, "cabfile: file %d references folder %d, only %d present", i, f.FolderIndex, len(c.Folders))
			}
			f.folder = c.Folders[f.FolderIndex]
		}
		c.Files = append(c.Files, f)
	}

	return c, nil
}

func readFull(r io.Reader, p []byte) error {
	_, err := io.ReadFull(r, p)
	return err
}

func readHeaderFixed(r io.Reader) (*header, error) {
	var raw struct {
		Reserved1    uint32
		CBCabinet    uint32
		Reserved2    uint32
		COFFFiles    uint32
		Reserved3    uint32
		VersionMinor uint8
		VersionMajor uint8
		CFolders     uint16
		CFiles       uint16
		Flags        uint16
		SetID        uint16
		ICabinet     uint16
	}
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, errors.Wrap(ErrCorruptDirectory, "cabfile: could not read header: "+err.Error())
	}
	return &header{
		cbCabinet:    raw.CBCabinet,
		coffFiles:    raw.COFFFiles,
		versionMinor: raw.VersionMinor,
		versionMajor: raw.VersionMajor,
		folderCount:  raw.CFolders,
		fileCount:    raw.CFiles,
		flags:        raw.Flags,
		setID:        raw.SetID,
		setIndex:     raw.ICabinet,
	}, nil
}

func readFolder(r io.Reader, folderReserveSize uint8) (*Folder, error) {
	var raw struct {
		COFFCabStart uint32
		CCFData      uint16
		TypeCompress uint16
	}
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, err
	}
	if folderReserveSize > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(folderReserveSize)); err != nil {
			return nil, err
		}
	}
	switch raw.TypeCompress & 0x0F {
	case CompressNone, CompressMSZIP, CompressQuantum, CompressLZX:
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "cabfile: folder compression tag %d", raw.TypeCompress)
	}
	return &Folder{DataOffset: raw.COFFCabStart, BlockCount: raw.CCFData, CompressTag: raw.TypeCompress}, nil
}

func readFile(r io.ReadSeeker, base int64, cabLen uint32) (*File, error) {
	var raw struct {
		CBFile          uint32
		UOffFolderStart uint32
		IFolder         uint16
		Date            uint16
		Time            uint16
		Attribs         uint16
	}
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, err
	}
	off, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	rawName, err := bufio.NewReader(r).ReadBytes('\x00')
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(off+int64(len(rawName)), io.SeekStart); err != nil {
		return nil, err
	}
	if cabLen > 0 && uint32(off-base)+uint32(len(rawName)) > cabLen {
		return nil, errors.Wrap(ErrCorruptDirectory, "cabfile: filename extends past cabinet length")
	}
	if raw.UOffFolderStart >= 1<<31 {
		return nil, errors.Wrapf(ErrCorruptDirectory, "cabfile: file offset %d exceeds 2^31", raw.UOffFolderStart)
	}
	if uint64(raw.UOffFolderStart)+uint64(raw.CBFile) > 1<<32-1 {
		return nil, errors.Wrapf(ErrCorruptDirectory, "cabfile: file offset+length %d+%d overflows 32 bits", raw.UOffFolderStart, raw.CBFile)
	}

	name, err := decodeName(rawName[:len(rawName)-1], raw.Attribs&AttrNameIsUTF8 != 0)
	if err != nil {
		return nil, err
	}

	return &File{
		Name:         name,
		Length:       raw.CBFile,
		FolderOffset: raw.UOffFolderStart,
		FolderIndex:  raw.IFolder,
		Date:         raw.Date,
		Time:         raw.Time,
		Attributes:   raw.Attribs,
	}, nil
}

func decodeName(raw []byte, isUTF8 bool) (string, error) {
	if isUTF8 {
		return string(raw), nil
	}
	decoded, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw), nil
	}
	return string(decoded), nil
}

// readCString reads a NUL-terminated string without over-consuming r: it
// reads one byte at a time so the caller's ReadSeeker position lands
// exactly after the NUL, with nothing left buffered and discarded.
func readCString(r io.Reader) (string, error) {
	var raw []byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", err
		}
		if b[0] == 0 {
			break
		}
		raw = append(raw, b[0])
		if len(raw) > maxCStringLen {
			return "", errors.New("cabfile: string exceeds 256 bytes")
		}
	}
	return string(raw), nil
}
