// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cabfile parses, extracts and (for the algorithms with a
// symmetric encoder) writes Microsoft Cabinet container files: the CAB
// header, folder and file directories, multi-part search and merge, and
// the per-folder extraction pipeline that drives the decode package.
//
// Normative references are [MS-CAB] for the Cabinet file format and
// [MS-MCI] for the Microsoft ZIP Compression and Decompression Data
// Structure.
//
// [MS-CAB]: http://download.microsoft.com/download/4/d/a/4da14f27-b4ef-4170-a6e6-5b1ef85b1baa/[ms-cab].pdf
// [MS-MCI]: http://interoperability.blob.core.windows.net/files/MS-MCI/[MS-MCI].pdf
package cabfile

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/google/gocab/internal/dostime"
)

// Error taxonomy, spec.md §7.
var (
	ErrInvalidSignature  = errors.New("cabfile: invalid signature")
	ErrCorruptDirectory  = errors.New("cabfile: corrupt cabinet directory")
	ErrCorruptInput      = errors.New("cabfile: corrupt compressed input")
	ErrUnsupportedFormat = errors.New("cabfile: unsupported format")
	ErrDecompression     = errors.New("cabfile: decompression boundary error")
)

// Folder sentinel indices (spec.md §3): a file's IFolder field may point
// at one of these instead of a real folder, meaning the file's data
// continues from, or into, an adjoining part of a multi-part set.
const (
	FolderContinuedFromPrev    uint16 = 0xFFFD
	FolderContinuedToNext      uint16 = 0xFFFE
	FolderContinuedPrevAndNext uint16 = 0xFFFF
)

func isSentinelFolder(idx uint16) bool {
	return idx == FolderContinuedFromPrev || idx == FolderContinuedToNext || idx == FolderContinuedPrevAndNext
}

// Attribute byte bits, spec.md §6.
const (
	AttrReadOnly uint16 = 1 << iota
	AttrHidden
	AttrSystem
	_
	_
	AttrArchive
	AttrExecute
	AttrNameIsUTF8
)

// Compression method tags, the low nibble of a folder's TypeCompress
// field (spec.md §6).
const (
	CompressNone    = 0x0
	CompressMSZIP   = 0x1
	CompressQuantum = 0x2
	CompressLZX     = 0x3
)

// header flag bits, spec.md §4.9 step 2.
const (
	flagPrevCabinet uint16 = 1 << iota
	flagNextCabinet
	flagReservePresent
)

// header is the on-disk CFHEADER, deserialized field by field rather than
// via binary.Read so reserve-area and variable-length sections in between
// fixed fields can be handled without a second struct per reserve
// combination.
type header struct {
	cbCabinet    uint32
	coffFiles    uint32
	versionMinor uint8
	versionMajor uint8
	folderCount  uint16
	fileCount    uint16
	flags        uint16
	setID        uint16
	setIndex     uint16

	headerReserveSize uint16
	folderReserveSize uint8
	blockReserveSize  uint8

	prevName, prevInfo string
	nextName, nextInfo string
}

// Folder holds one compression stream's metadata and linkage, spec.md §3.
type Folder struct {
	DataOffset   uint32
	BlockCount   uint16
	CompressTag  uint16 // low nibble = method, next byte = method parameter (window bits)
	MergePrev    *Folder
	MergeNext    *Folder

	cab *Cabinet
}

// Method returns the folder's compression method (CompressNone et al).
func (f *Folder) Method() int { return int(f.CompressTag & 0x0F) }

// Param returns the folder's method-specific parameter byte (LZX/Quantum
// window bits).
func (f *Folder) Param() int { return int((f.CompressTag >> 8) & 0xFF) }

// File holds one cabinet member's metadata, spec.md §3.
type File struct {
	Name       string
	Length     uint32
	FolderOffset uint32
	FolderIndex  uint16
	Date, Time   uint16
	Attributes   uint16

	folder *Folder
}

// IsContinuation reports whether this file's folder reference is one of
// the multi-part sentinels rather than a real folder.
func (f *File) IsContinuation() bool { return isSentinelFolder(f.FolderIndex) }

// Folder resolves f's real folder, or nil if f.IsContinuation().
func (f *File) Folder() *Folder { return f.folder }

// ModTime decodes the DOS date/time pair into a time.Time, per spec.md §6.
func (f *File) ModTime() time.Time { return dostime.Decode(f.Date, f.Time, time.UTC) }

// Cabinet is a parsed Microsoft Cabinet file: a set of Folders and Files
// plus the multi-part linkage fields spec.md §3 describes.
type Cabinet struct {
	r io.ReadSeeker

	BaseOffset int64
	Length     uint32
	SetID      uint16
	SetIndex   uint16
	HasReserve bool
	HeaderReserve []byte
	FolderReserveSize uint8
	BlockReserveSize  uint8
	PrevName, PrevInfo string
	NextName, NextInfo string

	Folders []*Folder
	Files   []*File

	Prev, Next *Cabinet

	Log *logrus.Logger

	extractors map[*Folder]*folderState
}

func newCabinet(r io.ReadSeeker, log *logrus.Logger) *Cabinet {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cabinet{r: r, Log: log, extractors: make(map[*Folder]*folderState)}
}

// FileList returns the list of filenames in the cabinet, in directory
// order.
func (c *Cabinet) FileList() []string {
	names := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		names = append(names, f.Name)
	}
	return names
}
