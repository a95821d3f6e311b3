package cabfile

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stuckDecoder never makes progress and never errors — the decoder-level
// shape of the cve-2010-2800-mszip-infinite-loop.cab fixture class
// (spec.md §8 scenario 6), reproduced directly against the Decoder
// interface so the extractor's stall bound is exercised regardless of
// which concrete decoder a future malformed-input fixture happens to
// wedge.
type stuckDecoder struct{}

func (stuckDecoder) Decompress(w []byte) (int, error) { return 0, nil }
func (stuckDecoder) Reset()                           {}

func TestExtractBoundsAStalledDecoder(t *testing.T) {
	folder := &Folder{}
	file := &File{Length: 100, FolderIndex: 0, folder: folder}
	cab := &Cabinet{
		Folders: []*Folder{folder},
		Files:   []*File{file},
		extractors: map[*Folder]*folderState{
			folder: {decoder: stuckDecoder{}},
		},
	}

	ext := NewExtractor(cab, Options{})
	done := make(chan error, 1)
	go func() {
		var out bytes.Buffer
		done <- ext.Extract(file, &out)
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrCorruptInput)
	case <-time.After(5 * time.Second):
		t.Fatal("Extract did not bound a decoder that never makes progress")
	}
}

func TestDiscardUntilBoundsAStalledDecoder(t *testing.T) {
	folder := &Folder{}
	file := &File{Length: 10, FolderOffset: 1000, FolderIndex: 0, folder: folder}
	cab := &Cabinet{
		Folders: []*Folder{folder},
		Files:   []*File{file},
		extractors: map[*Folder]*folderState{
			folder: {decoder: stuckDecoder{}},
		},
	}

	ext := NewExtractor(cab, Options{})
	done := make(chan error, 1)
	go func() {
		var out bytes.Buffer
		done <- ext.Extract(file, &out)
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrCorruptInput)
	case <-time.After(5 * time.Second):
		t.Fatal("discardUntil did not bound a decoder that never makes progress")
	}
}
