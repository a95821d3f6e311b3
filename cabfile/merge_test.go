package cabfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPart returns a synthetic single-folder cabinet with an optional
// continuation head (from the previous part) and/or tail (into the next
// part), mirroring how a real multi-part CAB set links its files: the
// two fields that matter to fuseContinuations are FolderIndex (which
// sentinel, if any) and Name/Length (so the fused file's combined
// length is checkable).
func buildPart(name string, hasHead, hasTail bool) *Cabinet {
	c := &Cabinet{Folders: []*Folder{{}}}
	if hasHead {
		c.Files = append(c.Files, &File{Name: name, Length: 10, FolderIndex: FolderContinuedFromPrev})
	} else {
		c.Files = append(c.Files, &File{Name: name + "-head.txt", Length: 3, folder: c.Folders[0]})
	}
	if hasTail {
		c.Files = append(c.Files, &File{Name: name, Length: 10, FolderIndex: FolderContinuedToNext})
	} else {
		c.Files = append(c.Files, &File{Name: name + "-tail.txt", Length: 4, folder: c.Folders[0]})
	}
	return c
}

// TestFiveCabinetMergePropagatesWholeChain exercises spec.md §8's
// multi-part property: a five-part set merged via
// append(pt0,pt1); prepend(pt2,pt1); append(pt3,pt4); prepend(pt3,pt2)
// must leave all five cabinets' Files lists identical, not just the
// two operands of each individual merge call.
func TestFiveCabinetMergePropagatesWholeChain(t *testing.T) {
	pt0 := buildPart("big", false, true)
	pt1 := buildPart("big", true, true)
	pt2 := buildPart("big", true, true)
	pt3 := buildPart("big", true, true)
	pt4 := buildPart("big", true, false)

	require.NoError(t, Append(pt0, pt1))
	require.NoError(t, Prepend(pt2, pt1))
	require.NoError(t, Append(pt3, pt4))
	require.NoError(t, Prepend(pt3, pt2))

	want := pt0.Files
	for _, cab := range []*Cabinet{pt1, pt2, pt3, pt4} {
		assert.Equal(t, want, cab.Files)
	}

	// 2 real files + 4 boundary fusions (one per adjacent pair) collapsing
	// 8 continuation entries into 4: 2 + 4 = 6.
	require.Len(t, want, 6)
	assert.Equal(t, "big-head.txt", want[0].Name)
	assert.Equal(t, "big-tail.txt", want[len(want)-1].Name)
	for _, f := range want[1 : len(want)-1] {
		assert.Equal(t, "big", f.Name)
		assert.Equal(t, uint32(20), f.Length, "fused continuation file combines both halves' lengths")
		assert.False(t, f.IsContinuation(), "fused file resolves to a real merged folder, not a sentinel")
	}
}
