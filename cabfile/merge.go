package cabfile

import "github.com/pkg/errors"

// ErrInvalidMerge is returned by Append/Prepend for identity, already-
// merged, or nil operands.
var ErrInvalidMerge = errors.New("cabfile: invalid merge operands")

// Append links b after a (a.Next = b) and fuses any sentinel continuation
// file pair between them into one logical file backed by a merged folder,
// per spec.md §4.11.
func Append(a, b *Cabinet) error {
	return merge(a, b, false)
}

// Prepend links b before a (b.Next = a, a.Prev = b) and fuses any sentinel continuation pair, per spec.md §4.11.
func Prepend(a, b *Cabinet) error {
	return merge(a, b, true)
}

func merge(a, b *Cabinet, prepend bool) error {
	if a == nil || b == nil {
		return errors.Wrap(ErrInvalidMerge, "cabfile: nil operand")
	}
	if a == b {
		return errors.Wrap(ErrInvalidMerge, "cabfile: cannot merge a cabinet with itself")
	}

	// Append(a, b): a.next_cabinet = b, sequence a, b.
	// Prepend(a, b): b.next_cabinet = a, sequence b, a.
	first, second := a, b
	if prepend {
		first, second = b, a
	}
	if first.Next != nil || second.Prev != nil {
		return errors.Wrap(ErrInvalidMerge, "cabfile: operand already merged")
	}

	first.Next = second
	second.Prev = first

	fuseContinuations(first, second)
	return nil
}

// connectedCabinets returns every cabinet in c's Prev/Next chain, in
// order from the chain's head. Since Append/Prepend only ever link a
// cabinet into the chain at one of its two ends, the chain is a simple
// doubly linked list with no branching, so walking to the head and then
// forward visits each member exactly once.
func connectedCabinets(c *Cabinet) []*Cabinet {
	head := c
	for head.Prev != nil {
		head = head.Prev
	}
	var out []*Cabinet
	for n := head; n != nil; n = n.Next {
		out = append(out, n)
	}
	return out
}

// fuseContinuations finds, for every file in a whose folder is the
// "continues into next" sentinel, the corresponding file in b whose
// folder is "continues from prev", and replaces both with one logical
// file backed by a folder chain: a's physical folder gains MergeNext
// pointing at b's physical folder, and every cabinet already linked into
// a's or b's chain (not just a and b themselves) has its Files/Folders
// vectors rewritten to share the fused entries by identity, so a chain
// fused one adjacent pair at a time still converges to one shared pair
// of vectors across the whole set (spec.md §4.11/§8's multi-part merge
// property).
func fuseContinuations(a, b *Cabinet) {
	var aTail *File
	for _, f := range a.Files {
		if f.FolderIndex == FolderContinuedToNext || f.FolderIndex == FolderContinuedPrevAndNext {
			aTail = f
			break
		}
	}
	var bHead *File
	var bHeadIdx int
	for i, f := range b.Files {
		if f.FolderIndex == FolderContinuedFromPrev || f.FolderIndex == FolderContinuedPrevAndNext {
			bHead = f
			bHeadIdx = i
			break
		}
	}
	if aTail == nil || bHead == nil {
		return
	}

	aFolder := lastRealFolder(a)
	bFolder := firstRealFolder(b)
	if aFolder == nil || bFolder == nil {
		return
	}
	aFolder.MergeNext = bFolder

	fused := &File{
		Name:         aTail.Name,
		Length:       aTail.Length + bHead.Length,
		FolderOffset: aTail.FolderOffset,
		FolderIndex:  aFolder.indexIn(a),
		Date:         bHead.Date,
		Time:         bHead.Time,
		Attributes:   bHead.Attributes,
		folder:       aFolder,
	}

	for i, f := range a.Files {
		if f == aTail {
			a.Files[i] = fused
		}
	}
	b.Files[bHeadIdx] = fused

	shared := mergeVectors(a.Files, b.Files)
	sharedFolders := mergeFolderVectors(a.Folders, b.Folders)
	for _, cab := range connectedCabinets(a) {
		cab.Files = shared
		cab.Folders = sharedFolders
	}
}

// indexIn returns f's position in cab.Folders, or the continuation
// sentinel if f is nil or not found (callers only call this on resolved
// folders, so not-found only happens for a folder belonging to a
// different cabinet than cab, which the fused file's FolderIndex field is
// cosmetic for anyway since File.Folder() resolves via the folder
// pointer, not this index).
func (f *Folder) indexIn(cab *Cabinet) uint16 {
	for i, other := range cab.Folders {
		if other == f {
			return uint16(i)
		}
	}
	return FolderContinuedToNext
}

func lastRealFolder(c *Cabinet) *Folder {
	if len(c.Folders) == 0 {
		return nil
	}
	return c.Folders[len(c.Folders)-1]
}

func firstRealFolder(c *Cabinet) *Folder {
	if len(c.Folders) == 0 {
		return nil
	}
	return c.Folders[0]
}

// mergeVectors concatenates a and b's distinct entries into one shared
// slice: entries already identical by pointer (the fused file) appear
// once.
func mergeVectors(a, b []*File) []*File {
	seen := make(map[*File]bool, len(a)+len(b))
	out := make([]*File, 0, len(a)+len(b))
	for _, f := range a {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range b {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func mergeFolderVectors(a, b []*Folder) []*Folder {
	seen := make(map[*Folder]bool, len(a)+len(b))
	out := make([]*Folder, 0, len(a)+len(b))
	for _, f := range a {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range b {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
