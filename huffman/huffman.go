// Package huffman builds and decodes canonical Huffman codes, the shared
// symbol layer under MSZIP's DEFLATE blocks and LZX's main/length/aligned/
// pretree trees.
package huffman

import (
	"github.com/pkg/errors"

	"github.com/google/gocab/bitio"
)

// ErrBadTable is returned when a set of code lengths violates the Kraft
// inequality (sum of 2^-len exceeds 1).
var ErrBadTable = errors.New("huffman: code lengths violate Kraft inequality")

// ErrEmptyTree is returned by Decode when the table was built from an
// all-zero length vector and the caller nonetheless tried to decode from
// it.
var ErrEmptyTree = errors.New("huffman: attempt to decode from empty tree")

// ErrUnusedCode is returned when the bitstream selects a code that was
// never assigned a symbol (a "hole" in an incomplete table).
var ErrUnusedCode = errors.New("huffman: unused code")

const maxCodeLen = 16

// direct entries pack a symbol and the bit-length of its code; len == 0
// marks a slot that needs the overflow trie (len >= 1<<7 is impossible so
// this never collides with a real length).
type directSlot struct {
	sym int32
	len byte
}

// trieNode is one branch point of the overflow trie used for codes longer
// than the direct table's width.
type trieNode struct {
	sym         int32 // -1 if this is an internal node
	left, right int32 // child index into trie, or -1
}

// Table is a canonical Huffman decode table: a direct-lookup array sized
// 2^tableBits indexed by the next tableBits bits peeked MSB-first, falling
// back to a bit-by-bit trie walk for codes longer than tableBits.
type Table struct {
	tableBits uint
	direct    []directSlot
	trie      []trieNode
	empty     bool
}

// Empty reports whether this table was built from an all-zero length
// vector; such a table is legal to construct but illegal to decode from.
func (t *Table) Empty() bool { return t.empty }

type buildOptions struct {
	allowIncomplete bool
}

// Option configures Build.
type Option func(*buildOptions)

// AllowIncomplete marks a call as expecting an incomplete table (a Kraft
// sum strictly less than 1), as LZX's aligned-offset tree may be. Build
// accepts incomplete tables with or without this option and rejects only
// oversubscribed ones; decoding an unused code returns ErrUnusedCode.
func AllowIncomplete() Option {
	return func(o *buildOptions) { o.allowIncomplete = true }
}

// Build constructs a canonical decode table from one code length per
// symbol (0 meaning "unused"). tableBits controls the size of the direct
// lookup (2^tableBits entries); codes longer than tableBits spill into an
// overflow trie addressed bit by bit.
func Build(lengths []byte, tableBits uint, opts ...Option) (*Table, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	nonZero := 0
	for _, l := range lengths {
		if l > maxCodeLen {
			return nil, errors.Errorf("huffman: code length %d exceeds maximum %d", l, maxCodeLen)
		}
		if l > 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		return &Table{tableBits: tableBits, direct: make([]directSlot, 1<<tableBits), empty: true}, nil
	}

	var blCount [maxCodeLen + 1]int
	for _, l := range lengths {
		blCount[l]++
	}
	var kraft uint64
	for l := 1; l <= maxCodeLen; l++ {
		kraft += uint64(blCount[l]) << (maxCodeLen - l)
	}
	if kraft > (1 << maxCodeLen) {
		return nil, ErrBadTable
	}
	// An incomplete code (kraft < full) is structurally legal per spec: it
	// only becomes an error if the bitstream ever selects one of the
	// unused codes, which Decode reports as ErrUnusedCode. AllowIncomplete
	// exists so callers (LZX's aligned-offset tree) can document that
	// expectation explicitly even though Build never needs to act on it.
	_ = o.allowIncomplete

	var code uint32
	var nextCode [maxCodeLen + 1]uint32
	blCount[0] = 0
	for bits := 1; bits <= maxCodeLen; bits++ {
		code = (code + uint32(blCount[bits-1])) << 1
		nextCode[bits] = code
	}

	t := &Table{tableBits: tableBits, direct: make([]directSlot, 1<<tableBits)}
	for i := range t.direct {
		t.direct[i] = directSlot{sym: -1, len: 0}
	}

	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		c := nextCode[l]
		nextCode[l]++
		shifted := c << (maxCodeLen - uint(l))
		if l <= byte(tableBits) {
			step := uint32(1) << (tableBits - uint(l))
			base := shifted >> (maxCodeLen - tableBits)
			for i := uint32(0); i < step; i++ {
				t.direct[base+i] = directSlot{sym: int32(sym), len: l}
			}
		} else {
			t.insertOverflow(sym, shifted, l)
		}
	}
	return t, nil
}

// insertOverflow threads a code longer than tableBits into the bit trie,
// rooted at the direct slot formed by its first tableBits bits.
func (t *Table) insertOverflow(sym int, shifted uint32, length byte) {
	prefix := shifted >> (maxCodeLen - t.tableBits)
	root := t.rootFor(prefix)
	node := root
	for i := t.tableBits; i < uint(length); i++ {
		bit := (shifted >> (maxCodeLen - i - 1)) & 1
		e := &t.trie[node]
		next := e.left
		if bit == 1 {
			next = e.right
		}
		if next == -1 {
			t.trie = append(t.trie, trieNode{sym: -1, left: -1, right: -1})
			next = int32(len(t.trie) - 1)
			if bit == 0 {
				t.trie[node].left = next
			} else {
				t.trie[node].right = next
			}
		}
		node = next
	}
	t.trie[node].sym = int32(sym)
}

// overflowMarker flags a direct slot as "descend into the trie"; trie root
// indices are biased by this constant so they never collide with a real
// symbol or the -1 "unused" sentinel.
const overflowMarker = -1 << 16

func (t *Table) rootFor(prefix uint32) int32 {
	slot := &t.direct[prefix]
	if slot.len == 0 && slot.sym <= overflowMarker {
		return overflowMarker - slot.sym
	}
	t.trie = append(t.trie, trieNode{sym: -1, left: -1, right: -1})
	idx := int32(len(t.trie) - 1)
	slot.sym = overflowMarker - idx
	slot.len = 0
	return idx
}

// Decode reads one symbol from br using this table.
func (t *Table) Decode(br bitio.BitReader) (uint16, error) {
	if t.empty {
		return 0, ErrEmptyTree
	}
	peek, err := br.PeekBits(t.tableBits)
	if err != nil {
		return 0, err
	}
	slot := t.direct[peek]
	if slot.len > 0 {
		if err := br.SkipBits(uint(slot.len)); err != nil {
			return 0, err
		}
		return uint16(slot.sym), nil
	}
	if slot.sym == -1 {
		return 0, ErrUnusedCode
	}
	if err := br.SkipBits(t.tableBits); err != nil {
		return 0, err
	}
	node := overflowMarker - slot.sym
	for {
		n := t.trie[node]
		if n.sym >= 0 {
			return uint16(n.sym), nil
		}
		bit, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		next := n.left
		if bit == 1 {
			next = n.right
		}
		if next == -1 {
			return 0, ErrUnusedCode
		}
		node = next
	}
}
