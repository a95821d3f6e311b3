package huffman

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/gocab/bitio"
)

func TestBuildRejectsOversubscribedTable(t *testing.T) {
	// Three symbols claiming the two 1-bit codes: Kraft sum = 3/2 > 1.
	_, err := Build([]byte{1, 1, 1}, 7)
	assert.ErrorIs(t, err, ErrBadTable)
}

func TestBuildEmptyTable(t *testing.T) {
	tab, err := Build([]byte{0, 0, 0}, 7)
	require.NoError(t, err)
	assert.True(t, tab.Empty())

	_, err = tab.Decode(bitio.NewLSBReader(bitio.NewByteReader(bytes.NewReader(nil)), false))
	assert.ErrorIs(t, err, ErrEmptyTree)
}

func TestBuildAllowsIncompleteTable(t *testing.T) {
	// Only one of two possible 1-bit codes assigned: Kraft sum = 1/2.
	_, err := Build([]byte{1, 0}, 7, AllowIncomplete())
	require.NoError(t, err)
}

// TestCodesAndBuildAgree writes every symbol's canonical code (from Codes) via an
// MSB16Writer and confirms a Table built from the same lengths (via Build)
// decodes them back in order, exercising Codes and Build against each
// other exactly as the LZX encoder/decoder pair relies on them agreeing.
func TestCodesAndBuildAgree(t *testing.T) {
	lengths := []byte{3, 3, 3, 3, 3, 3, 4, 4}

	codes, err := Codes(lengths)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := bitio.NewMSB16Writer(&buf)
	for sym, l := range lengths {
		require.NoError(t, w.WriteBits(codes[sym], uint(l)))
	}
	require.NoError(t, w.Flush())

	tab, err := Build(lengths, 4)
	require.NoError(t, err)

	r := bitio.NewMSB16Reader(bytes.NewReader(buf.Bytes()), false)
	for sym := range lengths {
		got, err := tab.Decode(r)
		require.NoError(t, err)
		assert.Equal(t, uint16(sym), got)
	}
}

func TestDecodeOverflowTrie(t *testing.T) {
	// tableBits smaller than some code lengths forces the overflow trie.
	lengths := []byte{1, 2, 3, 3}
	codes, err := Codes(lengths)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := bitio.NewMSB16Writer(&buf)
	for sym, l := range lengths {
		require.NoError(t, w.WriteBits(codes[sym], uint(l)))
	}
	require.NoError(t, w.Flush())

	tab, err := Build(lengths, 1)
	require.NoError(t, err)

	r := bitio.NewMSB16Reader(bytes.NewReader(buf.Bytes()), false)
	for sym := range lengths {
		got, err := tab.Decode(r)
		require.NoError(t, err)
		assert.Equal(t, uint16(sym), got)
	}
}
