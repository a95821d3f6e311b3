package decode_test

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/google/gocab/decode"
	"github.com/google/gocab/encode"
)

// memBlocks accumulates encoder output blocks and replays them as a
// decode.BlockSource, letting a test drive an Encoder and the matching
// Decoder against each other without a cabinet in between.
type memBlocks struct {
	blocks [][]byte
	sizes  []int
	next   int
}

func (m *memBlocks) WriteBlock(compressed []byte, uncompressedSize int) error {
	buf := make([]byte, len(compressed))
	copy(buf, compressed)
	m.blocks = append(m.blocks, buf)
	m.sizes = append(m.sizes, uncompressedSize)
	return nil
}

func (m *memBlocks) NextBlock() ([]byte, int, error) {
	if m.next >= len(m.blocks) {
		return nil, 0, io.EOF
	}
	b, n := m.blocks[m.next], m.sizes[m.next]
	m.next++
	return b, n, nil
}

func randomBytes(t *testing.T, n int, seed int64) []byte {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, n)
	_, err := r.Read(buf)
	require.NoError(t, err)
	return buf
}

func drainAll(t *testing.T, dec decode.Decoder, want int) []byte {
	t.Helper()
	out := make([]byte, want)
	got := 0
	for got < want {
		n, err := dec.Decompress(out[got:])
		got += n
		if err != nil {
			require.NoError(t, err, "decompressed %d/%d bytes before error", got, want)
		}
	}
	return out
}

func TestNoneRoundTrip(t *testing.T) {
	data := randomBytes(t, 1<<20, 1)
	mem := &memBlocks{}
	enc := encode.NewNoneEncoder(mem)
	require.NoError(t, enc.Compress(data))
	require.NoError(t, enc.Flush())

	dec := decode.NewNoneDecoder(mem)
	got := drainAll(t, dec, len(data))
	require.True(t, bytes.Equal(data, got))
}

func TestLZSSRoundTrip(t *testing.T) {
	for _, mode := range []struct {
		enc encode.LZSSMode
		dec decode.LZSSMode
	}{
		{encode.ModeExpand, decode.ModeExpand},
		{encode.ModeMSHelp, decode.ModeMSHelp},
		{encode.ModeQBasic, decode.ModeQBasic},
	} {
		data := randomBytes(t, 1<<16, 2)
		mem := &memBlocks{}
		enc := encode.NewLZSSEncoder(mem, mode.enc)
		require.NoError(t, enc.Compress(data))
		require.NoError(t, enc.Flush())

		dec := decode.NewLZSSDecoder(mem, mode.dec)
		got := drainAll(t, dec, len(data))
		require.True(t, bytes.Equal(data, got))
	}
}

func TestMSZIPRoundTrip(t *testing.T) {
	data := randomBytes(t, 1<<20, 3)
	mem := &memBlocks{}
	enc := encode.NewMSZIPEncoder(mem)
	require.NoError(t, enc.Compress(data))
	require.NoError(t, enc.Flush())

	dec := decode.NewMSZIPDecoder(mem, decode.MSZIPOptions{})
	got := drainAll(t, dec, len(data))
	require.True(t, bytes.Equal(data, got))
}

func TestLZXVerbatimRoundTrip(t *testing.T) {
	data := randomBytes(t, 1<<20, 4)
	mem := &memBlocks{}
	enc := encode.NewLZXVerbatimEncoder(mem, encode.LZXOptions{WindowBits: 15})
	require.NoError(t, enc.Compress(data))
	require.NoError(t, enc.Flush())

	dec := decode.NewLZXDecoder(mem, decode.LZXOptions{WindowBits: 15})
	got := drainAll(t, dec, len(data))
	require.True(t, bytes.Equal(data, got))
}

func TestQuantumSubsetRoundTrip(t *testing.T) {
	data := randomBytes(t, 1<<20, 5)
	mem := &memBlocks{}
	enc := encode.NewQuantumSubsetEncoder(mem)
	require.NoError(t, enc.Compress(data))
	require.NoError(t, enc.Flush())

	dec := decode.NewQuantumDecoder(mem, decode.QuantumOptions{WindowBits: 17})
	got := drainAll(t, dec, len(data))
	require.True(t, bytes.Equal(data, got))
}

func TestNoneRoundTripShortInput(t *testing.T) {
	data := []byte("a small file under one block")
	mem := &memBlocks{}
	enc := encode.NewNoneEncoder(mem)
	require.NoError(t, enc.Compress(data))
	require.NoError(t, enc.Flush())

	dec := decode.NewNoneDecoder(mem)
	got := drainAll(t, dec, len(data))
	require.Equal(t, data, got)
}
