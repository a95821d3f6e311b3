package bitio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLSBReaderMatchesByteOrder(t *testing.T) {
	// 0x05 = 0b0000_0101: LSB-first means the first 3 bits read are 1,0,1.
	r := NewLSBReader(NewByteReader(bytes.NewReader([]byte{0x05})), false)
	v, err := r.ReadBits(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x5), v)
}

func TestLSBReaderPeekDoesNotConsume(t *testing.T) {
	r := NewLSBReader(NewByteReader(bytes.NewReader([]byte{0xFF, 0x00})), false)
	p1, err := r.PeekBits(4)
	require.NoError(t, err)
	p2, err := r.PeekBits(4)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestLSBReaderUnderflow(t *testing.T) {
	r := NewLSBReader(NewByteReader(bytes.NewReader(nil)), false)
	_, err := r.ReadBits(1)
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestLSBReaderSalvageReturnsZeroBits(t *testing.T) {
	r := NewLSBReader(NewByteReader(bytes.NewReader(nil)), true)
	v, err := r.ReadBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v)
	assert.True(t, r.Salvaged())
}

func TestMSB16ReaderMatchesWordOrder(t *testing.T) {
	// Word is little-endian bytes 0x00, 0x01 => value 0x0100, bits read
	// MSB-first so the top bit is 0 and bit 8 (value 0x0100's bit) is 1.
	r := NewMSB16Reader(bytes.NewReader([]byte{0x00, 0x01}), false)
	v, err := r.ReadBits(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0100), v)
}

func TestMSB16WriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewMSB16Writer(&buf)
	vals := []struct {
		v uint32
		n uint
	}{
		{0x1, 1}, {0x3, 2}, {0xF, 4}, {0x2A, 6}, {0xFFFF, 16}, {0x7, 3},
	}
	for _, tc := range vals {
		require.NoError(t, w.WriteBits(tc.v, tc.n))
	}
	require.NoError(t, w.Flush())

	r := NewMSB16Reader(bytes.NewReader(buf.Bytes()), false)
	for _, tc := range vals {
		got, err := r.ReadBits(tc.n)
		require.NoError(t, err)
		assert.Equal(t, tc.v, got)
	}
}

func TestMSB16WriterByteAlign(t *testing.T) {
	var buf bytes.Buffer
	w := NewMSB16Writer(&buf)
	require.NoError(t, w.WriteBits(0x1, 3))
	require.NoError(t, w.ByteAlign())
	require.NoError(t, w.WriteBits(0xAB, 8))
	require.NoError(t, w.Flush())

	r := NewMSB16Reader(bytes.NewReader(buf.Bytes()), false)
	_, err := r.ReadBits(3)
	require.NoError(t, err)
	r.ByteAlign()
	got, err := r.ReadBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xAB), got)
}
