package cabfile_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/gocab/cabfile"
)

func makeFiles(t *testing.T) []cabfile.NewFile {
	t.Helper()
	r := rand.New(rand.NewSource(42))
	mk := func(n int) []byte {
		b := make([]byte, n)
		_, err := r.Read(b)
		require.NoError(t, err)
		return b
	}
	return []cabfile.NewFile{
		{Name: "readme.txt", Data: []byte("hello, cabinet world\n")},
		{Name: "blob.bin", Data: mk(70000)},
		{Name: "empty.dat", Data: nil},
	}
}

func TestCreateParseExtractRoundTrip(t *testing.T) {
	for _, compression := range []string{"none", "mszip", "lzx"} {
		t.Run(compression, func(t *testing.T) {
			files := makeFiles(t)

			var buf bytes.Buffer
			err := cabfile.Create(&buf, files, cabfile.CreateOptions{Compression: compression})
			require.NoError(t, err)

			r := bytes.NewReader(buf.Bytes())
			c, err := cabfile.Parse(r, cabfile.Options{})
			require.NoError(t, err)
			require.Equal(t, len(files), len(c.Files))

			ext := cabfile.NewExtractor(c, cabfile.Options{})
			for i, want := range files {
				var out bytes.Buffer
				require.NoError(t, ext.Extract(c.Files[i], &out))
				assert.Equal(t, want.Data, out.Bytes(), "file %q", want.Name)
			}
		})
	}
}

func TestExtractAnyOrderEquivalence(t *testing.T) {
	files := makeFiles(t)
	var buf bytes.Buffer
	require.NoError(t, cabfile.Create(&buf, files, cabfile.CreateOptions{Compression: "mszip"}))

	r := bytes.NewReader(buf.Bytes())
	c, err := cabfile.Parse(r, cabfile.Options{})
	require.NoError(t, err)

	// Extract in reverse order; each file's bytes must still match.
	ext := cabfile.NewExtractor(c, cabfile.Options{})
	for i := len(c.Files) - 1; i >= 0; i-- {
		var out bytes.Buffer
		require.NoError(t, ext.Extract(c.Files[i], &out))
		assert.Equal(t, files[i].Data, out.Bytes())
	}
}

func TestExtractIdempotence(t *testing.T) {
	files := makeFiles(t)
	var buf bytes.Buffer
	require.NoError(t, cabfile.Create(&buf, files, cabfile.CreateOptions{Compression: "mszip"}))

	r := bytes.NewReader(buf.Bytes())
	c, err := cabfile.Parse(r, cabfile.Options{})
	require.NoError(t, err)

	ext := cabfile.NewExtractor(c, cabfile.Options{})
	var out1, out2 bytes.Buffer
	require.NoError(t, ext.Extract(c.Files[1], &out1))
	require.NoError(t, ext.Extract(c.Files[1], &out2))
	assert.Equal(t, out1.Bytes(), out2.Bytes())
}

func TestParseRejectsBadSignature(t *testing.T) {
	r := bytes.NewReader([]byte("not a cabinet file at all"))
	_, err := cabfile.Parse(r, cabfile.Options{})
	assert.ErrorIs(t, err, cabfile.ErrInvalidSignature)
}

func TestSearchFindsEmbeddedCabinet(t *testing.T) {
	files := []cabfile.NewFile{{Name: "a.txt", Data: []byte("hi")}}
	var cab bytes.Buffer
	require.NoError(t, cabfile.Create(&cab, files, cabfile.CreateOptions{Compression: "none"}))

	var blob bytes.Buffer
	blob.WriteString("garbage prefix bytes before the cabinet starts....")
	blob.Write(cab.Bytes())
	blob.WriteString("trailing garbage")

	for _, bufSize := range []int{1024, 4096, 32768, 65536} {
		head, err := cabfile.Search(bytes.NewReader(blob.Bytes()), bufSize, cabfile.Options{})
		require.NoError(t, err)
		require.NotNil(t, head)
		assert.Equal(t, 1, len(head.Files))
		assert.Nil(t, head.Next)
	}
}

func TestMergeAppendRejectsSelfMerge(t *testing.T) {
	files := []cabfile.NewFile{{Name: "a.txt", Data: []byte("hi")}}
	var cab bytes.Buffer
	require.NoError(t, cabfile.Create(&cab, files, cabfile.CreateOptions{Compression: "none"}))
	c, err := cabfile.Parse(bytes.NewReader(cab.Bytes()), cabfile.Options{})
	require.NoError(t, err)

	err = cabfile.Append(c, c)
	assert.ErrorIs(t, err, cabfile.ErrInvalidMerge)
}
