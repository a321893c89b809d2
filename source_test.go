package zim

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesSourceReadAt(t *testing.T) {
	t.Parallel()

	src := NewBytesSource([]byte("0123456789"))
	assert.Equal(t, int64(10), src.Size())

	buf := make([]byte, 4)
	n, err := src.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("2345"), buf)

	// Short read at the tail.
	n, err = src.ReadAt(buf, 8)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)

	_, err = src.ReadAt(buf, 10)
	require.ErrorIs(t, err, io.EOF)

	_, err = src.ReadAt(buf, -1)
	require.Error(t, err)
}

func TestBytesSourceRange(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789")
	r, ok := NewBytesSource(data).(Ranger)
	require.True(t, ok)

	got, err := r.Range(3, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("3456"), got)

	// The range aliases the backing bytes.
	data[3] = 'x'
	assert.Equal(t, []byte("x456"), got)

	got, err = r.Range(10, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.Range(8, 3)
	require.Error(t, err)

	_, err = r.Range(-1, 2)
	require.Error(t, err)
}

func TestOpenSourceFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("archive bytes"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)

	src, err := openSource(f)
	require.NoError(t, err)
	assert.Equal(t, int64(13), src.Size())

	buf := make([]byte, 7)
	_, err = src.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("archive"), buf)

	c, ok := src.(io.Closer)
	require.True(t, ok)
	require.NoError(t, c.Close())
}

func TestOpenSourceEmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.bin")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)

	// Empty files fall back to plain file reads; mapping zero bytes is
	// not possible.
	src, err := openSource(f)
	require.NoError(t, err)
	assert.Equal(t, int64(0), src.Size())

	if c, ok := src.(io.Closer); ok {
		require.NoError(t, c.Close())
	}
}
