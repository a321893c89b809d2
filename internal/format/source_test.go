package format

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource is a plain io.ReaderAt over a slice, exercising the copying
// read path.
type stubSource []byte

func (s stubSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(s)) {
		return 0, io.EOF
	}
	n := copy(p, s[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s stubSource) Size() int64 { return int64(len(s)) }

// rangerSource also hands out subslices, exercising the zero-copy path.
type rangerSource []byte

func (s rangerSource) ReadAt(p []byte, off int64) (int, error) {
	return stubSource(s).ReadAt(p, off)
}

func (s rangerSource) Size() int64 { return int64(len(s)) }

func (s rangerSource) Range(off, length int64) ([]byte, error) {
	if off < 0 || length < 0 || off > int64(len(s))-length {
		return nil, io.EOF
	}
	return s[off : off+length : off+length], nil
}

func TestReadFull(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789")
	for _, src := range []Source{stubSource(data), rangerSource(data)} {
		got, err := ReadFull(src, 2, 5)
		require.NoError(t, err)
		assert.Equal(t, []byte("23456"), got)

		got, err = ReadFull(src, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, data, got)

		got, err = ReadFull(src, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestReadFullPastEnd(t *testing.T) {
	t.Parallel()

	src := stubSource("0123456789")

	_, err := ReadFull(src, 8, 5)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadFull(src, 11, 1)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadWindow(t *testing.T) {
	t.Parallel()

	src := rangerSource("0123456789")

	got, err := ReadWindow(src, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123"), got)

	// Clipped at the end of the source.
	got, err = ReadWindow(src, 7, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("789"), got)

	// Starting past the end yields an empty window.
	got, err = ReadWindow(src, 10, 4)
	require.NoError(t, err)
	assert.Nil(t, got)
}
