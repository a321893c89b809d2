package zimtest

import (
	"crypto/md5" //nolint:gosec // matching the format's trailing checksum
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zim/internal/format"
)

func TestBuildChecksumTrailer(t *testing.T) {
	t.Parallel()

	img := Build(t, Options{},
		Entry{Kind: format.KindArticle, Namespace: 'C', URL: "a", Data: []byte("data")},
	)
	h, err := format.ParseHeader(img[:format.HeaderSize], int64(len(img)))
	require.NoError(t, err)

	require.Equal(t, h.ChecksumPos+md5.Size, uint64(len(img)))
	want := md5.Sum(img[:h.ChecksumPos]) //nolint:gosec // matching the format
	assert.Equal(t, want[:], img[h.ChecksumPos:])
}

func TestBuildSkipChecksum(t *testing.T) {
	t.Parallel()

	img := Build(t, Options{SkipChecksum: true},
		Entry{Kind: format.KindArticle, Namespace: 'C', URL: "a", Data: []byte("data")},
	)
	h, err := format.ParseHeader(img[:format.HeaderSize], int64(len(img)))
	require.NoError(t, err)
	assert.Equal(t, h.ChecksumPos, uint64(len(img)))
}

func TestBuildHeaderFields(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("99999999-8888-7777-6666-555555555555")
	img := Build(t, Options{Version: 5, MinorVersion: 2, UUID: id})

	h, err := format.ParseHeader(img[:format.HeaderSize], int64(len(img)))
	require.NoError(t, err)
	assert.Equal(t, uint16(5), h.MajorVersion)
	assert.Equal(t, uint16(2), h.MinorVersion)
	assert.Equal(t, id, h.UUID)
	assert.Equal(t, uint32(0), h.EntryCount)
	assert.Equal(t, uint32(0), h.ClusterCount)
}

func TestBuildResolvesPagesAfterSorting(t *testing.T) {
	t.Parallel()

	// Entries are given out of order; references resolve against the
	// sorted layout.
	img := Build(t, Options{MainPage: "C/b", LayoutPage: "C/a"},
		Entry{Kind: format.KindArticle, Namespace: 'C', URL: "b", Data: []byte("b")},
		Entry{Kind: format.KindArticle, Namespace: 'C', URL: "a", Data: []byte("a")},
	)
	h, err := format.ParseHeader(img[:format.HeaderSize], int64(len(img)))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), h.MainPage)
	assert.Equal(t, uint32(0), h.LayoutPage)
}

func TestSourceReadAt(t *testing.T) {
	t.Parallel()

	src := Source("0123456789")

	buf := make([]byte, 4)
	n, err := src.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("3456"), buf)

	n, err = src.ReadAt(buf, 8)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)

	_, err = src.ReadAt(buf, 100)
	require.ErrorIs(t, err, io.EOF)

	_, err = src.ReadAt(buf, -1)
	require.Error(t, err)

	assert.Equal(t, int64(10), src.Size())
}
