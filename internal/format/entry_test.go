package format

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// direntBytes encodes a directory entry the way archives lay them out:
// MIME field, parameter length, namespace, revision, kind-specific words,
// then NUL-terminated URL and title.
func direntBytes(mime uint16, ns byte, revision uint32, extra []uint32, url, title string) []byte {
	var b []byte
	b = binary.LittleEndian.AppendUint16(b, mime)
	b = append(b, 0, ns)
	b = binary.LittleEndian.AppendUint32(b, revision)
	for _, v := range extra {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	b = append(b, url...)
	b = append(b, 0)
	b = append(b, title...)
	b = append(b, 0)
	return b
}

func TestDecodeEntryArticle(t *testing.T) {
	t.Parallel()

	src := stubSource(direntBytes(1, 'C', 7, []uint32{3, 9}, "index.html", "Index"))
	e, err := DecodeEntry(src, 0, 4)
	require.NoError(t, err)

	assert.Equal(t, KindArticle, e.Kind)
	assert.Equal(t, byte('C'), e.Namespace)
	assert.Equal(t, "index.html", e.URL)
	assert.Equal(t, "Index", e.Title)
	assert.Equal(t, uint16(1), e.MimeTypeIndex)
	assert.Equal(t, uint32(7), e.Revision)
	assert.Equal(t, uint32(3), e.ClusterIndex)
	assert.Equal(t, uint32(9), e.BlobIndex)
}

func TestDecodeEntryTitleFallsBackToURL(t *testing.T) {
	t.Parallel()

	src := stubSource(direntBytes(0, 'C', 0, []uint32{0, 0}, "page", ""))
	e, err := DecodeEntry(src, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "page", e.Title)
}

func TestDecodeEntryRedirect(t *testing.T) {
	t.Parallel()

	src := stubSource(direntBytes(MimeRedirect, 'C', 0, []uint32{42}, "old", "Old"))
	e, err := DecodeEntry(src, 0, 1)
	require.NoError(t, err)

	assert.Equal(t, KindRedirect, e.Kind)
	assert.Equal(t, uint32(42), e.RedirectIndex)
	assert.Equal(t, "old", e.URL)
}

func TestDecodeEntryPlaceholders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mime uint16
		want EntryKind
	}{
		{"link target", MimeLinkTarget, KindLinkTarget},
		{"deleted", MimeDeleted, KindDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := stubSource(direntBytes(tt.mime, 'X', 0, nil, "stub", ""))
			e, err := DecodeEntry(src, 0, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Kind)
			assert.Equal(t, "stub", e.URL)
		})
	}
}

func TestDecodeEntryAtOffset(t *testing.T) {
	t.Parallel()

	raw := append(make([]byte, 10), direntBytes(0, 'C', 0, []uint32{1, 2}, "a", "A")...)
	e, err := DecodeEntry(stubSource(raw), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", e.URL)
}

func TestDecodeEntryBadMimeIndex(t *testing.T) {
	t.Parallel()

	src := stubSource(direntBytes(5, 'C', 0, []uint32{0, 0}, "a", ""))
	_, err := DecodeEntry(src, 0, 3)
	require.ErrorIs(t, err, ErrCorruptEntry)
}

func TestDecodeEntryUnterminated(t *testing.T) {
	t.Parallel()

	raw := direntBytes(0, 'C', 0, []uint32{0, 0}, "a", "title")
	// Strip the final NUL so the title never terminates.
	_, err := DecodeEntry(stubSource(raw[:len(raw)-1]), 0, 1)
	require.ErrorIs(t, err, ErrCorruptEntry)
}

func TestDecodeEntryTruncated(t *testing.T) {
	t.Parallel()

	_, err := DecodeEntry(stubSource{0, 0, 0, 'C'}, 0, 1)
	require.ErrorIs(t, err, ErrCorruptEntry)

	_, err = DecodeEntry(stubSource{}, 0, 1)
	require.ErrorIs(t, err, ErrCorruptEntry)
}

func TestDecodeEntryPastEnd(t *testing.T) {
	t.Parallel()

	_, err := DecodeEntry(stubSource("data"), 100, 1)
	require.ErrorIs(t, err, ErrCorruptEntry)
}

func TestDecodeEntryWidensWindow(t *testing.T) {
	t.Parallel()

	// A URL longer than the probe window forces the second, wider read.
	url := strings.Repeat("a", 8000)
	src := stubSource(direntBytes(0, 'C', 0, []uint32{0, 0}, url, "long"))

	e, err := DecodeEntry(src, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, url, e.URL)
	assert.Equal(t, "long", e.Title)
}

func TestDecodeEntryBeyondMaxSize(t *testing.T) {
	t.Parallel()

	url := strings.Repeat("a", maxEntrySize+16)
	src := stubSource(direntBytes(0, 'C', 0, []uint32{0, 0}, url, ""))

	_, err := DecodeEntry(src, 0, 1)
	require.ErrorIs(t, err, ErrCorruptEntry)
}

func TestDecodeEntryKey(t *testing.T) {
	t.Parallel()

	src := stubSource(direntBytes(MimeRedirect, 'A', 0, []uint32{7}, "short", "The Title"))
	ns, url, err := DecodeEntryKey(src, 0)
	require.NoError(t, err)
	assert.Equal(t, byte('A'), ns)
	assert.Equal(t, "short", url)
}

func TestDecodeEntryTitleKey(t *testing.T) {
	t.Parallel()

	src := stubSource(direntBytes(0, 'A', 0, []uint32{0, 0}, "url-only", ""))
	ns, title, err := DecodeEntryTitleKey(src, 0)
	require.NoError(t, err)
	assert.Equal(t, byte('A'), ns)
	assert.Equal(t, "url-only", title)

	src = stubSource(direntBytes(0, 'A', 0, []uint32{0, 0}, "url", "Titled"))
	_, title, err = DecodeEntryTitleKey(src, 0)
	require.NoError(t, err)
	assert.Equal(t, "Titled", title)
}

func TestEntryKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "article", KindArticle.String())
	assert.Equal(t, "redirect", KindRedirect.String())
	assert.Equal(t, "linktarget", KindLinkTarget.String())
	assert.Equal(t, "deleted", KindDeleted.String())
	assert.Equal(t, "kind(9)", EntryKind(9).String())
}
