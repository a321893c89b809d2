// Package zimtest builds archive images in memory for tests.
//
// Build assembles a structurally valid archive from entry descriptions,
// handling sort order, pointer lists, cluster packing, and the trailing
// checksum. Raw overrides exist for constructing corrupt fixtures.
package zimtest

import (
	"bytes"
	"cmp"
	"crypto/md5" //nolint:gosec // the format mandates MD5 for its trailing checksum
	"encoding/binary"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/meigma/zim/internal/cluster"
	"github.com/meigma/zim/internal/format"
)

// Entry describes one directory entry to place in a built archive.
type Entry struct {
	Kind      format.EntryKind
	Namespace byte
	URL       string
	Title     string
	Revision  uint32

	// MimeType and Data apply to article entries. An empty MimeType
	// defaults to application/octet-stream.
	MimeType string
	Data     []byte

	// Target names a redirect destination as "ns/url".
	Target string

	// RawMimeIndex overrides the MIME index written for an article,
	// bypassing table resolution. Used for corrupt fixtures.
	RawMimeIndex *uint16

	// RawRedirect overrides the resolved redirect index. Used for
	// corrupt fixtures.
	RawRedirect *uint32
}

// Options configures a built archive.
type Options struct {
	Version      uint16 // major version; 0 means 6
	MinorVersion uint16
	UUID         uuid.UUID // zero means random

	Compression cluster.Compression // 0 means uncompressed
	Extended    bool                // 8-byte blob offsets

	// MaxBlobsPerCluster splits articles into clusters of at most this
	// many blobs. 0 packs all articles into one cluster.
	MaxBlobsPerCluster int

	MainPage   string // "ns/url"; empty means absent
	LayoutPage string // "ns/url"; empty means absent

	SkipChecksum bool // omit the MD5 trailer
}

type nsURL struct {
	ns  byte
	url string
}

type blobRef struct {
	cluster uint32
	blob    uint32
}

// Build assembles a complete archive image.
//
// Entries are sorted into URL order automatically and redirect targets,
// given as "ns/url", are resolved to entry indexes after sorting.
func Build(tb testing.TB, opts Options, entries ...Entry) []byte {
	tb.Helper()

	major := opts.Version
	if major == 0 {
		major = 6
	}
	comp := opts.Compression
	if comp == 0 {
		comp = cluster.CompressionNone
	}
	id := opts.UUID
	if id == (uuid.UUID{}) {
		id = uuid.New()
	}

	ents := slices.Clone(entries)
	for i := range ents {
		if ents[i].Kind == format.KindArticle && ents[i].MimeType == "" {
			ents[i].MimeType = "application/octet-stream"
		}
	}
	slices.SortFunc(ents, func(a, b Entry) int {
		if c := cmp.Compare(a.Namespace, b.Namespace); c != 0 {
			return c
		}
		return strings.Compare(a.URL, b.URL)
	})

	indexOf := make(map[nsURL]uint32, len(ents))
	for i, e := range ents {
		indexOf[nsURL{e.Namespace, e.URL}] = uint32(i)
	}

	// MIME table in first-use order.
	var mimeTypes []string
	mimeIndex := make(map[string]uint16)
	for _, e := range ents {
		if e.Kind != format.KindArticle || e.RawMimeIndex != nil {
			continue
		}
		if _, ok := mimeIndex[e.MimeType]; !ok {
			mimeIndex[e.MimeType] = uint16(len(mimeTypes))
			mimeTypes = append(mimeTypes, e.MimeType)
		}
	}

	// Pack article blobs into clusters in entry order.
	perCluster := opts.MaxBlobsPerCluster
	if perCluster <= 0 {
		perCluster = len(ents) + 1
	}
	var clusterBlobs [][][]byte
	blobRefs := make(map[uint32]blobRef)
	for i, e := range ents {
		if e.Kind != format.KindArticle {
			continue
		}
		if len(clusterBlobs) == 0 || len(clusterBlobs[len(clusterBlobs)-1]) >= perCluster {
			clusterBlobs = append(clusterBlobs, nil)
		}
		ci := len(clusterBlobs) - 1
		clusterBlobs[ci] = append(clusterBlobs[ci], e.Data)
		blobRefs[uint32(i)] = blobRef{cluster: uint32(ci), blob: uint32(len(clusterBlobs[ci]) - 1)}
	}

	clusters := make([][]byte, len(clusterBlobs))
	for i, blobs := range clusterBlobs {
		clusters[i] = BuildCluster(tb, blobs, comp, opts.Extended)
	}

	dirents := make([][]byte, len(ents))
	for i, e := range ents {
		dirents[i] = buildDirent(tb, e, uint32(i), mimeIndex, blobRefs, indexOf)
	}

	// Title pointer list orders entry indexes by effective title.
	titleOrder := make([]uint32, len(ents))
	for i := range titleOrder {
		titleOrder[i] = uint32(i)
	}
	slices.SortFunc(titleOrder, func(x, y uint32) int {
		a, b := ents[x], ents[y]
		if c := cmp.Compare(a.Namespace, b.Namespace); c != 0 {
			return c
		}
		if c := strings.Compare(effectiveTitle(a), effectiveTitle(b)); c != 0 {
			return c
		}
		return cmp.Compare(x, y)
	})

	// Layout: header, MIME table, dirents, URL pointers, title pointers,
	// cluster pointers, clusters, checksum. Clusters sit last so each
	// extends exactly to the next pointer or the checksum position.
	mimeBlob := buildMimeTable(mimeTypes)

	pos := uint64(format.HeaderSize)
	mimePos := pos
	pos += uint64(len(mimeBlob))
	direntPos := make([]uint64, len(dirents))
	for i, d := range dirents {
		direntPos[i] = pos
		pos += uint64(len(d))
	}
	urlPtrPos := pos
	pos += 8 * uint64(len(ents))
	titlePtrPos := pos
	pos += 4 * uint64(len(ents))
	clusterPtrPos := pos
	pos += 8 * uint64(len(clusters))
	clusterPos := make([]uint64, len(clusters))
	for i, c := range clusters {
		clusterPos[i] = pos
		pos += uint64(len(c))
	}
	checksumPos := pos

	resolveRef := func(ref string) uint32 {
		if ref == "" {
			return format.NoPage
		}
		ns, url := splitRef(tb, ref)
		i, ok := indexOf[nsURL{ns, url}]
		if !ok {
			tb.Fatalf("zimtest: page reference %q not in archive", ref)
		}
		return i
	}

	hdr := make([]byte, format.HeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:], 0x044D495A)
	binary.LittleEndian.PutUint16(hdr[4:], major)
	binary.LittleEndian.PutUint16(hdr[6:], opts.MinorVersion)
	copy(hdr[8:24], id[:])
	binary.LittleEndian.PutUint32(hdr[24:], uint32(len(ents)))
	binary.LittleEndian.PutUint32(hdr[28:], uint32(len(clusters)))
	binary.LittleEndian.PutUint64(hdr[32:], urlPtrPos)
	binary.LittleEndian.PutUint64(hdr[40:], titlePtrPos)
	binary.LittleEndian.PutUint64(hdr[48:], clusterPtrPos)
	binary.LittleEndian.PutUint64(hdr[56:], mimePos)
	binary.LittleEndian.PutUint32(hdr[64:], resolveRef(opts.MainPage))
	binary.LittleEndian.PutUint32(hdr[68:], resolveRef(opts.LayoutPage))
	binary.LittleEndian.PutUint64(hdr[72:], checksumPos)

	img := make([]byte, 0, checksumPos+md5.Size)
	img = append(img, hdr...)
	img = append(img, mimeBlob...)
	for _, d := range dirents {
		img = append(img, d...)
	}
	for _, off := range direntPos {
		img = binary.LittleEndian.AppendUint64(img, off)
	}
	for _, i := range titleOrder {
		img = binary.LittleEndian.AppendUint32(img, i)
	}
	for _, off := range clusterPos {
		img = binary.LittleEndian.AppendUint64(img, off)
	}
	for _, c := range clusters {
		img = append(img, c...)
	}
	if uint64(len(img)) != checksumPos {
		tb.Fatalf("zimtest: assembled %d bytes, expected %d", len(img), checksumPos)
	}

	if !opts.SkipChecksum {
		sum := md5.Sum(img) //nolint:gosec // the format mandates MD5
		img = append(img, sum[:]...)
	}
	return img
}

func effectiveTitle(e Entry) string {
	if e.Title == "" {
		return e.URL
	}
	return e.Title
}

func splitRef(tb testing.TB, ref string) (byte, string) {
	tb.Helper()
	if len(ref) < 2 || ref[1] != '/' {
		tb.Fatalf("zimtest: reference %q is not ns/url", ref)
	}
	return ref[0], ref[2:]
}

func buildMimeTable(types []string) []byte {
	var b bytes.Buffer
	for _, t := range types {
		b.WriteString(t)
		b.WriteByte(0)
	}
	b.WriteByte(0)
	return b.Bytes()
}

func buildDirent(tb testing.TB, e Entry, index uint32, mimeIndex map[string]uint16, blobRefs map[uint32]blobRef, indexOf map[nsURL]uint32) []byte {
	tb.Helper()

	var mime uint16
	switch e.Kind {
	case format.KindArticle:
		if e.RawMimeIndex != nil {
			mime = *e.RawMimeIndex
		} else {
			mime = mimeIndex[e.MimeType]
		}
	case format.KindRedirect:
		mime = format.MimeRedirect
	case format.KindLinkTarget:
		mime = format.MimeLinkTarget
	case format.KindDeleted:
		mime = format.MimeDeleted
	default:
		tb.Fatalf("zimtest: entry %c/%s has unknown kind %d", e.Namespace, e.URL, e.Kind)
	}

	var b []byte
	b = binary.LittleEndian.AppendUint16(b, mime)
	b = append(b, 0, e.Namespace)
	b = binary.LittleEndian.AppendUint32(b, e.Revision)

	switch e.Kind {
	case format.KindRedirect:
		target := uint32(0)
		switch {
		case e.RawRedirect != nil:
			target = *e.RawRedirect
		default:
			ns, url := splitRef(tb, e.Target)
			i, ok := indexOf[nsURL{ns, url}]
			if !ok {
				tb.Fatalf("zimtest: redirect target %q not in archive", e.Target)
			}
			target = i
		}
		b = binary.LittleEndian.AppendUint32(b, target)
	case format.KindArticle:
		ref := blobRefs[index]
		b = binary.LittleEndian.AppendUint32(b, ref.cluster)
		b = binary.LittleEndian.AppendUint32(b, ref.blob)
	}

	b = append(b, e.URL...)
	b = append(b, 0)
	b = append(b, e.Title...)
	b = append(b, 0)
	return b
}

// BuildCluster encodes a single cluster: the info byte followed by the
// blob offset table and blob data, compressed as requested.
func BuildCluster(tb testing.TB, blobs [][]byte, comp cluster.Compression, extended bool) []byte {
	tb.Helper()

	width := 4
	if extended {
		width = 8
	}
	offsets := make([]uint64, len(blobs)+1)
	off := uint64((len(blobs) + 1) * width)
	offsets[0] = off
	for i, blob := range blobs {
		off += uint64(len(blob))
		offsets[i+1] = off
	}

	var body bytes.Buffer
	for _, o := range offsets {
		if extended {
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], o)
			body.Write(tmp[:])
		} else {
			var tmp [4]byte
			binary.LittleEndian.PutUint32(tmp[:], uint32(o))
			body.Write(tmp[:])
		}
	}
	for _, blob := range blobs {
		body.Write(blob)
	}

	info := byte(comp)
	if extended {
		info |= 0x10
	}
	out := []byte{info}

	switch comp {
	case cluster.CompressionNone:
		return append(out, body.Bytes()...)
	case cluster.CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			tb.Fatalf("zimtest: zstd writer: %v", err)
		}
		defer enc.Close()
		return enc.EncodeAll(body.Bytes(), out)
	case cluster.CompressionZlib:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(body.Bytes()); err != nil {
			tb.Fatalf("zimtest: zlib writer: %v", err)
		}
		if err := zw.Close(); err != nil {
			tb.Fatalf("zimtest: zlib close: %v", err)
		}
		return append(out, buf.Bytes()...)
	case cluster.CompressionXZ:
		var buf bytes.Buffer
		xw, err := xz.NewWriter(&buf)
		if err != nil {
			tb.Fatalf("zimtest: xz writer: %v", err)
		}
		if _, err := xw.Write(body.Bytes()); err != nil {
			tb.Fatalf("zimtest: xz write: %v", err)
		}
		if err := xw.Close(); err != nil {
			tb.Fatalf("zimtest: xz close: %v", err)
		}
		return append(out, buf.Bytes()...)
	default:
		tb.Fatalf("zimtest: cannot encode %s clusters", comp)
		return nil
	}
}

// Source wraps data in a minimal byte source without range support, so
// reads exercise the copying path.
type Source []byte

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (s Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("zimtest: negative offset")
	}
	if off >= int64(len(s)) {
		return 0, io.EOF
	}
	n := copy(p, s[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (s Source) Size() int64 {
	return int64(len(s))
}
