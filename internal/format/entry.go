package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// EntryKind classifies a directory entry by the sentinel carried in its
// MIME type field.
type EntryKind uint8

const (
	// KindArticle is a content entry referencing a blob in a cluster.
	KindArticle EntryKind = iota

	// KindRedirect points at another entry by index.
	KindRedirect

	// KindLinkTarget is a link target placeholder with no content.
	KindLinkTarget

	// KindDeleted is a deleted entry placeholder with no content.
	KindDeleted
)

// String returns a short name for the kind.
func (k EntryKind) String() string {
	switch k {
	case KindArticle:
		return "article"
	case KindRedirect:
		return "redirect"
	case KindLinkTarget:
		return "linktarget"
	case KindDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Entry is a decoded directory entry.
//
// Title holds the effective title: entries written with an empty title fall
// back to the URL. ClusterIndex and BlobIndex are meaningful only for
// KindArticle, RedirectIndex only for KindRedirect.
type Entry struct {
	Kind          EntryKind
	Namespace     byte
	URL           string
	Title         string
	MimeTypeIndex uint16
	Revision      uint32
	ClusterIndex  uint32
	BlobIndex     uint32
	RedirectIndex uint32
	Index         uint32
}

const (
	// entryFixedSize covers mimetype, parameter length, namespace and
	// revision, present in every entry.
	entryFixedSize = 8

	// entryProbeSize is the first window tried when decoding an entry.
	// Almost every real entry fits; the decoder widens on demand.
	entryProbeSize = 4 << 10

	// maxEntrySize bounds a single directory entry. URLs and titles past
	// this are treated as corruption.
	maxEntrySize = 64 << 10
)

// errWindow reports that an entry continues past the decoded window.
var errWindow = errors.New("entry exceeds window")

// DecodeEntry decodes the directory entry at off.
//
// mimeCount is the size of the archive's MIME table; article entries whose
// MIME index falls outside it are rejected as corrupt.
func DecodeEntry(src Source, off uint64, mimeCount int) (Entry, error) {
	window, err := ReadWindow(src, off, entryProbeSize)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: at offset %d: %v", ErrCorruptEntry, off, err)
	}
	e, err := decodeEntry(window, mimeCount)
	if errors.Is(err, errWindow) && len(window) == entryProbeSize {
		window, err = ReadWindow(src, off, maxEntrySize)
		if err != nil {
			return Entry{}, fmt.Errorf("%w: at offset %d: %v", ErrCorruptEntry, off, err)
		}
		e, err = decodeEntry(window, mimeCount)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: at offset %d: %v", ErrCorruptEntry, off, err)
	}
	return e, nil
}

func decodeEntry(data []byte, mimeCount int) (Entry, error) {
	if len(data) < entryFixedSize {
		return Entry{}, errWindow
	}

	mime := binary.LittleEndian.Uint16(data[0:2])
	e := Entry{
		Namespace:     data[3],
		MimeTypeIndex: mime,
		Revision:      binary.LittleEndian.Uint32(data[4:8]),
	}
	rest := data[entryFixedSize:]

	switch mime {
	case MimeRedirect:
		e.Kind = KindRedirect
		if len(rest) < 4 {
			return Entry{}, errWindow
		}
		e.RedirectIndex = binary.LittleEndian.Uint32(rest[0:4])
		rest = rest[4:]
	case MimeLinkTarget:
		e.Kind = KindLinkTarget
	case MimeDeleted:
		e.Kind = KindDeleted
	default:
		e.Kind = KindArticle
		if int(mime) >= mimeCount {
			return Entry{}, fmt.Errorf("mime index %d exceeds table of %d", mime, mimeCount)
		}
		if len(rest) < 8 {
			return Entry{}, errWindow
		}
		e.ClusterIndex = binary.LittleEndian.Uint32(rest[0:4])
		e.BlobIndex = binary.LittleEndian.Uint32(rest[4:8])
		rest = rest[8:]
	}

	url, rest, ok := cutString(rest)
	if !ok {
		return Entry{}, errWindow
	}
	title, _, ok := cutString(rest)
	if !ok {
		return Entry{}, errWindow
	}

	e.URL = url
	e.Title = title
	if e.Title == "" {
		e.Title = url
	}
	return e, nil
}

// DecodeEntryKey decodes only the namespace and URL of the entry at off.
// Index probes over the URL pointer list use it to avoid full decodes.
func DecodeEntryKey(src Source, off uint64) (byte, string, error) {
	return probeEntry(src, off, decodeEntryKey)
}

// DecodeEntryTitleKey decodes only the namespace and effective title of the
// entry at off, applying the URL fallback for empty titles.
func DecodeEntryTitleKey(src Source, off uint64) (byte, string, error) {
	return probeEntry(src, off, decodeEntryTitleKey)
}

func probeEntry(src Source, off uint64, decode func([]byte) (byte, string, error)) (byte, string, error) {
	window, err := ReadWindow(src, off, entryProbeSize)
	if err != nil {
		return 0, "", fmt.Errorf("%w: at offset %d: %v", ErrCorruptEntry, off, err)
	}
	ns, key, err := decode(window)
	if errors.Is(err, errWindow) && len(window) == entryProbeSize {
		window, err = ReadWindow(src, off, maxEntrySize)
		if err != nil {
			return 0, "", fmt.Errorf("%w: at offset %d: %v", ErrCorruptEntry, off, err)
		}
		ns, key, err = decode(window)
	}
	if err != nil {
		return 0, "", fmt.Errorf("%w: at offset %d: %v", ErrCorruptEntry, off, err)
	}
	return ns, key, nil
}

func decodeEntryKey(data []byte) (byte, string, error) {
	skip, ns, err := entryKeyOffset(data)
	if err != nil {
		return 0, "", err
	}
	url, _, ok := cutString(data[skip:])
	if !ok {
		return 0, "", errWindow
	}
	return ns, url, nil
}

func decodeEntryTitleKey(data []byte) (byte, string, error) {
	skip, ns, err := entryKeyOffset(data)
	if err != nil {
		return 0, "", err
	}
	url, rest, ok := cutString(data[skip:])
	if !ok {
		return 0, "", errWindow
	}
	title, _, ok := cutString(rest)
	if !ok {
		return 0, "", errWindow
	}
	if title == "" {
		title = url
	}
	return ns, title, nil
}

// entryKeyOffset returns the offset of the URL within an entry, which
// depends on the kind encoded in the MIME type field.
func entryKeyOffset(data []byte) (int, byte, error) {
	if len(data) < entryFixedSize {
		return 0, 0, errWindow
	}
	skip := entryFixedSize
	switch binary.LittleEndian.Uint16(data[0:2]) {
	case MimeRedirect:
		skip += 4
	case MimeLinkTarget, MimeDeleted:
	default:
		skip += 8
	}
	if len(data) < skip {
		return 0, 0, errWindow
	}
	return skip, data[3], nil
}

func cutString(data []byte) (string, []byte, bool) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return "", nil, false
	}
	return string(data[:i]), data[i+1:], true
}
