package format

import (
	"bytes"
	"fmt"
)

// Directory entries carry one of these sentinels in place of a MIME type
// index when they do not reference content.
const (
	// MimeRedirect marks a redirect entry.
	MimeRedirect = 0xFFFF

	// MimeLinkTarget marks a link target entry.
	MimeLinkTarget = 0xFFFE

	// MimeDeleted marks a deleted entry placeholder.
	MimeDeleted = 0xFFFD
)

// maxMimeTableSize bounds the window scanned for the MIME type table. Real
// archives carry at most a few hundred short strings.
const maxMimeTableSize = 64 << 10

// MimeTable is the archive's ordered list of MIME type strings. Directory
// entries reference it by index.
type MimeTable struct {
	types []string
}

// ParseMimeTable reads the MIME type list starting at the header's
// MimeListPos. The list is a run of NUL-terminated strings closed by an
// empty string.
func ParseMimeTable(src Source, pos uint64) (*MimeTable, error) {
	window, err := ReadWindow(src, pos, maxMimeTableSize)
	if err != nil {
		return nil, fmt.Errorf("%w: mime list unreadable: %v", ErrMalformedHeader, err)
	}

	var types []string
	rest := window
	for {
		i := bytes.IndexByte(rest, 0)
		if i < 0 {
			return nil, fmt.Errorf("%w: mime list missing terminator", ErrMalformedHeader)
		}
		if i == 0 {
			break
		}
		types = append(types, string(rest[:i]))
		rest = rest[i+1:]
	}

	return &MimeTable{types: types}, nil
}

// Len returns the number of MIME types in the table.
func (t *MimeTable) Len() int { return len(t.types) }

// TypeAt returns the MIME type string at index i, or false when i is a
// sentinel or out of range.
func (t *MimeTable) TypeAt(i uint16) (string, bool) {
	if int(i) >= len(t.types) {
		return "", false
	}
	return t.types[i], true
}

// Types returns the table contents in index order. The slice is shared and
// must not be modified.
func (t *MimeTable) Types() []string { return t.types }
