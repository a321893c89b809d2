package format

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/meigma/zim/internal/sizing"
)

const (
	// HeaderSize is the fixed length of the archive header in bytes.
	HeaderSize = 80

	// magicNumber is the little-endian magic at offset 0 ("ZIM\x04").
	magicNumber = 0x044D495A

	// NoPage marks an absent main or layout page index in the header.
	NoPage = 0xFFFFFFFF
)

// Header is the decoded fixed-size archive header.
//
// All multi-byte fields are little-endian on disk. Offsets are absolute byte
// positions within the archive.
type Header struct {
	MajorVersion  uint16
	MinorVersion  uint16
	UUID          uuid.UUID
	EntryCount    uint32
	ClusterCount  uint32
	URLPtrPos     uint64
	TitlePtrPos   uint64
	ClusterPtrPos uint64
	MimeListPos   uint64
	MainPage      uint32
	LayoutPage    uint32
	ChecksumPos   uint64
}

// HasMainPage reports whether the header declares a main page entry.
func (h Header) HasMainPage() bool { return h.MainPage != NoPage }

// HasLayoutPage reports whether the header declares a layout page entry.
func (h Header) HasLayoutPage() bool { return h.LayoutPage != NoPage }

// ParseHeader decodes and validates the fixed archive header.
//
// fileSize is the total length of the archive; every offset field and the
// extent of every pointer list is checked against it, so a header that
// passes here can be dereferenced without further whole-file bounds checks.
func ParseHeader(data []byte, fileSize int64) (Header, error) {
	if fileSize < HeaderSize || len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, fileSize, HeaderSize)
	}

	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != magicNumber {
		return Header{}, fmt.Errorf("%w: magic 0x%08X", ErrNotZIM, magic)
	}

	h := Header{
		MajorVersion:  binary.LittleEndian.Uint16(data[4:6]),
		MinorVersion:  binary.LittleEndian.Uint16(data[6:8]),
		EntryCount:    binary.LittleEndian.Uint32(data[24:28]),
		ClusterCount:  binary.LittleEndian.Uint32(data[28:32]),
		URLPtrPos:     binary.LittleEndian.Uint64(data[32:40]),
		TitlePtrPos:   binary.LittleEndian.Uint64(data[40:48]),
		ClusterPtrPos: binary.LittleEndian.Uint64(data[48:56]),
		MimeListPos:   binary.LittleEndian.Uint64(data[56:64]),
		MainPage:      binary.LittleEndian.Uint32(data[64:68]),
		LayoutPage:    binary.LittleEndian.Uint32(data[68:72]),
		ChecksumPos:   binary.LittleEndian.Uint64(data[72:80]),
	}
	copy(h.UUID[:], data[8:24])

	if h.MajorVersion != 5 && h.MajorVersion != 6 {
		return Header{}, fmt.Errorf("%w: major version %d", ErrUnsupportedVersion, h.MajorVersion)
	}

	size := uint64(fileSize)
	if err := checkListExtent("url pointer list", h.URLPtrPos, uint64(h.EntryCount), 8, size); err != nil {
		return Header{}, err
	}
	if err := checkListExtent("title pointer list", h.TitlePtrPos, uint64(h.EntryCount), 4, size); err != nil {
		return Header{}, err
	}
	if err := checkListExtent("cluster pointer list", h.ClusterPtrPos, uint64(h.ClusterCount), 8, size); err != nil {
		return Header{}, err
	}
	if h.MimeListPos < HeaderSize || h.MimeListPos >= size {
		return Header{}, fmt.Errorf("%w: mime list position %d outside archive of %d bytes", ErrMalformedHeader, h.MimeListPos, size)
	}
	if h.ChecksumPos < HeaderSize || h.ChecksumPos > size {
		return Header{}, fmt.Errorf("%w: checksum position %d outside archive of %d bytes", ErrMalformedHeader, h.ChecksumPos, size)
	}
	if h.HasMainPage() && h.MainPage >= h.EntryCount {
		return Header{}, fmt.Errorf("%w: main page index %d exceeds entry count %d", ErrMalformedHeader, h.MainPage, h.EntryCount)
	}
	if h.HasLayoutPage() && h.LayoutPage >= h.EntryCount {
		return Header{}, fmt.Errorf("%w: layout page index %d exceeds entry count %d", ErrMalformedHeader, h.LayoutPage, h.EntryCount)
	}

	return h, nil
}

// checkListExtent verifies that a pointer list of count fixed-width elements
// starting at pos lies within the archive.
func checkListExtent(name string, pos, count, width, size uint64) error {
	bytes, ok := sizing.MulUint64(count, width)
	if !ok {
		return fmt.Errorf("%w: %s extent overflows", ErrMalformedHeader, name)
	}
	end, ok := sizing.AddUint64(pos, bytes)
	if !ok || end > size {
		return fmt.Errorf("%w: %s at %d with %d elements exceeds archive of %d bytes", ErrMalformedHeader, name, pos, count, size)
	}
	return nil
}
