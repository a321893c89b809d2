package zim

import "github.com/google/uuid"

// Info is a point-in-time metadata snapshot of an archive.
type Info struct {
	MajorVersion uint16
	MinorVersion uint16
	UUID         uuid.UUID
	EntryCount   uint32
	ClusterCount uint32
	Size         int64

	// Pointer list and checksum positions, as absolute byte offsets
	// within the archive.
	URLPtrPos     uint64
	TitlePtrPos   uint64
	ClusterPtrPos uint64
	MimeListPos   uint64
	ChecksumPos   uint64

	// MainPage is the entry index of the main page; meaningful only
	// when HasMainPage is true.
	HasMainPage bool
	MainPage    uint32

	// LayoutPage is the entry index of the layout page; meaningful only
	// when HasLayoutPage is true.
	HasLayoutPage bool
	LayoutPage    uint32

	// HasChecksum reports whether the archive carries an MD5 trailer.
	HasChecksum bool
}

// Info returns the archive's metadata snapshot.
func (a *Archive) Info() Info {
	h := a.header
	return Info{
		MajorVersion:  h.MajorVersion,
		MinorVersion:  h.MinorVersion,
		UUID:          h.UUID,
		EntryCount:    h.EntryCount,
		ClusterCount:  h.ClusterCount,
		Size:          a.src.Size(),
		URLPtrPos:     h.URLPtrPos,
		TitlePtrPos:   h.TitlePtrPos,
		ClusterPtrPos: h.ClusterPtrPos,
		MimeListPos:   h.MimeListPos,
		ChecksumPos:   h.ChecksumPos,
		HasMainPage:   h.HasMainPage(),
		MainPage:      h.MainPage,
		HasLayoutPage: h.HasLayoutPage(),
		LayoutPage:    h.LayoutPage,
		HasChecksum:   a.hasChecksum(),
	}
}

// UUID returns the archive's unique identifier.
func (a *Archive) UUID() uuid.UUID {
	return a.header.UUID
}

// Version returns the archive's major and minor format version.
func (a *Archive) Version() (major, minor uint16) {
	return a.header.MajorVersion, a.header.MinorVersion
}
