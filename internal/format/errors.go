package format

import "errors"

// Sentinel errors for structural faults in an archive.
var (
	// ErrNotZIM is returned when the header magic number does not match.
	ErrNotZIM = errors.New("zim: not a zim archive")

	// ErrUnsupportedVersion is returned for major versions other than 5 and 6.
	ErrUnsupportedVersion = errors.New("zim: unsupported format version")

	// ErrTruncated is returned when the archive is shorter than its fixed header.
	ErrTruncated = errors.New("zim: truncated archive")

	// ErrMalformedHeader is returned when header fields or the structures they
	// point at are inconsistent with the archive's byte length.
	ErrMalformedHeader = errors.New("zim: malformed header")

	// ErrCorruptEntry is returned when a directory entry cannot be decoded.
	ErrCorruptEntry = errors.New("zim: corrupt directory entry")

	// ErrIndexOutOfRange is returned for entry or cluster indices outside the
	// ranges the header declares.
	ErrIndexOutOfRange = errors.New("zim: index out of range")
)
