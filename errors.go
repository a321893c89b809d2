package zim

import (
	"errors"

	"github.com/meigma/zim/internal/cluster"
	"github.com/meigma/zim/internal/format"
)

// Errors re-exported from the format layer.
var (
	// ErrNotZIM is returned when the file does not start with the ZIM magic.
	ErrNotZIM = format.ErrNotZIM

	// ErrUnsupportedVersion is returned for major versions other than 5 and 6.
	ErrUnsupportedVersion = format.ErrUnsupportedVersion

	// ErrTruncated is returned when the file is too short to hold a header.
	ErrTruncated = format.ErrTruncated

	// ErrMalformedHeader is returned when header fields are inconsistent
	// with the file, including pointer lists reaching past its end.
	ErrMalformedHeader = format.ErrMalformedHeader

	// ErrCorruptEntry is returned when a directory entry cannot be decoded.
	ErrCorruptEntry = format.ErrCorruptEntry

	// ErrIndexOutOfRange is returned for entry, cluster, or blob indexes
	// beyond the archive's counts.
	ErrIndexOutOfRange = format.ErrIndexOutOfRange
)

// Errors re-exported from the cluster layer.
var (
	// ErrCorruptCluster is returned when cluster framing or the blob
	// offset table is inconsistent.
	ErrCorruptCluster = cluster.ErrCorruptCluster

	// ErrUnsupportedCompression is returned for cluster codecs this
	// package does not decode.
	ErrUnsupportedCompression = cluster.ErrUnsupportedCompression

	// ErrDecompression is returned when decoding a cluster body fails.
	ErrDecompression = cluster.ErrDecompression
)

// Errors specific to the zim package.
var (
	// ErrRedirectCycle is returned when following redirects exceeds the
	// depth limit.
	ErrRedirectCycle = errors.New("zim: redirect cycle")

	// ErrClosed is returned when the archive has been closed.
	ErrClosed = errors.New("zim: archive closed")

	// ErrWalkerUsed is returned when a Walker is run a second time.
	ErrWalkerUsed = errors.New("zim: walker already used")
)
