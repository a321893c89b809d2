package cluster

import "errors"

var (
	// ErrCorruptCluster reports a cluster whose framing or blob offset
	// table is inconsistent.
	ErrCorruptCluster = errors.New("zim: corrupt cluster")

	// ErrUnsupportedCompression reports a cluster compressed with a codec
	// this package does not decode.
	ErrUnsupportedCompression = errors.New("zim: unsupported cluster compression")

	// ErrDecompression reports a failure while decoding a cluster body.
	ErrDecompression = errors.New("zim: decompression failed")
)
