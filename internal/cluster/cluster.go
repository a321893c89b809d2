// Package cluster reads and decodes content clusters.
//
// A cluster is an optionally compressed region holding consecutive blobs.
// Its first byte selects the codec and offset width; the decoded body opens
// with a blob offset table followed by the blob data itself.
package cluster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/zim/internal/format"
	"github.com/meigma/zim/internal/sizing"
)

// DefaultMaxBodySize is the default limit on a decoded cluster body (256MB).
// It bounds memory per cluster against decompression bombs.
const DefaultMaxBodySize = 256 << 20

// extendedFlag in the cluster information byte selects 8-byte blob offsets.
const extendedFlag = 0x10

// Reader decodes clusters from an archive byte source.
//
// A Reader is safe for concurrent use. Decoded clusters are independent of
// the Reader but may alias the source's backing bytes when the cluster is
// stored uncompressed.
type Reader struct {
	src         format.Source
	extendedOK  bool
	maxBodySize uint64
	pool        *DecompressPool
}

// Option configures a Reader.
type Option func(*Reader)

// WithMaxBodySize sets the limit on a decoded cluster body.
// Set to 0 to disable the limit.
func WithMaxBodySize(limit uint64) Option {
	return func(r *Reader) {
		r.maxBodySize = limit
	}
}

// NewReader creates a cluster reader. majorVersion gates the extended
// offset format, which only version 6 archives may use.
func NewReader(src format.Source, majorVersion uint16, opts ...Option) *Reader {
	r := &Reader{
		src:         src,
		extendedOK:  majorVersion >= 6,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pool = NewDecompressPool(r.maxBodySize)
	return r
}

// Cluster is a fully decoded cluster.
//
// Blob views returned from it alias the decoded body.
type Cluster struct {
	compression Compression
	extended    bool

	// body is the decoded cluster content including the blob offset
	// table. For uncompressed clusters on a range-capable source it
	// aliases the archive bytes.
	body []byte

	// offsets holds blob boundaries relative to body, one more than the
	// blob count.
	offsets []uint64
}

// Read decodes the cluster occupying [start, end) in the archive. index is
// used only for diagnostics.
func (r *Reader) Read(index uint32, start, end uint64) (*Cluster, error) {
	if end <= start {
		return nil, fmt.Errorf("%w: cluster %d: empty extent [%d, %d)", ErrCorruptCluster, index, start, end)
	}

	info, err := format.ReadFull(r.src, start, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: cluster %d: %v", ErrCorruptCluster, index, err)
	}

	compression, extended, err := ParseInfoByte(info[0])
	if err != nil {
		return nil, fmt.Errorf("cluster %d: %w", index, err)
	}
	if extended && !r.extendedOK {
		return nil, fmt.Errorf("%w: cluster %d: extended offsets in a version 5 archive", ErrCorruptCluster, index)
	}

	body, err := r.readBody(index, compression, start+1, end)
	if err != nil {
		return nil, err
	}

	offsets, err := parseOffsets(index, body, extended)
	if err != nil {
		return nil, err
	}

	return &Cluster{
		compression: compression,
		extended:    extended,
		body:        body,
		offsets:     offsets,
	}, nil
}

// readBody materializes the cluster body following the information byte.
func (r *Reader) readBody(index uint32, compression Compression, start, end uint64) ([]byte, error) {
	stored, err := sizing.ToInt(end-start, ErrCorruptCluster)
	if err != nil {
		return nil, fmt.Errorf("%w: cluster %d: stored size overflows", ErrCorruptCluster, index)
	}

	if compression == CompressionNone {
		body, err := format.ReadFull(r.src, start, stored)
		if err != nil {
			return nil, fmt.Errorf("%w: cluster %d: %v", ErrCorruptCluster, index, err)
		}
		return body, nil
	}

	section := io.NewSectionReader(r.src, int64(start), int64(stored))
	dec, release, err := r.pool.bodyReader(compression, section)
	if err != nil {
		return nil, fmt.Errorf("cluster %d: %w", index, err)
	}
	defer release()

	var body []byte
	if r.maxBodySize == 0 {
		body, err = io.ReadAll(dec)
	} else {
		limitErr := fmt.Errorf("%w: cluster %d: body exceeds %d bytes", ErrDecompression, index, r.maxBodySize)
		body, err = sizing.ReadAllWithLimit(dec, r.maxBodySize, limitErr)
	}
	if err != nil {
		if errors.Is(err, ErrDecompression) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: cluster %d: %v", ErrDecompression, index, err)
	}
	return body, nil
}

// parseOffsets validates and extracts the blob offset table. The first
// offset doubles as the table length, fixing the blob count.
func parseOffsets(index uint32, body []byte, extended bool) ([]uint64, error) {
	width := uint64(4)
	if extended {
		width = 8
	}
	if uint64(len(body)) < width {
		return nil, fmt.Errorf("%w: cluster %d: body of %d bytes holds no offset table", ErrCorruptCluster, index, len(body))
	}

	first := readOffset(body, 0, extended)
	if first < width || first%width != 0 || first > uint64(len(body)) {
		return nil, fmt.Errorf("%w: cluster %d: first blob offset %d invalid for body of %d bytes", ErrCorruptCluster, index, first, len(body))
	}

	count := first / width // boundaries, one more than blobs
	offsets := make([]uint64, count)
	prev := first
	for i := uint64(0); i < count; i++ {
		off := readOffset(body, i, extended)
		if i > 0 && off < prev {
			return nil, fmt.Errorf("%w: cluster %d: blob offset %d decreases from %d to %d", ErrCorruptCluster, index, i, prev, off)
		}
		if off > uint64(len(body)) {
			return nil, fmt.Errorf("%w: cluster %d: blob offset %d at %d exceeds body of %d bytes", ErrCorruptCluster, index, i, off, len(body))
		}
		offsets[i] = off
		prev = off
	}

	return offsets, nil
}

func readOffset(body []byte, i uint64, extended bool) uint64 {
	if extended {
		return binary.LittleEndian.Uint64(body[i*8:])
	}
	return uint64(binary.LittleEndian.Uint32(body[i*4:]))
}

// Compression returns the cluster's codec.
func (c *Cluster) Compression() Compression { return c.compression }

// Extended reports whether the cluster uses 8-byte blob offsets.
func (c *Cluster) Extended() bool { return c.extended }

// BlobCount returns the number of blobs in the cluster.
func (c *Cluster) BlobCount() int { return len(c.offsets) - 1 }

// Blob returns the bytes of blob i.
//
// The returned slice aliases the cluster body and must be treated as
// read-only. It remains valid only while the backing archive stays open.
func (c *Cluster) Blob(i uint32) ([]byte, error) {
	if uint64(i) >= uint64(c.BlobCount()) {
		return nil, fmt.Errorf("%w: blob %d of %d", format.ErrIndexOutOfRange, i, c.BlobCount())
	}
	return c.body[c.offsets[i]:c.offsets[i+1]], nil
}

// BodySize returns the decoded body length in bytes.
func (c *Cluster) BodySize() int { return len(c.body) }
