package format

import (
	"errors"
	"fmt"
	"io"
)

// Source is the subset of the archive byte source the format layer needs.
type Source interface {
	io.ReaderAt
	Size() int64
}

// Ranger is implemented by sources that can hand out stable subslices of
// their backing bytes, letting decoders avoid copies. Returned slices must
// be treated as read-only.
type Ranger interface {
	Range(off, length int64) ([]byte, error)
}

// ReadFull reads exactly n bytes at off, preferring a zero-copy range when
// the source supports it.
func ReadFull(src Source, off uint64, n int) ([]byte, error) {
	if off > uint64(src.Size()) || uint64(src.Size())-off < uint64(n) {
		return nil, fmt.Errorf("read %d bytes at %d: %w", n, off, io.ErrUnexpectedEOF)
	}
	if r, ok := src.(Ranger); ok {
		return r.Range(int64(off), int64(n))
	}
	buf := make([]byte, n)
	if _, err := src.ReadAt(buf, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}

// ReadWindow reads up to max bytes at off, stopping at the end of the source.
func ReadWindow(src Source, off uint64, max int) ([]byte, error) {
	size := src.Size()
	if size < 0 || off >= uint64(size) {
		return nil, nil
	}
	n := uint64(size) - off
	if n > uint64(max) {
		n = uint64(max)
	}
	return ReadFull(src, off, int(n))
}
