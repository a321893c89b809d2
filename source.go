package zim

import (
	"fmt"
	"io"
	"os"
)

// ByteSource provides random access to archive bytes.
//
// Implementations exist for local files (memory-mapped where the platform
// supports it) and in-memory buffers. Implementations must be safe for
// concurrent reads.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Ranger is optionally implemented by sources that can hand out stable
// subslices of their backing bytes, letting uncompressed content be served
// without copies. Returned slices must be treated as read-only and are only
// valid while the source remains open.
type Ranger interface {
	Range(off, length int64) ([]byte, error)
}

// Interface compliance.
var (
	_ ByteSource = bytesSource(nil)
	_ Ranger     = bytesSource(nil)
	_ ByteSource = (*fileSource)(nil)
)

// NewBytesSource wraps an in-memory archive image as a ByteSource with
// zero-copy ranges.
func NewBytesSource(data []byte) ByteSource {
	return bytesSource(data)
}

type bytesSource []byte

func (b bytesSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("bytes source: negative offset %d", off)
	}
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b bytesSource) Size() int64 {
	return int64(len(b))
}

func (b bytesSource) Range(off, length int64) ([]byte, error) {
	if off < 0 || length < 0 || off > int64(len(b))-length {
		return nil, fmt.Errorf("bytes source: range [%d, %d) outside %d bytes", off, off+length, len(b))
	}
	return b[off : off+length : off+length], nil
}

// fileSource reads through the file descriptor without mapping. It is the
// fallback when memory mapping is unavailable and the default on platforms
// without a mapping implementation.
type fileSource struct {
	f    *os.File
	size int64
}

func newFileSource(f *os.File) (*fileSource, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	return &fileSource{f: f, size: fi.Size()}, nil
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *fileSource) Size() int64 {
	return s.size
}

func (s *fileSource) Close() error {
	return s.f.Close()
}
