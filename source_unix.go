//go:build unix

package zim

import (
	"fmt"
	"io"
	"math"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// openSource maps the archive read-only. It falls back to plain descriptor
// reads when the file cannot be mapped, such as an empty file or a
// filesystem without mmap support.
func openSource(f *os.File) (ByteSource, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	size := fi.Size()
	if size == 0 || size > int64(math.MaxInt) {
		return &fileSource{f: f, size: size}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return &fileSource{f: f, size: size}, nil
	}
	// Index probes touch scattered pages.
	_ = unix.Madvise(data, unix.MADV_RANDOM)

	return &mmapSource{f: f, data: data, size: size}, nil
}

// mmapSource serves archive bytes from a read-only memory map.
type mmapSource struct {
	f    *os.File
	data []byte
	size int64
}

// Interface compliance.
var (
	_ ByteSource = (*mmapSource)(nil)
	_ Ranger     = (*mmapSource)(nil)
)

// ReadAt reads from the mapping. Data in the page cache is served without
// system calls.
func (s *mmapSource) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, fmt.Errorf("archive mapping: negative offset %d", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	// Guard against page faults from I/O errors on the underlying
	// storage. Without this a SIGBUS would crash the process.
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault reading archive at offset %d: %v", off, r)
		}
	}()

	n = copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Range returns a subslice of the mapping. Unlike ReadAt, faults on the
// underlying storage surface when the caller touches the bytes.
func (s *mmapSource) Range(off, length int64) ([]byte, error) {
	if off < 0 || length < 0 || off > s.size-length {
		return nil, fmt.Errorf("archive mapping: range [%d, %d) outside %d bytes", off, off+length, s.size)
	}
	return s.data[off : off+length : off+length], nil
}

func (s *mmapSource) Size() int64 {
	return s.size
}

// Close unmaps the archive and closes the file descriptor.
func (s *mmapSource) Close() error {
	var firstErr error
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			firstErr = fmt.Errorf("unmapping archive: %w", err)
		}
		s.data = nil
	}
	if err := s.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
