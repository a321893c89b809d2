//go:build !unix

package zim

import "os"

// openSource reads through the file descriptor on platforms without a
// memory-map implementation.
func openSource(f *os.File) (ByteSource, error) {
	return newFileSource(f)
}
