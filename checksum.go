package zim

import (
	"context"
	"crypto/md5" //nolint:gosec // the format mandates MD5 for its trailing checksum
	"fmt"
	"io"

	"github.com/meigma/zim/internal/format"
)

// checksumChunkSize is the read granularity during verification, and with
// it the cadence of cancellation checks.
const checksumChunkSize = 4 << 20

// hasChecksum reports whether a full MD5 trailer follows the checksum
// position.
func (a *Archive) hasChecksum() bool {
	return a.header.ChecksumPos+md5.Size <= uint64(a.src.Size())
}

// Checksum returns the archive's stored MD5 trailer. ok is false when the
// archive carries none.
func (a *Archive) Checksum() ([md5.Size]byte, bool) {
	var sum [md5.Size]byte
	if a.closed.Load() || !a.hasChecksum() {
		return sum, false
	}
	raw, err := format.ReadFull(a.src, a.header.ChecksumPos, md5.Size)
	if err != nil {
		return sum, false
	}
	copy(sum[:], raw)
	return sum, true
}

// VerifyChecksum recomputes the MD5 of the archive body and compares it
// against the stored trailer, reading in chunks and honoring ctx between
// chunks. The result reports integrity: an absent trailer or a mismatch is
// false with a nil error. Errors are reserved for I/O faults and
// cancellation.
func (a *Archive) VerifyChecksum(ctx context.Context) (bool, error) {
	if a.closed.Load() {
		return false, ErrClosed
	}
	stored, ok := a.Checksum()
	if !ok {
		return false, nil
	}

	h := md5.New() //nolint:gosec // the format mandates MD5 for its trailing checksum
	section := io.NewSectionReader(a.src, 0, int64(a.header.ChecksumPos))
	buf := make([]byte, checksumChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		n, err := section.Read(buf)
		_, _ = h.Write(buf[:n]) // hash.Write never fails
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, fmt.Errorf("verify checksum: %w", err)
		}
	}

	var sum [md5.Size]byte
	h.Sum(sum[:0])
	return sum == stored, nil
}
