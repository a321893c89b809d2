package cluster

import "fmt"

// Compression identifies the codec applied to a cluster body. Values match
// the low nibble of the cluster information byte.
type Compression uint8

const (
	CompressionNone  Compression = 1
	CompressionZlib  Compression = 2
	CompressionBzip2 Compression = 3
	CompressionXZ    Compression = 4
	CompressionZstd  Compression = 5
)

// parseCompression maps the information byte's low nibble to a codec. The
// legacy value 0 also means uncompressed.
func parseCompression(marker byte) (Compression, bool) {
	switch marker {
	case 0, 1:
		return CompressionNone, true
	case 2, 3, 4, 5:
		return Compression(marker), true
	default:
		return 0, false
	}
}

// ParseInfoByte splits a cluster information byte into its codec and the
// extended-offsets flag, without touching the body.
func ParseInfoByte(info byte) (Compression, bool, error) {
	compression, ok := parseCompression(info & 0x0F)
	if !ok {
		return 0, false, fmt.Errorf("%w: codec %d", ErrUnsupportedCompression, info&0x0F)
	}
	return compression, info&extendedFlag != 0, nil
}

// String returns the codec name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXZ:
		return "xz"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}
