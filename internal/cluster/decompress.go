package cluster

import (
	"compress/bzip2"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// DecompressPool reuses zstd decoders across cluster reads to avoid
// re-allocating their window buffers. The other codecs read their stream
// header at construction and cannot be reset, so they are built per call.
type DecompressPool struct {
	pool      *sync.Pool
	maxMemory uint64
}

// NewDecompressPool creates a decoder pool. If maxMemory is 0, no memory
// limit is applied to pooled decoders.
func NewDecompressPool(maxMemory uint64) *DecompressPool {
	p := &DecompressPool{maxMemory: maxMemory}
	p.pool = &sync.Pool{
		New: func() any {
			dec, err := p.newDecoder(nil)
			if err != nil {
				return nil
			}
			return dec
		},
	}
	return p
}

// Get returns a zstd decoder configured to read from r.
// The caller must call the returned release function when done.
// If an error is returned, no release function needs to be called.
func (p *DecompressPool) Get(r io.Reader) (*zstd.Decoder, func(), error) {
	if p == nil || p.pool == nil {
		dec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	}

	value := p.pool.Get()
	if value == nil {
		// Pool's New function failed, try directly
		dec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	}

	dec, ok := value.(*zstd.Decoder)
	if !ok {
		newDec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	if err := dec.Reset(r); err != nil {
		dec.Close()
		newDec, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return newDec, newDec.Close, nil
	}

	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		p.pool.Put(dec)
	}, nil
}

// newDecoder creates a zstd decoder with the configured memory limit.
// Concurrency stays at 1; parallelism comes from reading clusters on
// separate goroutines, each with its own decoder.
func (p *DecompressPool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if p != nil && p.maxMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxMemory))
	}
	return zstd.NewReader(r, opts...)
}

// bodyReader wraps r with the decoder for c. The caller must call the
// returned release function once the body has been fully read.
func (p *DecompressPool) bodyReader(c Compression, r io.Reader) (io.Reader, func(), error) {
	switch c {
	case CompressionZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: zlib: %v", ErrDecompression, err)
		}
		return zr, func() { _ = zr.Close() }, nil
	case CompressionBzip2:
		return bzip2.NewReader(r), func() {}, nil
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: xz: %v", ErrDecompression, err)
		}
		return xr, func() {}, nil
	case CompressionZstd:
		dec, release, err := p.Get(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: zstd: %v", ErrDecompression, err)
		}
		return dec, release, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
	}
}
