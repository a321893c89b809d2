package http

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ByteSource mirrors the reader contract of the zim package so a
// BlockSource can wrap any archive source without importing it.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

const (
	// DefaultBlockSize is the block size used when none is configured.
	DefaultBlockSize int64 = 64 << 10

	// DefaultBlockCount is the number of cached blocks when none is
	// configured. Together with DefaultBlockSize it bounds the cache at
	// 4 MiB.
	DefaultBlockCount = 64

	// DefaultMaxBlocksPerRead caps cached blocks per ReadAt. Reads
	// spanning more blocks bypass the cache, so large sequential reads
	// (cluster bodies during extraction) do not evict the directory
	// blocks the lookups depend on.
	DefaultMaxBlocksPerRead = 4
)

// BlockSource caches fixed-size blocks of another source in an LRU.
//
// Fetching whole blocks turns neighbouring directory probes into cache
// hits, which matters when every miss is a network round trip. Concurrent
// misses of the same block share one fetch. BlockSource is safe for
// concurrent use when the underlying source is.
type BlockSource struct {
	src       ByteSource
	blockSize int64
	count     int
	maxSpan   int
	cache     *lru.Cache[int64, []byte]
	group     singleflight.Group
}

// BlockOption configures a BlockSource.
type BlockOption func(*BlockSource)

// WithBlockSize sets the block size used for caching.
func WithBlockSize(n int64) BlockOption {
	return func(b *BlockSource) {
		b.blockSize = n
	}
}

// WithBlockCount sets the number of blocks retained in the cache.
func WithBlockCount(n int) BlockOption {
	return func(b *BlockSource) {
		b.count = n
	}
}

// WithMaxBlocksPerRead bypasses caching when a ReadAt spans more than n
// blocks. Values <= 0 disable the bypass.
func WithMaxBlocksPerRead(n int) BlockOption {
	return func(b *BlockSource) {
		b.maxSpan = n
	}
}

// NewBlockSource wraps src with block-level caching.
func NewBlockSource(src ByteSource, opts ...BlockOption) (*BlockSource, error) {
	b := &BlockSource{
		src:       src,
		blockSize: DefaultBlockSize,
		count:     DefaultBlockCount,
		maxSpan:   DefaultMaxBlocksPerRead,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.blockSize <= 0 {
		return nil, fmt.Errorf("block size %d: must be positive", b.blockSize)
	}
	if b.count <= 0 {
		return nil, fmt.Errorf("block count %d: must be positive", b.count)
	}
	cache, err := lru.New[int64, []byte](b.count)
	if err != nil {
		return nil, err
	}
	b.cache = cache
	return b, nil
}

// Size returns the size of the underlying source.
func (b *BlockSource) Size() int64 {
	return b.src.Size()
}

// ReadAt assembles p from cached blocks, fetching misses from the
// underlying source. Reads spanning more than the configured block limit
// go straight through without touching the cache.
func (b *BlockSource) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	size := b.src.Size()
	if off >= size {
		return 0, io.EOF
	}

	expected := len(p)
	if off+int64(expected) > size {
		expected = int(size - off)
	}

	first := off / b.blockSize
	last := (off + int64(expected) - 1) / b.blockSize
	if b.maxSpan > 0 && last-first+1 > int64(b.maxSpan) {
		return b.src.ReadAt(p, off)
	}

	total := 0
	pos := off
	for total < expected {
		idx := pos / b.blockSize
		block, err := b.block(idx, size)
		if err != nil {
			return total, err
		}
		rel := pos - idx*b.blockSize
		if rel >= int64(len(block)) {
			return total, fmt.Errorf("block %d: offset %d outside %d bytes", idx, rel, len(block))
		}
		n := copy(p[total:expected], block[rel:])
		total += n
		pos += int64(n)
	}
	if expected < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// block returns the cached block at idx, fetching it from the source on a
// miss. The returned slice is shared with the cache and must not be
// modified.
func (b *BlockSource) block(idx, size int64) ([]byte, error) {
	if block, ok := b.cache.Get(idx); ok {
		return block, nil
	}

	v, err, _ := b.group.Do(strconv.FormatInt(idx, 10), func() (any, error) {
		// Double-check cache
		if block, ok := b.cache.Get(idx); ok {
			return block, nil
		}
		block, err := b.fetch(idx, size)
		if err != nil {
			return nil, err
		}
		b.cache.Add(idx, block)
		return block, nil
	})
	if err != nil {
		return nil, err
	}
	block, _ := v.([]byte) //nolint:errcheck // type assertion always succeeds when err is nil
	return block, nil
}

func (b *BlockSource) fetch(idx, size int64) ([]byte, error) {
	start := idx * b.blockSize
	length := b.blockSize
	if start+length > size {
		length = size - start
	}
	block := make([]byte, length)
	n, err := b.src.ReadAt(block, start)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if int64(n) < length {
		return nil, fmt.Errorf("block %d: short read %d of %d bytes", idx, n, length)
	}
	return block, nil
}
