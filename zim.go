package zim

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/zim/internal/cluster"
	"github.com/meigma/zim/internal/format"
)

const (
	// DefaultClusterCacheSize is the default number of decoded clusters
	// kept in the archive's LRU cache.
	DefaultClusterCacheSize = 16

	// DefaultMaxClusterSize is the default limit on a decoded cluster
	// body (256MB).
	DefaultMaxClusterSize = cluster.DefaultMaxBodySize

	// maxRedirectDepth bounds redirect chains. Valid archives stay far
	// below it; anything longer is reported as a cycle.
	maxRedirectDepth = 32
)

// Archive provides read access to a ZIM archive.
//
// An Archive is safe for concurrent use by multiple goroutines. Close must
// not be called concurrently with other methods.
type Archive struct {
	src    ByteSource
	owned  io.Closer // set by Open, nil for New
	header format.Header

	mimes    *format.MimeTable
	pointers *format.Pointers
	clusters *cluster.Reader

	cacheSize      int
	maxClusterSize uint64
	cache          *lru.Cache[uint32, *cluster.Cluster] // nil = no caching
	group          singleflight.Group                   // zero value is valid
	closed         atomic.Bool
	logger         *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Open opens the archive at path, memory-mapping it where the platform
// allows. The returned Archive owns the file handle; Close releases it.
func Open(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	src, err := openSource(f)
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	a, err := New(src, opts...)
	if err != nil {
		if c, ok := src.(io.Closer); ok {
			_ = c.Close() //nolint:errcheck // best-effort cleanup
		}
		return nil, err
	}
	if c, ok := src.(io.Closer); ok {
		a.owned = c
	}
	return a, nil
}

// New creates an Archive reading from source.
//
// The header, MIME table, and cluster pointer list are read and validated
// eagerly; entry lookups dereference the source lazily. The caller remains
// responsible for closing sources it opened itself.
func New(source ByteSource, opts ...Option) (*Archive, error) {
	a := &Archive{
		src:            source,
		cacheSize:      DefaultClusterCacheSize,
		maxClusterSize: DefaultMaxClusterSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	hdrBytes, err := format.ReadWindow(source, 0, format.HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h, err := format.ParseHeader(hdrBytes, source.Size())
	if err != nil {
		return nil, err
	}
	a.header = h

	a.mimes, err = format.ParseMimeTable(source, h.MimeListPos)
	if err != nil {
		return nil, err
	}

	a.pointers, err = format.NewPointers(source, h, a.mimes.Len())
	if err != nil {
		return nil, err
	}

	a.clusters = cluster.NewReader(source, h.MajorVersion, cluster.WithMaxBodySize(a.maxClusterSize))

	if a.cacheSize > 0 {
		c, err := lru.New[uint32, *cluster.Cluster](a.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("cluster cache: %w", err)
		}
		a.cache = c
	}

	a.log().Debug("archive opened",
		"version", fmt.Sprintf("%d.%d", h.MajorVersion, h.MinorVersion),
		"entries", h.EntryCount,
		"clusters", h.ClusterCount)
	return a, nil
}

// Close releases resources held by the archive. Content and blob slices
// handed out earlier become invalid when the archive was memory-mapped.
// Close is idempotent.
func (a *Archive) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	if a.cache != nil {
		a.cache.Purge()
	}
	if a.owned != nil {
		return a.owned.Close()
	}
	return nil
}

// EntryCount returns the number of directory entries.
func (a *Archive) EntryCount() uint32 {
	return a.header.EntryCount
}

// ClusterCount returns the number of clusters.
func (a *Archive) ClusterCount() uint32 {
	return a.header.ClusterCount
}

// MimeTypes returns the archive's MIME type table in index order.
// The slice is shared and must not be modified.
func (a *Archive) MimeTypes() []string {
	return a.mimes.Types()
}

// Size returns the archive size in bytes.
func (a *Archive) Size() int64 {
	return a.src.Size()
}

// EntryAt returns the entry at position i in URL order.
func (a *Archive) EntryAt(i uint32) (Entry, error) {
	if a.closed.Load() {
		return Entry{}, ErrClosed
	}
	return a.pointers.EntryAt(i)
}

// EntryByURL finds an entry by namespace and URL. ok is false when no such
// entry exists.
func (a *Archive) EntryByURL(namespace byte, url string) (Entry, bool, error) {
	if a.closed.Load() {
		return Entry{}, false, ErrClosed
	}
	return a.pointers.LookupURL(namespace, url)
}

// EntryByTitle finds the first entry with the given namespace and title.
// Entries stored without a title are found under their URL.
func (a *Archive) EntryByTitle(namespace byte, title string) (Entry, bool, error) {
	if a.closed.Load() {
		return Entry{}, false, ErrClosed
	}
	return a.pointers.LookupTitle(namespace, title)
}

// MainEntry returns the archive's main page entry. ok is false when the
// header does not declare one.
func (a *Archive) MainEntry() (Entry, bool, error) {
	if a.closed.Load() {
		return Entry{}, false, ErrClosed
	}
	if !a.header.HasMainPage() {
		return Entry{}, false, nil
	}
	e, err := a.EntryAt(a.header.MainPage)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// LayoutEntry returns the archive's layout page entry. ok is false when
// the header does not declare one.
func (a *Archive) LayoutEntry() (Entry, bool, error) {
	if a.closed.Load() {
		return Entry{}, false, ErrClosed
	}
	if !a.header.HasLayoutPage() {
		return Entry{}, false, nil
	}
	e, err := a.EntryAt(a.header.LayoutPage)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Entries returns an iterator over all entries in URL order. Decode
// failures are yielded as non-nil errors with a zero entry; iteration
// continues with the next index.
func (a *Archive) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for i := uint32(0); i < a.header.EntryCount; i++ {
			if !yield(a.EntryAt(i)) {
				return
			}
		}
	}
}

// Content resolves an entry to its payload, following redirect chains.
// Link target and deleted entries resolve with Available false. The
// returned data aliases archive memory; see Content.Data.
func (a *Archive) Content(e Entry) (Content, error) {
	cur := e
	for depth := 0; ; depth++ {
		switch cur.Kind {
		case KindRedirect:
			if depth >= maxRedirectDepth {
				return Content{}, fmt.Errorf("%w: %d hops from %c/%s", ErrRedirectCycle, depth, e.Namespace, e.URL)
			}
			next, err := a.EntryAt(cur.RedirectIndex)
			if err != nil {
				return Content{}, err
			}
			cur = next
		case KindLinkTarget, KindDeleted:
			return Content{}, nil
		case KindArticle:
			data, err := a.Blob(cur.ClusterIndex, cur.BlobIndex)
			if err != nil {
				return Content{}, err
			}
			mimeType, _ := a.mimes.TypeAt(cur.MimeTypeIndex)
			return Content{MimeType: mimeType, Data: data, Available: true}, nil
		default:
			return Content{}, fmt.Errorf("%w: unknown kind %d", ErrCorruptEntry, cur.Kind)
		}
	}
}

// ContentAt resolves the entry at position i in URL order.
func (a *Archive) ContentAt(i uint32) (Content, error) {
	e, err := a.EntryAt(i)
	if err != nil {
		return Content{}, err
	}
	return a.Content(e)
}

// ContentByURL resolves the entry with the given namespace and URL. ok
// reports whether the entry exists; resolution failures on an existing
// entry return an error with ok true.
func (a *Archive) ContentByURL(namespace byte, url string) (Content, bool, error) {
	e, ok, err := a.EntryByURL(namespace, url)
	if err != nil || !ok {
		return Content{}, ok, err
	}
	c, err := a.Content(e)
	if err != nil {
		return Content{}, true, err
	}
	return c, true, nil
}

// ContentByTitle resolves the first entry with the given namespace and
// title. ok reports whether the entry exists.
func (a *Archive) ContentByTitle(namespace byte, title string) (Content, bool, error) {
	e, ok, err := a.EntryByTitle(namespace, title)
	if err != nil || !ok {
		return Content{}, ok, err
	}
	c, err := a.Content(e)
	if err != nil {
		return Content{}, true, err
	}
	return c, true, nil
}

// Blob returns the raw bytes of one blob without redirect or MIME
// resolution. The slice aliases archive memory and must be treated as
// read-only.
func (a *Archive) Blob(clusterIndex, blobIndex uint32) ([]byte, error) {
	c, err := a.clusterAt(clusterIndex)
	if err != nil {
		return nil, err
	}
	return c.Blob(blobIndex)
}

// ClusterCompression reports the codec of cluster i from its information
// byte, without decoding the body.
func (a *Archive) ClusterCompression(i uint32) (Compression, error) {
	if a.closed.Load() {
		return 0, ErrClosed
	}
	start, _, err := a.pointers.ClusterRange(i)
	if err != nil {
		return 0, err
	}
	info, err := format.ReadFull(a.src, start, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: cluster %d: %v", ErrCorruptCluster, i, err)
	}
	compression, _, err := cluster.ParseInfoByte(info[0])
	if err != nil {
		return 0, fmt.Errorf("cluster %d: %w", i, err)
	}
	return compression, nil
}

// clusterAt returns the decoded cluster, consulting the LRU cache and
// collapsing concurrent decodes of the same cluster into one.
func (a *Archive) clusterAt(i uint32) (*cluster.Cluster, error) {
	if a.closed.Load() {
		return nil, ErrClosed
	}
	if a.cache == nil {
		return a.readCluster(i)
	}

	if c, ok := a.cache.Get(i); ok {
		a.log().Debug("cluster cache hit", "cluster", i)
		return c, nil
	}
	a.log().Debug("cluster cache miss", "cluster", i)

	v, err, _ := a.group.Do(strconv.FormatUint(uint64(i), 10), func() (any, error) {
		// Double-check cache
		if c, ok := a.cache.Get(i); ok {
			return c, nil
		}
		c, err := a.readCluster(i)
		if err != nil {
			return nil, err
		}
		a.cache.Add(i, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cluster.Cluster), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

func (a *Archive) readCluster(i uint32) (*cluster.Cluster, error) {
	start, end, err := a.pointers.ClusterRange(i)
	if err != nil {
		return nil, err
	}
	return a.clusters.Read(i, start, end)
}
