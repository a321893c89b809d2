package zim

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// WalkFunc receives each entry visited during a walk together with its
// resolved content. err carries the entry's decode or resolution failure;
// content is zero in that case. Returning a non-nil error aborts the walk.
type WalkFunc func(entry Entry, content Content, err error) error

// WalkState identifies a Walker's lifecycle phase.
type WalkState int32

const (
	WalkIdle WalkState = iota
	WalkRunning
	WalkCompleted
	WalkAborted
)

// String returns a short name for the state.
func (s WalkState) String() string {
	switch s {
	case WalkIdle:
		return "idle"
	case WalkRunning:
		return "running"
	case WalkCompleted:
		return "completed"
	case WalkAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Summary reports the outcome of a walk.
type Summary struct {
	// Processed counts entries delivered to the callback.
	Processed uint64

	// Failed counts entries delivered with a non-nil error.
	Failed uint64
}

// Walker visits every entry of an archive using parallel workers.
//
// A Walker is one-shot: create it, call Run once, then inspect the
// summary. Processed, Failed, and State may be sampled from other
// goroutines while the walk runs.
type Walker struct {
	archive      *Archive
	workers      int
	clusterOrder bool

	state     atomic.Int32
	processed atomic.Uint64
	failed    atomic.Uint64
}

// WalkOption configures a Walker.
type WalkOption func(*Walker)

// WithWorkers sets the number of concurrent workers.
// Values < 1 use runtime.GOMAXPROCS(0).
func WithWorkers(n int) WalkOption {
	return func(w *Walker) {
		w.workers = n
	}
}

// InClusterOrder visits article entries grouped by cluster so each worker
// decodes every cluster it owns exactly once, at the cost of materializing
// the directory up front. Content-free entries and redirects are visited
// first, in index order. Every entry is still visited exactly once.
func InClusterOrder() WalkOption {
	return func(w *Walker) {
		w.clusterOrder = true
	}
}

// NewWalker creates a Walker over archive.
func NewWalker(archive *Archive, opts ...WalkOption) *Walker {
	w := &Walker{archive: archive}
	for _, opt := range opts {
		opt(w)
	}
	if w.workers < 1 {
		w.workers = runtime.GOMAXPROCS(0)
	}
	return w
}

// Processed returns the number of entries delivered so far.
func (w *Walker) Processed() uint64 {
	return w.processed.Load()
}

// Failed returns the number of entries delivered with an error so far.
func (w *Walker) Failed() uint64 {
	return w.failed.Load()
}

// State returns the walker's lifecycle phase.
func (w *Walker) State() WalkState {
	return WalkState(w.state.Load())
}

// Run visits every entry and returns the outcome. Entry-level failures are
// delivered to fn and counted, not returned; Run's error reports an abort,
// from a non-nil callback return or context cancellation. In-flight
// entries finish before workers stop.
func (w *Walker) Run(ctx context.Context, fn WalkFunc) (Summary, error) {
	if fn == nil {
		return Summary{}, errors.New("zim: walk: nil callback")
	}
	if !w.state.CompareAndSwap(int32(WalkIdle), int32(WalkRunning)) {
		return Summary{}, ErrWalkerUsed
	}

	err := w.run(ctx, fn)
	if err != nil {
		w.state.Store(int32(WalkAborted))
	} else {
		w.state.Store(int32(WalkCompleted))
	}
	return Summary{Processed: w.processed.Load(), Failed: w.failed.Load()}, err
}

func (w *Walker) run(ctx context.Context, fn WalkFunc) error {
	if w.archive.EntryCount() == 0 {
		return ctx.Err()
	}
	if w.clusterOrder {
		return w.runClusterOrder(ctx, fn)
	}
	return w.runIndexOrder(ctx, fn)
}

// indexSpan is a half-open range of entry indexes.
type indexSpan struct {
	start, end uint64
}

// indexSpans splits [0, count) into one contiguous span per worker. Bounds
// stay in uint64 so an entry count near the uint32 limit cannot wrap the
// final span back to zero.
func indexSpans(count uint64, workers int) []indexSpan {
	chunk := (count + uint64(workers) - 1) / uint64(workers)
	spans := make([]indexSpan, 0, workers)
	for start := uint64(0); start < count; start += chunk {
		spans = append(spans, indexSpan{start: start, end: min(start+chunk, count)})
	}
	return spans
}

// runIndexOrder partitions the index range into contiguous chunks, one per
// worker.
func (w *Walker) runIndexOrder(ctx context.Context, fn WalkFunc) error {
	count := uint64(w.archive.EntryCount())
	g, gctx := errgroup.WithContext(ctx)
	for _, span := range indexSpans(count, w.workerCount(count)) {
		g.Go(func() error {
			for i := span.start; i < span.end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := w.visit(uint32(i), fn); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// visit resolves entry i and delivers it. Resolution failures go to the
// callback and the failed counter; only a callback error stops the walk.
func (w *Walker) visit(i uint32, fn WalkFunc) error {
	e, err := w.archive.EntryAt(i)
	if err != nil {
		return w.deliver(Entry{Index: i}, Content{}, err, fn)
	}
	content, err := w.archive.Content(e)
	return w.deliver(e, content, err, fn)
}

func (w *Walker) deliver(e Entry, c Content, err error, fn WalkFunc) error {
	if err != nil {
		w.failed.Add(1)
		c = Content{}
	}
	w.processed.Add(1)
	return fn(e, c, err)
}

// clusterGroup holds the article entries stored in one cluster, sorted by
// blob index.
type clusterGroup struct {
	cluster uint32
	entries []Entry
}

func (w *Walker) runClusterOrder(ctx context.Context, fn WalkFunc) error {
	direct, groups, err := w.plan(ctx)
	if err != nil {
		return err
	}
	if err := w.runDirect(ctx, direct, fn); err != nil {
		return err
	}
	return w.runGroups(ctx, groups, fn)
}

// plan decodes the directory once and buckets article entries by cluster.
// Entries that fail to decode go to the direct list for individual
// delivery.
func (w *Walker) plan(ctx context.Context) ([]uint32, []clusterGroup, error) {
	count := w.archive.EntryCount()
	var direct []uint32
	byCluster := make(map[uint32][]Entry)
	for i := uint32(0); i < count; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		e, err := w.archive.EntryAt(i)
		if err != nil || e.Kind != KindArticle {
			direct = append(direct, i)
			continue
		}
		byCluster[e.ClusterIndex] = append(byCluster[e.ClusterIndex], e)
	}

	groups := make([]clusterGroup, 0, len(byCluster))
	for ci, entries := range byCluster {
		slices.SortFunc(entries, func(a, b Entry) int {
			if c := cmp.Compare(a.BlobIndex, b.BlobIndex); c != 0 {
				return c
			}
			return cmp.Compare(a.Index, b.Index)
		})
		groups = append(groups, clusterGroup{cluster: ci, entries: entries})
	}
	slices.SortFunc(groups, func(a, b clusterGroup) int {
		return cmp.Compare(a.cluster, b.cluster)
	})
	return direct, groups, nil
}

func (w *Walker) runDirect(ctx context.Context, direct []uint32, fn WalkFunc) error {
	if len(direct) == 0 {
		return nil
	}
	workers := w.workerCount(uint64(len(direct)))
	chunk := (len(direct) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(direct); start += chunk {
		part := direct[start:min(start+chunk, len(direct))]
		g.Go(func() error {
			for _, i := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := w.visit(i, fn); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *Walker) runGroups(ctx context.Context, groups []clusterGroup, fn WalkFunc) error {
	if len(groups) == 0 {
		return nil
	}
	workers := w.workerCount(uint64(len(groups)))
	chunk := (len(groups) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(groups); start += chunk {
		part := groups[start:min(start+chunk, len(groups))]
		g.Go(func() error {
			for _, grp := range part {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := w.visitGroup(gctx, grp, fn); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// visitGroup delivers all entries of one cluster from a single decode.
// When the cluster itself fails to decode, every entry in the group is
// delivered with that failure.
func (w *Walker) visitGroup(ctx context.Context, grp clusterGroup, fn WalkFunc) error {
	c, cerr := w.archive.clusterAt(grp.cluster)
	for _, e := range grp.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cerr != nil {
			if err := w.deliver(e, Content{}, cerr, fn); err != nil {
				return err
			}
			continue
		}
		data, err := c.Blob(e.BlobIndex)
		if err != nil {
			if derr := w.deliver(e, Content{}, err, fn); derr != nil {
				return derr
			}
			continue
		}
		mimeType, _ := w.archive.mimes.TypeAt(e.MimeTypeIndex)
		if err := w.deliver(e, Content{MimeType: mimeType, Data: data, Available: true}, nil, fn); err != nil {
			return err
		}
	}
	return nil
}

// workerCount clamps the configured worker count to the task count.
func (w *Walker) workerCount(tasks uint64) int {
	workers := w.workers
	if uint64(workers) > tasks {
		workers = int(tasks)
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
