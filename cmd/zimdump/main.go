// Command zimdump extracts the contents of an archive into a directory
// tree. Articles become files under <out>/<namespace>/<url>, redirects
// become relative symlinks, and placeholder entries are skipped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/meigma/zim"
)

type config struct {
	out          string
	workers      int
	clusterOrder bool
	overwrite    bool
	strict       bool
	namespaces   string
	progress     time.Duration
}

func main() {
	cfg, path := parseFlags()
	if err := run(cfg, path); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() (config, string) {
	var cfg config
	flag.StringVar(&cfg.out, "out", "", "destination directory (required)")
	flag.IntVar(&cfg.workers, "workers", 0, "extraction workers, 0 for one per CPU")
	flag.BoolVar(&cfg.clusterOrder, "cluster-order", true, "extract cluster by cluster to decompress each cluster once")
	flag.BoolVar(&cfg.overwrite, "overwrite", false, "overwrite existing files")
	flag.BoolVar(&cfg.strict, "strict", false, "abort on the first failed entry")
	flag.StringVar(&cfg.namespaces, "namespaces", "", "extract only these namespace letters, e.g. \"CI\" (default all)")
	flag.DurationVar(&cfg.progress, "progress", 5*time.Second, "progress report interval, 0 to disable")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: zimdump -out <dir> [flags] <archive.zim>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 || cfg.out == "" {
		flag.Usage()
		os.Exit(2)
	}
	return cfg, flag.Arg(0)
}

// counters tracks extraction outcomes across workers.
type counters struct {
	files    atomic.Uint64
	links    atomic.Uint64
	skipped  atomic.Uint64
	filtered atomic.Uint64
	failed   atomic.Uint64
}

func run(cfg config, archivePath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := zim.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out, err := newSink(cfg.out, cfg.overwrite)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	walkOpts := []zim.WalkOption{zim.WithWorkers(cfg.workers)}
	if cfg.clusterOrder {
		walkOpts = append(walkOpts, zim.InClusterOrder())
	}
	w := zim.NewWalker(a, walkOpts...)

	if cfg.progress > 0 {
		done := make(chan struct{})
		defer close(done)
		go reportProgress(w, a.EntryCount(), cfg.progress, done)
	}

	var c counters
	sum, err := w.Run(ctx, func(e zim.Entry, content zim.Content, werr error) error {
		return extract(a, out, cfg, &c, e, content, werr)
	})
	if err != nil {
		return fmt.Errorf("extraction aborted after %d entries: %w", sum.Processed, err)
	}

	log.Printf("done: %d files, %d links, %d skipped, %d filtered, %d failed (of %d entries)",
		c.files.Load(), c.links.Load(), c.skipped.Load(), c.filtered.Load(), c.failed.Load(), sum.Processed)
	if c.failed.Load() > 0 {
		return fmt.Errorf("%d entries failed", c.failed.Load())
	}
	return nil
}

func extract(a *zim.Archive, out *sink, cfg config, c *counters, e zim.Entry, content zim.Content, werr error) error {
	if werr != nil {
		c.failed.Add(1)
		log.Printf("entry %d (%c/%s): %v", e.Index, e.Namespace, e.URL, werr)
		if cfg.strict {
			return werr
		}
		return nil
	}
	if cfg.namespaces != "" && !strings.ContainsRune(cfg.namespaces, rune(e.Namespace)) {
		c.filtered.Add(1)
		return nil
	}

	switch e.Kind {
	case zim.KindRedirect:
		return extractRedirect(a, out, cfg, c, e)
	case zim.KindArticle:
		rel, ok := entryPath(e.Namespace, e.URL)
		if !ok {
			c.failed.Add(1)
			log.Printf("entry %d: unrepresentable path %c/%s", e.Index, e.Namespace, e.URL)
			return nil
		}
		err := out.writeFile(rel, content.Data)
		return record(c, cfg, rel, err, &c.files)
	default:
		// Link targets and deleted entries have nothing to extract.
		return nil
	}
}

func extractRedirect(a *zim.Archive, out *sink, cfg config, c *counters, e zim.Entry) error {
	target, err := a.EntryAt(e.RedirectIndex)
	if err != nil {
		c.failed.Add(1)
		log.Printf("entry %d (%c/%s): redirect target: %v", e.Index, e.Namespace, e.URL, err)
		if cfg.strict {
			return err
		}
		return nil
	}

	rel, ok := entryPath(e.Namespace, e.URL)
	targetRel, tok := entryPath(target.Namespace, target.URL)
	if !ok || !tok {
		c.failed.Add(1)
		log.Printf("entry %d: unrepresentable redirect %c/%s -> %c/%s",
			e.Index, e.Namespace, e.URL, target.Namespace, target.URL)
		return nil
	}
	return record(c, cfg, rel, out.writeSymlink(rel, targetRel), &c.links)
}

// record folds a sink result into the counters, honoring strict mode.
func record(c *counters, cfg config, rel string, err error, done *atomic.Uint64) error {
	switch {
	case err == nil:
		done.Add(1)
		return nil
	case errors.Is(err, errSkipped):
		c.skipped.Add(1)
		return nil
	default:
		c.failed.Add(1)
		log.Printf("%s: %v", rel, err)
		if cfg.strict {
			return err
		}
		return nil
	}
}

func reportProgress(w *zim.Walker, total uint32, interval time.Duration, done <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			log.Printf("progress: %d/%d entries, %d failed", w.Processed(), total, w.Failed())
		}
	}
}
