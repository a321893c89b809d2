// Command zimlink builds a content-addressed manifest of an archive. Every
// article yields one line, digest and path separated by a tab; redirect
// lines map a source path to its target. Identical blobs share a digest, so
// the manifest doubles as a duplicate finder.
package main

import (
	"bufio"
	"context"
	// The digest package resolves algorithms through crypto.Hash, which
	// needs the implementations linked in.
	_ "crypto/sha256"
	_ "crypto/sha512"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/zim"
)

type config struct {
	out       string
	algorithm string
	workers   int
	redirects bool
	dupesOnly bool
}

func main() {
	cfg, path := parseFlags()
	if err := run(cfg, path); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() (config, string) {
	var cfg config
	flag.StringVar(&cfg.out, "out", "", "output file (default stdout)")
	flag.StringVar(&cfg.algorithm, "algorithm", string(digest.Canonical), "digest algorithm: sha256 or sha512")
	flag.IntVar(&cfg.workers, "workers", 0, "hashing workers, 0 for one per CPU")
	flag.BoolVar(&cfg.redirects, "redirects", true, "include redirect mapping lines")
	flag.BoolVar(&cfg.dupesOnly, "dupes", false, "emit only digests shared by more than one path")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: zimlink [flags] <archive.zim>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	return cfg, flag.Arg(0)
}

// manifest accumulates lines from concurrent workers.
type manifest struct {
	mu        sync.Mutex
	articles  map[string]digest.Digest // path -> digest
	redirects map[string]string        // path -> target path
}

func run(cfg config, archivePath string) error {
	alg := digest.Algorithm(cfg.algorithm)
	if !alg.Available() {
		return fmt.Errorf("digest algorithm %q unavailable", cfg.algorithm)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := zim.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	m := &manifest{
		articles:  make(map[string]digest.Digest),
		redirects: make(map[string]string),
	}
	w := zim.NewWalker(a, zim.WithWorkers(cfg.workers), zim.InClusterOrder())
	sum, err := w.Run(ctx, func(e zim.Entry, c zim.Content, werr error) error {
		return collect(a, alg, m, e, c, werr)
	})
	if err != nil {
		return fmt.Errorf("manifest aborted after %d entries: %w", sum.Processed, err)
	}
	if sum.Failed > 0 {
		log.Printf("warning: %d of %d entries unreadable", sum.Failed, sum.Processed)
	}

	return write(cfg, m)
}

func collect(a *zim.Archive, alg digest.Algorithm, m *manifest, e zim.Entry, c zim.Content, werr error) error {
	if werr != nil {
		log.Printf("entry %d (%c/%s): %v", e.Index, e.Namespace, e.URL, werr)
		return nil
	}
	p := fmt.Sprintf("%c/%s", e.Namespace, e.URL)

	switch e.Kind {
	case zim.KindArticle:
		// Hash outside the lock; digests dominate the walk cost.
		d := alg.FromBytes(c.Data)
		m.mu.Lock()
		m.articles[p] = d
		m.mu.Unlock()
	case zim.KindRedirect:
		target, err := a.EntryAt(e.RedirectIndex)
		if err != nil {
			log.Printf("entry %d (%s): redirect target: %v", e.Index, p, err)
			return nil
		}
		m.mu.Lock()
		m.redirects[p] = fmt.Sprintf("%c/%s", target.Namespace, target.URL)
		m.mu.Unlock()
	}
	return nil
}

func write(cfg config, m *manifest) error {
	out := os.Stdout
	if cfg.out != "" {
		f, err := os.Create(cfg.out)
		if err != nil {
			return fmt.Errorf("create %s: %w", cfg.out, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	bw := bufio.NewWriter(out)

	keep := func(string) bool { return true }
	if cfg.dupesOnly {
		counts := make(map[digest.Digest]int, len(m.articles))
		for _, d := range m.articles {
			counts[d]++
		}
		keep = func(p string) bool { return counts[m.articles[p]] > 1 }
	}

	paths := make([]string, 0, len(m.articles))
	for p := range m.articles {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		if !keep(p) {
			continue
		}
		fmt.Fprintf(bw, "%s\t%s\n", m.articles[p], p)
	}

	if cfg.redirects && !cfg.dupesOnly {
		sources := make([]string, 0, len(m.redirects))
		for p := range m.redirects {
			sources = append(sources, p)
		}
		slices.Sort(sources)
		for _, p := range sources {
			fmt.Fprintf(bw, "redirect\t%s\t%s\n", p, m.redirects[p])
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
