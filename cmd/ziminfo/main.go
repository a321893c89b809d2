// Command ziminfo prints archive metadata and optionally verifies the
// embedded checksum.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/meigma/zim"
)

type config struct {
	verify bool
	mime   bool
}

func main() {
	cfg, path := parseFlags()
	if err := run(cfg, path); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() (config, string) {
	var cfg config
	flag.BoolVar(&cfg.verify, "verify", false, "recompute and compare the embedded checksum")
	flag.BoolVar(&cfg.mime, "mime", false, "list the MIME type table")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: ziminfo [flags] <archive.zim>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	return cfg, flag.Arg(0)
}

// metadataKeys are the well-known metadata entries reported when present.
var metadataKeys = []string{"Title", "Description", "Language", "Creator", "Publisher", "Date"}

func run(cfg config, path string) error {
	a, err := zim.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	info := a.Info()
	fmt.Printf("path:         %s\n", path)
	fmt.Printf("version:      %d.%d\n", info.MajorVersion, info.MinorVersion)
	fmt.Printf("uuid:         %s\n", info.UUID)
	fmt.Printf("size:         %d bytes\n", info.Size)
	fmt.Printf("entries:      %d\n", info.EntryCount)
	fmt.Printf("clusters:     %d\n", info.ClusterCount)
	fmt.Printf("codecs:       %s\n", compressionSummary(a))
	fmt.Printf("mime list:    %d\n", info.MimeListPos)
	fmt.Printf("url ptrs:     %d\n", info.URLPtrPos)
	fmt.Printf("title ptrs:   %d\n", info.TitlePtrPos)
	fmt.Printf("cluster ptrs: %d\n", info.ClusterPtrPos)
	fmt.Printf("checksum pos: %d\n", info.ChecksumPos)
	fmt.Printf("main page:    %s\n", pageLabel(a, info.HasMainPage, info.MainPage))
	fmt.Printf("layout:       %s\n", pageLabel(a, info.HasLayoutPage, info.LayoutPage))

	if sum, ok := a.Checksum(); ok {
		fmt.Printf("checksum:     %x\n", sum)
	} else {
		fmt.Println("checksum:     (none)")
	}

	for _, key := range metadataKeys {
		c, ok, err := a.ContentByURL(zim.NamespaceMetadata, key)
		if err != nil || !ok || !c.Available {
			continue
		}
		fmt.Printf("%-13s %s\n", key+":", c.Data)
	}

	if cfg.mime {
		fmt.Println("mime types:")
		for i, mt := range a.MimeTypes() {
			fmt.Printf("  %3d  %s\n", i, mt)
		}
	}

	if cfg.verify {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		match, err := a.VerifyChecksum(ctx)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		if !info.HasChecksum {
			return errors.New("verify: archive carries no checksum")
		}
		if !match {
			return errors.New("verify: checksum MISMATCH")
		}
		fmt.Println("verify:       OK")
	}
	return nil
}

// compressionSummary probes every cluster's information byte and lists the
// codecs in use with their counts.
func compressionSummary(a *zim.Archive) string {
	counts := make(map[zim.Compression]int)
	unreadable := 0
	for i := uint32(0); i < a.ClusterCount(); i++ {
		comp, err := a.ClusterCompression(i)
		if err != nil {
			unreadable++
			continue
		}
		counts[comp]++
	}
	if len(counts) == 0 && unreadable == 0 {
		return "(no clusters)"
	}

	codecs := make([]zim.Compression, 0, len(counts))
	for c := range counts {
		codecs = append(codecs, c)
	}
	slices.Sort(codecs)

	parts := make([]string, 0, len(codecs)+1)
	for _, c := range codecs {
		parts = append(parts, fmt.Sprintf("%s (%d)", c, counts[c]))
	}
	if unreadable > 0 {
		parts = append(parts, fmt.Sprintf("unreadable (%d)", unreadable))
	}
	return strings.Join(parts, ", ")
}

// pageLabel resolves a page index to its namespace and URL for display.
func pageLabel(a *zim.Archive, present bool, index uint32) string {
	if !present {
		return "(none)"
	}
	e, err := a.EntryAt(index)
	if err != nil {
		return fmt.Sprintf("entry %d (unreadable: %v)", index, err)
	}
	return fmt.Sprintf("%c/%s (entry %d)", e.Namespace, e.URL, index)
}
