// Package zim reads ZIM archives: single-file, compressed, indexed
// containers of web content used for offline distribution.
//
// An archive consists of a fixed header, a MIME type table, three pointer
// lists, directory entries sorted by URL, and clusters holding the actual
// content blobs. Lookups by URL or title are O(log n) binary searches over
// the pointer lists; content access decodes one cluster at a time and keeps
// recently decoded clusters in an LRU cache.
//
// Open an archive from disk and fetch a page:
//
//	a, err := zim.Open("wikipedia.zim")
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	entry, ok, err := a.EntryByURL(zim.NamespaceArticle, "Go_(programming_language)")
//	if err != nil || !ok {
//		return err
//	}
//	content, err := a.Content(entry)
//	if err != nil {
//		return err
//	}
//	fmt.Printf("%s (%d bytes)\n", content.MimeType, len(content.Data))
//
// Walk every entry in parallel:
//
//	w := zim.NewWalker(a, zim.InClusterOrder())
//	summary, err := w.Run(ctx, func(e zim.Entry, c zim.Content, err error) error {
//		if err != nil {
//			return nil // count and continue
//		}
//		return store(e, c)
//	})
//
// Content data returned by an Archive aliases archive memory and is only
// valid until Close. Copy it if it must outlive the archive.
package zim
