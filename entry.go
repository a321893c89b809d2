package zim

import (
	"github.com/meigma/zim/internal/cluster"
	"github.com/meigma/zim/internal/format"
)

// Re-export types from the internal layers for the public API.
type (
	// Entry is a decoded directory entry.
	Entry = format.Entry

	// EntryKind classifies a directory entry.
	EntryKind = format.EntryKind

	// Compression identifies the codec applied to a cluster body.
	Compression = cluster.Compression
)

// Re-export entry kinds.
const (
	KindArticle    = format.KindArticle
	KindRedirect   = format.KindRedirect
	KindLinkTarget = format.KindLinkTarget
	KindDeleted    = format.KindDeleted
)

// Re-export cluster codecs.
const (
	CompressionNone  = cluster.CompressionNone
	CompressionZlib  = cluster.CompressionZlib
	CompressionBzip2 = cluster.CompressionBzip2
	CompressionXZ    = cluster.CompressionXZ
	CompressionZstd  = cluster.CompressionZstd
)

// Well-known namespace bytes. Decoding accepts any namespace byte; these
// cover the legacy (major version 5) and current layouts.
const (
	NamespaceLayout       byte = '-' // layout resources, favicon, CSS
	NamespaceArticle      byte = 'A' // articles
	NamespaceArticleMeta  byte = 'B' // article metadata
	NamespaceContent      byte = 'C' // all content in the current layout
	NamespaceImageFile    byte = 'I' // images and other media
	NamespaceImageText    byte = 'J' // image text alternatives
	NamespaceMetadata     byte = 'M' // archive metadata
	NamespaceCategoryText byte = 'U' // category text
	NamespaceCategoryList byte = 'V' // category article lists
	NamespaceWellKnown    byte = 'W' // well-known entries in the current layout
	NamespaceFulltext     byte = 'X' // fulltext index
)

// Content is the resolved payload of an entry, after following redirects.
type Content struct {
	// MimeType is the MIME type string from the archive's table.
	MimeType string

	// Data is the blob content. It aliases archive or cluster memory,
	// must be treated as read-only, and is only valid until the archive
	// is closed.
	Data []byte

	// Available reports whether the entry resolves to content. Link
	// target and deleted entries resolve with Available false.
	Available bool
}
