// Package format implements the on-disk ZIM layout: the fixed header, the
// MIME type table, the three pointer lists, and directory entry records.
//
// Everything here reads shared immutable archive bytes and is safe for
// concurrent use. Pointer lookups dereference the archive lazily, one probe
// at a time, so opening an archive never preloads the directory.
package format
