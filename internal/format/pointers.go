package format

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/meigma/zim/internal/sizing"
)

// Pointers resolves the archive's three index lists.
//
// The URL pointer list (8-byte entry offsets, URL order) and the title
// pointer list (4-byte entry indexes, title order) are dereferenced lazily
// per lookup. The cluster pointer list is materialized and validated once
// so cluster extents never need re-checking.
type Pointers struct {
	src       Source
	header    Header
	mimeCount int

	// clusters holds ClusterCount+1 boundaries. Cluster i occupies
	// [clusters[i], clusters[i+1]); the final boundary is the checksum
	// position.
	clusters []uint64
}

// NewPointers builds the index resolver, reading and validating the cluster
// pointer list.
func NewPointers(src Source, h Header, mimeCount int) (*Pointers, error) {
	clusters, err := readClusterPointers(src, h)
	if err != nil {
		return nil, err
	}
	return &Pointers{
		src:       src,
		header:    h,
		mimeCount: mimeCount,
		clusters:  clusters,
	}, nil
}

func readClusterPointers(src Source, h Header) ([]uint64, error) {
	count := uint64(h.ClusterCount)
	listBytes, ok := sizing.MulUint64(count, 8)
	if !ok {
		return nil, fmt.Errorf("%w: cluster pointer list extent overflows", ErrMalformedHeader)
	}
	n, err := sizing.ToInt(listBytes, ErrMalformedHeader)
	if err != nil {
		return nil, fmt.Errorf("%w: cluster pointer list too large", ErrMalformedHeader)
	}

	raw, err := ReadFull(src, h.ClusterPtrPos, n)
	if err != nil {
		return nil, fmt.Errorf("%w: cluster pointer list unreadable: %v", ErrMalformedHeader, err)
	}

	clusters := make([]uint64, count+1)
	prev := uint64(HeaderSize)
	for i := uint64(0); i < count; i++ {
		pos := binary.LittleEndian.Uint64(raw[i*8:])
		if pos < prev || pos >= h.ChecksumPos {
			return nil, fmt.Errorf("%w: cluster %d at %d outside [%d, %d)", ErrMalformedHeader, i, pos, prev, h.ChecksumPos)
		}
		clusters[i] = pos
		prev = pos + 1
	}
	clusters[count] = h.ChecksumPos

	return clusters, nil
}

// EntryCount returns the number of directory entries.
func (p *Pointers) EntryCount() uint32 { return p.header.EntryCount }

// ClusterCount returns the number of clusters.
func (p *Pointers) ClusterCount() uint32 { return p.header.ClusterCount }

// EntryOffset returns the byte offset of entry i from the URL pointer list.
func (p *Pointers) EntryOffset(i uint32) (uint64, error) {
	if i >= p.header.EntryCount {
		return 0, fmt.Errorf("%w: entry %d of %d", ErrIndexOutOfRange, i, p.header.EntryCount)
	}
	raw, err := ReadFull(p.src, p.header.URLPtrPos+uint64(i)*8, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: url pointer %d: %v", ErrCorruptEntry, i, err)
	}
	return binary.LittleEndian.Uint64(raw), nil
}

// TitleIndex returns the entry index at position i of the title pointer
// list.
func (p *Pointers) TitleIndex(i uint32) (uint32, error) {
	if i >= p.header.EntryCount {
		return 0, fmt.Errorf("%w: title pointer %d of %d", ErrIndexOutOfRange, i, p.header.EntryCount)
	}
	raw, err := ReadFull(p.src, p.header.TitlePtrPos+uint64(i)*4, 4)
	if err != nil {
		return 0, fmt.Errorf("%w: title pointer %d: %v", ErrCorruptEntry, i, err)
	}
	idx := binary.LittleEndian.Uint32(raw)
	if idx >= p.header.EntryCount {
		return 0, fmt.Errorf("%w: title pointer %d references entry %d of %d", ErrCorruptEntry, i, idx, p.header.EntryCount)
	}
	return idx, nil
}

// EntryAt decodes entry i in URL pointer order.
func (p *Pointers) EntryAt(i uint32) (Entry, error) {
	off, err := p.EntryOffset(i)
	if err != nil {
		return Entry{}, err
	}
	e, err := DecodeEntry(p.src, off, p.mimeCount)
	if err != nil {
		return Entry{}, err
	}
	e.Index = i
	return e, nil
}

// EntryAtTitle decodes the entry at position i of the title pointer list.
func (p *Pointers) EntryAtTitle(i uint32) (Entry, error) {
	idx, err := p.TitleIndex(i)
	if err != nil {
		return Entry{}, err
	}
	return p.EntryAt(idx)
}

// LookupURL finds the entry with the given namespace and URL by binary
// search over the URL pointer list. The second return is false when no such
// entry exists.
func (p *Pointers) LookupURL(namespace byte, url string) (Entry, bool, error) {
	n := int(p.header.EntryCount)
	var probeErr error
	i := sort.Search(n, func(i int) bool {
		if probeErr != nil {
			return true
		}
		off, err := p.EntryOffset(uint32(i))
		if err != nil {
			probeErr = err
			return true
		}
		ns, key, err := DecodeEntryKey(p.src, off)
		if err != nil {
			probeErr = err
			return true
		}
		return ns > namespace || (ns == namespace && key >= url)
	})
	if probeErr != nil {
		return Entry{}, false, probeErr
	}
	if i >= n {
		return Entry{}, false, nil
	}

	e, err := p.EntryAt(uint32(i))
	if err != nil {
		return Entry{}, false, err
	}
	if e.Namespace != namespace || e.URL != url {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// LookupTitle finds the first entry with the given namespace and title by
// binary search over the title pointer list. Entries written with an empty
// title sort under their URL.
func (p *Pointers) LookupTitle(namespace byte, title string) (Entry, bool, error) {
	n := int(p.header.EntryCount)
	var probeErr error
	i := sort.Search(n, func(i int) bool {
		if probeErr != nil {
			return true
		}
		idx, err := p.TitleIndex(uint32(i))
		if err != nil {
			probeErr = err
			return true
		}
		off, err := p.EntryOffset(idx)
		if err != nil {
			probeErr = err
			return true
		}
		ns, key, err := DecodeEntryTitleKey(p.src, off)
		if err != nil {
			probeErr = err
			return true
		}
		return ns > namespace || (ns == namespace && key >= title)
	})
	if probeErr != nil {
		return Entry{}, false, probeErr
	}
	if i >= n {
		return Entry{}, false, nil
	}

	e, err := p.EntryAtTitle(uint32(i))
	if err != nil {
		return Entry{}, false, err
	}
	if e.Namespace != namespace || e.Title != title {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// ClusterRange returns the byte extent of cluster i.
func (p *Pointers) ClusterRange(i uint32) (start, end uint64, err error) {
	if i >= p.header.ClusterCount {
		return 0, 0, fmt.Errorf("%w: cluster %d of %d", ErrIndexOutOfRange, i, p.header.ClusterCount)
	}
	return p.clusters[i], p.clusters[i+1], nil
}
