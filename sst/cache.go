package sst

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Priyanshu23/lsmkv/filter"
	"github.com/Priyanshu23/lsmkv/types"
)

// Header is the fixed 32-byte region at the start of every SST.
type Header struct {
	Timestamp uint64
	Count     uint64
	MinKey    uint64
	MaxKey    uint64
}

// IndexEntry locates one key's value: Offset is the first byte of the
// value in the data region. The value's length is implicit: it runs
// until the next index entry's offset, or end-of-file for the last one.
type IndexEntry struct {
	Key    uint64
	Offset uint32
}

// Range is a closed [Min, Max] key interval, used by Overlaps.
type Range struct {
	Min, Max uint64
}

// Cache is the resident metadata for one SST: its header, membership
// filter, and key index. It owns no open file handle; Get reopens the
// file for each value read, per the single-writer, no-long-lived-fd
// resource model.
type Cache struct {
	Path   string
	Header Header
	Filter *filter.Filter
	Index  []IndexEntry
}

// Load reads an SST's header, filter, and index into memory without
// touching the data region, validating that keys are strictly
// ascending, header extremes match the index, and offsets are
// monotonic and within the file. A failure here means corruption;
// callers recovering a data directory should log and skip the file
// rather than propagate a fatal error for the whole store.
func Load(path string) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sst: failed to open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("sst: failed to stat %s: %w", path, err)
	}

	headerBuf := make([]byte, types.HeaderBytes)
	if _, err := io.ReadFull(f, headerBuf); err != nil {
		return nil, fmt.Errorf("sst: failed to read header of %s: %w", path, err)
	}

	header := Header{
		Timestamp: binary.LittleEndian.Uint64(headerBuf[0:8]),
		Count:     binary.LittleEndian.Uint64(headerBuf[8:16]),
		MinKey:    binary.LittleEndian.Uint64(headerBuf[16:24]),
		MaxKey:    binary.LittleEndian.Uint64(headerBuf[24:32]),
	}

	filterBuf := make([]byte, types.FilterBytes)
	if _, err := io.ReadFull(f, filterBuf); err != nil {
		return nil, fmt.Errorf("sst: failed to read filter of %s: %w", path, err)
	}

	flt, err := filter.FromBytes(filterBuf)
	if err != nil {
		return nil, fmt.Errorf("sst: %s: %w", path, err)
	}

	indexBuf := make([]byte, types.IndexRecordBytes*int(header.Count))
	if _, err := io.ReadFull(f, indexBuf); err != nil {
		return nil, fmt.Errorf("sst: failed to read index of %s: %w", path, err)
	}

	dataStart := uint32(types.HeaderRegionBytes + types.IndexRecordBytes*int(header.Count))

	index := make([]IndexEntry, header.Count)
	var prevOffset uint32
	for i := range index {
		rec := indexBuf[i*types.IndexRecordBytes:]
		key := binary.LittleEndian.Uint64(rec[0:8])
		offset := binary.LittleEndian.Uint32(rec[8:12])

		if i == 0 && offset != dataStart {
			return nil, fmt.Errorf("sst: %s: corrupt index, first offset %d != data start %d", path, offset, dataStart)
		}
		if i > 0 {
			if key <= index[i-1].Key {
				return nil, fmt.Errorf("sst: %s: corrupt index, keys not strictly ascending at %d", path, i)
			}
			if offset <= prevOffset {
				return nil, fmt.Errorf("sst: %s: corrupt index, offsets not strictly ascending at %d", path, i)
			}
		}
		if uint64(offset) > uint64(stat.Size()) {
			return nil, fmt.Errorf("sst: %s: corrupt index, offset %d beyond file size %d", path, offset, stat.Size())
		}

		index[i] = IndexEntry{Key: key, Offset: offset}
		prevOffset = offset
	}

	if header.Count > 0 {
		if index[0].Key != header.MinKey {
			return nil, fmt.Errorf("sst: %s: header min_key %d disagrees with first index key %d", path, header.MinKey, index[0].Key)
		}
		if index[len(index)-1].Key != header.MaxKey {
			return nil, fmt.Errorf("sst: %s: header max_key %d disagrees with last index key %d", path, header.MaxKey, index[len(index)-1].Key)
		}
	}

	return &Cache{Path: path, Header: header, Filter: flt, Index: index}, nil
}

// Get performs the point-read path: filter rejection, then a binary
// search of the resident index, then (on a hit) a seek-and-read of the
// value from disk. ok is false both when the filter rejects the key
// and when the index confirms a filter false positive; callers cannot
// and needn't distinguish the two.
func (c *Cache) Get(key uint64) (value []byte, ok bool, err error) {
	if !c.Filter.MayContain(key) {
		return nil, false, nil
	}

	i := sort.Search(len(c.Index), func(i int) bool { return c.Index[i].Key >= key })
	if i == len(c.Index) || c.Index[i].Key != key {
		return nil, false, nil
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return nil, false, fmt.Errorf("sst: failed to open %s: %w", c.Path, err)
	}
	defer f.Close()

	start := int64(c.Index[i].Offset)

	var end int64
	if i+1 < len(c.Index) {
		end = int64(c.Index[i+1].Offset)
	} else {
		stat, err := f.Stat()
		if err != nil {
			return nil, false, fmt.Errorf("sst: failed to stat %s: %w", c.Path, err)
		}
		end = stat.Size()
	}

	if end < start {
		return nil, false, fmt.Errorf("sst: %s: corrupt index, value end %d before start %d", c.Path, end, start)
	}

	value = make([]byte, end-start)
	if _, err := f.ReadAt(value, start); err != nil {
		return nil, false, fmt.Errorf("sst: failed to read value from %s: %w", c.Path, err)
	}

	return value, true, nil
}

// Overlaps reports whether this run's [min_key, max_key] intersects
// any of the supplied ranges. Used by compaction to select L+1 runs
// that must participate in a merge with L's victims.
func (c *Cache) Overlaps(ranges []Range) bool {
	for _, r := range ranges {
		if !(r.Max < c.Header.MinKey || r.Min > c.Header.MaxKey) {
			return true
		}
	}
	return false
}

// Delete removes the underlying file. Called by compaction once a run
// has been fully subsumed by a merge into the next level.
func (c *Cache) Delete() error {
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("sst: failed to delete %s: %w", c.Path, err)
	}
	return nil
}
