// Package sst implements the Sorted String Table on-disk format: a
// fixed header, a membership filter, a key index, and a data region,
// laid out at the byte offsets fixed by the store's wire format.
//
// File layout:
//
//	+------------------------------------------------------------------+
//	|  HEADER (32 bytes): timestamp, count, min_key, max_key            |  offset 0
//	+------------------------------------------------------------------+
//	|  FILTER (types.FilterBytes)                                       |  offset 32
//	+------------------------------------------------------------------+
//	|  INDEX: count * (key u64, offset u32)                             |  offset 10272
//	+------------------------------------------------------------------+
//	|  DATA: value bytes, concatenated in key order                     |  offset 10272+12*count
//	+------------------------------------------------------------------+
package sst

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/Priyanshu23/lsmkv/filter"
	"github.com/Priyanshu23/lsmkv/types"
)

// SplitRuns groups entries into runs no larger than maxTableSize bytes
// once serialized as an SST: entries are appended to the open run
// until the next one (costing 12+len(value)) would meet or exceed the
// limit, at which point the run is sealed and a new one started. A
// single call yields one run whenever the whole input, serialized as
// one SST, stays below maxTableSize.
func SplitRuns(entries iter.Seq2[types.Entry, error], maxTableSize int) ([][]types.Entry, error) {
	var runs [][]types.Entry
	var current []types.Entry
	size := types.BaseTableSize

	for e, err := range entries {
		if err != nil {
			return nil, err
		}

		cost := types.IndexRecordBytes + len(e.Value)
		if len(current) > 0 && size+cost >= maxTableSize {
			runs = append(runs, current)
			current = nil
			size = types.BaseTableSize
		}
		current = append(current, e)
		size += cost
	}

	if len(current) > 0 {
		runs = append(runs, current)
	}

	return runs, nil
}

// RunPath names a run: "<timestamp>.sst" when hasSeq is false,
// "<timestamp>-<seq>.sst" when it is true.
func RunPath(dir string, timestamp uint64, seq int, hasSeq bool) string {
	if hasSeq {
		return filepath.Join(dir, fmt.Sprintf("%d-%d.sst", timestamp, seq))
	}
	return filepath.Join(dir, fmt.Sprintf("%d.sst", timestamp))
}

// WriteRun serializes entries (already sorted ascending by key, and
// already checked to fit within one run) to path and returns the
// resident cache for the new file. The file is written to a temporary
// name and renamed into place so a crash mid-write never leaves a
// partially-written file at path.
func WriteRun(path string, timestamp uint64, entries []types.Entry) (*Cache, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("sst: refusing to write an empty run")
	}

	count := len(entries)
	total := types.BaseTableSize + types.IndexRecordBytes*count
	for _, e := range entries {
		total += len(e.Value)
	}

	buf := make([]byte, total)

	minKey := entries[0].Key
	maxKey := entries[count-1].Key

	binary.LittleEndian.PutUint64(buf[0:8], timestamp)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(count))
	binary.LittleEndian.PutUint64(buf[16:24], minKey)
	binary.LittleEndian.PutUint64(buf[24:32], maxKey)

	flt := filter.New()
	index := make([]IndexEntry, count)

	indexStart := types.HeaderBytes + types.FilterBytes
	dataStart := indexStart + types.IndexRecordBytes*count
	valOffset := dataStart

	for i, e := range entries {
		if i > 0 && e.Key <= entries[i-1].Key {
			return nil, fmt.Errorf("sst: entries not strictly ascending at index %d (keys %d, %d)", i, entries[i-1].Key, e.Key)
		}

		flt.Add(e.Key)

		rec := buf[indexStart+i*types.IndexRecordBytes:]
		binary.LittleEndian.PutUint64(rec[0:8], e.Key)
		binary.LittleEndian.PutUint32(rec[8:12], uint32(valOffset))
		index[i] = IndexEntry{Key: e.Key, Offset: uint32(valOffset)}

		copy(buf[valOffset:], e.Value)
		valOffset += len(e.Value)
	}

	copy(buf[types.HeaderBytes:indexStart], flt.Bytes())

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return nil, fmt.Errorf("sst: failed to write %s: %w", path, err)
	}

	return &Cache{
		Path: path,
		Header: Header{
			Timestamp: timestamp,
			Count:     uint64(count),
			MinKey:    minKey,
			MaxKey:    maxKey,
		},
		Filter: flt,
		Index:  index,
	}, nil
}
