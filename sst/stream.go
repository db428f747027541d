package sst

import (
	"fmt"
	"iter"
	"os"

	"github.com/Priyanshu23/lsmkv/types"
)

// Entries streams this run's entries in ascending key order, reading
// one value at a time rather than materializing the whole file. This
// is what the merge engine consumes: a k-way merge keeps only
// O(n_runs) entries resident rather than loading every victim SST
// into memory up front.
func (c *Cache) Entries() iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		if len(c.Index) == 0 {
			return
		}

		f, err := os.Open(c.Path)
		if err != nil {
			yield(types.Entry{}, fmt.Errorf("sst: failed to open %s: %w", c.Path, err))
			return
		}
		defer f.Close()

		stat, err := f.Stat()
		if err != nil {
			yield(types.Entry{}, fmt.Errorf("sst: failed to stat %s: %w", c.Path, err))
			return
		}

		for i, idx := range c.Index {
			var end int64
			if i+1 < len(c.Index) {
				end = int64(c.Index[i+1].Offset)
			} else {
				end = stat.Size()
			}

			value := make([]byte, end-int64(idx.Offset))
			if _, err := f.ReadAt(value, int64(idx.Offset)); err != nil {
				yield(types.Entry{}, fmt.Errorf("sst: failed to read value from %s: %w", c.Path, err))
				return
			}

			if !yield(types.Entry{Key: idx.Key, Value: value}, nil) {
				return
			}
		}
	}
}
