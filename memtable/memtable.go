// Package memtable provides the in-memory, ordered key-value index
// that absorbs writes ahead of a flush: a skip list keyed on the
// store's uint64 key space, tracking the projected on-disk footprint
// of an SST built from its contents.
package memtable

import (
	"iter"

	"github.com/Priyanshu23/lsmkv/types"
)

// Entry is one key-value pair, as yielded by DrainSorted.
type Entry = types.Entry

// Table is the mutable table's contract. A Table is single-writer and
// is consumed exactly once by DrainSorted.
type Table interface {
	// Get returns the stored value for key, including a tombstone
	// value if one is present, or ok=false if key was never written.
	Get(key uint64) (value []byte, ok bool)

	// Put inserts or overwrites key. Returns whether key already
	// existed.
	Put(key uint64, value []byte) (existed bool)

	// Remove writes the tombstone sentinel for key, so the deletion
	// survives a flush as a normal entry. Returns whether key was
	// physically present beforehand.
	Remove(key uint64) (existed bool)

	// Length is the number of distinct keys currently stored.
	Length() int

	// Size is the projected on-disk footprint of an SST built from the
	// table's current contents: types.BaseTableSize plus 12+len(value)
	// per distinct key.
	Size() int

	// DrainSorted consumes the table and yields its entries in
	// ascending key order. Must be called at most once.
	DrainSorted() iter.Seq[Entry]
}
