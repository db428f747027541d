package memtable

import (
	"iter"
	"math/rand"

	"github.com/Priyanshu23/lsmkv/types"
)

const maxLevel = 32

type record struct {
	key   uint64
	value []byte
}

type skipListNode struct {
	rec     record
	forward []*skipListNode
}

func newSkipListNode(key uint64, value []byte, levels int) *skipListNode {
	return &skipListNode{
		rec:     record{key, value},
		forward: make([]*skipListNode, levels+1),
	}
}

// SkipList is the ordered index backing the mutable table. Insertion,
// lookup, and removal are O(log n) expected; entries are kept in
// ascending key order for DrainSorted.
type SkipList struct {
	rng    *rand.Rand
	head   *skipListNode
	levels int
	length int
	size   int
	drained bool
}

// New returns an empty mutable table, sized at the fixed SST
// header+filter overhead that every flushed run carries even with no
// entries.
func New() *SkipList {
	return &SkipList{
		rng:    rand.New(rand.NewSource(1)),
		head:   newSkipListNode(0, nil, 0),
		levels: -1,
		size:   types.BaseTableSize,
	}
}

func (sl *SkipList) Get(key uint64) ([]byte, bool) {
	curr := sl.head

	for level := sl.levels; level >= 0; level-- {
		for {
			next := curr.forward[level]
			if next == nil || next.rec.key > key {
				break
			}
			if next.rec.key == key {
				return next.rec.value, true
			}
			curr = next
		}
	}

	return nil, false
}

func (sl *SkipList) randomLevel() int {
	level := 0
	for sl.rng.Int31()&1 == 0 && level < maxLevel {
		level++
	}
	return level
}

func (sl *SkipList) growHead(level int) {
	old := sl.head.forward
	sl.head = newSkipListNode(0, nil, level)
	sl.levels = level
	copy(sl.head.forward, old)
}

func (sl *SkipList) Put(key uint64, value []byte) bool {
	newLevel := sl.randomLevel()
	if newLevel > sl.levels {
		sl.growHead(newLevel)
	}

	updates := make([]*skipListNode, sl.levels+1)
	x := sl.head

	for level := sl.levels; level >= 0; level-- {
		for x.forward[level] != nil && x.forward[level].rec.key < key {
			x = x.forward[level]
		}
		updates[level] = x
	}

	if existing := x.forward[0]; existing != nil && existing.rec.key == key {
		sl.size += len(value) - len(existing.rec.value)
		existing.rec.value = value
		return true
	}

	newNode := newSkipListNode(key, value, newLevel)
	for level := 0; level <= newLevel; level++ {
		newNode.forward[level] = updates[level].forward[level]
		updates[level].forward[level] = newNode
	}

	sl.length++
	sl.size += types.IndexRecordBytes + len(value)

	return false
}

// Remove overwrites key with the tombstone sentinel. The node is not
// unlinked; the deletion has to survive a flush as a normal entry.
func (sl *SkipList) Remove(key uint64) bool {
	return sl.Put(key, types.Tombstone)
}

func (sl *SkipList) Length() int { return sl.length }

func (sl *SkipList) Size() int { return sl.size }

// DrainSorted yields every entry in ascending key order. It may be
// called at most once; a second call panics, since the table is meant
// to be discarded immediately after a flush consumes it.
func (sl *SkipList) DrainSorted() iter.Seq[Entry] {
	if sl.drained {
		panic("memtable: DrainSorted called more than once")
	}
	sl.drained = true

	return func(yield func(Entry) bool) {
		curr := sl.head.forward[0]
		for curr != nil {
			if !yield(Entry{Key: curr.rec.key, Value: curr.rec.value}) {
				return
			}
			curr = curr.forward[0]
		}
	}
}

var _ Table = (*SkipList)(nil)
