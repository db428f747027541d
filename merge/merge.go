// Package merge implements the k-way merge of sorted runs: a balanced
// pairwise reduction that preserves recency (the newer side wins on
// duplicate keys) and streams its output rather than materializing
// any input run in full.
package merge

import (
	"iter"

	"github.com/Priyanshu23/lsmkv/sst"
	"github.com/Priyanshu23/lsmkv/types"
)

// Run is a timestamped, sorted stream of entries — the
// abstraction the merge engine operates over. Both a drained mutable
// table and an on-disk SST satisfy it via FromSeq and FromCache.
type Run struct {
	Timestamp uint64
	Entries   iter.Seq2[types.Entry, error]
}

// NoErr lifts an in-memory entry sequence (which cannot fail) into the
// iter.Seq2 shape the merge engine expects from every run.
func NoErr(seq iter.Seq[types.Entry]) iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		for e := range seq {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// FromSeq wraps an in-memory entry sequence (e.g. a drained mutable
// table) as a Run at the given timestamp.
func FromSeq(timestamp uint64, seq iter.Seq[types.Entry]) Run {
	return Run{Timestamp: timestamp, Entries: NoErr(seq)}
}

// FromCache wraps an SST's resident cache as a Run, streaming values
// from disk one at a time as the merge consumes them.
func FromCache(c *sst.Cache) Run {
	return Run{Timestamp: c.Header.Timestamp, Entries: c.Entries()}
}

// pairwise merges two sorted streams, A being the newer side: on equal
// keys A's entry is emitted and both sides advance, so A's value wins.
func pairwise(a, b Run) Run {
	return Run{
		Timestamp: a.Timestamp,
		Entries: func(yield func(types.Entry, error) bool) {
			nextA, stopA := iter.Pull2(a.Entries)
			defer stopA()
			nextB, stopB := iter.Pull2(b.Entries)
			defer stopB()

			ea, errA, okA := nextA()
			eb, errB, okB := nextB()

			for okA && okB {
				if errA != nil {
					yield(types.Entry{}, errA)
					return
				}
				if errB != nil {
					yield(types.Entry{}, errB)
					return
				}

				switch {
				case ea.Key < eb.Key:
					if !yield(ea, nil) {
						return
					}
					ea, errA, okA = nextA()
				case ea.Key > eb.Key:
					if !yield(eb, nil) {
						return
					}
					eb, errB, okB = nextB()
				default:
					if !yield(ea, nil) {
						return
					}
					ea, errA, okA = nextA()
					eb, errB, okB = nextB()
				}
			}

			for okA {
				if errA != nil {
					yield(types.Entry{}, errA)
					return
				}
				if !yield(ea, nil) {
					return
				}
				ea, errA, okA = nextA()
			}

			for okB {
				if errB != nil {
					yield(types.Entry{}, errB)
					return
				}
				if !yield(eb, nil) {
					return
				}
				eb, errB, okB = nextB()
			}
		},
	}
}

// All merges runs (sorted newest-first by Timestamp) via a balanced
// tournament reduction: pair i with i+1, carry an odd run through
// unmerged, and recurse until one remains. Any stable,
// recency-preserving merge would satisfy the contract; the balanced
// shape keeps the reduction deterministic across identical inputs.
func All(runs []Run) Run {
	if len(runs) == 0 {
		return Run{Entries: func(func(types.Entry, error) bool) {}}
	}
	if len(runs) == 1 {
		return runs[0]
	}

	groups := len(runs) / 2
	next := make([]Run, 0, groups+1)
	for i := 0; i < groups; i++ {
		next = append(next, pairwise(runs[2*i], runs[2*i+1]))
	}
	if len(runs)%2 == 1 {
		next = append(next, runs[len(runs)-1])
	}

	return All(next)
}
