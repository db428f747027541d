package merge

import (
	"slices"
	"testing"

	"github.com/Priyanshu23/lsmkv/types"
)

func collect(t *testing.T, run Run) []types.Entry {
	t.Helper()
	var out []types.Entry
	for e, err := range run.Entries {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func entry(key uint64, value string) types.Entry {
	return types.Entry{Key: key, Value: []byte(value)}
}

func TestPairwiseNewerWinsOnDuplicateKey(t *testing.T) {
	newer := FromSeq(2, slices.Values([]types.Entry{entry(1, "new")}))
	older := FromSeq(1, slices.Values([]types.Entry{entry(1, "old"), entry(2, "kept")}))

	merged := All([]Run{newer, older})
	got := collect(t, merged)

	want := []types.Entry{entry(1, "new"), entry(2, "kept")}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i].Key != want[i].Key || string(got[i].Value) != string(want[i].Value) {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPairwiseOutputTimestampIsNewerSide(t *testing.T) {
	newer := FromSeq(99, slices.Values([]types.Entry{entry(1, "a")}))
	older := FromSeq(1, slices.Values([]types.Entry{entry(2, "b")}))

	merged := All([]Run{newer, older})
	if merged.Timestamp != 99 {
		t.Fatalf("expected merged timestamp 99, got %d", merged.Timestamp)
	}
}

func TestMergeIsSortedAcrossNonOverlappingRuns(t *testing.T) {
	a := FromSeq(3, slices.Values([]types.Entry{entry(1, "a"), entry(5, "e")}))
	b := FromSeq(2, slices.Values([]types.Entry{entry(2, "b"), entry(4, "d")}))
	c := FromSeq(1, slices.Values([]types.Entry{entry(3, "c")}))

	got := collect(t, All([]Run{a, b, c}))

	for i := 1; i < len(got); i++ {
		if got[i].Key <= got[i-1].Key {
			t.Fatalf("output not strictly ascending at %d: %d then %d", i, got[i-1].Key, got[i].Key)
		}
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}
}

func TestMergeOddRunCountCarriesThrough(t *testing.T) {
	runs := []Run{
		FromSeq(5, slices.Values([]types.Entry{entry(1, "a")})),
		FromSeq(4, slices.Values([]types.Entry{entry(2, "b")})),
		FromSeq(3, slices.Values([]types.Entry{entry(3, "c")})),
	}

	got := collect(t, All(runs))
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
}

func TestMergeSingleRunPassesThrough(t *testing.T) {
	run := FromSeq(1, slices.Values([]types.Entry{entry(1, "a"), entry(2, "b")}))
	got := collect(t, All([]Run{run}))
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
}

func TestMergeEmptyRunsYieldsNothing(t *testing.T) {
	got := collect(t, All(nil))
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}

func TestMergeTombstonePreservedByDefault(t *testing.T) {
	newer := FromSeq(2, slices.Values([]types.Entry{entry(1, string(types.Tombstone))}))
	older := FromSeq(1, slices.Values([]types.Entry{entry(1, "old")}))

	got := collect(t, All([]Run{newer, older}))
	if len(got) != 1 || !types.IsTombstone(got[0].Value) {
		t.Fatalf("expected tombstone to win and be preserved, got %+v", got)
	}
}
