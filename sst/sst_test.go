package sst

import (
	"path/filepath"
	"testing"

	"github.com/Priyanshu23/lsmkv/types"
)

func entries(pairs ...[2]any) []types.Entry {
	out := make([]types.Entry, len(pairs))
	for i, p := range pairs {
		out[i] = types.Entry{Key: p[0].(uint64), Value: []byte(p[1].(string))}
	}
	return out
}

func TestWriteLoadGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := entries([2]any{uint64(1), "a"}, [2]any{uint64(2), "bb"}, [2]any{uint64(5), "ccccc"})

	path := RunPath(dir, 10, 0, false)
	cache, err := WriteRun(path, 10, data)
	if err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	if cache.Header.MinKey != 1 || cache.Header.MaxKey != 5 || cache.Header.Count != 3 {
		t.Fatalf("unexpected header: %+v", cache.Header)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, e := range data {
		val, ok, err := loaded.Get(e.Key)
		if err != nil {
			t.Fatalf("Get(%d): %v", e.Key, err)
		}
		if !ok || string(val) != string(e.Value) {
			t.Fatalf("Get(%d) = (%q, %v), want (%q, true)", e.Key, val, ok, e.Value)
		}
	}

	if _, ok, err := loaded.Get(999); err != nil || ok {
		t.Fatalf("Get(999) = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestRunPathSeqSuffix(t *testing.T) {
	dir := "/data"
	if got, want := RunPath(dir, 7, 0, false), filepath.Join(dir, "7.sst"); got != want {
		t.Fatalf("RunPath no-seq = %q, want %q", got, want)
	}
	if got, want := RunPath(dir, 7, 2, true), filepath.Join(dir, "7-2.sst"); got != want {
		t.Fatalf("RunPath seq = %q, want %q", got, want)
	}
}

func TestFilterSoundness(t *testing.T) {
	dir := t.TempDir()
	data := entries([2]any{uint64(3), "x"}, [2]any{uint64(9), "y"}, [2]any{uint64(40), "z"})

	path := RunPath(dir, 1, 0, false)
	cache, err := WriteRun(path, 1, data)
	if err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	for _, e := range data {
		if !cache.Filter.MayContain(e.Key) {
			t.Fatalf("filter false negative for stored key %d", e.Key)
		}
	}
}

func TestOverlaps(t *testing.T) {
	dir := t.TempDir()
	data := entries([2]any{uint64(10), "a"}, [2]any{uint64(20), "b"})
	cache, err := WriteRun(RunPath(dir, 1, 0, false), 1, data)
	if err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	if !cache.Overlaps([]Range{{Min: 15, Max: 25}}) {
		t.Fatalf("expected overlap with [15,25]")
	}
	if cache.Overlaps([]Range{{Min: 21, Max: 30}}) {
		t.Fatalf("expected no overlap with [21,30]")
	}
}

func TestEntriesStreamsInOrder(t *testing.T) {
	dir := t.TempDir()
	data := entries([2]any{uint64(1), "a"}, [2]any{uint64(4), "bbbb"}, [2]any{uint64(9), "c"})
	path := RunPath(dir, 1, 0, false)
	if _, err := WriteRun(path, 1, data); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	cache, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	var got []types.Entry
	for e, err := range cache.Entries() {
		if err != nil {
			t.Fatalf("Entries: %v", err)
		}
		got = append(got, e)
	}

	if len(got) != len(data) {
		t.Fatalf("got %d entries, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i].Key != data[i].Key || string(got[i].Value) != string(data[i].Value) {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], data[i])
		}
	}
}

func TestWriteRunRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	if _, err := WriteRun(RunPath(dir, 1, 0, false), 1, nil); err == nil {
		t.Fatalf("expected error writing an empty run")
	}
}

func TestWriteRunRejectsUnsortedKeys(t *testing.T) {
	dir := t.TempDir()
	data := entries([2]any{uint64(5), "a"}, [2]any{uint64(3), "b"})
	if _, err := WriteRun(RunPath(dir, 1, 0, false), 1, data); err == nil {
		t.Fatalf("expected error writing out-of-order keys")
	}
}

func TestSplitRunsRespectsMaxTableSize(t *testing.T) {
	seq := func(yield func(types.Entry, error) bool) {
		for i := uint64(0); i < 100; i++ {
			if !yield(types.Entry{Key: i, Value: make([]byte, 16)}, nil) {
				return
			}
		}
	}

	maxTableSize := types.BaseTableSize + 10*(types.IndexRecordBytes+16)
	runs, err := SplitRuns(seq, maxTableSize)
	if err != nil {
		t.Fatalf("SplitRuns: %v", err)
	}

	if len(runs) < 10 {
		t.Fatalf("expected multiple runs, got %d", len(runs))
	}

	var total int
	for _, run := range runs {
		size := types.BaseTableSize
		for _, e := range run {
			size += types.IndexRecordBytes + len(e.Value)
		}
		if size >= maxTableSize+types.IndexRecordBytes+16 {
			t.Fatalf("run size %d exceeds max table size %d by more than one entry", size, maxTableSize)
		}
		total += len(run)
	}

	if total != 100 {
		t.Fatalf("expected 100 entries across all runs, got %d", total)
	}
}
