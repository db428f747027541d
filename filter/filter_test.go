package filter

import "testing"

func TestEmptyFilterRejects(t *testing.T) {
	f := New()

	if f.MayContain(42) {
		t.Fatalf("expected empty filter to reject key 42")
	}
}

func TestAddedKeysAlwaysMayContain(t *testing.T) {
	f := New()

	keys := []uint64{0, 1, 2, 100, 1 << 40, ^uint64(0)}
	for _, k := range keys {
		f.Add(k)
	}

	for _, k := range keys {
		if !f.MayContain(k) {
			t.Fatalf("filter false negative for key %d", k)
		}
	}
}

func TestRoundTripBytes(t *testing.T) {
	f := New()
	for i := uint64(0); i < 1000; i++ {
		f.Add(i * 7)
	}

	loaded, err := FromBytes(f.Bytes())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}

	for i := uint64(0); i < 1000; i++ {
		if !loaded.MayContain(i * 7) {
			t.Fatalf("round-tripped filter false negative for key %d", i*7)
		}
	}
}

func TestFromBytesRejectsWrongSize(t *testing.T) {
	if _, err := FromBytes(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for undersized buffer")
	}
}
