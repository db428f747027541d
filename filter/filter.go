// Package filter implements the fixed-size probabilistic membership
// filter embedded in every SST: a FilterBits-wide bit array with
// FilterHashCount bit positions set per key. A negative answer is
// certain; a positive answer only means "possibly present".
package filter

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/Priyanshu23/lsmkv/types"
)

// Filter is the fixed FilterBits-bit array for one SST.
type Filter struct {
	bits *bitset.BitSet
}

// New returns an empty filter.
func New() *Filter {
	return &Filter{bits: bitset.New(types.FilterBits)}
}

func keyBytes(key uint64) [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return b
}

// locations hashes key into types.FilterHashCount bit positions. We
// reuse bloom/v3's Locations helper for the hashing itself (it derives
// k positions from a 128-bit murmur hash of the key bytes) but own the
// bit storage ourselves, since bloom.BloomFilter's own (de)serialization
// embeds an m/k header that doesn't fit the SST's fixed filter region.
func locations(key uint64) []uint64 {
	kb := keyBytes(key)
	return bloom.Locations(kb[:], types.FilterHashCount)
}

// Add marks key as present.
func (f *Filter) Add(key uint64) {
	for _, loc := range locations(key) {
		f.bits.Set(uint(loc % types.FilterBits))
	}
}

// MayContain reports whether key is possibly present. false is a
// definitive answer; true requires confirmation against the index.
func (f *Filter) MayContain(key uint64) bool {
	for _, loc := range locations(key) {
		if !f.bits.Test(uint(loc % types.FilterBits)) {
			return false
		}
	}
	return true
}

// Bytes serializes the filter to exactly types.FilterBytes bytes,
// ready to write at the SST's filter offset.
func (f *Filter) Bytes() []byte {
	words := f.bits.Bytes()
	out := make([]byte, types.FilterBytes)
	for i, w := range words {
		binary.LittleEndian.PutUint64(out[i*8:], w)
	}
	return out
}

// FromBytes loads a filter from exactly types.FilterBytes bytes, as
// read from an SST's filter region.
func FromBytes(b []byte) (*Filter, error) {
	if len(b) != types.FilterBytes {
		return nil, fmt.Errorf("filter: expected %d bytes, got %d", types.FilterBytes, len(b))
	}

	words := make([]uint64, types.FilterBits/64)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(b[i*8:])
	}

	return &Filter{bits: bitset.From(words)}, nil
}
