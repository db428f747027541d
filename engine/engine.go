// Package engine assembles the mutable table and the level manager
// into the store's full external surface: Open, Put, Get, Del, Reset,
// Close. Scheduling is synchronous throughout; every method runs to
// completion on the caller's goroutine, and Store assumes a single
// caller (no internal locking).
package engine

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Priyanshu23/lsmkv/levels"
	"github.com/Priyanshu23/lsmkv/memtable"
	"github.com/Priyanshu23/lsmkv/types"
)

// ErrValueTooLarge is returned by Put when a single value, plus its
// fixed per-entry index overhead, could never fit in one SST under
// the store's configured max table size.
var ErrValueTooLarge = errors.New("lsmkv: value too large for configured max table size")

// ErrTombstoneValue is returned by Put when the caller's value equals
// the reserved deletion sentinel; external callers cannot write it
// directly.
var ErrTombstoneValue = errors.New("lsmkv: value equals the reserved tombstone sentinel")

// ErrClosed is returned by every operation once the store has been
// closed or placed into its refuse-further-writes state by an
// unrecoverable I/O or corruption error.
var ErrClosed = errors.New("lsmkv: store is closed or has failed")

// Store is the full external surface of the key-value store.
type Store struct {
	table        memtable.Table
	levels       *levels.Manager
	maxTableSize int
	log          *logrus.Logger
	closed       bool
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithMaxTableSize overrides the default 2MiB ceiling on a single
// run's on-disk size. Must exceed types.BaseTableSize.
func WithMaxTableSize(n int) Option {
	return func(s *Store) { s.maxTableSize = n }
}

// WithLogger overrides the default logrus.Logger used for flush,
// compaction, and recovery diagnostics.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Open initializes or recovers the store rooted at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		maxTableSize: types.DefaultMaxTableSize,
		log:          logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mgr, err := levels.Open(dir, levels.WithMaxTableSize(s.maxTableSize), levels.WithLogger(s.log))
	if err != nil {
		return nil, fmt.Errorf("lsmkv: failed to open %s: %w", dir, err)
	}

	s.levels = mgr
	s.table = memtable.New()

	return s, nil
}

// Put upserts key, triggering a flush (and any resulting compaction)
// if the mutable table's projected on-disk size would reach the
// configured max table size.
func (s *Store) Put(key uint64, value []byte) error {
	if s.closed {
		return ErrClosed
	}
	if types.IsTombstone(value) {
		return ErrTombstoneValue
	}
	if types.IndexRecordBytes+len(value) > s.maxTableSize-types.BaseTableSize {
		return ErrValueTooLarge
	}

	s.table.Put(key, value)

	return s.maybeFlush()
}

// Get performs the read path: the mutable table first, then each
// level in turn; the first hit decides. A tombstone as that first hit
// is reported as a miss, never surfaced to the caller.
func (s *Store) Get(key uint64) ([]byte, bool, error) {
	if s.closed {
		return nil, false, ErrClosed
	}

	if value, ok := s.table.Get(key); ok {
		if types.IsTombstone(value) {
			return nil, false, nil
		}
		return value, true, nil
	}

	value, ok, err := s.levels.Get(key)
	if err != nil {
		s.closed = true
		return nil, false, fmt.Errorf("lsmkv: %w", err)
	}
	if !ok || types.IsTombstone(value) {
		return nil, false, nil
	}

	return value, true, nil
}

// Del writes the tombstone sentinel for key and reports whether a
// prior non-tombstone value was visible beforehand.
func (s *Store) Del(key uint64) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}

	_, existed, err := s.Get(key)
	if err != nil {
		return false, err
	}

	s.table.Put(key, types.Tombstone)

	if err := s.maybeFlush(); err != nil {
		return existed, err
	}

	return existed, nil
}

// Reset drops the mutable table and every on-disk run, and resets the
// clock to zero.
func (s *Store) Reset() error {
	if s.closed {
		return ErrClosed
	}

	if err := s.levels.Reset(); err != nil {
		s.closed = true
		return fmt.Errorf("lsmkv: reset failed: %w", err)
	}

	s.table = memtable.New()

	return nil
}

// Close flushes the mutable table if non-empty and releases the
// store. Further operations return ErrClosed.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}

	if s.table.Length() > 0 {
		if err := s.flush(); err != nil {
			s.closed = true
			return err
		}
	}

	s.closed = true

	return nil
}

func (s *Store) maybeFlush() error {
	if s.table.Size() < s.maxTableSize {
		return nil
	}
	if err := s.flush(); err != nil {
		s.closed = true
		return err
	}
	return nil
}

func (s *Store) flush() error {
	if err := s.levels.Flush(s.table); err != nil {
		return fmt.Errorf("lsmkv: flush failed: %w", err)
	}
	s.table = memtable.New()
	return nil
}
