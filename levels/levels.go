// Package levels implements the level manager: it owns every on-disk
// run, organized into capacity-bounded levels, and drives flush and
// compaction on the synchronous write path. There is no background
// worker; flush and compaction run to completion on the caller's
// goroutine.
package levels

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Priyanshu23/lsmkv/memtable"
	"github.com/Priyanshu23/lsmkv/merge"
	"github.com/Priyanshu23/lsmkv/sst"
	"github.com/Priyanshu23/lsmkv/types"
)

var (
	levelDirPattern = regexp.MustCompile(`^level-(\d+)$`)
	sstFilePattern  = regexp.MustCompile(`^\d+(?:-\d+)?\.sst$`)
)

// Manager owns all on-disk sorted runs and the monotonic clock used to
// order them. It is single-writer: every exported method assumes the
// caller serializes its own calls.
type Manager struct {
	dir          string
	maxTableSize int
	log          *logrus.Logger

	levels      [][]*sst.Cache // levels[L], newest-first within a level
	currentTime uint64
}

// Option configures a Manager at Open time.
type Option func(*Manager)

// WithMaxTableSize overrides the default 2MiB ceiling on a single
// run's on-disk size.
func WithMaxTableSize(n int) Option {
	return func(m *Manager) { m.maxTableSize = n }
}

// WithLogger overrides the default logrus.Logger used for flush,
// compaction, and recovery diagnostics.
func WithLogger(log *logrus.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// Open recovers a Manager rooted at dir, or initializes an empty one
// if dir doesn't yet contain a store. Recovery:
// group files by level-N subdirectory, load each SST's cache, sort
// each level by descending timestamp, and set the clock to one past
// the maximum timestamp observed.
func Open(dir string, opts ...Option) (*Manager, error) {
	m := &Manager{
		dir:          dir,
		maxTableSize: types.DefaultMaxTableSize,
		log:          logrus.New(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("levels: failed to create data directory %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("levels: failed to read data directory %s: %w", dir, err)
	}

	maxLevel := -1
	levelDirs := map[int]string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		match := levelDirPattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		levelDirs[n] = filepath.Join(dir, e.Name())
		if n > maxLevel {
			maxLevel = n
		}
	}

	m.levels = make([][]*sst.Cache, maxLevel+1)

	var loaded, skipped int
	for lvl := 0; lvl <= maxLevel; lvl++ {
		ldir, ok := levelDirs[lvl]
		if !ok {
			continue
		}

		files, err := os.ReadDir(ldir)
		if err != nil {
			return nil, fmt.Errorf("levels: failed to read %s: %w", ldir, err)
		}

		for _, f := range files {
			if !f.Type().IsRegular() || !sstFilePattern.MatchString(f.Name()) {
				continue
			}

			cache, err := sst.Load(filepath.Join(ldir, f.Name()))
			if err != nil {
				// A file that fails validation is skipped rather
				// than failing recovery of the whole store.
				m.log.WithError(err).Warnf("levels: skipping unreadable SST %s", f.Name())
				skipped++
				continue
			}

			m.levels[lvl] = append(m.levels[lvl], cache)
			loaded++
			if cache.Header.Timestamp >= m.currentTime {
				m.currentTime = cache.Header.Timestamp + 1
			}
		}

		sort.Slice(m.levels[lvl], func(i, j int) bool {
			return m.levels[lvl][i].Header.Timestamp > m.levels[lvl][j].Header.Timestamp
		})
	}

	m.log.WithFields(logrus.Fields{"loaded": loaded, "skipped": skipped, "current_time": m.currentTime}).Info("levels: recovered data directory")

	return m, nil
}

func capacity(level int) int {
	return 1 << (level + 1) // 2^(L+1)
}

func (m *Manager) levelDir(level int) string {
	return filepath.Join(m.dir, fmt.Sprintf("level-%d", level))
}

// ensureLevel grows the level slice (and its on-disk directory) so
// that level can be indexed and written to.
func (m *Manager) ensureLevel(level int) error {
	for len(m.levels) <= level {
		m.levels = append(m.levels, nil)
	}
	if err := os.MkdirAll(m.levelDir(level), 0o755); err != nil {
		return fmt.Errorf("levels: failed to create %s: %w", m.levelDir(level), err)
	}
	return nil
}

// Flush drains table into one or more new L0 runs at a fresh
// timestamp, then runs compaction to restore every level's capacity
// invariant.
func (m *Manager) Flush(table memtable.Table) error {
	if table.Length() == 0 {
		return nil
	}

	m.currentTime++
	ts := m.currentTime

	runs, err := sst.SplitRuns(merge.NoErr(table.DrainSorted()), m.maxTableSize)
	if err != nil {
		return fmt.Errorf("levels: failed to split flush output: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}

	if err := m.ensureLevel(0); err != nil {
		return err
	}

	hasSeq := len(runs) > 1
	caches := make([]*sst.Cache, 0, len(runs))
	for seq, entries := range runs {
		path := sst.RunPath(m.levelDir(0), ts, seq, hasSeq)
		cache, err := sst.WriteRun(path, ts, entries)
		if err != nil {
			return fmt.Errorf("levels: flush failed: %w", err)
		}
		caches = append(caches, cache)
	}

	m.levels[0] = append(caches, m.levels[0]...)

	m.log.WithFields(logrus.Fields{"timestamp": ts, "runs": len(caches)}).Info("levels: flushed memtable to L0")

	return m.compact()
}

// Get performs the on-disk read path: each level in order,
// within a level each run newest-first, first hit wins.
func (m *Manager) Get(key uint64) ([]byte, bool, error) {
	for _, level := range m.levels {
		for _, cache := range level {
			value, ok, err := cache.Get(key)
			if err != nil {
				return nil, false, fmt.Errorf("levels: read failed for %s: %w", cache.Path, err)
			}
			if ok {
				return value, true, nil
			}
		}
	}
	return nil, false, nil
}

// Reset deletes every on-disk run and returns the manager to its
// just-opened, empty state.
func (m *Manager) Reset() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("levels: failed to read %s during reset: %w", m.dir, err)
	}

	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(m.dir, e.Name())); err != nil {
			return fmt.Errorf("levels: failed to remove %s during reset: %w", e.Name(), err)
		}
	}

	m.levels = nil
	m.currentTime = 0

	m.log.Info("levels: reset data directory")

	return nil
}

// LevelCounts returns the number of runs currently resident at each
// level, for tests asserting the capacity invariant.
func (m *Manager) LevelCounts() []int {
	counts := make([]int, len(m.levels))
	for i, l := range m.levels {
		counts[i] = len(l)
	}
	return counts
}

// CurrentTime returns the manager's monotonic clock, incremented on
// every flush and compaction batch.
func (m *Manager) CurrentTime() uint64 {
	return m.currentTime
}

// compact restores every level's capacity invariant, shallowest level
// first, repeating at a level until it's back within capacity. A
// single compactLevel call always brings L0 back to zero runs and any
// deeper level back to exactly its capacity; the loop is kept as an
// explicit invariant check.
func (m *Manager) compact() error {
	for level := 0; level < len(m.levels); level++ {
		for len(m.levels[level]) > capacity(level) {
			if err := m.compactLevel(level); err != nil {
				return err
			}
		}
	}
	return nil
}

// compactLevel merges level's excess runs (all of L0, or the oldest
// excess at L>0) together with any overlapping run at level+1, writes
// the merged output to level+1, and deletes the inputs.
func (m *Manager) compactLevel(level int) error {
	victims := m.selectVictims(level)
	if len(victims) == 0 {
		return nil
	}

	m.currentTime++

	ranges := make([]sst.Range, len(victims))
	for i, v := range victims {
		ranges[i] = sst.Range{Min: v.Header.MinKey, Max: v.Header.MaxKey}
	}

	next := level + 1
	if err := m.ensureLevel(next); err != nil {
		return err
	}

	dropTombstones := m.isLastLevel(next)

	var overlapping, remaining []*sst.Cache
	for _, c := range m.levels[next] {
		if c.Overlaps(ranges) {
			overlapping = append(overlapping, c)
		} else {
			remaining = append(remaining, c)
		}
	}

	selected := append(append([]*sst.Cache(nil), victims...), overlapping...)

	runs := make([]merge.Run, len(selected))
	var maxTimestamp uint64
	for i, c := range selected {
		runs[i] = merge.FromCache(c)
		if c.Header.Timestamp > maxTimestamp {
			maxTimestamp = c.Header.Timestamp
		}
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp > runs[j].Timestamp })

	merged := merge.All(runs).Entries
	if dropTombstones {
		merged = dropTombstoneEntries(merged)
	}

	outputs, err := sst.SplitRuns(merged, m.maxTableSize)
	if err != nil {
		return fmt.Errorf("levels: compaction merge of L%d failed: %w", level, err)
	}

	// Output names must not collide with any run already resident at
	// the target level: a surviving run can share maxTimestamp with the
	// merge inputs (split siblings from one earlier batch get compacted
	// in separate batches), and overwriting its file would corrupt it.
	usedPaths := make(map[string]bool, len(m.levels[next]))
	for _, c := range m.levels[next] {
		usedPaths[c.Path] = true
	}

	hasSeq := len(outputs) > 1
	newCaches := make([]*sst.Cache, 0, len(outputs))
	seq := 0
	for _, entries := range outputs {
		if len(entries) == 0 {
			continue
		}
		path := sst.RunPath(m.levelDir(next), maxTimestamp, seq, hasSeq)
		for usedPaths[path] {
			hasSeq = true
			seq++
			path = sst.RunPath(m.levelDir(next), maxTimestamp, seq, hasSeq)
		}
		cache, err := sst.WriteRun(path, maxTimestamp, entries)
		if err != nil {
			return fmt.Errorf("levels: compaction write to L%d failed: %w", next, err)
		}
		usedPaths[path] = true
		newCaches = append(newCaches, cache)
		seq++
	}

	for _, c := range selected {
		if err := c.Delete(); err != nil {
			return fmt.Errorf("levels: compaction cleanup failed: %w", err)
		}
	}

	m.levels[level] = removeAll(m.levels[level], victims)

	result := append(append([]*sst.Cache(nil), newCaches...), remaining...)
	sort.SliceStable(result, func(i, j int) bool { return result[i].Header.Timestamp > result[j].Header.Timestamp })
	m.levels[next] = result

	m.log.WithFields(logrus.Fields{
		"from_level": level,
		"to_level":   next,
		"inputs":     len(selected),
		"outputs":    len(newCaches),
		"tombstones_dropped": dropTombstones,
	}).Info("levels: compacted")

	return nil
}

// selectVictims picks the runs at level that compaction must remove:
// all of L0 (they may overlap each other), or the oldest excess at
// L>0 (smallest timestamp, ties by smallest min_key).
func (m *Manager) selectVictims(level int) []*sst.Cache {
	runs := m.levels[level]

	if level == 0 {
		return append([]*sst.Cache(nil), runs...)
	}

	excess := len(runs) - capacity(level)
	if excess <= 0 {
		return nil
	}

	sorted := append([]*sst.Cache(nil), runs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Header.Timestamp != sorted[j].Header.Timestamp {
			return sorted[i].Header.Timestamp < sorted[j].Header.Timestamp
		}
		return sorted[i].Header.MinKey < sorted[j].Header.MinKey
	})

	return sorted[:excess]
}

// isLastLevel reports whether level is the deepest currently
// non-empty level, i.e. every level beyond it (if any exist yet) holds
// no runs. A compaction landing on such a level must drop tombstones:
// there is nothing deeper left for a deleted key to still shadow.
func (m *Manager) isLastLevel(level int) bool {
	for l := level + 1; l < len(m.levels); l++ {
		if len(m.levels[l]) > 0 {
			return false
		}
	}
	return true
}

func removeAll(runs, remove []*sst.Cache) []*sst.Cache {
	drop := make(map[*sst.Cache]bool, len(remove))
	for _, c := range remove {
		drop[c] = true
	}

	var keep []*sst.Cache
	for _, c := range runs {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	return keep
}

func dropTombstoneEntries(seq iter.Seq2[types.Entry, error]) iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		for e, err := range seq {
			if err != nil {
				yield(types.Entry{}, err)
				return
			}
			if types.IsTombstone(e.Value) {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}
