// Package lsmtree implements the LSM tree coordinator: it owns the active
// and immutable memory buffers and every sorted run, and drives the write
// path, the read path, flushes, and compaction scheduling.
package lsmtree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chuyangliu/lsmkv/pkg/algods/treemap"
	"github.com/chuyangliu/lsmkv/pkg/logging"
	"github.com/chuyangliu/lsmkv/pkg/metrics"
	"github.com/chuyangliu/lsmkv/pkg/store"
	"github.com/chuyangliu/lsmkv/pkg/store/compaction"
	"github.com/chuyangliu/lsmkv/pkg/store/filestore"
	"github.com/chuyangliu/lsmkv/pkg/store/memstore"
)

// ErrEmptyValue reports a Put with an empty value, which is reserved to
// encode tombstones on disk.
var ErrEmptyValue = errors.New("empty values are reserved for tombstones")

// Tree is an embedded LSM tree over a single base directory. A Tree assumes
// exclusive ownership of the directory. Methods are safe for concurrent use:
// a coordinator-wide reader/writer lock serializes mutations while letting
// point and range reads share.
type Tree struct {
	logger    *logging.Logger
	metrics   *metrics.Registry // nil disables collection
	rootdir   string
	budget    store.KVLen
	mem       *memstore.Store // active buffer, receives writes
	imm       *memstore.Store // immutable buffer awaiting flush, nil if none
	levels    *treemap.Map    // level (int) -> runs ([]*filestore.Store), newest last
	compactor *compaction.Engine
	lock      sync.RWMutex
}

// Open instantiates a Tree rooted at rootdir with the given buffer budget,
// loading any runs a previous coordinator left behind. Opening a corrupt run
// file fails with filestore.ErrInvalidRun.
func Open(logLevel int, rootdir string, budget store.KVLen) (*Tree, error) {

	if err := os.MkdirAll(rootdir, 0755); err != nil {
		return nil, fmt.Errorf("Create root directory failed | rootdir=%v | err=[%w]", rootdir, err)
	}

	compactor, err := compaction.New(logLevel, rootdir)
	if err != nil {
		return nil, fmt.Errorf("Create compaction engine failed | rootdir=%v | err=[%w]", rootdir, err)
	}

	t := &Tree{
		logger:    logging.New(logLevel),
		rootdir:   rootdir,
		budget:    budget,
		mem:       memstore.New(budget),
		levels:    treemap.NewIntKeyed(),
		compactor: compactor,
	}

	if err := t.loadRuns(); err != nil {
		return nil, fmt.Errorf("Load existing runs failed | rootdir=%v | err=[%w]", rootdir, err)
	}

	t.logger.Info("Tree opened | rootdir=%v | budget=%v | levels=%v | runs=%v",
		rootdir, budget, t.levels.Size(), t.numRunsUnsafe())
	return t, nil
}

// UseMetrics attaches a metrics registry. Pass nil to disable collection.
func (t *Tree) UseMetrics(reg *metrics.Registry) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.metrics = reg
	t.updateGaugesUnsafe()
}

// Put adds or updates a key-value pair. It returns false when the active
// buffer rejects the record; the buffer is switched on the next call after
// it reports full. Empty values are rejected with ErrEmptyValue.
func (t *Tree) Put(key store.Key, val store.Value) (bool, error) {
	if len(val) == 0 {
		return false, ErrEmptyValue
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	if t.mem.IsFull() {
		if err := t.switchUnsafe(); err != nil {
			return false, fmt.Errorf("Switch buffer failed | err=[%w]", err)
		}
	}

	ok := t.mem.Put(key, val)
	if ok && t.metrics != nil {
		t.metrics.PutsTotal.Inc()
		t.metrics.MemBufferSizeBytes.Set(float64(t.mem.Size()))
	}
	return ok, nil
}

// Del inserts a tombstone for key. It returns true when the tombstone was
// accepted, regardless of whether key previously existed.
func (t *Tree) Del(key store.Key) (bool, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.mem.IsFull() {
		if err := t.switchUnsafe(); err != nil {
			return false, fmt.Errorf("Switch buffer failed | err=[%w]", err)
		}
	}

	ok := t.mem.Del(key)
	if ok && t.metrics != nil {
		t.metrics.DelsTotal.Inc()
		t.metrics.MemBufferSizeBytes.Set(float64(t.mem.Size()))
	}
	return ok, nil
}

// Get returns the value associated with key. Sources are searched in strict
// precedence order: the active buffer, the immutable buffer, then runs by
// decreasing level and within a level newest first. A tombstone hit anywhere
// is an authoritative miss.
func (t *Tree) Get(key store.Key) (store.Value, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	if t.metrics != nil {
		t.metrics.GetsTotal.Inc()
	}

	entry := t.findUnsafe(key)
	if entry == nil || entry.Tombstone() {
		if t.metrics != nil {
			t.metrics.ReadMissesTotal.Inc()
		}
		return "", false
	}
	return entry.Value, true
}

// Range returns all live records with startKey <= key <= endKey in ascending
// key order. For keys present in several sources the record from the newest
// source wins, matching the precedence of Get; tombstoned keys are elided.
func (t *Tree) Range(startKey store.Key, endKey store.Key) []*store.Entry {
	t.lock.RLock()
	defer t.lock.RUnlock()

	if t.metrics != nil {
		t.metrics.RangesTotal.Inc()
	}

	result := make([]*store.Entry, 0)
	if startKey > endKey {
		return result
	}

	newest := make(map[store.Key]*store.Entry)
	collect := func(entries []*store.Entry) {
		for _, entry := range entries {
			if _, seen := newest[entry.Key]; !seen {
				newest[entry.Key] = entry
			}
		}
	}

	// Sources in the same precedence order as the point-read path.
	collect(filterRange(t.mem.Entries(), startKey, endKey))
	if t.imm != nil {
		collect(filterRange(t.imm.Entries(), startKey, endKey))
	}
	keys := t.levels.Keys()
	for i := len(keys) - 1; i >= 0; i-- {
		runs := t.runsAtUnsafe(keys[i].(int))
		for j := len(runs) - 1; j >= 0; j-- {
			collect(runs[j].GetRange(startKey, endKey))
		}
	}

	for _, entry := range newest {
		if !entry.Tombstone() {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}

// Flush serializes the immutable buffer into a level-0 run and schedules
// compaction. It is a no-op when no immutable buffer exists.
func (t *Tree) Flush() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.flushUnsafe()
}

// MaybeCompact runs one compaction pass over all levels.
func (t *Tree) MaybeCompact() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.maybeCompactUnsafe()
}

// Close flushes all buffered writes so they survive the next Open.
func (t *Tree) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.imm != nil {
		if err := t.flushUnsafe(); err != nil {
			return err
		}
	}
	if t.mem.NumEntries() > 0 {
		t.imm = t.mem
		t.mem = memstore.New(t.budget)
		if err := t.flushUnsafe(); err != nil {
			return err
		}
	}
	t.logger.Info("Tree closed | rootdir=%v", t.rootdir)
	return nil
}

// findUnsafe searches all sources in precedence order and returns the first
// record found for key, tombstones included.
func (t *Tree) findUnsafe(key store.Key) *store.Entry {
	if entry := t.mem.Entry(key); entry != nil {
		return entry
	}
	if t.imm != nil {
		if entry := t.imm.Entry(key); entry != nil {
			return entry
		}
	}
	keys := t.levels.Keys()
	for i := len(keys) - 1; i >= 0; i-- {
		runs := t.runsAtUnsafe(keys[i].(int))
		for j := len(runs) - 1; j >= 0; j-- {
			if entry := runs[j].Get(key); entry != nil {
				return entry
			}
		}
	}
	return nil
}

// switchUnsafe moves the active buffer into the immutable slot and installs
// a fresh active buffer with the configured budget. A pending immutable
// buffer is flushed first so accepted writes are never dropped.
func (t *Tree) switchUnsafe() error {
	if t.imm != nil {
		if err := t.flushUnsafe(); err != nil {
			return err
		}
	}
	t.imm = t.mem
	t.mem = memstore.New(t.budget)
	t.logger.Debug("Buffer switched | immSize=%v", t.imm.Size())
	return nil
}

func (t *Tree) flushUnsafe() error {
	if t.imm == nil {
		return nil
	}

	entries := t.imm.Entries()
	if len(entries) == 0 {
		t.imm = nil
		return nil
	}

	run, err := filestore.New(t.logger.Level(), t.compactor.OutputPath(0), 0, entries)
	if err != nil {
		return fmt.Errorf("Flush buffer failed | err=[%w]", err)
	}
	t.addRunUnsafe(run)
	t.imm = nil

	t.logger.Info("Buffer flushed | path=%v | numRecords=%v | size=%v",
		run.Path(), run.NumRecords(), run.Size())
	if t.metrics != nil {
		t.metrics.FlushesTotal.Inc()
		t.updateGaugesUnsafe()
	}

	return t.maybeCompactUnsafe()
}

func (t *Tree) maybeCompactUnsafe() error {
	for _, k := range t.levels.Keys() {
		level := k.(int)
		runs := t.runsAtUnsafe(level)
		if !t.compactor.ShouldCompact(runs, level) {
			continue
		}

		numInputs := compaction.MaxInputRuns
		if len(runs) < numInputs {
			numInputs = len(runs)
		}
		inputs := runs[:numInputs]

		start := time.Now()
		output, err := t.compactor.Compact(inputs, level+1)
		if err != nil {
			return fmt.Errorf("Compact level failed | level=%v | err=[%w]", level, err)
		}

		remaining := make([]*filestore.Store, 0, len(runs)-numInputs)
		remaining = append(remaining, runs[numInputs:]...)
		t.levels.Put(level, remaining)
		t.addRunUnsafe(output)

		// Retire consumed inputs so a later Open does not reload merged data.
		for _, input := range inputs {
			if err := os.Remove(input.Path()); err != nil {
				t.logger.Warn("Remove retired run failed | path=%v | err=[%v]", input.Path(), err)
			}
		}

		if t.metrics != nil {
			t.metrics.CompactionsTotal.Inc()
			t.metrics.CompactionDuration.Observe(time.Since(start).Seconds())
			t.updateGaugesUnsafe()
		}
	}
	return nil
}

// loadRuns scans the base directory for run files left by a previous
// coordinator and registers them, oldest first within each level.
func (t *Tree) loadRuns() error {

	patterns := []string{
		filepath.Join(t.rootdir, "level-*", "*"+filestore.RunExt),
		filepath.Join(t.rootdir, "*"+filestore.RunExt),
	}
	paths := make([]string, 0)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("Glob run files failed | pattern=%v | err=[%w]", pattern, err)
		}
		paths = append(paths, matches...)
	}

	type runFile struct {
		path string
		mod  time.Time
	}
	files := make([]runFile, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("Stat run file failed | path=%v | err=[%w]", path, err)
		}
		files = append(files, runFile{path: path, mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].mod.Equal(files[j].mod) {
			return files[i].mod.Before(files[j].mod)
		}
		return files[i].path < files[j].path
	})

	for _, file := range files {
		run, err := filestore.Open(t.logger.Level(), file.path)
		if err != nil {
			return fmt.Errorf("Open run failed | path=%v | err=[%w]", file.path, err)
		}
		t.addRunUnsafe(run)
	}
	return nil
}

func (t *Tree) addRunUnsafe(run *filestore.Store) {
	t.levels.Put(run.Level(), append(t.runsAtUnsafe(run.Level()), run))
}

func (t *Tree) runsAtUnsafe(level int) []*filestore.Store {
	if v, found := t.levels.Get(level); found {
		return v.([]*filestore.Store)
	}
	return nil
}

func (t *Tree) numRunsUnsafe() int {
	total := 0
	for _, v := range t.levels.Values() {
		total += len(v.([]*filestore.Store))
	}
	return total
}

func (t *Tree) updateGaugesUnsafe() {
	if t.metrics == nil {
		return
	}
	t.metrics.MemBufferSizeBytes.Set(float64(t.mem.Size()))
	t.metrics.RunsTotal.Set(float64(t.numRunsUnsafe()))
}

// filterRange keeps the entries of a sorted list with startKey <= key <= endKey.
func filterRange(entries []*store.Entry, startKey store.Key, endKey store.Key) []*store.Entry {
	out := make([]*store.Entry, 0)
	for _, entry := range entries {
		if entry.Key < startKey {
			continue
		}
		if entry.Key > endKey {
			break
		}
		out = append(out, entry)
	}
	return out
}
