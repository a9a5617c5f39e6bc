// Package compaction merges sorted runs into larger runs at higher levels,
// resolving duplicate keys and eliding tombstones.
package compaction

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chuyangliu/lsmkv/pkg/logging"
	"github.com/chuyangliu/lsmkv/pkg/store"
	"github.com/chuyangliu/lsmkv/pkg/store/filestore"
)

const (
	// BaseLevelSize is the byte capacity of level 0.
	BaseLevelSize = store.KVLen(2 * 1024 * 1024)
	// LevelSizeMultiplier is the capacity growth factor between levels.
	LevelSizeMultiplier = 10
	// MaxInputRuns caps the number of runs consumed by one compaction.
	MaxInputRuns = 10
)

// CapacityOf returns the byte capacity of a level: 2 MiB * 10^level.
func CapacityOf(level int) store.KVLen {
	capacity := BaseLevelSize
	for i := 0; i < level; i++ {
		capacity *= LevelSizeMultiplier
	}
	return capacity
}

// Engine merges runs below a base directory.
type Engine struct {
	logger  *logging.Logger
	basedir string
}

// New instantiates an Engine writing output runs under basedir.
func New(logLevel int, basedir string) (*Engine, error) {
	if err := os.MkdirAll(basedir, 0755); err != nil {
		return nil, fmt.Errorf("Create base directory failed | basedir=%v | err=[%w]", basedir, err)
	}
	return &Engine{
		logger:  logging.New(logLevel),
		basedir: basedir,
	}, nil
}

// ShouldCompact returns whether the total size of runs exceeds the capacity
// of the level.
func (e *Engine) ShouldCompact(runs []*filestore.Store, level int) bool {
	if len(runs) == 0 {
		return false
	}
	total := store.KVLen(0)
	for _, run := range runs {
		total += run.Size()
	}
	return total > CapacityOf(level)
}

// Compact merges inputs, ordered oldest first, into a single run written at
// outputLevel. For duplicate keys the record from the newest input wins.
// Tombstones at the tail of the merged sequence are dropped; interior
// tombstones are kept so they continue to shadow older runs.
func (e *Engine) Compact(inputs []*filestore.Store, outputLevel int) (*filestore.Store, error) {

	type taggedEntry struct {
		entry *store.Entry
		src   int // input position, larger is newer
	}

	// Collect every record of every input.
	pool := make([]taggedEntry, 0)
	for i, run := range inputs {
		for _, entry := range run.GetRange(run.SmallestKey(), run.LargestKey()) {
			pool = append(pool, taggedEntry{entry: entry, src: i})
		}
	}

	// Sort by key, breaking ties by input recency so the newest record of
	// each key sorts last.
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].entry.Key != pool[j].entry.Key {
			return pool[i].entry.Key < pool[j].entry.Key
		}
		return pool[i].src < pool[j].src
	})

	// Deduplicate, keeping the last record of each equal-key group.
	merged := make([]*store.Entry, 0, len(pool))
	for _, tagged := range pool {
		if len(merged) > 0 && merged[len(merged)-1].Key == tagged.entry.Key {
			merged[len(merged)-1] = tagged.entry
		} else {
			merged = append(merged, tagged.entry)
		}
	}

	// Trim the trailing tombstone suffix.
	for len(merged) > 0 && merged[len(merged)-1].Tombstone() {
		merged = merged[:len(merged)-1]
	}

	output, err := filestore.New(e.logger.Level(), e.OutputPath(outputLevel), outputLevel, merged)
	if err != nil {
		return nil, fmt.Errorf("Write compacted run failed | outputLevel=%v | err=[%w]", outputLevel, err)
	}

	e.logger.Info("Compaction done | inputs=%v | records=%v | merged=%v | outputLevel=%v | output=%v",
		len(inputs), len(pool), len(merged), outputLevel, output.Path())
	return output, nil
}

// OutputPath generates a fresh run path at the given level.
func (e *Engine) OutputPath(level int) string {
	name := fmt.Sprintf("sstable-%v%v", time.Now().UnixNano(), filestore.RunExt)
	return filepath.Join(e.basedir, fmt.Sprintf("level-%v", level), name)
}
