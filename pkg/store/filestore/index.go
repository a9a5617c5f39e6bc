package filestore

import (
	"github.com/chuyangliu/lsmkv/pkg/store"
)

// indexEntry locates one record inside a run file.
type indexEntry struct {
	key    store.Key
	off    store.KVLen // offset from the start of the file
	length store.KVLen // record length: key_len + value_len + 8
}

// runIndex stores one indexEntry per record in ascending key order.
type runIndex struct {
	entries []*indexEntry
}

// newRunIndex creates an empty runIndex.
func newRunIndex() *runIndex {
	return &runIndex{entries: make([]*indexEntry, 0)}
}

// empty returns whether the index has no entries.
func (ri *runIndex) empty() bool {
	return len(ri.entries) == 0
}

// size returns the number of indexed records.
func (ri *runIndex) size() int {
	return len(ri.entries)
}

// first returns the first entry of the index.
func (ri *runIndex) first() *indexEntry {
	return ri.entries[0]
}

// last returns the last entry of the index.
func (ri *runIndex) last() *indexEntry {
	return ri.entries[len(ri.entries)-1]
}

// add appends an entry to the index.
func (ri *runIndex) add(entry *indexEntry) {
	ri.entries = append(ri.entries, entry)
}

// lowerBound returns the position of the first entry whose key is >= key,
// or len(entries) if no such entry exists.
func (ri *runIndex) lowerBound(key store.Key) int {
	lo, hi := 0, len(ri.entries)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if ri.entries[mid].key < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the position of the first entry whose key is > key,
// or len(entries) if no such entry exists.
func (ri *runIndex) upperBound(key store.Key) int {
	lo, hi := 0, len(ri.entries)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if ri.entries[mid].key <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
