// Package memstore implements the in-memory write buffer of the LSM tree.
package memstore

import (
	"sync"

	"github.com/chuyangliu/lsmkv/pkg/store"
	"github.com/chuyangliu/lsmkv/pkg/store/skiplist"
)

// DefaultBudget is the default byte budget of a buffer.
const DefaultBudget = store.KVLen(64 * 1024 * 1024)

// Store buffers key-value data in memory until it is flushed to a sorted run.
//
// The charged size only ever grows: updates and tombstones are charged in
// full and never refund previously charged bytes. A buffer whose size reached
// its budget rejects further writes and is expected to be switched out.
type Store struct {
	data   *skiplist.List // entries in ascending key order
	budget store.KVLen    // byte budget
	size   store.KVLen    // charged bytes, monotonically non-decreasing
	lock   sync.RWMutex
}

// New instantiates an empty Store with the given byte budget.
func New(budget store.KVLen) *Store {
	return &Store{
		data:   skiplist.New(),
		budget: budget,
	}
}

// Put adds or updates a key-value pair. It returns false without mutating
// the store when the buffer is full or accepting the record would exceed the
// budget.
func (s *Store) Put(key store.Key, val store.Value) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	entry := store.Entry{
		Key:    key,
		Value:  val,
		Status: store.StatusPut,
	}
	return s.insertUnsafe(entry)
}

// Del inserts a tombstone for key. Rejection rules match Put.
func (s *Store) Del(key store.Key) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	entry := store.Entry{
		Key:    key,
		Value:  "",
		Status: store.StatusDel,
	}
	return s.insertUnsafe(entry)
}

// Get returns the value associated with key. The second return value is true
// iff a record exists and is not a tombstone.
func (s *Store) Get(key store.Key) (store.Value, bool) {
	entry := s.Entry(key)
	if entry == nil || entry.Tombstone() {
		return "", false
	}
	return entry.Value, true
}

// Entry returns a copy of the record stored for key, including tombstones,
// or nil if no record exists.
func (s *Store) Entry(key store.Key) *store.Entry {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.Get(key)
}

// IsFull returns whether the charged size reached the budget.
func (s *Store) IsFull() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.size >= s.budget
}

// Size returns the charged size in bytes.
func (s *Store) Size() store.KVLen {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.size
}

// Budget returns the byte budget.
func (s *Store) Budget() store.KVLen {
	return s.budget
}

// NumEntries returns the number of buffered records, tombstones included.
func (s *Store) NumEntries() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.Size()
}

// Entries returns all buffered records sorted by key, tombstones included.
func (s *Store) Entries() []*store.Entry {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.Entries()
}

func (s *Store) insertUnsafe(entry store.Entry) bool {
	if s.size >= s.budget {
		return false
	}
	if s.size+entry.Size() > s.budget {
		return false
	}
	s.data.Insert(entry)
	s.size += entry.Size()
	return true
}
