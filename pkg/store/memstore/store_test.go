package memstore

import (
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chuyangliu/lsmkv/pkg/store"
)

func TestBasic(t *testing.T) {
	max := 1000
	sizeMeta := store.EntryMetaSize * store.KVLen(max)
	sizeKV := store.KVLen(0)

	// Create data.
	data := make([]string, max)
	for i := 0; i < max; i++ {
		data[i] = strconv.Itoa(i)
		sizeKV += store.KVLen(len(data[i]))
	}
	sort.Strings(data)

	s := New(DefaultBudget)

	// Put.
	for _, v := range data {
		if !assert.True(t, s.Put(store.Key(v), store.Value(v))) {
			panic(nil)
		}
	}

	// Size.
	if !assert.Equal(t, sizeMeta+sizeKV*2, s.Size()) {
		panic(nil)
	}

	// Get.
	for _, v := range data {
		val, found := s.Get(store.Key(v))
		if !assert.True(t, found) || !assert.Equal(t, store.Value(v), val) {
			panic(nil)
		}
	}

	// Get all.
	for i, entry := range s.Entries() {
		entryExpect := store.Entry{
			Key:    store.Key(data[i]),
			Value:  store.Value(data[i]),
			Status: store.StatusPut,
		}
		if !assert.Equal(t, entryExpect, *entry) {
			panic(nil)
		}
	}
}

func TestTombstone(t *testing.T) {
	s := New(DefaultBudget)

	if !assert.True(t, s.Put("k1", "v1")) {
		panic(nil)
	}
	if !assert.True(t, s.Del("k1")) {
		panic(nil)
	}

	// Tombstones miss on Get but remain visible as entries.
	if _, found := s.Get("k1"); !assert.False(t, found) {
		panic(nil)
	}
	entry := s.Entry("k1")
	if !assert.NotNil(t, entry) || !assert.True(t, entry.Tombstone()) {
		panic(nil)
	}
	if !assert.Equal(t, 1, s.NumEntries()) {
		panic(nil)
	}

	// Deleting an absent key still records a tombstone.
	if !assert.True(t, s.Del("k2")) {
		panic(nil)
	}
	entry = s.Entry("k2")
	if !assert.NotNil(t, entry) || !assert.True(t, entry.Tombstone()) {
		panic(nil)
	}
}

func TestSizeMonotonic(t *testing.T) {
	s := New(DefaultBudget)

	if !assert.True(t, s.Put("key", "value")) {
		panic(nil)
	}
	sizePut := store.EntryMetaSize + store.KVLen(len("key")+len("value"))
	if !assert.Equal(t, sizePut, s.Size()) {
		panic(nil)
	}

	// Updates charge again instead of replacing the previous charge.
	if !assert.True(t, s.Put("key", "v2")) {
		panic(nil)
	}
	sizeUpdate := sizePut + store.EntryMetaSize + store.KVLen(len("key")+len("v2"))
	if !assert.Equal(t, sizeUpdate, s.Size()) {
		panic(nil)
	}

	// Tombstones charge key length plus metadata.
	if !assert.True(t, s.Del("key")) {
		panic(nil)
	}
	sizeDel := sizeUpdate + store.EntryMetaSize + store.KVLen(len("key"))
	if !assert.Equal(t, sizeDel, s.Size()) {
		panic(nil)
	}

	// One logical record remains despite three charges.
	if !assert.Equal(t, 1, s.NumEntries()) {
		panic(nil)
	}
}

func TestBudget(t *testing.T) {
	// Budget fits exactly one "k1"/"v1" record (2+2+8 bytes).
	s := New(store.KVLen(12))

	if !assert.False(t, s.IsFull()) {
		panic(nil)
	}

	// A record that would exceed the budget is rejected without mutation.
	if !assert.False(t, s.Put("k1", "longvalue")) {
		panic(nil)
	}
	if !assert.Equal(t, store.KVLen(0), s.Size()) {
		panic(nil)
	}
	if !assert.Equal(t, 0, s.NumEntries()) {
		panic(nil)
	}

	if !assert.True(t, s.Put("k1", "v1")) {
		panic(nil)
	}
	if !assert.True(t, s.IsFull()) {
		panic(nil)
	}

	// A full buffer rejects every further write.
	if !assert.False(t, s.Put("k2", "v2")) {
		panic(nil)
	}
	if !assert.False(t, s.Del("k1")) {
		panic(nil)
	}
	if !assert.Equal(t, store.KVLen(12), s.Size()) {
		panic(nil)
	}
}
