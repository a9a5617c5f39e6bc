// Package filter implements the probabilistic membership filter attached to
// each sorted run. A filter answers "definitely absent" or "maybe present"
// for a key, letting point reads skip file I/O on most misses.
package filter

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/chuyangliu/lsmkv/pkg/store"
)

const (
	// DefaultNumHashes is the number of hash functions used by run filters.
	DefaultNumHashes = 3
	// DefaultBitsPerKey is the number of filter bits allocated per record.
	DefaultBitsPerKey = 10

	blockBits  = 64
	headerSize = 16 // hash count (u64) + block count (u64)
	hashBasis  = 5381
)

// Filter is a bloom filter over keys. Bits are kept in 64-bit blocks so the
// in-memory layout matches the serialized one.
type Filter struct {
	bits      *bitset.BitSet
	numBits   uint64 // always a multiple of blockBits
	numHashes uint64
}

// New instantiates an empty Filter with numBits bits (rounded up to a
// multiple of 64) and numHashes hash functions.
func New(numBits uint64, numHashes uint64) *Filter {
	numBlocks := (numBits + blockBits - 1) / blockBits
	if numBlocks == 0 {
		numBlocks = 1
	}
	return &Filter{
		bits:      bitset.New(uint(numBlocks * blockBits)),
		numBits:   numBlocks * blockBits,
		numHashes: numHashes,
	}
}

// NewForRecords instantiates a Filter sized for numRecords keys using the
// default parameters.
func NewForRecords(numRecords int) *Filter {
	return New(uint64(numRecords)*DefaultBitsPerKey, DefaultNumHashes)
}

// Add marks key as present.
func (f *Filter) Add(key store.Key) {
	for i := uint64(0); i < f.numHashes; i++ {
		f.bits.Set(uint(f.hash(key, i) % f.numBits))
	}
}

// MightContain returns false only if key was never added.
func (f *Filter) MightContain(key store.Key) bool {
	for i := uint64(0); i < f.numHashes; i++ {
		if !f.bits.Test(uint(f.hash(key, i) % f.numBits)) {
			return false
		}
	}
	return true
}

// NumBits returns the size of the bit array.
func (f *Filter) NumBits() uint64 {
	return f.numBits
}

// NumHashes returns the number of hash functions.
func (f *Filter) NumHashes() uint64 {
	return f.numHashes
}

// Serialize encodes the filter: hash count, block count, then each 64-bit
// block, all little-endian.
func (f *Filter) Serialize() []byte {
	blocks := f.bits.Bytes()
	buf := make([]byte, headerSize+len(blocks)*8)
	binary.LittleEndian.PutUint64(buf[0:8], f.numHashes)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(blocks)))
	for i, block := range blocks {
		binary.LittleEndian.PutUint64(buf[headerSize+i*8:], block)
	}
	return buf
}

// Deserialize reconstructs a Filter from the output of Serialize.
// The result answers MightContain identically to the serialized filter.
func Deserialize(data []byte) (*Filter, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("Filter data truncated | size=%v", len(data))
	}
	numHashes := binary.LittleEndian.Uint64(data[0:8])
	numBlocks := binary.LittleEndian.Uint64(data[8:16])
	if uint64(len(data)) < headerSize+numBlocks*8 {
		return nil, fmt.Errorf("Filter blocks truncated | size=%v | numBlocks=%v", len(data), numBlocks)
	}
	blocks := make([]uint64, numBlocks)
	for i := range blocks {
		blocks[i] = binary.LittleEndian.Uint64(data[headerSize+i*8:])
	}
	return &Filter{
		bits:      bitset.From(blocks),
		numBits:   numBlocks * blockBits,
		numHashes: numHashes,
	}, nil
}

// hash derives the seed-th hash of key: a DJB2-style rolling hash where the
// function index is folded into every step.
func (f *Filter) hash(key store.Key, seed uint64) uint64 {
	h := uint64(hashBasis)
	for i := 0; i < len(key); i++ {
		h = h*33 + uint64(key[i]) + seed
	}
	return h
}
