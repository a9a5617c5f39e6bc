package filter

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/chuyangliu/lsmkv/pkg/store"
)

func TestBasic(t *testing.T) {
	max := 1000
	f := NewForRecords(max)

	for i := 0; i < max; i++ {
		f.Add(store.Key(strconv.Itoa(i)))
	}

	// No false negatives.
	for i := 0; i < max; i++ {
		if !assert.True(t, f.MightContain(store.Key(strconv.Itoa(i)))) {
			panic(nil)
		}
	}

	// Most absent keys report absent.
	misses := 0
	for i := 0; i < max; i++ {
		if !f.MightContain(store.Key(fmt.Sprintf("absent-%v", i))) {
			misses++
		}
	}
	if !assert.Greater(t, misses, max/2) {
		panic(nil)
	}
}

func TestBitSizing(t *testing.T) {
	// Bit counts round up to a multiple of 64.
	if !assert.Equal(t, uint64(64), New(1, 3).NumBits()) {
		panic(nil)
	}
	if !assert.Equal(t, uint64(64), New(64, 3).NumBits()) {
		panic(nil)
	}
	if !assert.Equal(t, uint64(128), New(65, 3).NumBits()) {
		panic(nil)
	}
	// Even an empty filter keeps one block.
	if !assert.Equal(t, uint64(64), New(0, 3).NumBits()) {
		panic(nil)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	f := New(1024, DefaultNumHashes)
	keys := []store.Key{"alpha", "beta", "gamma", "", "\x00\xff"}
	for _, k := range keys {
		f.Add(k)
	}

	restored, err := Deserialize(f.Serialize())
	if !assert.NoError(t, err) {
		panic(nil)
	}
	if !assert.Equal(t, f.NumBits(), restored.NumBits()) {
		panic(nil)
	}
	if !assert.Equal(t, f.NumHashes(), restored.NumHashes()) {
		panic(nil)
	}

	for _, k := range keys {
		if !assert.True(t, restored.MightContain(k)) {
			panic(nil)
		}
	}
	probes := []store.Key{"delta", "epsilon", "zeta", "eta", "theta"}
	for _, k := range probes {
		if !assert.Equal(t, f.MightContain(k), restored.MightContain(k)) {
			panic(nil)
		}
	}
}

func TestDeserializeTruncated(t *testing.T) {
	f := New(256, DefaultNumHashes)
	f.Add("k1")
	data := f.Serialize()

	if _, err := Deserialize(data[:8]); !assert.Error(t, err) {
		panic(nil)
	}
	if _, err := Deserialize(data[:len(data)-1]); !assert.Error(t, err) {
		panic(nil)
	}
}

func TestRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	properties.Property("deserialize(serialize(f)) answers identically", prop.ForAll(
		func(added []string, probes []string) bool {
			f := NewForRecords(len(added))
			for _, k := range added {
				f.Add(store.Key(k))
			}
			restored, err := Deserialize(f.Serialize())
			if err != nil {
				return false
			}
			for _, k := range added {
				if !restored.MightContain(store.Key(k)) {
					return false
				}
			}
			for _, k := range probes {
				if f.MightContain(store.Key(k)) != restored.MightContain(store.Key(k)) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}
