package treemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntKeyed(t *testing.T) {
	m := NewIntKeyed()

	m.Put(2, "two")
	m.Put(0, "zero")
	m.Put(1, "one")

	if !assert.Equal(t, 3, m.Size()) {
		panic(nil)
	}

	// Keys iterate in ascending order.
	if !assert.Equal(t, []interface{}{0, 1, 2}, m.Keys()) {
		panic(nil)
	}
	if !assert.Equal(t, []interface{}{"zero", "one", "two"}, m.Values()) {
		panic(nil)
	}

	v, found := m.Get(1)
	if !assert.True(t, found) || !assert.Equal(t, "one", v) {
		panic(nil)
	}
	_, found = m.Get(5)
	if !assert.False(t, found) {
		panic(nil)
	}

	// Put replaces existing keys.
	m.Put(1, "ONE")
	v, _ = m.Get(1)
	if !assert.Equal(t, "ONE", v) {
		panic(nil)
	}
	if !assert.Equal(t, 3, m.Size()) {
		panic(nil)
	}
}
