package dictutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	m := map[string]any{"key1": "value1", "key3": "value3"}

	v, ok := Lookup(m, "key3")
	assert.True(t, ok)
	assert.Equal(t, "value3", v)

	_, ok = Lookup(m, "key2")
	assert.False(t, ok)

	_, ok = Lookup(nil, "key1")
	assert.False(t, ok)
}

func TestTypedReads(t *testing.T) {
	m := map[string]any{
		"name":    "imd",
		"retries": 3,
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string present", StringOr(m, "name", "x"), "imd"},
		{"string wrong type", StringOr(m, "retries", "x"), "x"},
		{"string missing", StringOr(m, "missing", "x"), "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestFindByKeyValue(t *testing.T) {
	items := []map[string]any{
		{"key1": "value1"},
		{"key2": "value2"},
		{"key3": "value3"},
	}

	assert.Equal(t, items[1], FindByKeyValue(items, "key2", "value2"))
	assert.Equal(t, map[string]any{}, FindByKeyValue(items, "key4", "value4"))
	assert.Equal(t, map[string]any{}, FindByKeyValue(nil, "key1", "value1"))
}
