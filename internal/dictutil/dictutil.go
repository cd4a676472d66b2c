// Package dictutil reads values out of loosely typed JSON mappings without
// panicking on missing keys or unexpected types.
package dictutil

import (
	"reflect"

	"github.com/duke-git/lancet/v2/maputil"
	"github.com/duke-git/lancet/v2/slice"
)

// Lookup returns the value stored under key and whether it was present.
// A nil map behaves like an empty one.
func Lookup(m map[string]any, key string) (any, bool) {
	if m == nil || !maputil.HasKey(m, key) {
		return nil, false
	}
	return m[key], true
}

// StringOr returns m[key] when it is a string, fallback otherwise.
func StringOr(m map[string]any, key, fallback string) string {
	v, ok := Lookup(m, key)
	if !ok {
		return fallback
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

// FindByKeyValue returns the first mapping in items whose key equals value.
// An empty, non-nil map is returned when nothing matches.
func FindByKeyValue(items []map[string]any, key string, value any) map[string]any {
	match, ok := slice.FindBy(items, func(_ int, item map[string]any) bool {
		v, present := Lookup(item, key)
		return present && reflect.DeepEqual(v, value)
	})
	if !ok {
		return map[string]any{}
	}
	return match
}
