// Package mapsx provides small generic map helpers used by the cache layer.
package mapsx

import "sort"

// Keys extracts keys from a map into a slice with pre-allocated capacity.
func Keys[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// SortedKeys returns the map's string keys in ascending order.
// Pipelined field writes iterate in this order so that the command
// sequence sent to the store is deterministic.
func SortedKeys[V any](m map[string]V) []string {
	keys := Keys(m)
	sort.Strings(keys)
	return keys
}

// Values extracts values from a map into a slice with pre-allocated capacity.
func Values[K comparable, V any](m map[K]V) []V {
	values := make([]V, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	return values
}
