// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package xmaps provides deterministic iteration over maps,
// used wherever map contents end up in generated files.
package xmaps

import (
	"cmp"
	"iter"
	"maps"
	"slices"
)

// SortedKeys returns a slice of the map's keys in sorted order.
func SortedKeys[M ~map[K]V, K cmp.Ordered, V any](m M) []K {
	return slices.Sorted(maps.Keys(m))
}

// Sorted iterates over a map in key order.
func Sorted[M ~map[K]V, K cmp.Ordered, V any](m M) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, k := range SortedKeys(m) {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}
