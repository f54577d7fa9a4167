// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package xmaps

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSorted(t *testing.T) {
	m := map[string]int{"vendor": 2, "art": 3, "system": 1}
	var gotKeys []string
	var gotValues []int
	for k, v := range Sorted(m) {
		gotKeys = append(gotKeys, k)
		gotValues = append(gotValues, v)
	}
	if diff := cmp.Diff([]string{"art", "system", "vendor"}, gotKeys); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3, 1, 2}, gotValues); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
	for range Sorted(map[string]int(nil)) {
		t.Error("Sorted(nil) yielded a value")
	}
}
