// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package apisurface

import (
	"fmt"
	"maps"
	"strconv"

	jsonv2 "github.com/go-json-experiment/json"
)

// DefaultPreviewBase is the API level of the first in-development codename.
// Released API levels never reach it.
const DefaultPreviewBase = 9000

// CurrentVersion is the symbolic API level of the in-development API.
const CurrentVersion = "current"

// APILevels is the table of platform API levels.
type APILevels struct {
	// Released maps the codename of each released platform version
	// to its API level.
	Released map[string]int `json:"released"`
	// ActiveCodenames is the list of in-development codenames.
	// The i'th codename maps to PreviewBase+i.
	ActiveCodenames []string `json:"activeCodenames"`
	// PreviewBase is the API level of ActiveCodenames[0].
	// Zero means [DefaultPreviewBase].
	PreviewBase int `json:"previewBase,omitzero"`
	// Current is the in-development API level.
	// Versioned stub libraries are generated for every level below it.
	Current int `json:"current"`
}

// DefaultAPILevels returns the built-in API level table.
func DefaultAPILevels() *APILevels {
	return &APILevels{
		Released: map[string]int{
			"G":        9,
			"I":        14,
			"J":        16,
			"J-MR1":    17,
			"J-MR2":    18,
			"K":        19,
			"L":        21,
			"L-MR1":    22,
			"M":        23,
			"N":        24,
			"N-MR1":    25,
			"O":        26,
			"O-MR1":    27,
			"P":        28,
			"Q":        29,
			"R":        30,
			"S":        31,
			"S-V2":     32,
			"Tiramisu": 33,
		},
		ActiveCodenames: []string{"UpsideDownCake"},
		PreviewBase:     DefaultPreviewBase,
		Current:         34,
	}
}

// Validate reports whether the table is consistent.
func (l *APILevels) Validate() error {
	if l.Current <= 0 {
		return fmt.Errorf("api levels: current level must be positive")
	}
	base := l.previewBase()
	for name, level := range l.Released {
		if level <= 0 || level >= base {
			return fmt.Errorf("api levels: %s = %d out of range (0, %d)", name, level, base)
		}
	}
	for _, name := range l.ActiveCodenames {
		if _, dup := l.Released[name]; dup {
			return fmt.Errorf("api levels: %s is both released and active", name)
		}
	}
	return nil
}

func (l *APILevels) previewBase() int {
	if l.PreviewBase == 0 {
		return DefaultPreviewBase
	}
	return l.PreviewBase
}

// Map returns the mapping from codename to API level,
// including active codenames.
func (l *APILevels) Map() map[string]int {
	m := maps.Clone(l.Released)
	if m == nil {
		m = make(map[string]int)
	}
	for i, name := range l.ActiveCodenames {
		m[name] = l.previewBase() + i
	}
	return m
}

// Level returns the API level of the given codename.
func (l *APILevels) Level(codename string) (_ int, ok bool) {
	level, ok := l.Map()[codename]
	return level, ok
}

// Versions returns the API levels stub libraries of versioned surfaces are generated for:
// every level from 1 up to, but not including, the current level,
// then [CurrentVersion].
func (l *APILevels) Versions() []string {
	versions := make([]string, 0, l.Current)
	for i := 1; i < l.Current; i++ {
		versions = append(versions, strconv.Itoa(i))
	}
	return append(versions, CurrentVersion)
}

// MarshalMap returns the JSON document that maps each codename to its API level
// with keys in sorted order.
func (l *APILevels) MarshalMap() ([]byte, error) {
	return jsonv2.Marshal(l.Map(), jsonv2.Deterministic(true))
}
