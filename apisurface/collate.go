// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package apisurface

import (
	"cmp"
	"slices"
	"strconv"

	"zb.256lights.llc/multitree/workspace"
)

// StubLibraryKey identifies a [StubLibrary].
type StubLibraryKey struct {
	Language Language
	Surface  string
	Version  string
	Name     string
}

func (k StubLibraryKey) compare(k2 StubLibraryKey) int {
	return cmp.Or(
		cmp.Compare(k.Language, k2.Language),
		cmp.Compare(k.Surface, k2.Surface),
		cmp.Compare(k.Version, k2.Version),
		cmp.Compare(k.Name, k2.Name),
	)
}

// PhonyName returns the name of the phony target that assembles the library.
func (k StubLibraryKey) PhonyName() string {
	return k.Surface + "-" + k.Version + "-" + k.Name
}

// StubLibrary is a library of an API surface version
// assembled from every workspace that contributes to it.
type StubLibrary struct {
	StubLibraryKey
	Contributions []*Contribution
}

// Contribution is a single workspace's contribution to a [StubLibrary].
type Contribution struct {
	Workspace *workspace.Workspace
	Domain    string
	Library   *Library
	// Filename is the descriptor the contribution was read from.
	Filename string
}

func (c *Contribution) compare(c2 *Contribution) int {
	var k1, k2 workspace.Key
	if c.Workspace != nil {
		k1 = c.Workspace.Key()
	}
	if c2.Workspace != nil {
		k2 = c2.Workspace.Key()
	}
	return cmp.Or(
		k1.Compare(k2),
		cmp.Compare(c.Domain, c2.Domain),
		cmp.Compare(c.Library.API, c2.Library.API),
		cmp.Compare(c.Filename, c2.Filename),
	)
}

// Collate groups the libraries of the given descriptors into stub libraries
// by language, API surface, surface version, and library name.
// The result does not depend on the order of descriptors:
// stub libraries are sorted by key
// and each library's contributions are sorted by workspace, domain, API file, and descriptor file.
func Collate(descriptors []*Descriptor) []*StubLibrary {
	grouped := make(map[StubLibraryKey]*StubLibrary)
	for _, d := range descriptors {
		for _, lang := range Languages {
			for _, lib := range d.Libraries(lang) {
				k := StubLibraryKey{
					Language: lang,
					Surface:  d.Name,
					Version:  strconv.Itoa(d.Version),
					Name:     lib.Name,
				}
				sl := grouped[k]
				if sl == nil {
					sl = &StubLibrary{StubLibraryKey: k}
					grouped[k] = sl
				}
				sl.Contributions = append(sl.Contributions, &Contribution{
					Workspace: d.Workspace,
					Domain:    d.Domain,
					Library:   lib,
					Filename:  d.Filename,
				})
			}
		}
	}

	result := make([]*StubLibrary, 0, len(grouped))
	for _, sl := range grouped {
		slices.SortStableFunc(sl.Contributions, (*Contribution).compare)
		result = append(result, sl)
	}
	slices.SortFunc(result, func(sl1, sl2 *StubLibrary) int {
		return sl1.StubLibraryKey.compare(sl2.StubLibraryKey)
	})
	return result
}
