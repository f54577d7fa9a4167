// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package workspace

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Key identifies a unique buildable workspace:
// a primary source root, zero or more overlay roots ("melds"),
// and an optional product.
// Keys are comparable with == and can be used as map keys.
// The zero value is not a valid key.
type Key struct {
	root string
	// melds is the overlay list joined with keyMeldSep.
	melds   string
	product string
}

const keyMeldSep = "\x00"

// NewKey returns the key for the given paths and product.
// paths[0] is the primary root and paths[1:] are the overlay roots,
// all relative to the outer tree root.
// An empty product means the workspace is built without one.
// NewKey panics if len(paths) == 0.
func NewKey(paths []string, product string) Key {
	return Key{
		root:    paths[0],
		melds:   strings.Join(paths[1:], keyMeldSep),
		product: product,
	}
}

// Root returns the primary root of the workspace.
func (k Key) Root() string {
	return k.root
}

// Melds returns the overlay roots of the workspace in order.
func (k Key) Melds() []string {
	if k.melds == "" {
		return nil
	}
	return strings.Split(k.melds, keyMeldSep)
}

// Product returns the product the workspace is built for
// or the empty string if none.
func (k Key) Product() string {
	return k.product
}

// Compare returns -1, 0, or 1 if k sorts before, the same as, or after k2.
// Keys are ordered by root, then by overlay list, then by product.
// A key without a product sorts before any key with a product.
func (k Key) Compare(k2 Key) int {
	return cmp.Or(
		cmp.Compare(k.root, k2.root),
		slices.Compare(k.Melds(), k2.Melds()),
		cmp.Compare(k.product, k2.product),
	)
}

// String formats the key for diagnostics.
func (k Key) String() string {
	sb := new(strings.Builder)
	sb.WriteString(k.root)
	for _, m := range k.Melds() {
		sb.WriteString("+")
		sb.WriteString(m)
	}
	if k.product == "" {
		sb.WriteString(" (unbundled)")
	} else {
		fmt.Fprintf(sb, " (%s)", k.product)
	}
	return sb.String()
}
