// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package workspace

import (
	"fmt"
	"path/filepath"
)

// Base selects which directory an output path is relative to.
type Base int8

const (
	// Origin paths are relative to the real output directory.
	// Use them for paths consumed outside any sandbox.
	Origin Base = 1 + iota
	// Outer paths are relative to the outer tree root.
	// Use them for paths consumed inside the outer sandbox.
	Outer
	// Inner paths are relative to a workspace's root.
	// Use them for paths consumed inside that workspace's sandbox.
	Inner
)

// String returns the base's name.
func (b Base) String() string {
	switch b {
	case Origin:
		return "origin"
	case Outer:
		return "outer"
	case Inner:
		return "inner"
	default:
		return fmt.Sprintf("Base(%d)", int8(b))
	}
}

// MappedOutDir is the directory the output directory is mounted at,
// relative to the root it is mounted into.
const MappedOutDir = "out"

// Files and directories in the outer output directory.
const (
	APISurfacesDir       = "api_surfaces"
	APISurfacesNinjaFile = "api_surfaces.ninja"
	OuterNinjaFile       = "multitree.ninja"
	StagingDir           = "staging"
	DistDir              = "dist"
	SharedDir            = "shared"
	TreesDir             = "trees"
	IntermediatesDir     = "intermediates"
	SandboxConfigFile    = "nsjail.cfg"
	MetricsFile          = "multitree.prom"
)

// PublishedAPISurfacesDir is where the assembled API surfaces are mounted
// relative to the root of every tree.
var PublishedAPISurfacesDir = filepath.Join("platform", APISurfacesDir)

// OutDir is the layout of the outer output directory.
type OutDir struct {
	top    string
	origin string
}

// NewOutDir returns the layout of an output directory.
// top is the absolute path to the outer tree root.
// origin is the real output directory,
// either absolute or relative to top.
func NewOutDir(top, origin string) (*OutDir, error) {
	if !filepath.IsAbs(top) {
		return nil, fmt.Errorf("outer tree root %q is not absolute", top)
	}
	if origin == "" {
		origin = MappedOutDir
	}
	return &OutDir{
		top:    filepath.Clean(top),
		origin: filepath.Clean(origin),
	}, nil
}

// Top returns the absolute path to the outer tree root.
func (o *OutDir) Top() string {
	return o.top
}

// Path joins elem to the output directory as seen from base.
// [Inner] is not a valid base for the outer output directory.
func (o *OutDir) Path(base Base, elem ...string) string {
	switch base {
	case Origin:
		return filepath.Join(append([]string{o.origin}, elem...)...)
	case Outer:
		return filepath.Join(append([]string{MappedOutDir}, elem...)...)
	default:
		panic(fmt.Sprintf("invalid base %v for outer output directory", base))
	}
}

// Abs is like [OutDir.Path] but returns an absolute path.
func (o *OutDir) Abs(base Base, elem ...string) string {
	return abs(o.top, o.Path(base, elem...))
}

// InnerTreeDir returns the output directory for a workspace
// relative to the outer output directory.
func InnerTreeDir(root, product string) string {
	if product == "" {
		product = "unbundled"
	}
	return filepath.Join(TreesDir, root+"_"+product)
}

// APILibraryDir returns the published directory of a stub library
// relative to the outer output directory.
func APILibraryDir(surface, version, library string) string {
	return filepath.Join(APISurfacesDir, surface, version, library)
}

// APISurfacesWorkDir returns the intermediates directory for API surface assembly
// relative to the outer output directory.
func APISurfacesWorkDir(elem ...string) string {
	return filepath.Join(append([]string{IntermediatesDir, APISurfacesDir}, elem...)...)
}

// APILibraryWorkDir returns the intermediates directory for a stub library
// relative to the outer output directory.
func APILibraryWorkDir(surface, version, library string) string {
	return APISurfacesWorkDir(surface, version, library)
}

// ModuleShareDir returns the directory shared modules of a type are copied to
// relative to the outer output directory.
func ModuleShareDir(moduleType, name string) string {
	return filepath.Join(SharedDir, moduleType, name)
}

// Files in a workspace's output directory.
const (
	APIContributionsDir = "api_contributions"
	BuildTargetsFile    = "build_targets.json"
	InnerNinjaFile      = "inner_tree.ninja"
	TreeInfoFile        = "tree_info.json"
	TreeQueryFile       = "tree_query.json"
)

// Layout is the layout of a workspace's output directory.
type Layout struct {
	top    string
	root   string
	origin string
}

// Path joins elem to the workspace's output directory as seen from base.
func (l *Layout) Path(base Base, elem ...string) string {
	var dir string
	switch base {
	case Origin:
		dir = l.origin
	case Outer:
		dir = filepath.Join(l.root, MappedOutDir)
	case Inner:
		dir = MappedOutDir
	default:
		panic(fmt.Sprintf("invalid base %v", base))
	}
	return filepath.Join(append([]string{dir}, elem...)...)
}

// Abs is like [Layout.Path] but returns an absolute path.
// [Inner] paths are resolved against the workspace's root.
func (l *Layout) Abs(base Base, elem ...string) string {
	p := l.Path(base, elem...)
	if base == Inner {
		return abs(filepath.Join(l.top, l.root), p)
	}
	return abs(l.top, p)
}

func abs(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}
