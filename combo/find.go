// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package combo

import (
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Ext is the file extension of combo files.
const Ext = ".mcombo"

// DefaultDir is the directory of the combos shipped with the orchestrator,
// relative to the outer tree root.
var DefaultDir = filepath.Join("build", "build", "make", "orchestrator", "multitree_combos")

// Search depths used by [Dirs] and [Find].
const (
	dirSearchDepth  = 6
	fileSearchDepth = 10
)

// Dirs returns the directories combo files are searched for in, in order:
// [DefaultDir], then any "multitree_combos" directories under
// the vendor and device directories of the outer tree root top.
// The default directory comes first so that it cannot be overridden.
func Dirs(top string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !yield(filepath.Join(top, DefaultDir)) {
			return
		}
		for _, d := range []string{"vendor", "device"} {
			for dir := range findDirs(filepath.Join(top, d), "multitree_combos", dirSearchDepth) {
				if !yield(dir) {
					return
				}
			}
		}
	}
}

// Find returns the path of the combo file called name+[Ext]
// in the first of [Dirs] that has one.
// Within a directory, files are searched alphabetically,
// files before subdirectories.
// Find returns the empty string if no such file exists.
func Find(top, name string) string {
	filename := name + Ext
	for dir := range Dirs(top) {
		for path := range walkFiles(dir, fileSearchDepth) {
			if filepath.Base(path) == filename {
				return path
			}
		}
	}
	return ""
}

// All returns the paths of every combo file in [Dirs].
func All(top string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for dir := range Dirs(top) {
			for path := range walkFiles(dir, fileSearchDepth) {
				if strings.HasSuffix(path, Ext) && !yield(path) {
					return
				}
			}
		}
	}
}

// Lunchable returns the paths of every combo file in [Dirs]
// that loads successfully and has the lunchable flag set.
func Lunchable(top string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for path := range All(top) {
			cfg, err := Load(top, path)
			if err != nil || !cfg.Lunchable {
				continue
			}
			if !yield(path) {
				return
			}
		}
	}
}

// Choose returns the combo file and variant named by a lunch argument list.
// A single "PRODUCT-VARIANT" argument is looked up with [Find].
// Otherwise, args[0] is a combo file path relative to top
// and args[1], if present, is the variant.
// Choose returns an empty path if no combo file matches
// and an empty variant if the arguments do not name one.
func Choose(top string, args []string) (path, variant string) {
	if len(args) == 0 {
		return "", ""
	}
	if len(args) == 1 {
		if product, variant, ok := ParseProductVariant(args[0]); ok {
			path := Find(top, product)
			if path == "" {
				return "", ""
			}
			return path, variant
		}
	}
	path = resolve(top, args[0])
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return "", ""
	}
	if len(args) > 1 {
		variant = args[1]
	}
	return path, variant
}

// ParseProductVariant splits a "PRODUCT-VARIANT" argument.
// Paths are never product-variant pairs.
func ParseProductVariant(s string) (product, variant string, ok bool) {
	if strings.ContainsRune(s, filepath.Separator) {
		return "", "", false
	}
	product, variant, ok = strings.Cut(s, "-")
	if !ok || product == "" || variant == "" || strings.Contains(variant, "-") {
		return "", "", false
	}
	return product, variant, true
}

// findDirs yields directories called name at most depth levels below path.
// Matches at each level are yielded before descending,
// and matching directories are not searched further.
// Unreadable directories are skipped.
func findDirs(path, name string, depth int) iter.Seq[string] {
	return func(yield func(string) bool) {
		findDirsFunc(path, name, depth, yield)
	}
}

func findDirsFunc(path, name string, depth int, yield func(string) bool) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		return true
	}
	var subdirs []string
	for _, ent := range entries {
		if !isDir(path, ent) {
			continue
		}
		switch {
		case ent.Name() == name:
			if !yield(filepath.Join(path, ent.Name())) {
				return false
			}
		case depth > 0:
			subdirs = append(subdirs, ent.Name())
		}
	}
	for _, sub := range subdirs {
		if !findDirsFunc(filepath.Join(path, sub), name, depth-1, yield) {
			return false
		}
	}
	return true
}

// walkFiles yields the regular files at most depth levels below path.
func walkFiles(path string, depth int) iter.Seq[string] {
	return func(yield func(string) bool) {
		walkFilesFunc(path, depth, yield)
	}
}

func walkFilesFunc(path string, depth int, yield func(string) bool) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		return true
	}
	var subdirs []string
	for _, ent := range entries {
		switch {
		case isDir(path, ent):
			if depth > 0 {
				subdirs = append(subdirs, ent.Name())
			}
		case ent.Type().IsRegular():
			if !yield(filepath.Join(path, ent.Name())) {
				return false
			}
		}
	}
	for _, sub := range subdirs {
		if !walkFilesFunc(filepath.Join(path, sub), depth-1, yield) {
			return false
		}
	}
	return true
}

func isDir(parent string, ent os.DirEntry) bool {
	if ent.IsDir() {
		return true
	}
	if ent.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(parent, ent.Name()))
	return err == nil && info.IsDir()
}
