// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package sandbox builds process-isolation configurations
// for the nsjail sandboxing engine.
//
// A [Config] is a value: it is built up with [Config.AddMount] and [Config.AddEnv],
// combined with [Config.Union], and finally rendered with [Config.MarshalText].
// Nothing in this package spawns processes or touches mounts on the host.
package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Bool is an optional boolean.
// Unset fields are omitted from the rendered configuration
// so that the engine's own defaults apply.
type Bool int8

// Bool values.
const (
	Unset Bool = iota
	False
	True
)

// Some returns [True] or [False].
func Some(b bool) Bool {
	if b {
		return True
	}
	return False
}

// IsSet reports whether b is not [Unset].
func (b Bool) IsSet() bool {
	return b != Unset
}

// Value reports whether b is [True].
func (b Bool) Value() bool {
	return b == True
}

// String returns "true", "false", or "unset".
func (b Bool) String() string {
	switch b {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unset"
	}
}

// Kind is the kind of filesystem mapping a [Mount] describes.
type Kind int8

// Mount kinds.
const (
	// KindOther is a mount that specifies none of the distinguishing fields.
	// The engine decides what to do with it.
	KindOther Kind = iota
	KindBind
	KindTmpfs
	KindSymlink
	// KindFilesystem is a mount of a named filesystem type other than tmpfs.
	KindFilesystem
	// KindContent is a file synthesized from [Mount.SrcContent].
	KindContent
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindBind:
		return "bind"
	case KindTmpfs:
		return "tmpfs"
	case KindSymlink:
		return "symlink"
	case KindFilesystem:
		return "filesystem"
	case KindContent:
		return "content"
	default:
		return "other"
	}
}

// Mount is a single filesystem mapping inside the sandbox.
// Mounts are plain values: two mounts are equal (==) iff all fields match.
type Mount struct {
	// Src is the host path.
	Src string
	// PrefixSrcEnv names an environment variable whose value is prepended to Src.
	PrefixSrcEnv string
	// SrcContent is the inline content of a synthesized file.
	SrcContent string
	// Dst is the path inside the sandbox.
	Dst string
	// PrefixDstEnv names an environment variable whose value is prepended to Dst.
	PrefixDstEnv string
	// FSType is the filesystem type (for example "tmpfs").
	FSType string
	// Options are filesystem-specific mount options.
	Options string

	IsBind    Bool
	RW        Bool
	IsDir     Bool
	Mandatory Bool
	IsSymlink Bool
	NoSUID    Bool
	NoDev     Bool
	NoExec    Bool
}

// BindMount returns a bind mount of src at dst.
func BindMount(src, dst string, rw bool) Mount {
	return Mount{
		Src:    src,
		Dst:    dst,
		IsBind: True,
		RW:     Some(rw),
	}
}

// Kind returns the kind of mapping m describes.
func (m Mount) Kind() Kind {
	switch {
	case m.IsSymlink.Value():
		return KindSymlink
	case m.IsBind.Value():
		return KindBind
	case m.FSType == "tmpfs":
		return KindTmpfs
	case m.FSType != "":
		return KindFilesystem
	case m.SrcContent != "":
		return KindContent
	default:
		return KindOther
	}
}

// Validate returns an error if m's source or destination is set but not absolute.
func (m Mount) Validate() error {
	if err := checkAbs("src", m.Src); err != nil {
		return err
	}
	if m.Dst == "" && m.PrefixDstEnv == "" {
		return fmt.Errorf("mount of %q: missing destination", m.Src)
	}
	if err := checkAbs("dst", m.Dst); err != nil {
		return err
	}
	return nil
}

// key returns the value that identifies the mount's destination.
func (m Mount) key() string {
	if m.PrefixDstEnv == "" {
		return m.Dst
	}
	return "$" + m.PrefixDstEnv + m.Dst
}

// String returns a short human-readable description of the mount.
func (m Mount) String() string {
	sb := new(strings.Builder)
	sb.WriteString(m.Kind().String())
	sb.WriteString(" ")
	if m.Src != "" {
		sb.WriteString(m.Src)
		sb.WriteString(" -> ")
	}
	sb.WriteString(m.key())
	if m.RW.Value() {
		sb.WriteString(" (rw)")
	}
	return sb.String()
}

// PathError is returned when a mount path is not absolute.
type PathError struct {
	Field string
	Path  string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("mount %s %q is not an absolute path", e.Field, e.Path)
}

func checkAbs(field, path string) error {
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) || filepath.Clean(path) != path {
		return &PathError{Field: field, Path: path}
	}
	return nil
}

// isWithin reports whether path is dir or a descendant of dir.
// Both paths must be clean.
func isWithin(path, dir string) bool {
	if dir == string(filepath.Separator) {
		return filepath.IsAbs(path)
	}
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}
