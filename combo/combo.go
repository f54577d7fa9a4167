// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package combo loads multi-tree combo files,
// which name the inner trees and products that make up a build.
//
// A combo file is a JSON object (comments and trailing commas allowed)
// with optional "system" and "vendor" entries, a "modules" map,
// a "lunchable" flag, and an "inherits" list of other combo files.
// Inherited files are merged depth-first in order;
// fields already present win over inherited ones.
package combo

import (
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/tailscale/hujson"
	"zb.256lights.llc/multitree/diag"
	"zb.256lights.llc/multitree/internal/xmaps"
	"zb.256lights.llc/multitree/workspace"
)

// API domain names bound by the system and vendor entries.
const (
	SystemDomain = "system"
	VendorDomain = "vendor"
)

// Config is a combo file with its inherited files merged in.
type Config struct {
	// Filename is the path the configuration was loaded from.
	Filename  string            `json:"-"`
	Lunchable bool              `json:"lunchable,omitzero"`
	System    *Entry            `json:"system,omitzero"`
	Vendor    *Entry            `json:"vendor,omitzero"`
	Modules   map[string]*Entry `json:"modules,omitzero"`

	merged jsontext.Value
}

// Entry is an inner tree in a combo.
type Entry struct {
	InnerTree InnerTree `json:"inner-tree"`
	Product   string    `json:"product,omitempty"`
}

// InnerTree is a workspace root followed by the overlay roots melded into it.
// In JSON, a single string is a root without overlays.
type InnerTree []string

// Root returns the workspace root or the empty string if t is empty.
func (t InnerTree) Root() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// UnmarshalJSONFrom reads a string or an array of strings.
func (t *InnerTree) UnmarshalJSONFrom(dec *jsontext.Decoder) error {
	if dec.PeekKind() != '[' {
		var root string
		if err := jsonv2.UnmarshalDecode(dec, &root); err != nil {
			return err
		}
		*t = InnerTree{root}
		return nil
	}
	var paths []string
	if err := jsonv2.UnmarshalDecode(dec, &paths); err != nil {
		return err
	}
	*t = paths
	return nil
}

// Load reads the combo file at filename and the files it inherits.
// Relative paths, including filename, are resolved against dir,
// which is normally the outer tree root.
// On failure, Load returns an [*Error].
func Load(dir, filename string) (*Config, error) {
	path := resolve(dir, filename)
	merged, err := loadAndMerge(dir, path, []string{path})
	if err != nil {
		return nil, err
	}
	data, err := jsonv2.Marshal(merged, jsonv2.Deterministic(true))
	if err != nil {
		return nil, &Error{Kind: ParseError, Message: err.Error(), Locations: []string{path}}
	}
	cfg := &Config{Filename: path, merged: data}
	if err := jsonv2.Unmarshal(data, cfg); err != nil {
		return nil, &Error{Kind: ParseError, Message: err.Error(), Locations: []string{path}}
	}
	return cfg, nil
}

func loadAndMerge(dir, path string, visited []string) (map[string]any, error) {
	huJSONData, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: ParseError, Message: err.Error(), Locations: visited}
	}
	jsonData, err := hujson.Standardize(huJSONData)
	if err != nil {
		return nil, &Error{Kind: ParseError, Message: err.Error(), Locations: visited}
	}
	var contents map[string]any
	if err := jsonv2.Unmarshal(jsonData, &contents); err != nil {
		d := diag.FromJSON(path, jsonData, err)
		return nil, &Error{Kind: ParseError, Message: err.Error(), Locations: visited, Line: d.Pos.Line}
	}
	if contents == nil {
		return nil, &Error{Kind: ParseError, Message: "combo must be an object", Locations: visited}
	}

	parents, err := inherits(contents)
	if err != nil {
		return nil, &Error{Kind: ParseError, Message: err.Error(), Locations: visited}
	}
	inherited := make(map[string]any)
	for _, parent := range parents {
		parentPath := resolve(dir, parent)
		if slices.Contains(visited, parentPath) {
			return nil, &Error{Kind: CycleError, Message: "cycle detected in inherits", Locations: visited}
		}
		m, err := loadAndMerge(dir, parentPath, append([]string{parentPath}, visited...))
		if err != nil {
			return nil, err
		}
		deepMerge(inherited, m)
	}
	deepMerge(contents, inherited)
	delete(contents, "inherits")
	return contents, nil
}

func inherits(contents map[string]any) ([]string, error) {
	v, ok := contents["inherits"]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("inherits must be a list")
	}
	paths := make([]string, 0, len(list))
	for i, elem := range list {
		s, ok := elem.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("inherits[%d] must be a non-empty string", i)
		}
		paths = append(paths, s)
	}
	return paths, nil
}

// deepMerge merges the fields of addition into merged.
// Fields already in merged win;
// objects present in both are merged recursively.
func deepMerge(merged, addition map[string]any) {
	for k, v := range addition {
		existing, ok := merged[k]
		if !ok {
			merged[k] = v
			continue
		}
		m1, ok1 := existing.(map[string]any)
		m2, ok2 := v.(map[string]any)
		if ok1 && ok2 {
			deepMerge(m1, m2)
		}
	}
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

// JSON returns the merged combo as a JSON object
// with the inherits list removed.
func (cfg *Config) JSON() jsontext.Value {
	return slices.Clone(cfg.merged)
}

// Validate returns an [*Error] if the combo cannot be built.
func (cfg *Config) Validate() error {
	verr := func(format string, args ...any) error {
		return &Error{Kind: ValidateError, Message: fmt.Sprintf(format, args...), Locations: []string{cfg.Filename}}
	}
	if !cfg.Lunchable {
		return verr("combo file (or inherited files) does not have the 'lunchable' flag set, " +
			"which means it is probably not a complete lunch configuration")
	}
	if cfg.System == nil && cfg.Vendor == nil && len(cfg.Modules) == 0 {
		return verr("no inner trees")
	}
	for name := range cfg.Modules {
		if name == SystemDomain || name == VendorDomain {
			return verr("module may not be named %q", name)
		}
	}
	for name, e := range cfg.entries() {
		if e == nil || e.InnerTree.Root() == "" {
			return verr("%s: missing inner-tree", name)
		}
		if (name == SystemDomain || name == VendorDomain) && e.Product == "" {
			return verr("%s: missing product", name)
		}
	}
	return nil
}

// entries returns the combo's entries in the order their domains are added:
// system, vendor, then modules sorted by name.
func (cfg *Config) entries() iter.Seq2[string, *Entry] {
	return func(yield func(string, *Entry) bool) {
		if cfg.System != nil && !yield(SystemDomain, cfg.System) {
			return
		}
		if cfg.Vendor != nil && !yield(VendorDomain, cfg.Vendor) {
			return
		}
		for name, e := range xmaps.Sorted(cfg.Modules) {
			if !yield(name, e) {
				return
			}
		}
	}
}

// AddTo binds the combo's API domains to workspaces in set.
// Modules are unbundled: their product is ignored.
func (cfg *Config) AddTo(set *workspace.Set) error {
	for name, e := range cfg.entries() {
		if e == nil {
			return fmt.Errorf("%s: %s: missing entry", cfg.Filename, name)
		}
		product := e.Product
		if name != SystemDomain && name != VendorDomain {
			product = ""
		}
		if _, err := set.Add(name, e.InnerTree, product); err != nil {
			return fmt.Errorf("%s: %v", cfg.Filename, err)
		}
	}
	return nil
}

// WriteSummary writes a table of the combo's inner trees to w.
func (cfg *Config) WriteSummary(w io.Writer, variant string) error {
	sb := new(strings.Builder)
	sb.WriteString("========================================\n")
	fmt.Fprintf(sb, "TARGET_BUILD_COMBO=%s\n", cfg.Filename)
	fmt.Fprintf(sb, "TARGET_BUILD_VARIANT=%s\n\n", variant)
	tw := tabwriter.NewWriter(sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Component\tPath\tProduct\t")
	fmt.Fprintln(tw, "---------\t----\t-------\t")
	for name, e := range cfg.entries() {
		if e == nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", name, strings.Join(e.InnerTree, " "), e.Product)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	sb.WriteString("========================================\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// ErrorKind classifies an [Error].
type ErrorKind string

// Error kinds.
const (
	IdentifyError ErrorKind = "identify"
	ParseError    ErrorKind = "parse"
	CycleError    ErrorKind = "cycle"
	ValidateError ErrorKind = "validate"
)

// Error is returned when a combo file cannot be loaded.
type Error struct {
	Kind    ErrorKind
	Message string
	// Locations is the inherits chain that led to the error,
	// starting with the file the error occurred in.
	Locations []string
	// Line is the 1-based line of the error in Locations[0] or zero if unknown.
	Line int
}

func (e *Error) Error() string {
	sb := new(strings.Builder)
	if len(e.Locations) > 0 {
		sb.WriteString(diag.Position{Filename: e.Locations[0], Line: e.Line}.String())
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	for _, loc := range e.Locations[min(len(e.Locations), 1):] {
		sb.WriteString("\n        included from ")
		sb.WriteString(loc)
	}
	return sb.String()
}
