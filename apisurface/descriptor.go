// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package apisurface collates the API contributions exported by workspaces
// into versioned stub libraries
// and emits the build actions that assemble them.
package apisurface

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"gopkg.in/yaml.v3"
	"zb.256lights.llc/multitree/diag"
	"zb.256lights.llc/multitree/workspace"
	"zombiezen.com/go/log"
)

// Language is a key of a [Descriptor] that lists libraries of one target language.
type Language string

// Recognized languages.
const (
	CC       Language = "cc_libraries"
	Java     Language = "java_libraries"
	Resource Language = "resource_libraries"
)

// Languages is the list of recognized languages.
var Languages = []Language{CC, Java, Resource}

// Descriptor is a single API contribution exported by a workspace.
type Descriptor struct {
	// Name is the API surface the contribution belongs to (e.g. "publicapi").
	Name string `json:"name" yaml:"name"`
	// Version is the version of the API surface.
	Version int `json:"version" yaml:"version"`
	// Domain is the API domain that contributes the libraries.
	Domain string `json:"api_domain" yaml:"api_domain"`

	CCLibraries       []*Library `json:"cc_libraries" yaml:"cc_libraries"`
	JavaLibraries     []*Library `json:"java_libraries" yaml:"java_libraries"`
	ResourceLibraries []*Library `json:"resource_libraries" yaml:"resource_libraries"`

	// Workspace is the workspace that exported the descriptor.
	Workspace *workspace.Workspace `json:"-" yaml:"-"`
	// Filename is the path the descriptor was read from.
	Filename string `json:"-" yaml:"-"`
}

// Libraries returns the descriptor's libraries for the given language.
func (d *Descriptor) Libraries(lang Language) []*Library {
	switch lang {
	case CC:
		return d.CCLibraries
	case Java:
		return d.JavaLibraries
	case Resource:
		return d.ResourceLibraries
	default:
		return nil
	}
}

// Library is a library entry in a [Descriptor].
type Library struct {
	Name string `json:"name" yaml:"name"`
	// API is the path to the library's API description file
	// relative to the workspace root.
	API         string       `json:"api" yaml:"api"`
	APISurfaces []string     `json:"api_surfaces" yaml:"api_surfaces"`
	Headers     []*HeaderSet `json:"headers" yaml:"headers"`

	Unknown jsontext.Value `json:",unknown" yaml:"-"`
}

// HeaderSet is a group of headers that share an include root.
type HeaderSet struct {
	Name string `json:"name" yaml:"name"`
	// Root is the include root relative to the workspace root.
	Root string `json:"root" yaml:"root"`
	// Headers is the list of header files relative to the workspace root.
	Headers []string `json:"headers" yaml:"headers"`
	Arch    string   `json:"arch" yaml:"arch"`
	System  bool     `json:"system" yaml:"system"`

	Unknown jsontext.Value `json:",unknown" yaml:"-"`
}

var descriptorFields = []string{
	"name",
	"version",
	"api_domain",
	string(CC),
	string(Java),
	string(Resource),
}

// ParseDescriptor parses a contribution descriptor.
// The format is selected by filename's extension:
// ".yaml" and ".yml" files are YAML, anything else is JSON.
// Unknown top-level fields are an error.
// On failure, the returned error is a [*diag.Diagnostic].
func ParseDescriptor(filename string, data []byte) (*Descriptor, error) {
	d := new(Descriptor)
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		if err := unmarshalYAMLDescriptor(filename, data, d); err != nil {
			return nil, err
		}
	default:
		if err := jsonv2.Unmarshal(data, d, jsonv2.RejectUnknownMembers(true)); err != nil {
			return nil, diag.FromJSON(filename, data, err)
		}
	}
	d.Filename = filename
	if err := d.validate(); err != nil {
		return nil, &diag.Diagnostic{Pos: diag.Position{Filename: filename}, Message: err.Error()}
	}
	return d, nil
}

func unmarshalYAMLDescriptor(filename string, data []byte, d *Descriptor) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &diag.Diagnostic{Pos: diag.Position{Filename: filename}, Message: err.Error()}
	}
	if len(doc.Content) == 0 {
		return &diag.Diagnostic{Pos: diag.Position{Filename: filename}, Message: "empty document"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return &diag.Diagnostic{
			Pos:     diag.Position{Filename: filename, Line: root.Line, Column: root.Column},
			Message: "contribution must be a mapping",
		}
	}
	for i := 0; i < len(root.Content); i += 2 {
		k := root.Content[i]
		if !slices.Contains(descriptorFields, k.Value) {
			return &diag.Diagnostic{
				Pos:     diag.Position{Filename: filename, Line: k.Line, Column: k.Column},
				Message: fmt.Sprintf("unknown field %q", k.Value),
			}
		}
	}
	if err := root.Decode(d); err != nil {
		return &diag.Diagnostic{
			Pos:     diag.Position{Filename: filename, Line: root.Line, Column: root.Column},
			Message: err.Error(),
		}
	}
	return nil
}

func (d *Descriptor) validate() error {
	if d.Name == "" {
		return errors.New("missing required field \"name\"")
	}
	if d.Domain == "" {
		return errors.New("missing required field \"api_domain\"")
	}
	for _, lang := range Languages {
		for i, lib := range d.Libraries(lang) {
			if lib == nil || lib.Name == "" {
				return fmt.Errorf("%s[%d]: missing required field \"name\"", lang, i)
			}
			if lib.API == "" {
				return fmt.Errorf("%s[%d] (%s): missing required field \"api\"", lang, i, lib.Name)
			}
		}
	}
	return nil
}

// LoadDescriptors reads the contribution descriptors that w exported.
// Descriptors that fail to parse are reported to c and skipped.
// A workspace without a contributions directory has no descriptors.
func LoadDescriptors(ctx context.Context, w *workspace.Workspace, c diag.Collector) ([]*Descriptor, error) {
	dir := w.Out().Abs(workspace.Origin, workspace.APIContributionsDir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		log.Debugf(ctx, "%v exported no API contributions", w.Key())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load contributions for %v: %v", w.Key(), err)
	}
	var result []*Descriptor
	for _, ent := range entries {
		if !ent.Type().IsRegular() || !isDescriptorName(ent.Name()) {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load contributions for %v: %v", w.Key(), err)
		}
		d, err := ParseDescriptor(path, data)
		if err != nil {
			var de *diag.Diagnostic
			if !errors.As(err, &de) {
				de = &diag.Diagnostic{Pos: diag.Position{Filename: path}, Message: err.Error()}
			}
			c.Report(de)
			log.Warnf(ctx, "Skipping API contribution %s", path)
			continue
		}
		d.Workspace = w
		result = append(result, d)
	}
	return result, nil
}

func isDescriptorName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
