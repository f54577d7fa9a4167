// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	jsonv2 "github.com/go-json-experiment/json"
	"gopkg.in/yaml.v3"
	"zb.256lights.llc/multitree/diag"
	"zb.256lights.llc/multitree/internal/osutil"
	"zb.256lights.llc/multitree/ninja"
	"zb.256lights.llc/multitree/workspace"
	"zombiezen.com/go/log"
)

// Global phony targets produced by packaging.
const (
	StagingPhony = "staging"
	DistPhony    = "dist"
)

// ApexModuleType is the only module type that can be shared between workspaces.
const ApexModuleType = "apex"

// BuildTargets is the manifest a workspace's analysis writes
// to describe the artifacts it contributes to the final output.
type BuildTargets struct {
	Staging []*StagingEntry `json:"staging,omitempty" yaml:"staging"`
	Dist    []*DistEntry    `json:"dist,omitempty" yaml:"dist"`
	Modules []*ModuleEntry  `json:"modules,omitempty" yaml:"modules"`
}

// StagingEntry copies a file into the staging directory.
// Exactly one of Src (relative to the workspace root)
// or Obj (relative to the workspace's output directory) must be set.
type StagingEntry struct {
	Dest string `json:"dest" yaml:"dest"`
	Src  string `json:"src,omitempty" yaml:"src"`
	Obj  string `json:"obj,omitempty" yaml:"obj"`
}

// DistEntry copies a file from the workspace root into the dist directory.
type DistEntry struct {
	Dest string `json:"dest" yaml:"dest"`
	Src  string `json:"src" yaml:"src"`
}

// ModuleEntry is a module shared with other workspaces.
type ModuleEntry struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	File string `json:"file" yaml:"file"`
}

// buildTargetsFiles lists the manifest names in order of preference.
var buildTargetsFiles = []string{
	workspace.BuildTargetsFile,
	strings.TrimSuffix(workspace.BuildTargetsFile, ".json") + ".yaml",
}

// ParseBuildTargets parses a build targets manifest.
// YAML is used if filename ends in ".yaml" or ".yml",
// JSON otherwise.
// On failure, the returned error is a [*diag.Diagnostic].
func ParseBuildTargets(filename string, data []byte) (*BuildTargets, error) {
	bt := new(BuildTargets)
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(bt); err != nil && !errors.Is(err, io.EOF) {
			return nil, &diag.Diagnostic{Pos: diag.Position{Filename: filename}, Message: err.Error()}
		}
	default:
		if err := jsonv2.Unmarshal(data, bt, jsonv2.RejectUnknownMembers(true)); err != nil {
			return nil, diag.FromJSON(filename, data, err)
		}
	}
	return bt, nil
}

// readBuildTargets reads w's manifest.
// It returns (nil, "", nil) if w did not write one.
func readBuildTargets(w *workspace.Workspace) (_ *BuildTargets, path string, _ error) {
	path, err := osutil.FirstPresentFile(func(yield func(string) bool) {
		for _, name := range buildTargetsFiles {
			if !yield(w.Out().Abs(workspace.Origin, name)) {
				return
			}
		}
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	bt, err := ParseBuildTargets(path, data)
	if err != nil {
		return nil, path, err
	}
	return bt, path, nil
}

// packageTrees writes the outer Ninja file:
// the API surfaces file, each workspace's own Ninja file,
// and the copy actions for each workspace's manifest.
func (o *Orchestrator) packageTrees(ctx context.Context) error {
	g := ninja.New(&ninja.Options{
		BuildDir: o.opts.Out.Path(workspace.Outer),
		CopyTool: o.opts.CopyTool,
	})
	if err := g.AddSubninja(ninja.Subninja{Path: o.opts.Out.Path(workspace.Outer, workspace.APISurfacesNinjaFile)}); err != nil {
		return err
	}

	errs := new(diag.List)
	for _, w := range o.opts.Workspaces.Workspaces() {
		bt, path, err := readBuildTargets(w)
		if err != nil {
			var d *diag.Diagnostic
			if !errors.As(err, &d) {
				return fmt.Errorf("package %v: %v", w.Key(), err)
			}
			errs.Report(d)
			continue
		}
		if bt == nil {
			log.Debugf(ctx, "%v has no build targets", w.Key())
			continue
		}
		if err := o.packageTree(ctx, g, errs, w, bt, path); err != nil {
			return fmt.Errorf("package %v: %w", w.Key(), err)
		}
	}

	for _, d := range errs.Diagnostics() {
		o.diag.Report(d)
	}
	if err := errs.Err(); err != nil {
		return err
	}
	return g.WriteFile(o.opts.Out.Abs(workspace.Origin, workspace.OuterNinjaFile))
}

func (o *Orchestrator) packageTree(ctx context.Context, g *ninja.Graph, errs diag.Collector, w *workspace.Workspace, bt *BuildTargets, path string) error {
	root := w.Key().Root()
	layout := w.Out()
	pos := diag.Position{Filename: path}
	log.Debugf(ctx, "Packaging %v from %s", w.Key(), path)

	err := g.AddSubninja(ninja.Subninja{
		Path:  layout.Path(workspace.Outer, workspace.InnerNinjaFile),
		Chdir: root,
	})
	if err != nil {
		return err
	}

	for i, m := range bt.Modules {
		switch {
		case m == nil || m.Name == "" || m.File == "":
			diag.Errorf(errs, pos, "modules[%d]: name and file are required", i)
			continue
		case m.Type != ApexModuleType:
			diag.Errorf(errs, pos, "modules[%d] (%s): invalid module type %q", i, m.Name, m.Type)
			continue
		}
		dst := o.opts.Out.Path(workspace.Outer, workspace.ModuleShareDir(m.Type, m.Name), m.Name+".apex")
		if err := g.AddCopyFile(dst, filepath.Join(root, m.File)); err != nil {
			return err
		}
	}

	for i, s := range bt.Staging {
		if s == nil || !filepath.IsLocal(s.Dest) {
			diag.Errorf(errs, pos, "staging[%d]: dest must be a relative path inside the staging directory", i)
			continue
		}
		var src string
		switch {
		case s.Src != "" && s.Obj != "":
			diag.Errorf(errs, pos, "staging[%d] (%s): can't have both \"src\" and \"obj\"", i, s.Dest)
			continue
		case s.Src != "":
			src = filepath.Join(root, s.Src)
		case s.Obj != "":
			src = layout.Path(workspace.Outer, s.Obj)
		default:
			diag.Errorf(errs, pos, "staging[%d] (%s): one of \"src\" or \"obj\" is required", i, s.Dest)
			continue
		}
		dst := o.opts.Out.Path(workspace.Outer, workspace.StagingDir, s.Dest)
		if err := g.AddCopyFile(dst, src); err != nil {
			return err
		}
		if err := g.AddGlobalPhony(StagingPhony, dst); err != nil {
			return err
		}
	}

	for i, d := range bt.Dist {
		if d == nil || !filepath.IsLocal(d.Dest) || d.Src == "" {
			diag.Errorf(errs, pos, "dist[%d]: dest must be a relative path inside the dist directory and src is required", i)
			continue
		}
		dst := o.opts.Out.Path(workspace.Outer, workspace.DistDir, d.Dest)
		if err := g.AddCopyFile(dst, filepath.Join(root, d.Src)); err != nil {
			return err
		}
		if err := g.AddGlobalPhony(DistPhony, dst); err != nil {
			return err
		}
	}
	return nil
}
