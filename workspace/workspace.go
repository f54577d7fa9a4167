// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package workspace models the inner trees of a multi-tree build:
// their identities, the API domains they build,
// their output directory layouts, and their sandboxes.
package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"zb.256lights.llc/multitree/internal/xmaps"
	"zb.256lights.llc/multitree/sandbox"
)

// OverrideMarker is the prefix of an overlay root
// that replaces the entire primary root.
// Only the first overlay root may carry it.
const OverrideMarker = "="

// Options is the set of parameters shared by every workspace in a build.
type Options struct {
	// Out is the outer output directory. It must not be nil.
	Out *OutDir
	// Variant is the build variant (e.g. "userdebug").
	Variant string
	// Env is a set of additional environment variables
	// passed to every workspace's sandbox.
	Env map[string]string
	// Verbose raises the sandbox engine's log level.
	Verbose bool
}

// Workspace is a single inner tree built for a single product.
type Workspace struct {
	key     Key
	opts    *Options
	layout  *Layout
	domains map[string]*Domain

	sandboxOnce sync.Once
	sandbox     *sandbox.Config
	sandboxErr  error
}

// Domain is an API domain built by a workspace.
type Domain struct {
	Name      string
	Workspace *Workspace
	Product   string
}

// New returns a new workspace for the given key.
// It returns an error if the key's overlay roots are invalid.
func New(key Key, opts *Options) (*Workspace, error) {
	if key.root == "" {
		return nil, fmt.Errorf("new workspace: empty root")
	}
	if filepath.IsAbs(key.root) {
		return nil, fmt.Errorf("new workspace %v: root must be relative to the outer tree", key)
	}
	for i, m := range key.Melds() {
		if filepath.IsAbs(strings.TrimPrefix(m, OverrideMarker)) {
			return nil, fmt.Errorf("new workspace %v: meld directory %s may not be absolute", key, m)
		}
		if i > 0 && strings.HasPrefix(m, OverrideMarker) {
			return nil, fmt.Errorf("new workspace %v: only the first meld directory can specify %q", key, OverrideMarker)
		}
	}
	return &Workspace{
		key:  key,
		opts: opts,
		layout: &Layout{
			top:    opts.Out.Top(),
			root:   key.root,
			origin: opts.Out.Path(Origin, InnerTreeDir(key.root, key.product)),
		},
		domains: make(map[string]*Domain),
	}, nil
}

// Key returns the workspace's key.
func (w *Workspace) Key() Key {
	return w.key
}

// Variant returns the build variant the workspace is built with.
func (w *Workspace) Variant() string {
	return w.opts.Variant
}

// Root returns the absolute path of the workspace's primary root.
func (w *Workspace) Root() string {
	return filepath.Join(w.opts.Out.Top(), w.key.root)
}

// Out returns the layout of the workspace's output directory.
func (w *Workspace) Out() *Layout {
	return w.layout
}

// String formats the workspace for diagnostics.
func (w *Workspace) String() string {
	return fmt.Sprintf("workspace %v domains=%q", w.key, w.DomainNames())
}

// AddDomain binds the named API domain to the workspace.
// Adding a domain that is already bound returns the existing domain.
func (w *Workspace) AddDomain(name string) *Domain {
	if d := w.domains[name]; d != nil {
		return d
	}
	d := &Domain{Name: name, Workspace: w, Product: w.key.product}
	w.domains[name] = d
	return d
}

// DomainNames returns the names of the API domains built by the workspace in sorted order.
func (w *Workspace) DomainNames() []string {
	return xmaps.SortedKeys(w.domains)
}

// SandboxConfig returns the sandbox configuration for invoking the workspace's build.
// The configuration is computed once per workspace;
// each call returns a copy the caller may modify.
func (w *Workspace) SandboxConfig(ctx context.Context) (*sandbox.Config, error) {
	w.sandboxOnce.Do(func() {
		w.sandbox, w.sandboxErr = w.compose(ctx)
	})
	if w.sandboxErr != nil {
		return nil, w.sandboxErr
	}
	return w.sandbox.Clone(), nil
}

// Set is the collection of workspaces and API domains in a build.
type Set struct {
	opts    *Options
	trees   map[Key]*Workspace
	domains map[string]*Domain
}

// NewSet returns an empty set.
func NewSet(opts *Options) *Set {
	return &Set{
		opts:    opts,
		trees:   make(map[Key]*Workspace),
		domains: make(map[string]*Domain),
	}
}

// Add binds the named API domain to the workspace identified by paths and product,
// creating the workspace on first reference.
// It is an error to bind the same domain twice.
func (s *Set) Add(domain string, paths []string, product string) (*Domain, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("domain %s: no inner tree", domain)
	}
	if _, dup := s.domains[domain]; dup {
		return nil, fmt.Errorf("domain %s: declared more than once", domain)
	}
	key := NewKey(paths, product)
	w := s.trees[key]
	if w == nil {
		var err error
		w, err = New(key, s.opts)
		if err != nil {
			return nil, fmt.Errorf("domain %s: %v", domain, err)
		}
		s.trees[key] = w
	}
	d := w.AddDomain(domain)
	s.domains[domain] = d
	return d, nil
}

// Len returns the number of workspaces in the set.
func (s *Set) Len() int {
	return len(s.trees)
}

// Get returns the workspace with the given key or nil if none.
func (s *Set) Get(key Key) *Workspace {
	return s.trees[key]
}

// Workspaces returns the set's workspaces ordered by key.
func (s *Set) Workspaces() []*Workspace {
	list := make([]*Workspace, 0, len(s.trees))
	for _, w := range s.trees {
		list = append(list, w)
	}
	slices.SortFunc(list, func(w1, w2 *Workspace) int {
		return w1.key.Compare(w2.key)
	})
	return list
}

// Domain returns the named domain or nil if none.
func (s *Set) Domain(name string) *Domain {
	return s.domains[name]
}

// Domains returns the set's API domains ordered by name.
func (s *Set) Domains() []*Domain {
	list := make([]*Domain, 0, len(s.domains))
	for _, d := range xmaps.Sorted(s.domains) {
		list = append(list, d)
	}
	return list
}
