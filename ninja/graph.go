// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package ninja

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"zb.256lights.llc/multitree/internal/osutil"
	"zb.256lights.llc/multitree/internal/sets"
	"zb.256lights.llc/multitree/internal/xmaps"
)

// ErrFrozen is returned when adding to a [Graph] that has already been written.
var ErrFrozen = errors.New("ninja graph already written")

// Options is the set of parameters for [New].
type Options struct {
	// BuildDir is the value of Ninja's builddir variable.
	// If empty, the variable is not written.
	BuildDir string
	// CopyTool is the path to the program [Graph.AddCopyFile] uses.
	// If empty, "cp" is used.
	CopyTool string
}

// Graph is an append-only sequence of Ninja nodes.
// Rules, build actions, pools and subninja statements are deduplicated by content,
// so producers can unconditionally declare what they need.
// A Graph is safe to use from multiple goroutines.
type Graph struct {
	copyTool string

	mu      sync.Mutex
	nodes   []Node
	seen    sets.Set[string]
	rules   map[string]*Rule
	phonies map[string]*sets.Sorted[string]
	written bool
}

// New returns a new empty graph.
func New(opts *Options) *Graph {
	if opts == nil {
		opts = new(Options)
	}
	g := &Graph{
		copyTool: opts.CopyTool,
		seen:     make(sets.Set[string]),
		rules:    make(map[string]*Rule),
		phonies:  make(map[string]*sets.Sorted[string]),
	}
	if g.copyTool == "" {
		g.copyTool = "cp"
	}
	if opts.BuildDir != "" {
		g.nodes = append(g.nodes, Variable{Name: "builddir", Value: opts.BuildDir})
	}
	return g
}

// AddVariable appends a top-level variable binding.
// Variables are not deduplicated: rebinding a variable is meaningful in Ninja.
func (g *Graph) AddVariable(name, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.written {
		return ErrFrozen
	}
	g.nodes = append(g.nodes, Variable{Name: name, Value: value})
	return nil
}

// AddRule declares r.
// Declaring a rule identical to one already declared is a no-op.
// Declaring a different rule with the same name is an error.
func (g *Graph) AddRule(r *Rule) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.written {
		return ErrFrozen
	}
	if prev := g.rules[r.name]; prev != nil {
		if prev.key() != r.key() {
			return &RuleError{Rule: r.name, Reason: "redefined with different variables"}
		}
		return nil
	}
	g.rules[r.name] = r
	g.nodes = append(g.nodes, r)
	return nil
}

// AddBuildAction appends a copy of a.
// Adding an action whose content equals one already added is a no-op.
// Actions that share outputs but otherwise differ are both kept
// so that Ninja reports the conflict.
func (g *Graph) AddBuildAction(a *BuildAction) error {
	if err := a.validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.written {
		return ErrFrozen
	}
	if a.Rule != PhonyRule && g.rules[a.Rule] == nil {
		return &BuildActionError{Outputs: a.Outputs, Reason: fmt.Sprintf("undeclared rule %q", a.Rule)}
	}
	g.appendUnique(a.key(), a.clone())
	return nil
}

// AddPhony appends a phony build action named name that depends on deps.
func (g *Graph) AddPhony(name string, deps ...string) error {
	return g.AddBuildAction(Phony(name, deps...))
}

// AddGlobalPhony adds deps to the global phony target name.
// Repeated calls with the same name accumulate the union of their dependencies.
// The phony build actions are materialized when the graph is written.
func (g *Graph) AddGlobalPhony(name string, deps ...string) error {
	if name == "" {
		return &BuildActionError{Reason: "phony name is required"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.written {
		return ErrFrozen
	}
	s := g.phonies[name]
	if s == nil {
		s = new(sets.Sorted[string])
		g.phonies[name] = s
	}
	s.Add(deps...)
	return nil
}

// AddPool declares a pool.
func (g *Graph) AddPool(p Pool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.written {
		return ErrFrozen
	}
	g.appendUnique(p.key(), p)
	return nil
}

// AddSubninja includes another Ninja file.
func (g *Graph) AddSubninja(s Subninja) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.written {
		return ErrFrozen
	}
	g.appendUnique(s.key(), s)
	return nil
}

// AddComment appends a comment.
// Each line of text becomes a separate comment line.
func (g *Graph) AddComment(text string) error {
	return g.addLines(func(yield func(string) bool) {
		for line := range strings.Lines(text) {
			if !yield("# " + strings.TrimSuffix(line, "\n")) {
				return
			}
		}
	})
}

// AddDefault appends a default statement for the given targets.
func (g *Graph) AddDefault(targets ...string) error {
	return g.addLines(func(yield func(string) bool) {
		yield("default " + strings.Join(targets, " "))
	})
}

// AddNewline appends a blank line.
func (g *Graph) AddNewline() error {
	return g.addLines(func(yield func(string) bool) {
		yield("")
	})
}

func (g *Graph) addLines(lines func(yield func(string) bool)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.written {
		return ErrFrozen
	}
	for line := range lines {
		g.nodes = append(g.nodes, Line(line))
	}
	return nil
}

// Copy rule and write rule definitions.
const (
	CopyFileRule  = "copy_file"
	WriteFileRule = "write_file"
)

// AddCopyFile adds an action that copies src to dst,
// creating dst's parent directory first.
func (g *Graph) AddCopyFile(dst, src string) error {
	r, err := NewRule(CopyFileRule, map[string]string{
		"command": "mkdir -p ${out_dir} && " + g.copyTool + " -f ${in} ${out}",
	})
	if err != nil {
		return err
	}
	if err := g.AddRule(r); err != nil {
		return err
	}
	a := &BuildAction{
		Outputs: []string{dst},
		Rule:    CopyFileRule,
		Inputs:  []string{src},
		Variables: map[string]string{
			"out_dir": filepath.Dir(dst),
		},
	}
	if filepath.IsAbs(g.copyTool) || strings.ContainsRune(g.copyTool, filepath.Separator) {
		a.Implicits = []string{g.copyTool}
	}
	return g.AddBuildAction(a)
}

// AddWriteFile adds an action that writes content to dst.
// content is interpreted by printf,
// so it may not contain unescaped format directives.
func (g *Graph) AddWriteFile(dst, content string) error {
	if err := g.AddRule(writeFileRule); err != nil {
		return err
	}
	return g.AddBuildAction(&BuildAction{
		Outputs:   []string{dst},
		Rule:      WriteFileRule,
		Variables: map[string]string{"content": content},
	})
}

var writeFileRule = MustRule(WriteFileRule, map[string]string{
	"description": "Writes content to out",
	"command":     "printf '${content}' > ${out}",
})

func (g *Graph) appendUnique(key string, n Node) {
	if g.seen.Has(key) {
		return
	}
	g.seen.Add(key)
	g.nodes = append(g.nodes, n)
}

// Nodes returns the graph's nodes in the order they will be written,
// excluding global phony targets that have not been materialized yet.
func (g *Graph) Nodes() []Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.nodes)
}

// WriteTo materializes the global phony targets
// then writes every node to w in insertion order.
// After the first call to WriteTo, the graph is frozen:
// further additions return [ErrFrozen]
// and subsequent calls write the same content.
func (g *Graph) WriteTo(w io.Writer) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.written {
		g.written = true
		for name, deps := range xmaps.Sorted(g.phonies) {
			a := Phony(name)
			a.Inputs = slices.AppendSeq(a.Inputs, deps.Values())
			g.appendUnique(a.key(), a)
		}
		g.phonies = nil
	}

	bw := bufio.NewWriter(w)
	cw := &countWriter{w: bw}
	for _, n := range g.nodes {
		for line := range n.Lines() {
			io.WriteString(cw, line)
			io.WriteString(cw, "\n")
		}
	}
	if err := bw.Flush(); err != nil {
		return cw.n, fmt.Errorf("write ninja file: %w", err)
	}
	return cw.n, nil
}

// WriteFile writes the graph to the named file,
// creating its parent directories as needed.
func (g *Graph) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	sb := new(strings.Builder)
	if _, err := g.WriteTo(sb); err != nil {
		return err
	}
	if err := osutil.WriteFilePerm(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write ninja file: %w", err)
	}
	return nil
}

type countWriter struct {
	w io.Writer
	n int64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
