// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package ninja provides a value model of a Ninja build graph
// that many independent producers can append to.
package ninja

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strconv"
	"strings"

	"zb.256lights.llc/multitree/internal/xmaps"
)

const indentString = "  "

// Node is a unit of a build graph that can be serialized to a Ninja file.
type Node interface {
	// Lines returns the node's lines in the Ninja file, without newlines.
	Lines() iter.Seq[string]
}

// Variable is a Ninja variable binding.
type Variable struct {
	Name   string
	Value  string
	Indent int
}

// Lines implements [Node].
func (v Variable) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		yield(strings.Repeat(indentString, v.Indent) + v.Name + " = " + v.Value)
	}
}

// Line is a raw line: a comment, a default statement, a blank line, etc.
type Line string

// Lines implements [Node].
func (l Line) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		yield(string(l))
	}
}

// RuleVariables is the set of variable names Ninja recognizes in a rule.
var RuleVariables = []string{
	"command",
	"depfile",
	"deps",
	"description",
	"dyndep",
	"generator",
	"msvc_deps_prefix",
	"restat",
	"rspfile",
	"rspfile_content",
}

// PhonyRule is the name of Ninja's built-in phony rule.
const PhonyRule = "phony"

// Rule is a named command template.
// Rules are immutable once created.
type Rule struct {
	name string
	vars []Variable
}

// NewRule returns a new rule with the given variables.
// NewRule returns a [*RuleError] if a variable is not in [RuleVariables]
// or if vars does not contain a "command".
func NewRule(name string, vars map[string]string) (*Rule, error) {
	if name == "" {
		return nil, &RuleError{Reason: "empty rule name"}
	}
	if name == PhonyRule {
		return nil, &RuleError{Rule: name, Reason: "cannot redefine built-in rule"}
	}
	r := &Rule{name: name}
	for k, v := range xmaps.Sorted(vars) {
		if !slices.Contains(RuleVariables, k) {
			return nil, &RuleError{Rule: name, Reason: fmt.Sprintf("%s is not a recognized variable in a ninja rule", k)}
		}
		r.vars = append(r.vars, Variable{Name: k, Value: v, Indent: 1})
	}
	if _, hasCommand := vars["command"]; !hasCommand {
		return nil, &RuleError{Rule: name, Reason: "command is required in a ninja rule"}
	}
	return r, nil
}

// MustRule is like [NewRule] but panics if the rule is invalid.
// It is intended for rules with fixed definitions.
func MustRule(name string, vars map[string]string) *Rule {
	r, err := NewRule(name, vars)
	if err != nil {
		panic(err)
	}
	return r
}

// Name returns the rule's name.
func (r *Rule) Name() string {
	return r.name
}

// Variables returns the rule's variables sorted by name.
func (r *Rule) Variables() []Variable {
	return slices.Clone(r.vars)
}

// Lines implements [Node].
func (r *Rule) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !yield("rule " + r.name) {
			return
		}
		for _, v := range r.vars {
			for line := range v.Lines() {
				if !yield(line) {
					return
				}
			}
		}
	}
}

func (r *Rule) key() string {
	b := []byte("rule")
	b = appendKeyField(b, r.name)
	for _, v := range r.vars {
		b = appendKeyField(b, v.Name)
		b = appendKeyField(b, v.Value)
	}
	return string(b)
}

// RuleError is returned for invalid rule definitions.
type RuleError struct {
	Rule   string
	Reason string
}

func (e *RuleError) Error() string {
	if e.Rule == "" {
		return "ninja rule: " + e.Reason
	}
	return "ninja rule " + e.Rule + ": " + e.Reason
}

// BuildAction is a build statement:
// the dependency edge between inputs and outputs.
type BuildAction struct {
	Outputs   []string
	Rule      string
	Inputs    []string
	Implicits []string
	OrderOnly []string
	// Variables are bindings scoped to this build statement.
	// They are written sorted by name.
	Variables map[string]string
}

// Phony returns a phony build action named name that depends on deps.
func Phony(name string, deps ...string) *BuildAction {
	return &BuildAction{
		Outputs: []string{name},
		Rule:    PhonyRule,
		Inputs:  deps,
	}
}

func (a *BuildAction) clone() *BuildAction {
	return &BuildAction{
		Outputs:   slices.Clone(a.Outputs),
		Rule:      a.Rule,
		Inputs:    slices.Clone(a.Inputs),
		Implicits: slices.Clone(a.Implicits),
		OrderOnly: slices.Clone(a.OrderOnly),
		Variables: maps.Clone(a.Variables),
	}
}

func (a *BuildAction) validate() error {
	if len(a.Outputs) == 0 || slices.Contains(a.Outputs, "") {
		return &BuildActionError{Outputs: a.Outputs, Reason: "output is required in a ninja build statement"}
	}
	if a.Rule == "" {
		return &BuildActionError{Outputs: a.Outputs, Reason: "rule is required in a ninja build statement"}
	}
	return nil
}

// Lines implements [Node].
func (a *BuildAction) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		sb := new(strings.Builder)
		sb.WriteString("build ")
		sb.WriteString(strings.Join(a.Outputs, " "))
		sb.WriteString(": ")
		sb.WriteString(a.Rule)
		if len(a.Inputs) > 0 {
			sb.WriteString(" ")
			sb.WriteString(strings.Join(a.Inputs, " "))
		}
		if len(a.Implicits) > 0 {
			sb.WriteString(" | ")
			sb.WriteString(strings.Join(a.Implicits, " "))
		}
		if len(a.OrderOnly) > 0 {
			sb.WriteString(" || ")
			sb.WriteString(strings.Join(a.OrderOnly, " "))
		}
		if !yield(sb.String()) {
			return
		}
		for k, v := range xmaps.Sorted(a.Variables) {
			binding := Variable{Name: k, Value: v, Indent: 1}
			for line := range binding.Lines() {
				if !yield(line) {
					return
				}
			}
		}
	}
}

func (a *BuildAction) key() string {
	b := []byte("build")
	b = appendKeyList(b, a.Outputs)
	b = appendKeyField(b, a.Rule)
	b = appendKeyList(b, a.Inputs)
	b = appendKeyList(b, a.Implicits)
	b = appendKeyList(b, a.OrderOnly)
	b = strconv.AppendInt(b, int64(len(a.Variables)), 10)
	for k, v := range xmaps.Sorted(a.Variables) {
		b = appendKeyField(b, k)
		b = appendKeyField(b, v)
	}
	return string(b)
}

// BuildActionError is returned for invalid build statements.
type BuildActionError struct {
	Outputs []string
	Reason  string
}

func (e *BuildActionError) Error() string {
	if len(e.Outputs) == 0 {
		return "ninja build statement: " + e.Reason
	}
	return "ninja build statement for " + strings.Join(e.Outputs, " ") + ": " + e.Reason
}

// Pool limits the parallelism of the build actions assigned to it.
type Pool struct {
	Name  string
	Depth int
}

// Lines implements [Node].
func (p Pool) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !yield("pool " + p.Name) {
			return
		}
		depth := Variable{Name: "depth", Value: strconv.Itoa(p.Depth), Indent: 1}
		for line := range depth.Lines() {
			if !yield(line) {
				return
			}
		}
	}
}

func (p Pool) key() string {
	b := []byte("pool")
	b = appendKeyField(b, p.Name)
	b = strconv.AppendInt(b, int64(p.Depth), 10)
	return string(b)
}

// Subninja includes another Ninja file in its own scope.
// If Chdir is not empty, the included file is evaluated relative to that directory.
type Subninja struct {
	Path  string
	Chdir string
}

// Lines implements [Node].
func (s Subninja) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !yield("subninja " + s.Path) {
			return
		}
		if s.Chdir != "" {
			yield(indentString + "chdir = " + s.Chdir)
		}
	}
}

func (s Subninja) key() string {
	b := []byte("subninja")
	b = appendKeyField(b, s.Path)
	b = appendKeyField(b, s.Chdir)
	return string(b)
}

func appendKeyField(b []byte, s string) []byte {
	b = append(b, ' ')
	return strconv.AppendQuote(b, s)
}

func appendKeyList(b []byte, list []string) []byte {
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(len(list)), 10)
	for _, s := range list {
		b = appendKeyField(b, s)
	}
	return b
}
