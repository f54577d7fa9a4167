// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"zombiezen.com/go/log"
)

// EnvVar is an environment variable assignment.
// If Inherit is true, the variable's value is taken from the engine's environment
// and Value is ignored.
type EnvVar struct {
	Name    string
	Value   string
	Inherit bool
}

// Option is a free-form engine option appended verbatim to the configuration.
type Option struct {
	Name    string
	Value   string
	Comment string
}

// Config is a sandbox configuration.
// The zero value is not usable: create one with [New] or [Base].
type Config struct {
	cwd string
	// Verbose raises the engine's log level.
	Verbose bool

	mounts  []Mount
	byDst   map[string]int
	env     []EnvVar
	options []Option
}

// New returns an empty configuration whose working directory is cwd.
// cwd must be an absolute, clean path.
func New(cwd string) (*Config, error) {
	if !filepath.IsAbs(cwd) || filepath.Clean(cwd) != cwd {
		return nil, fmt.Errorf("sandbox working directory %q is not an absolute path", cwd)
	}
	return &Config{
		cwd:   cwd,
		byDst: make(map[string]int),
	}, nil
}

// Cwd returns the sandbox's initial working directory.
func (c *Config) Cwd() string {
	return c.cwd
}

// AddMount adds m to the configuration.
// Adding a mount identical to one already present at the same destination is a no-op.
// AddMount returns an error if m has a relative path
// or if a different mount already targets m's destination.
func (c *Config) AddMount(m Mount) error {
	if err := m.Validate(); err != nil {
		return err
	}
	k := m.key()
	if i, ok := c.byDst[k]; ok {
		if c.mounts[i] != m {
			return &CollisionError{Dst: k, Existing: c.mounts[i], New: m}
		}
		return nil
	}
	c.byDst[k] = len(c.mounts)
	c.mounts = append(c.mounts, m)
	return nil
}

// Mounts returns a copy of the configuration's mounts in insertion order.
func (c *Config) Mounts() []Mount {
	return slices.Clone(c.mounts)
}

// Mount returns the mount at the given destination.
func (c *Config) Mount(dst string) (_ Mount, ok bool) {
	i, ok := c.byDst[dst]
	if !ok {
		return Mount{}, false
	}
	return c.mounts[i], true
}

// HasDestination reports whether any mount targets dst.
func (c *Config) HasDestination(dst string) bool {
	_, ok := c.byDst[dst]
	return ok
}

// AddEnv sets an environment variable inside the sandbox,
// replacing any previous assignment of the same name.
func (c *Config) AddEnv(name, value string) {
	c.setEnv(EnvVar{Name: name, Value: value})
}

// InheritEnv passes the named variable through from the engine's environment.
func (c *Config) InheritEnv(name string) {
	c.setEnv(EnvVar{Name: name, Inherit: true})
}

func (c *Config) setEnv(ev EnvVar) {
	i := slices.IndexFunc(c.env, func(other EnvVar) bool { return other.Name == ev.Name })
	if i >= 0 {
		c.env[i] = ev
		return
	}
	c.env = append(c.env, ev)
}

// Env returns a copy of the configuration's environment in insertion order.
func (c *Config) Env() []EnvVar {
	return slices.Clone(c.env)
}

// LookupEnv returns the value assigned to name.
func (c *Config) LookupEnv(name string) (_ EnvVar, ok bool) {
	i := slices.IndexFunc(c.env, func(ev EnvVar) bool { return ev.Name == name })
	if i < 0 {
		return EnvVar{}, false
	}
	return c.env[i], true
}

// AddOption appends a free-form engine option.
func (c *Config) AddOption(opt Option) {
	c.options = append(c.options, opt)
}

// Options returns a copy of the configuration's free-form options.
func (c *Config) Options() []Option {
	return slices.Clone(c.options)
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	c2 := &Config{
		cwd:     c.cwd,
		Verbose: c.Verbose,
		mounts:  slices.Clone(c.mounts),
		byDst:   make(map[string]int, len(c.byDst)),
		env:     slices.Clone(c.env),
		options: slices.Clone(c.options),
	}
	for k, v := range c.byDst {
		c2.byDst[k] = v
	}
	return c2
}

// Union merges other's mounts into c.
// other's working directory must be c's working directory or nested under it.
// A destination present in both configurations must have identical mounts;
// anything else means the outer and inner configurations disagree
// and Union returns an error without modifying c.
// Environment variables and options of other are not merged:
// they are specific to the process other was built for.
func (c *Config) Union(other *Config) error {
	if !isWithin(other.cwd, c.cwd) {
		return &UnionError{Cwd: c.cwd, OtherCwd: other.cwd}
	}
	for _, m := range other.mounts {
		if i, ok := c.byDst[m.key()]; ok && c.mounts[i] != m {
			return &UnionError{
				Cwd:       c.cwd,
				OtherCwd:  other.cwd,
				Collision: &CollisionError{Dst: m.key(), Existing: c.mounts[i], New: m},
			}
		}
	}
	for _, m := range other.mounts {
		if _, ok := c.byDst[m.key()]; ok {
			continue
		}
		c.byDst[m.key()] = len(c.mounts)
		c.mounts = append(c.mounts, m)
	}
	return nil
}

// MakeWritable marks every read-only mount under the working directory writable.
// This is only intended for interactive debugging sessions.
func (c *Config) MakeWritable(ctx context.Context) {
	for i := range c.mounts {
		m := &c.mounts[i]
		if m.Dst != "" && m.PrefixDstEnv == "" && isWithin(m.Dst, c.cwd) && !m.RW.Value() {
			log.Debugf(ctx, "Marking %s r/w", m.Dst)
			m.RW = True
		}
	}
}

// CollisionError is returned when two different mounts target the same destination.
type CollisionError struct {
	Dst      string
	Existing Mount
	New      Mount
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("conflicting mounts for %s: %v and %v", e.Dst, e.Existing, e.New)
}

// UnionError is returned by [Config.Union].
type UnionError struct {
	Cwd      string
	OtherCwd string
	// Collision is non-nil if the working directories nest
	// but the configurations disagree on a mount.
	Collision *CollisionError
}

func (e *UnionError) Error() string {
	if e.Collision != nil {
		return fmt.Sprintf("merge sandbox for %s into %s: %v", e.OtherCwd, e.Cwd, e.Collision)
	}
	return fmt.Sprintf("merge sandbox for %s into %s: not a subdirectory", e.OtherCwd, e.Cwd)
}

func (e *UnionError) Unwrap() error {
	if e.Collision == nil {
		return nil
	}
	return e.Collision
}
