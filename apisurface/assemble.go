// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package apisurface

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"zb.256lights.llc/multitree/diag"
	"zb.256lights.llc/multitree/ninja"
	"zb.256lights.llc/multitree/workspace"
	"zombiezen.com/go/log"
)

// AssemblePhony is the global phony target that assembles every stub library.
const AssemblePhony = "multitree-sdk"

// DefaultArches is the list of architectures native stubs are generated for.
var DefaultArches = []string{"arm", "arm64", "x86", "x86_64"}

// DefaultStubGenerator is the path to the native stub generator
// relative to the outer tree root.
const DefaultStubGenerator = "orchestrator/build/orchestrator/core/cc/ndkstubgen_runner.sh"

// Options is the set of parameters for [NewAssembly].
type Options struct {
	// Graph receives the build actions. It must not be nil.
	Graph *ninja.Graph
	// Out is the outer output directory. It must not be nil.
	Out *workspace.OutDir
	// Diag receives non-fatal errors.
	// If nil, they are logged.
	Diag diag.Collector
	// Levels is the API level table.
	// If nil, [DefaultAPILevels] is used.
	Levels *APILevels
	// StubGenerator is the path to the native stub generator.
	// If empty, [DefaultStubGenerator] is used.
	StubGenerator string
	// Arches is the list of architectures native stubs are generated for.
	// If empty, [DefaultArches] is used.
	Arches []string
}

// Assembly holds the state shared by the assemblers of every stub library in a build.
// It is safe to call Assembly methods from multiple goroutines.
type Assembly struct {
	graph   *ninja.Graph
	out     *workspace.OutDir
	diag    diag.Collector
	levels  *APILevels
	stubgen string
	arches  []string

	levelsOnce sync.Once
	levelsErr  error
	stubOnce   sync.Once
	stubErr    error
}

// Assembler emits the build actions for the stub libraries of one language.
type Assembler interface {
	Assemble(ctx context.Context, a *Assembly, lib *StubLibrary) error
}

var assemblers = map[Language]Assembler{
	CC:       ccAssembler{},
	Java:     stagingAssembler{kind: "java"},
	Resource: stagingAssembler{kind: "resource"},
}

// NewAssembly returns a new assembly.
func NewAssembly(opts *Options) (*Assembly, error) {
	a := &Assembly{
		graph:   opts.Graph,
		out:     opts.Out,
		diag:    opts.Diag,
		levels:  opts.Levels,
		stubgen: opts.StubGenerator,
		arches:  opts.Arches,
	}
	if a.levels == nil {
		a.levels = DefaultAPILevels()
	}
	if err := a.levels.Validate(); err != nil {
		return nil, err
	}
	if a.stubgen == "" {
		a.stubgen = DefaultStubGenerator
	}
	if len(a.arches) == 0 {
		a.arches = DefaultArches
	}
	return a, nil
}

// Assemble emits the build actions for every stub library
// and adds each library's phony target to [AssemblePhony].
func (a *Assembly) Assemble(ctx context.Context, libs []*StubLibrary) error {
	for _, lib := range libs {
		asm := assemblers[lib.Language]
		if asm == nil {
			return fmt.Errorf("assemble %s: unknown language %s", lib.PhonyName(), lib.Language)
		}
		log.Debugf(ctx, "Assembling %s %s from %d contribution(s)", lib.Language, lib.PhonyName(), len(lib.Contributions))
		if err := asm.Assemble(ctx, a, lib); err != nil {
			return fmt.Errorf("assemble %s: %w", lib.PhonyName(), err)
		}
	}
	return nil
}

func (a *Assembly) reportf(ctx context.Context, pos diag.Position, format string, args ...any) {
	if a.diag == nil {
		log.Errorf(ctx, "%v", &diag.Diagnostic{Pos: pos, Message: fmt.Sprintf(format, args...)})
		return
	}
	diag.Errorf(a.diag, pos, format, args...)
}

// stagingDir returns the directory a contribution's files are staged in.
// Each API domain gets its own subdirectory.
func (a *Assembly) stagingDir(lib *StubLibrary, c *Contribution) string {
	return a.out.Path(workspace.Outer, workspace.APILibraryDir(lib.Surface, lib.Version, lib.Name), c.Domain)
}

func (a *Assembly) workDir(lib *StubLibrary, c *Contribution) string {
	return a.out.Path(workspace.Outer, workspace.APILibraryWorkDir(lib.Surface, lib.Version, lib.Name), c.Domain)
}

// sourcePath returns the path of a file in a contribution's workspace
// relative to the outer tree root.
func sourcePath(c *Contribution, file string) string {
	if c.Workspace == nil {
		return file
	}
	return filepath.Join(c.Workspace.Key().Root(), file)
}

// stageAPIFile copies the contribution's API description file into dir
// and returns the staged path.
func (a *Assembly) stageAPIFile(c *Contribution, dir string) (string, error) {
	dst := filepath.Join(dir, filepath.Base(c.Library.API))
	if err := a.graph.AddCopyFile(dst, sourcePath(c, c.Library.API)); err != nil {
		return "", err
	}
	return dst, nil
}

// finish adds the library's phony target and its membership in [AssemblePhony].
func (a *Assembly) finish(lib *StubLibrary, deps []string) error {
	phony := lib.PhonyName()
	if err := a.graph.AddPhony(phony, deps...); err != nil {
		return err
	}
	return a.graph.AddGlobalPhony(AssemblePhony, phony)
}

// stagingAssembler stages the API description file of each contribution.
type stagingAssembler struct {
	kind string
}

func (s stagingAssembler) Assemble(ctx context.Context, a *Assembly, lib *StubLibrary) error {
	var deps []string
	for _, c := range lib.Contributions {
		log.Debugf(ctx, "%s library %s: %s %s", s.kind, lib.PhonyName(), c.Domain, c.Library.API)
		staged, err := a.stageAPIFile(c, a.stagingDir(lib, c))
		if err != nil {
			return err
		}
		deps = append(deps, staged)
	}
	return a.finish(lib, deps)
}
