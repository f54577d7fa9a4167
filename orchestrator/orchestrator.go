// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package orchestrator sequences a multi-tree build:
// it interrogates each workspace, exports and assembles their API surfaces,
// analyzes them, packages their outputs into a single Ninja file,
// and runs Ninja over the result inside a sandbox.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"zb.256lights.llc/multitree/apisurface"
	"zb.256lights.llc/multitree/diag"
	"zb.256lights.llc/multitree/ninja"
	"zb.256lights.llc/multitree/sandbox"
	"zb.256lights.llc/multitree/workspace"
	"zombiezen.com/go/log"
)

// Stage is a step of the build pipeline.
type Stage string

// Pipeline stages in the order they run.
const (
	StageInterrogate Stage = "interrogate"
	StageExport      Stage = "export"
	StageAssemble    Stage = "assemble"
	StageAnalyze     Stage = "analyze"
	StagePackage     Stage = "package"
	StageExecute     Stage = "execute"
)

// StageShell is the stage of an interactive shell session.
// It is not part of the build pipeline.
const StageShell Stage = "shell"

// InnerBuildTool is the entry point of every workspace,
// relative to the workspace root.
const InnerBuildTool = ".inner_build"

// BuildIDEnv is the environment variable set to the build's unique ID
// in every sandbox.
const BuildIDEnv = "MULTITREE_BUILD_ID"

// OutDirEnv is the environment variable set to the output directory
// in the outer sandbox.
const OutDirEnv = "OUT_DIR"

// DefaultNinjaTool is the path to Ninja relative to the outer tree root.
const DefaultNinjaTool = "orchestrator/prebuilts/build-tools/linux-x86/bin/ninja"

// Options is the set of parameters for [New].
type Options struct {
	// Workspaces is the set of workspaces to build. It must not be nil.
	Workspaces *workspace.Set
	// Out is the outer output directory. It must not be nil.
	Out *workspace.OutDir
	// Runner runs sandboxed child processes. It must not be nil.
	Runner Runner

	// Diag receives non-fatal errors from parsing workspace outputs.
	// If nil, they are logged.
	Diag diag.Collector
	// Metrics records stage timings. It may be nil.
	Metrics *Metrics

	// Jobs is the maximum number of workspaces processed concurrently in a stage.
	// If zero or negative, the number of CPUs is used.
	Jobs int
	// BuildID identifies the build to child processes.
	// If empty, a random UUID is used.
	BuildID string
	// Verbose raises the sandbox engine's log level in the outer sandbox.
	Verbose bool

	// NinjaTool is the path to Ninja inside the outer sandbox.
	// If empty, [DefaultNinjaTool] is used.
	NinjaTool string
	// CopyTool is the program used for copy actions.
	CopyTool string
	// StubGenerator is the path to the native stub generator.
	StubGenerator string
	// Levels is the API level table.
	Levels *apisurface.APILevels
	// Arches is the list of architectures native stubs are generated for.
	Arches []string
}

// Orchestrator runs a multi-tree build.
type Orchestrator struct {
	opts    Options
	diag    diag.Collector
	metrics *Metrics

	mu    sync.Mutex
	infos map[workspace.Key]*TreeInfo
}

// New returns a new orchestrator.
func New(opts *Options) (*Orchestrator, error) {
	if opts.Workspaces == nil || opts.Out == nil || opts.Runner == nil {
		return nil, fmt.Errorf("new orchestrator: workspaces, output directory, and runner are required")
	}
	o := &Orchestrator{
		opts:    *opts,
		diag:    opts.Diag,
		metrics: opts.Metrics,
		infos:   make(map[workspace.Key]*TreeInfo),
	}
	if o.diag == nil {
		o.diag = logCollector{}
	}
	if o.opts.Jobs <= 0 {
		o.opts.Jobs = runtime.NumCPU()
	}
	if o.opts.BuildID == "" {
		o.opts.BuildID = uuid.NewString()
	}
	if o.opts.NinjaTool == "" {
		o.opts.NinjaTool = DefaultNinjaTool
	}
	return o, nil
}

// BuildID returns the build's unique ID.
func (o *Orchestrator) BuildID() string {
	return o.opts.BuildID
}

// Build runs every stage of the pipeline in order,
// stopping at the first stage that fails.
// If targets is empty, the staging directory is built.
func (o *Orchestrator) Build(ctx context.Context, targets []string) error {
	start := time.Now()
	err := o.build(ctx, targets)
	o.metrics.observeBuild(time.Since(start), err)
	return err
}

func (o *Orchestrator) build(ctx context.Context, targets []string) error {
	log.Infof(ctx, "Build %s of %d workspace(s)", o.opts.BuildID, o.opts.Workspaces.Len())
	// Sandbox configuration errors abort before any child process runs.
	if _, err := o.OuterSandbox(ctx); err != nil {
		return err
	}

	stages := []struct {
		stage Stage
		run   func(context.Context) error
	}{
		{StageInterrogate, o.Interrogate},
		{StageExport, o.Export},
		{StageAssemble, o.AssembleAPIs},
		{StageAnalyze, o.Analyze},
		{StagePackage, o.Package},
		{StageExecute, func(ctx context.Context) error { return o.Execute(ctx, targets) }},
	}
	for _, s := range stages {
		if err := s.run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Interrogate asks each workspace which of its domains it can build.
// A workspace that cannot build a requested domain is not an error here:
// the failure surfaces when the build runs.
func (o *Orchestrator) Interrogate(ctx context.Context) error {
	return o.forEach(ctx, StageInterrogate, func(ctx context.Context, w *workspace.Workspace) error {
		info, err := o.describe(ctx, w)
		if err != nil {
			return err
		}
		o.mu.Lock()
		o.infos[w.Key()] = info
		o.mu.Unlock()
		return nil
	})
}

// TreeInfo returns the describe response of the workspace with the given key
// or nil if [Orchestrator.Interrogate] has not described it.
func (o *Orchestrator) TreeInfo(key workspace.Key) *TreeInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.infos[key]
}

// Export asks each workspace to write its API contributions.
func (o *Orchestrator) Export(ctx context.Context) error {
	return o.forEach(ctx, StageExport, func(ctx context.Context, w *workspace.Workspace) error {
		args := []string{"export_api_contributions", "--inner_tree", w.Root()}
		for _, d := range w.DomainNames() {
			args = append(args, "--api_domain", d)
		}
		return o.invoke(ctx, StageExport, w, args...)
	})
}

// AssembleAPIs collates the exported API contributions into stub libraries
// and writes the Ninja file that assembles them.
// Contributions that fail to parse are reported and skipped.
func (o *Orchestrator) AssembleAPIs(ctx context.Context) error {
	return o.runStage(ctx, StageAssemble, func(ctx context.Context) error {
		trees := o.opts.Workspaces.Workspaces()
		loaded := make([][]*apisurface.Descriptor, len(trees))
		grp, grpCtx := errgroup.WithContext(ctx)
		grp.SetLimit(o.opts.Jobs)
		for i, w := range trees {
			grp.Go(func() error {
				var err error
				loaded[i], err = apisurface.LoadDescriptors(grpCtx, w, o.diag)
				return err
			})
		}
		if err := grp.Wait(); err != nil {
			return err
		}
		var descriptors []*apisurface.Descriptor
		for _, list := range loaded {
			descriptors = append(descriptors, list...)
		}

		libs := apisurface.Collate(descriptors)
		log.Infof(ctx, "Assembling %d stub library(s) from %d contribution(s)", len(libs), len(descriptors))
		o.metrics.setStubLibraries(len(libs))
		g := ninja.New(&ninja.Options{
			BuildDir: o.opts.Out.Path(workspace.Outer),
			CopyTool: o.opts.CopyTool,
		})
		asm, err := apisurface.NewAssembly(&apisurface.Options{
			Graph:         g,
			Out:           o.opts.Out,
			Diag:          o.diag,
			Levels:        o.opts.Levels,
			StubGenerator: o.opts.StubGenerator,
			Arches:        o.opts.Arches,
		})
		if err != nil {
			return err
		}
		if err := asm.Assemble(ctx, libs); err != nil {
			return err
		}
		return g.WriteFile(o.opts.Out.Abs(workspace.Origin, workspace.APISurfacesNinjaFile))
	})
}

// Analyze asks each workspace to write its own Ninja file and build targets manifest.
func (o *Orchestrator) Analyze(ctx context.Context) error {
	return o.forEach(ctx, StageAnalyze, func(ctx context.Context, w *workspace.Workspace) error {
		return o.invoke(ctx, StageAnalyze, w,
			"analyze",
			"--inner_tree", w.Root(),
			"--api_surfaces_dir", filepath.Join(w.Root(), workspace.PublishedAPISurfacesDir),
		)
	})
}

// Package writes the outer Ninja file from each workspace's build targets manifest.
func (o *Orchestrator) Package(ctx context.Context) error {
	return o.runStage(ctx, StagePackage, o.packageTrees)
}

// runStage runs f as the given stage, logging and recording its duration.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, f func(context.Context) error) error {
	log.Infof(ctx, "Running %s stage", stage)
	start := time.Now()
	err := f(ctx)
	o.metrics.observeStage(stage, time.Since(start), err)
	if err != nil {
		log.Debugf(ctx, "%s stage failed: %v", stage, err)
	}
	return err
}

// forEach calls f for every workspace, at most Jobs at a time.
// The first error cancels the rest of the stage.
func (o *Orchestrator) forEach(ctx context.Context, stage Stage, f func(context.Context, *workspace.Workspace) error) error {
	return o.runStage(ctx, stage, func(ctx context.Context) error {
		grp, grpCtx := errgroup.WithContext(ctx)
		grp.SetLimit(o.opts.Jobs)
		for _, w := range o.opts.Workspaces.Workspaces() {
			grp.Go(func() error {
				return f(grpCtx, w)
			})
		}
		return grp.Wait()
	})
}

// invoke runs the workspace's inner build tool with args in the workspace's sandbox.
func (o *Orchestrator) invoke(ctx context.Context, stage Stage, w *workspace.Workspace, args ...string) error {
	cfg, err := w.SandboxConfig(ctx)
	if err != nil {
		return err
	}
	cfg.AddEnv(BuildIDEnv, o.opts.BuildID)
	configPath := w.Out().Abs(workspace.Origin, workspace.SandboxConfigFile)
	if err := cfg.WriteFile(configPath); err != nil {
		return fmt.Errorf("%s %v: %v", stage, w.Key(), err)
	}

	argv := make([]string, 0, len(args)+3)
	argv = append(argv,
		filepath.Join(cfg.Cwd(), InnerBuildTool),
		"--out_dir", w.Out().Path(workspace.Inner),
	)
	argv = append(argv, args...)
	o.metrics.countInvocation(stage)
	err = o.opts.Runner.Run(ctx, &Invocation{
		Stage:      stage,
		Workspace:  w,
		ConfigPath: configPath,
		Args:       argv,
	})
	if err != nil {
		return &StageError{Stage: stage, Workspace: w.Key(), Err: err}
	}
	return nil
}

// OuterSandbox returns the sandbox configuration for the outer tree:
// the outer tree root (read-only), the output directory (read-write),
// the published API surfaces (read-only),
// and the union of every workspace's sandbox.
func (o *Orchestrator) OuterSandbox(ctx context.Context) (*sandbox.Config, error) {
	out := o.opts.Out
	top := out.Top()
	cfg, err := sandbox.Base(top)
	if err != nil {
		return nil, fmt.Errorf("outer sandbox: %v", err)
	}
	cfg.Verbose = o.opts.Verbose
	cfg.AddEnv(BuildIDEnv, o.opts.BuildID)

	outOrigin := out.Abs(workspace.Origin)
	apiOrigin := out.Abs(workspace.Origin, workspace.APISurfacesDir)
	if err := mkdirs(outOrigin, apiOrigin); err != nil {
		return nil, fmt.Errorf("outer sandbox: %v", err)
	}
	mounts := []sandbox.Mount{
		{Src: top, Dst: top, IsBind: sandbox.True, RW: sandbox.False, Mandatory: sandbox.True},
		{Src: outOrigin, Dst: out.Abs(workspace.Outer), IsBind: sandbox.True, RW: sandbox.True, Mandatory: sandbox.True},
		{Src: apiOrigin, Dst: filepath.Join(top, workspace.PublishedAPISurfacesDir), IsBind: sandbox.True, RW: sandbox.False, Mandatory: sandbox.False},
	}
	for _, m := range mounts {
		if err := cfg.AddMount(m); err != nil {
			return nil, fmt.Errorf("outer sandbox: %v", err)
		}
	}

	for _, w := range o.opts.Workspaces.Workspaces() {
		wcfg, err := w.SandboxConfig(ctx)
		if err != nil {
			return nil, err
		}
		if err := cfg.Union(wcfg); err != nil {
			return nil, fmt.Errorf("outer sandbox: %v: %w", w.Key(), err)
		}
	}
	return cfg, nil
}

// StageError is returned when a child process fails.
type StageError struct {
	Stage Stage
	// Workspace is the zero key if the failure was in the outer tree.
	Workspace workspace.Key
	Err       error
}

func (e *StageError) Error() string {
	if e.Workspace == (workspace.Key{}) {
		return fmt.Sprintf("%s: outer tree: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: inner tree %v: %v", e.Stage, e.Workspace, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type logCollector struct{}

func (logCollector) Report(d *diag.Diagnostic) {
	log.Errorf(context.Background(), "%v", d)
}
