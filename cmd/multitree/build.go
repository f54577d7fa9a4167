// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"
	"zb.256lights.llc/multitree/combo"
	"zb.256lights.llc/multitree/diag"
	"zb.256lights.llc/multitree/orchestrator"
	"zb.256lights.llc/multitree/workspace"
	"zombiezen.com/go/log"
)

type buildOptions struct {
	targets  []string
	shell    bool
	writable bool
	force    bool
}

// loadCombo identifies, loads, and validates the combo to build.
// It returns the combo and the build variant.
func loadCombo(g *globalConfig) (*combo.Config, string, error) {
	if g.Combo == "" {
		return nil, "", &combo.Error{
			Kind:    combo.IdentifyError,
			Message: "TARGET_BUILD_COMBO not set. Run lunch or pass a combo file.",
		}
	}
	path, variant := combo.Choose(g.Top, []string{g.Combo})
	if path == "" {
		return nil, "", &combo.Error{
			Kind:    combo.IdentifyError,
			Message: fmt.Sprintf("can't find lunch combo file for: %s", g.Combo),
		}
	}
	if variant == "" {
		variant = g.Variant
	}
	cfg, err := combo.Load(g.Top, path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, variant, nil
}

// newOrchestrator builds the workspace set for cfg
// and returns an orchestrator ready to run.
func newOrchestrator(g *globalConfig, cfg *combo.Config, variant string, runner orchestrator.Runner, metrics *orchestrator.Metrics) (*orchestrator.Orchestrator, *workspace.OutDir, error) {
	env, err := g.sandboxEnv()
	if err != nil {
		return nil, nil, err
	}
	out, err := workspace.NewOutDir(g.Top, g.OutDir)
	if err != nil {
		return nil, nil, err
	}
	set := workspace.NewSet(&workspace.Options{
		Out:     out,
		Variant: variant,
		Env:     env,
		Verbose: g.Debug,
	})
	if err := cfg.AddTo(set); err != nil {
		return nil, nil, err
	}
	o, err := orchestrator.New(&orchestrator.Options{
		Workspaces:    set,
		Out:           out,
		Runner:        runner,
		Diag:          &diag.List{Echo: os.Stderr},
		Metrics:       metrics,
		Jobs:          g.Jobs,
		Verbose:       g.Debug,
		NinjaTool:     g.NinjaTool,
		CopyTool:      g.CopyTool,
		StubGenerator: g.StubGenerator,
		Levels:        g.apiLevels(),
		Arches:        g.Arches,
	})
	if err != nil {
		return nil, nil, err
	}
	return o, out, nil
}

func runBuild(ctx context.Context, g *globalConfig, opts *buildOptions) error {
	if err := g.validate(); err != nil {
		return err
	}
	if opts.writable && !opts.shell {
		return fmt.Errorf("--writable requires --shell")
	}
	if opts.shell && len(opts.targets) > 0 {
		return fmt.Errorf("--shell does not take targets")
	}
	if opts.shell && !opts.force && !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("--shell requires a terminal on standard input (use --force to override)")
	}

	cfg, variant, err := loadCombo(g)
	if err != nil {
		return err
	}
	if err := cfg.WriteSummary(os.Stderr, variant); err != nil {
		return err
	}

	runner := &orchestrator.ExecRunner{
		Engine: g.path(g.SandboxTool),
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	metrics := orchestrator.NewMetrics(nil)
	o, out, err := newOrchestrator(g, cfg, variant, runner, metrics)
	if err != nil {
		return err
	}
	log.Debugf(ctx, "Build ID: %s", o.BuildID())

	if opts.shell {
		return o.Shell(ctx, opts.writable)
	}
	buildErr := o.Build(ctx, opts.targets)
	metricsFile := g.MetricsFile
	if metricsFile == "" {
		metricsFile = out.Abs(workspace.Origin, workspace.MetricsFile)
	} else {
		metricsFile = g.path(metricsFile)
	}
	if err := metrics.WriteFile(metricsFile); err != nil {
		log.Warnf(ctx, "Writing metrics: %v", err)
	}
	return buildErr
}
