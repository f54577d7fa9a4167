// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"slices"

	"zb.256lights.llc/multitree/workspace"
	"zombiezen.com/go/log"
)

// ShellConfigSuffix is appended to the outer sandbox configuration file name
// for interactive shells.
const ShellConfigSuffix = "-shell"

// DefaultTargets returns the targets built when none are requested.
func DefaultTargets() []string {
	return []string{StagingPhony}
}

// Execute runs Ninja over the outer Ninja file inside the outer sandbox.
// If targets is empty, [DefaultTargets] are built.
func (o *Orchestrator) Execute(ctx context.Context, targets []string) error {
	return o.runStage(ctx, StageExecute, func(ctx context.Context) error {
		cfg, err := o.OuterSandbox(ctx)
		if err != nil {
			return err
		}
		cfg.AddEnv(OutDirEnv, o.opts.Out.Path(workspace.Outer))
		configPath := o.opts.Out.Abs(workspace.Origin, workspace.SandboxConfigFile)
		if err := cfg.WriteFile(configPath); err != nil {
			return fmt.Errorf("%s: %v", StageExecute, err)
		}

		if len(targets) == 0 {
			targets = DefaultTargets()
		}
		argv := []string{
			o.opts.NinjaTool,
			"--experimentalEnvvar",
			"-f", o.opts.Out.Path(workspace.Outer, workspace.OuterNinjaFile),
		}
		argv = append(argv, slices.Clone(targets)...)
		log.Infof(ctx, "Running ninja for %q", targets)
		o.metrics.countInvocation(StageExecute)
		err = o.opts.Runner.Run(ctx, &Invocation{
			Stage:      StageExecute,
			ConfigPath: configPath,
			Args:       argv,
		})
		if err != nil {
			return &StageError{Stage: StageExecute, Err: err}
		}
		return nil
	})
}

// Shell runs an interactive shell inside the outer sandbox.
// If writable is true, the source tree is mounted read-write
// and HOME is passed through.
// The shell's exit status is ignored.
func (o *Orchestrator) Shell(ctx context.Context, writable bool) error {
	cfg, err := o.OuterSandbox(ctx)
	if err != nil {
		return err
	}
	cfg.InheritEnv("TERM")
	if writable {
		cfg.MakeWritable(ctx)
		if home := os.Getenv("HOME"); home != "" {
			log.Infof(ctx, "Setting HOME=%s", home)
			cfg.AddEnv("HOME", home)
		}
	}
	configPath := o.opts.Out.Abs(workspace.Origin, workspace.SandboxConfigFile) + ShellConfigSuffix
	if err := cfg.WriteFile(configPath); err != nil {
		return fmt.Errorf("%s: %v", StageShell, err)
	}
	err = o.opts.Runner.Run(ctx, &Invocation{
		Stage:       StageShell,
		ConfigPath:  configPath,
		Args:        []string{"/bin/bash"},
		Interactive: true,
	})
	if err != nil {
		log.Debugf(ctx, "Shell exited: %v", err)
	}
	return nil
}

func mkdirs(paths ...string) error {
	for _, p := range paths {
		if err := os.MkdirAll(p, 0o777); err != nil {
			return err
		}
	}
	return nil
}
