// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"zb.256lights.llc/multitree/internal/osutil"
	"zb.256lights.llc/multitree/sandbox"
	"zb.256lights.llc/multitree/workspace"
	"zombiezen.com/go/log"
)

// Invocation is a single sandboxed child process.
type Invocation struct {
	Stage Stage
	// Workspace is the inner tree being invoked
	// or nil if the invocation runs in the outer sandbox.
	Workspace *workspace.Workspace
	// ConfigPath is the path to the sandbox configuration file.
	// The file has been written by the time the [Runner] is called.
	ConfigPath string
	// Args is the command line to run inside the sandbox.
	Args []string
	// Interactive is true if the process should be connected to the terminal.
	Interactive bool
}

// Runner runs sandboxed child processes.
// Run blocks until the process exits
// and returns an error if the process could not be started
// or exited unsuccessfully.
type Runner interface {
	Run(ctx context.Context, inv *Invocation) error
}

// ExecRunner is a [Runner] that runs the sandboxing engine as a subprocess.
type ExecRunner struct {
	// Engine is the path to the sandboxing engine.
	Engine string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements [Runner].
func (r *ExecRunner) Run(ctx context.Context, inv *Invocation) error {
	engine, err := osutil.LookExecutable(r.Engine)
	if err != nil {
		return fmt.Errorf("sandbox engine: %w", err)
	}
	c := sandbox.Command(ctx, engine, inv.ConfigPath, inv.Args...)
	if inv.Interactive {
		c.Stdin = r.Stdin
	}
	c.Stdout = r.Stdout
	c.Stderr = r.Stderr
	log.Infof(ctx, "%% %s", strings.Join(c.Args, " "))
	return c.Run()
}
