// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"context"
	"os/exec"
)

// Args returns the engine arguments (excluding the engine binary itself)
// to run argv under the configuration file at configPath.
func Args(configPath string, argv ...string) []string {
	args := make([]string, 0, len(argv)+3)
	args = append(args, "--config", configPath, "--")
	args = append(args, argv...)
	return args
}

// Command returns a command that runs argv inside the sandbox
// described by the configuration file at configPath.
// The caller is responsible for writing the configuration file first
// (see [Config.WriteFile]).
func Command(ctx context.Context, engine, configPath string, argv ...string) *exec.Cmd {
	return exec.CommandContext(ctx, engine, Args(configPath, argv...)...)
}
