// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

//go:build !unix

package osutil

import "os/exec"

// LookExecutable resolves name like [exec.LookPath].
func LookExecutable(name string) (string, error) {
	return exec.LookPath(name)
}
