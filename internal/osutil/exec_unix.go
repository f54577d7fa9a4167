// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

//go:build unix

package osutil

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// LookExecutable resolves name like [exec.LookPath]
// and then verifies that the current user may execute the result.
func LookExecutable(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return path, nil
}
