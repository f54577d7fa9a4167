// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-json-experiment/json/jsontext"
	"zb.256lights.llc/multitree/internal/osutil"
)

// Identifiers the sandboxed user and group are mapped to.
// They were chosen arbitrarily.
const (
	SandboxUID = 999999
	SandboxGID = 65533
)

const configHeader = `name: "multitree-build-sandbox"
description: "Sandboxed multi-tree build."
description: "No network access and a limited access to local host resources."

log_level: %s
# All configuration options are described in
# https://github.com/google/nsjail/blob/master/config.proto

# Run once then exit
mode: ONCE

# No time limit
time_limit: 0

# Limits memory usage
rlimit_as_type: SOFT
# Maximum size of core dump files
rlimit_core_type: SOFT
# Limits use of CPU time
rlimit_cpu_type: SOFT
# Maximum file size
rlimit_fsize_type: SOFT
# Maximum number of file descriptors opened
rlimit_nofile_type: SOFT
# Maximum stack size
rlimit_stack_type: SOFT
# Maximum number of threads
rlimit_nproc_type: SOFT

# Allow terminal control so that CTRL-C cancels jobs
# without exiting the jail.
skip_setsid: true

mount_proc: false

cwd: %s

uidmap {
  inside_id: "%d"
  outside_id: ""
  count: 1
}

gidmap {
  inside_id: "%d"
  outside_id: ""
  count: 1
}

# Share PID namespace between parent and child process
# so that build daemons survive between invocations.
clone_newpid: false

`

// MarshalText renders the configuration in the engine's text format.
func (c *Config) MarshalText() ([]byte, error) {
	return c.AppendText(nil)
}

// AppendText appends the configuration in the engine's text format to dst.
func (c *Config) AppendText(dst []byte) ([]byte, error) {
	logLevel := "WARNING"
	if c.Verbose {
		logLevel = "INFO"
	}
	cwd, err := jsontext.AppendQuote(nil, c.cwd)
	if err != nil {
		return dst, fmt.Errorf("render sandbox config: cwd: %v", err)
	}
	dst = fmt.Appendf(dst, configHeader, logLevel, cwd, SandboxUID, SandboxGID)

	for _, ev := range c.env {
		dst, err = appendEnvVar(dst, ev)
		if err != nil {
			return dst, fmt.Errorf("render sandbox config: %v", err)
		}
	}
	dst = append(dst, '\n')
	for _, m := range c.mounts {
		dst, err = m.AppendText(dst)
		if err != nil {
			return dst, fmt.Errorf("render sandbox config: %v", err)
		}
	}
	dst = append(dst, '\n')
	for _, opt := range c.options {
		if opt.Comment != "" {
			dst = fmt.Appendf(dst, "# %s\n", opt.Comment)
		}
		dst = fmt.Appendf(dst, "%s: %s\n", opt.Name, opt.Value)
	}
	return dst, nil
}

// WriteFile renders the configuration to the named file,
// creating its parent directories as needed.
func (c *Config) WriteFile(path string) error {
	data, err := c.MarshalText()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	return osutil.WriteFilePerm(path, data, 0o644)
}

func appendEnvVar(dst []byte, ev EnvVar) ([]byte, error) {
	s := ev.Name
	if !ev.Inherit {
		s += "=" + ev.Value
	}
	dst = append(dst, "envar: "...)
	dst, err := jsontext.AppendQuote(dst, s)
	if err != nil {
		return dst, fmt.Errorf("envar %s: %v", ev.Name, err)
	}
	dst = append(dst, '\n')
	return dst, nil
}

// AppendText appends the mount's configuration block to dst.
// Empty strings and unset booleans are omitted.
func (m Mount) AppendText(dst []byte) ([]byte, error) {
	dst = append(dst, "mount {\n"...)
	strs := []struct {
		name  string
		value string
	}{
		{"src", m.Src},
		{"prefix_src_env", m.PrefixSrcEnv},
		{"src_content", m.SrcContent},
		{"dst", m.Dst},
		{"prefix_dst_env", m.PrefixDstEnv},
		{"fstype", m.FSType},
		{"options", m.Options},
	}
	for _, field := range strs {
		if field.value == "" {
			continue
		}
		dst = append(dst, "  "...)
		dst = append(dst, field.name...)
		dst = append(dst, ": "...)
		var err error
		dst, err = jsontext.AppendQuote(dst, field.value)
		if err != nil {
			return dst, fmt.Errorf("mount %s: %s: %v", m.key(), field.name, err)
		}
		dst = append(dst, '\n')
	}
	bools := []struct {
		name  string
		value Bool
	}{
		{"is_bind", m.IsBind},
		{"rw", m.RW},
		{"is_dir", m.IsDir},
		{"mandatory", m.Mandatory},
		{"is_symlink", m.IsSymlink},
		{"nosuid", m.NoSUID},
		{"nodev", m.NoDev},
		{"noexec", m.NoExec},
	}
	for _, field := range bools {
		if !field.value.IsSet() {
			continue
		}
		dst = fmt.Appendf(dst, "  %s: %v\n", field.name, field.value)
	}
	dst = append(dst, "}\n\n"...)
	return dst, nil
}
