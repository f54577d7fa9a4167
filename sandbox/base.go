// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package sandbox

import "fmt"

// Synthesized account database entries.
// Some tools (like Java) need the running user to have a name,
// and nested sandboxes expect nobody/nogroup to exist.
const (
	passwdContent = "user:x:999999:65533:user:/tmp:/bin/bash\n" +
		"nobody:x:65534:65534:nobody:/nonexistent:/usr/sbin/nologin\n"
	groupContent = "group::65533:user\n" +
		"nogroup::65534:nobody\n"
)

// Base returns the baseline configuration every sandbox needs
// regardless of what runs in it:
// /proc, a private /tmp and /dev/shm, the standard device nodes,
// a synthesized /etc/passwd and /etc/group,
// and read-only host library and binary directories.
func Base(cwd string) (*Config, error) {
	c, err := New(cwd)
	if err != nil {
		return nil, err
	}
	for _, m := range baseMounts() {
		if err := c.AddMount(m); err != nil {
			return nil, fmt.Errorf("base sandbox: %v", err)
		}
	}
	// Toolchains expect a writable $HOME.
	c.AddEnv("HOME", "/tmp")
	// The engine does not propagate the host environment.
	c.AddEnv("PATH", "/usr/bin:/usr/sbin:/bin:/sbin")
	return c, nil
}

func baseMounts() []Mount {
	return []Mount{
		// Shares the PID namespace view with the parent.
		{Src: "/proc", Dst: "/proc", IsBind: True, RW: True, Mandatory: True},
		{Src: "/etc/alternatives", Dst: "/etc/alternatives", IsBind: True, RW: False, Mandatory: False},
		{Dst: "/tmp", FSType: "tmpfs", RW: True, IsBind: False, NoExec: False, NoDev: True, NoSUID: True},
		// Named semaphores.
		{Dst: "/dev/shm", FSType: "tmpfs", RW: True, IsBind: False},

		{Src: "/dev/tty", Dst: "/dev/tty", RW: True, IsBind: True},
		{Src: "/proc/self/fd/0", Dst: "/dev/stdin", IsSymlink: True},
		{Src: "/proc/self/fd/1", Dst: "/dev/stdout", IsSymlink: True},
		{Src: "/proc/self/fd/2", Dst: "/dev/stderr", IsSymlink: True},

		{SrcContent: passwdContent, Dst: "/etc/passwd", Mandatory: False},
		{SrcContent: groupContent, Dst: "/etc/group", Mandatory: False},
		// Some build scripts check for mounted images.
		{SrcContent: "\n", Dst: "/etc/mtab", Mandatory: False},

		// A chroot does not provide device nodes,
		// so the required ones are mounted from the host.
		{Src: "/proc/self/fd", Dst: "/dev/fd", IsSymlink: True, Mandatory: False},
		{Src: "/dev/null", Dst: "/dev/null", RW: True, IsBind: True},
		{Src: "/dev/urandom", Dst: "/dev/urandom", RW: False, IsBind: True},
		{Src: "/dev/random", Dst: "/dev/random", RW: False, IsBind: True},
		{Src: "/dev/zero", Dst: "/dev/zero", IsBind: True},

		{Src: "/lib", Dst: "/lib", IsBind: True, RW: False},
		{Src: "/bin", Dst: "/bin", IsBind: True, RW: False},
		{Src: "/sbin", Dst: "/sbin", IsBind: True, RW: False},
		{Src: "/usr", Dst: "/usr", IsBind: True, RW: False},
		{Src: "/lib64", Dst: "/lib64", IsBind: True, RW: False, Mandatory: False},
		{Src: "/lib32", Dst: "/lib32", IsBind: True, RW: False, Mandatory: False},
	}
}
