// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"zb.256lights.llc/multitree/internal/xmaps"
)

// envFlag is the implementation of [github.com/spf13/pflag.Value]
// and [github.com/spf13/pflag.SliceValue]
// for NAME=VALUE environment variable assignments.
// Later assignments to the same name win.
type envFlag map[string]string

var _ pflag.SliceValue = envFlag(nil)

func (f envFlag) Type() string {
	return "NAME=VALUE"
}

func (f envFlag) String() string {
	return "[" + strings.Join(f.GetSlice(), ",") + "]"
}

func (f envFlag) Set(s string) error {
	return f.Append(s)
}

func (f envFlag) Append(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("%q is not a NAME=VALUE assignment", s)
	}
	f[name] = value
	return nil
}

func (f envFlag) Replace(vals []string) error {
	clear(f)
	for _, s := range vals {
		if err := f.Append(s); err != nil {
			return err
		}
	}
	return nil
}

func (f envFlag) GetSlice() []string {
	list := make([]string, 0, len(f))
	for k, v := range xmaps.Sorted(f) {
		list = append(list, k+"="+v)
	}
	return list
}
