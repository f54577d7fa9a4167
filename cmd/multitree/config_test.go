// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"zb.256lights.llc/multitree/apisurface"
	"zb.256lights.llc/multitree/combo"
	"zb.256lights.llc/multitree/orchestrator"
)

func TestDefaultGlobalConfig(t *testing.T) {
	got := defaultGlobalConfig()
	if got.Variant != defaultVariant {
		t.Errorf("defaultGlobalConfig().Variant = %q; want %q", got.Variant, defaultVariant)
	}
	if got.SandboxTool == "" {
		t.Error("defaultGlobalConfig().SandboxTool is empty")
	}
	if got.NinjaTool != orchestrator.DefaultNinjaTool {
		t.Errorf("defaultGlobalConfig().NinjaTool = %q; want %q", got.NinjaTool, orchestrator.DefaultNinjaTool)
	}
	if err := got.validate(); err != nil {
		t.Error("validate:", err)
	}
}

func TestGlobalConfigMergeFiles(t *testing.T) {
	dir := t.TempDir()
	var paths [3]string
	paths[0] = filepath.Join(dir, "config1.jwcc")
	if err := os.WriteFile(paths[0], []byte(`{
		// Comments are allowed.
		"debug": true,
		"ninjaTool": "/foo/ninja",
		"arches": ["arm64"],
		"unknownField": {"nested": [1, 2]},
		"jobs": 4,
	}`+"\n"), 0o666); err != nil {
		t.Fatal(err)
	}
	paths[1] = filepath.Join(dir, "missing.jwcc")
	paths[2] = filepath.Join(dir, "config2.jwcc")
	if err := os.WriteFile(paths[2], []byte(`{
		"ninjaTool": "/bar/ninja",
		"apiLevels": {"released": {"Q": 29}, "activeCodenames": ["R"], "current": 30},
	}`+"\n"), 0o666); err != nil {
		t.Fatal(err)
	}

	g := defaultGlobalConfig()
	err := g.mergeFiles(slices.Values(paths[:]))
	if err != nil {
		t.Error("mergeFiles:", err)
	}
	if !g.Debug {
		t.Error("g.Debug = false; want true (config1.jwcc ignored)")
	}
	if got, want := g.NinjaTool, "/bar/ninja"; got != want {
		t.Errorf("g.NinjaTool = %q; want %q", got, want)
	}
	if got, want := g.Jobs, 4; got != want {
		t.Errorf("g.Jobs = %d; want %d", got, want)
	}
	if diff := cmp.Diff([]string{"arm64"}, g.Arches); diff != "" {
		t.Errorf("g.Arches (-want +got):\n%s", diff)
	}
	wantLevels := &apisurface.APILevels{
		Released:        map[string]int{"Q": 29},
		ActiveCodenames: []string{"R"},
		Current:         30,
	}
	if diff := cmp.Diff(wantLevels, g.APILevels); diff != "" {
		t.Errorf("g.APILevels (-want +got):\n%s", diff)
	}
	if got := g.apiLevels(); got != g.APILevels {
		t.Error("g.apiLevels() did not return the configured table")
	}
}

func TestGlobalConfigMergeFilesNullEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jwcc")
	if err := os.WriteFile(path, []byte(`{"env": null}`), 0o666); err != nil {
		t.Fatal(err)
	}
	g := defaultGlobalConfig()
	if err := g.mergeFiles(slices.Values([]string{path})); err != nil {
		t.Fatal("mergeFiles:", err)
	}
	if len(g.Env) != 0 {
		t.Errorf("g.Env = %v; want empty", g.Env)
	}
	f := envFlag(g.Env)
	if err := f.Set("B=2"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"B": "2"}, g.Env); diff != "" {
		t.Errorf("g.Env after -e B=2 (-want +got):\n%s", diff)
	}
}

func TestGlobalConfigMergeFilesBadType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jwcc")
	if err := os.WriteFile(path, []byte(`{"jobs": "many"}`), 0o666); err != nil {
		t.Fatal(err)
	}
	g := defaultGlobalConfig()
	if err := g.mergeFiles(slices.Values([]string{path})); err == nil {
		t.Error("mergeFiles did not return an error")
	}
}

func TestGlobalConfigMergeEnvironment(t *testing.T) {
	t.Setenv("OUT_DIR", "/tmp/out")
	t.Setenv("MULTITREE_COMBO", "")
	t.Setenv("TARGET_BUILD_COMBO", "combos/x.mcombo")
	t.Setenv("TARGET_BUILD_VARIANT", "userdebug")
	t.Setenv("MULTITREE_SANDBOX", "/usr/bin/nsjail")

	g := defaultGlobalConfig()
	if err := g.mergeEnvironment(); err != nil {
		t.Fatal(err)
	}
	want := &globalConfig{
		OutDir:      "/tmp/out",
		Combo:       "combos/x.mcombo",
		Variant:     "userdebug",
		SandboxTool: "/usr/bin/nsjail",
	}
	got := &globalConfig{
		OutDir:      g.OutDir,
		Combo:       g.Combo,
		Variant:     g.Variant,
		SandboxTool: g.SandboxTool,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("after mergeEnvironment (-want +got):\n%s", diff)
	}

	t.Setenv("MULTITREE_COMBO", "combos/y.mcombo")
	if err := g.mergeEnvironment(); err != nil {
		t.Fatal(err)
	}
	if got, want := g.Combo, "combos/y.mcombo"; got != want {
		t.Errorf("with MULTITREE_COMBO, g.Combo = %q; want %q", got, want)
	}
}

func TestGlobalConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(g *globalConfig)
	}{
		{"RelativeTop", func(g *globalConfig) { g.Top = "src" }},
		{"NoVariant", func(g *globalConfig) { g.Variant = "" }},
		{"NoSandbox", func(g *globalConfig) { g.SandboxTool = "" }},
		{"NegativeJobs", func(g *globalConfig) { g.Jobs = -1 }},
		{"BadLevels", func(g *globalConfig) { g.APILevels = &apisurface.APILevels{} }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := defaultGlobalConfig()
			g.Top = t.TempDir()
			test.modify(g)
			if err := g.validate(); err == nil {
				t.Error("validate did not return an error")
			}
		})
	}
}

func TestSandboxEnv(t *testing.T) {
	g := defaultGlobalConfig()
	g.Top = t.TempDir()
	if env, err := g.sandboxEnv(); env != nil || err != nil {
		t.Errorf("without env file, g.sandboxEnv() = %v, %v; want <nil>, <nil>", env, err)
	}

	g.EnvFile = "build.env"
	content := "# Build settings.\nUSE_CCACHE=1\nexport CCACHE_DIR=/tmp/ccache\n"
	if err := os.WriteFile(filepath.Join(g.Top, "build.env"), []byte(content), 0o666); err != nil {
		t.Fatal(err)
	}
	env, err := g.sandboxEnv()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"USE_CCACHE": "1",
		"CCACHE_DIR": "/tmp/ccache",
	}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("g.sandboxEnv() (-want +got):\n%s", diff)
	}
}

func writeCombo(t *testing.T, top, name, content string) string {
	t.Helper()
	dir := filepath.Join(top, combo.DefaultDir)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name+combo.Ext)
	if err := os.WriteFile(path, []byte(content), 0o666); err != nil {
		t.Fatal(err)
	}
	return path
}

const testCombo = `{
	"lunchable": true,
	"system": {"inner-tree": "aosp", "product": "aosp_cf"},
	"vendor": {"inner-tree": "vendor", "product": "oem_cf"},
	"modules": {"art": {"inner-tree": "art"}},
}`

func TestLoadCombo(t *testing.T) {
	top := t.TempDir()
	path := writeCombo(t, top, "cf", testCombo)

	t.Run("NotSet", func(t *testing.T) {
		g := defaultGlobalConfig()
		g.Top = top
		g.Combo = ""
		_, _, err := loadCombo(g)
		var cerr *combo.Error
		if !errors.As(err, &cerr) || cerr.Kind != combo.IdentifyError {
			t.Errorf("loadCombo(...) = _, _, %v; want identify error", err)
		}
	})

	t.Run("ProductVariant", func(t *testing.T) {
		g := defaultGlobalConfig()
		g.Top = top
		g.Combo = "cf-userdebug"
		cfg, variant, err := loadCombo(g)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Filename != path {
			t.Errorf("cfg.Filename = %q; want %q", cfg.Filename, path)
		}
		if variant != "userdebug" {
			t.Errorf("variant = %q; want %q", variant, "userdebug")
		}
	})

	t.Run("File", func(t *testing.T) {
		g := defaultGlobalConfig()
		g.Top = top
		g.Combo = path
		g.Variant = "user"
		_, variant, err := loadCombo(g)
		if err != nil {
			t.Fatal(err)
		}
		if variant != "user" {
			t.Errorf("variant = %q; want %q", variant, "user")
		}
	})

	t.Run("NotLunchable", func(t *testing.T) {
		g := defaultGlobalConfig()
		g.Top = top
		g.Combo = writeCombo(t, top, "partial", `{"system": {"inner-tree": "aosp", "product": "p"}}`)
		_, _, err := loadCombo(g)
		var cerr *combo.Error
		if !errors.As(err, &cerr) || cerr.Kind != combo.ValidateError {
			t.Errorf("loadCombo(...) = _, _, %v; want validate error", err)
		}
	})
}

type nopRunner struct{}

func (nopRunner) Run(ctx context.Context, inv *orchestrator.Invocation) error {
	return nil
}

func TestNewOrchestrator(t *testing.T) {
	top := t.TempDir()
	g := defaultGlobalConfig()
	g.Top = top
	g.Combo = writeCombo(t, top, "cf", testCombo)
	cfg, variant, err := loadCombo(g)
	if err != nil {
		t.Fatal(err)
	}
	o, out, err := newOrchestrator(g, cfg, variant, nopRunner{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if o.BuildID() == "" {
		t.Error("o.BuildID() is empty")
	}
	if got, want := out.Top(), top; got != want {
		t.Errorf("out.Top() = %q; want %q", got, want)
	}
}

func TestEnvFlag(t *testing.T) {
	g := defaultGlobalConfig()
	g.Top = t.TempDir()
	if err := os.WriteFile(filepath.Join(g.Top, "build.env"), []byte("A=file\nB=file\n"), 0o666); err != nil {
		t.Fatal(err)
	}
	g.EnvFile = "build.env"

	f := envFlag(g.Env)
	for _, s := range []string{"B=flag", "C=x=y"} {
		if err := f.Set(s); err != nil {
			t.Errorf("Set(%q): %v", s, err)
		}
	}
	if err := f.Set("novalue"); err == nil {
		t.Error(`Set("novalue") did not return an error`)
	}
	if diff := cmp.Diff([]string{"B=flag", "C=x=y"}, f.GetSlice()); diff != "" {
		t.Errorf("GetSlice() (-want +got):\n%s", diff)
	}

	env, err := g.sandboxEnv()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"A": "file",
		"B": "flag",
		"C": "x=y",
	}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("g.sandboxEnv() (-want +got):\n%s", diff)
	}
}
