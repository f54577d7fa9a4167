// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"zb.256lights.llc/multitree/diag"
	"zb.256lights.llc/multitree/internal/testcontext"
	"zb.256lights.llc/multitree/workspace"
)

const systemContribution = `{
	"name": "publicapi",
	"version": 1,
	"api_domain": "system",
	"cc_libraries": [
		{"name": "libfoo", "api": "libfoo/libfoo.map.txt"}
	]
}
`

// fakeRunner plays the part of each workspace's inner build.
type fakeRunner struct {
	// responses maps a stage to the files written into a workspace's output directory
	// when the stage runs, keyed by the workspace root.
	responses map[Stage]map[string]map[string]string
	// fail maps a stage to the root of the workspace whose invocation fails.
	// The empty string fails the outer invocation.
	fail map[Stage]string

	mu          sync.Mutex
	invocations []*Invocation
	configs     map[string]string
}

func (r *fakeRunner) Run(ctx context.Context, inv *Invocation) error {
	cfg, err := os.ReadFile(inv.ConfigPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.invocations = append(r.invocations, inv)
	if r.configs == nil {
		r.configs = make(map[string]string)
	}
	r.configs[inv.ConfigPath] = string(cfg)
	r.mu.Unlock()

	root := ""
	if inv.Workspace != nil {
		root = inv.Workspace.Key().Root()
	}
	if failRoot, ok := r.fail[inv.Stage]; ok && failRoot == root {
		return errors.New("exit status 1")
	}
	if inv.Workspace == nil {
		return nil
	}
	for name, content := range r.responses[inv.Stage][root] {
		path := inv.Workspace.Out().Abs(workspace.Origin, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o666); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRunner) stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stages []Stage
	for _, inv := range r.invocations {
		stages = append(stages, inv.Stage)
	}
	return stages
}

func (r *fakeRunner) find(stage Stage, root string) *Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invocations {
		if inv.Stage != stage {
			continue
		}
		if (inv.Workspace == nil && root == "") || (inv.Workspace != nil && inv.Workspace.Key().Root() == root) {
			return inv
		}
	}
	return nil
}

type testEnv struct {
	top    string
	out    *workspace.OutDir
	set    *workspace.Set
	diags  *diag.List
	runner *fakeRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	top := t.TempDir()
	for _, dir := range []string{"system", "vendor"} {
		if err := os.Mkdir(filepath.Join(top, dir), 0o777); err != nil {
			t.Fatal(err)
		}
	}
	out, err := workspace.NewOutDir(top, "out")
	if err != nil {
		t.Fatal(err)
	}
	set := workspace.NewSet(&workspace.Options{Out: out, Variant: "userdebug"})
	if _, err := set.Add("system", []string{"system"}, "aosp"); err != nil {
		t.Fatal(err)
	}
	if _, err := set.Add("vendor", []string{"vendor"}, "oem"); err != nil {
		t.Fatal(err)
	}
	return &testEnv{
		top:   top,
		out:   out,
		set:   set,
		diags: new(diag.List),
		runner: &fakeRunner{
			responses: map[Stage]map[string]map[string]string{
				StageInterrogate: {
					"system": {workspace.TreeInfoFile: `{"version": 0, "domain_data": [{"domain": "system"}]}`},
					"vendor": {workspace.TreeInfoFile: `{"version": 0}`},
				},
				StageExport: {
					"system": {filepath.Join(workspace.APIContributionsDir, "publicapi.json"): systemContribution},
				},
				StageAnalyze: {
					"system": {
						workspace.InnerNinjaFile: "",
						workspace.BuildTargetsFile: `{
							"staging": [
								{"dest": "system/bin/hello", "obj": "obj/hello"},
								{"dest": "system/etc/hello.rc", "src": "hello/hello.rc"}
							],
							"dist": [{"dest": "hello.txt", "src": "hello/NOTICE"}]
						}`,
					},
				},
			},
		},
	}
}

func (env *testEnv) newOrchestrator(t *testing.T, metrics *Metrics) *Orchestrator {
	t.Helper()
	o, err := New(&Options{
		Workspaces: env.set,
		Out:        env.out,
		Runner:     env.runner,
		Diag:       env.diags,
		Metrics:    metrics,
		Jobs:       2,
		BuildID:    "build-1234",
	})
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestBuild(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	metrics := NewMetrics(nil)
	o := env.newOrchestrator(t, metrics)

	if err := o.Build(ctx, nil); err != nil {
		t.Fatal("Build:", err)
	}
	if err := env.diags.Err(); err != nil {
		t.Error(err)
	}

	t.Run("StageOrder", func(t *testing.T) {
		got := env.runner.stages()
		want := []Stage{
			StageInterrogate, StageInterrogate,
			StageExport, StageExport,
			StageAnalyze, StageAnalyze,
			StageExecute,
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("stages (-want +got):\n%s", diff)
		}
	})

	t.Run("Interrogate", func(t *testing.T) {
		system := env.set.Domain("system").Workspace
		query := readFile(t, system.Out().Abs(workspace.Origin, workspace.TreeQueryFile))
		if want := `{"build_domains":["system"]}`; query != want {
			t.Errorf("tree query = %s; want %s", query, want)
		}
		inv := env.runner.find(StageInterrogate, "system")
		wantArgs := []string{
			filepath.Join(env.top, "system", InnerBuildTool),
			"--out_dir", "out",
			"describe",
			"--input", filepath.Join("out", workspace.TreeQueryFile),
			"--output", filepath.Join("out", workspace.TreeInfoFile),
		}
		if diff := cmp.Diff(wantArgs, inv.Args); diff != "" {
			t.Errorf("describe args (-want +got):\n%s", diff)
		}
		if info := o.TreeInfo(system.Key()); info == nil || len(info.DomainData) != 1 {
			t.Errorf("TreeInfo(system) = %+v; want 1 domain", info)
		}
		vendor := env.set.Domain("vendor").Workspace
		if info := o.TreeInfo(vendor.Key()); info == nil || info.DomainData == nil || len(info.DomainData) != 0 {
			t.Errorf("TreeInfo(vendor) = %+v; want empty domain data", info)
		}
	})

	t.Run("Export", func(t *testing.T) {
		inv := env.runner.find(StageExport, "vendor")
		wantArgs := []string{
			filepath.Join(env.top, "vendor", InnerBuildTool),
			"--out_dir", "out",
			"export_api_contributions",
			"--inner_tree", filepath.Join(env.top, "vendor"),
			"--api_domain", "vendor",
		}
		if diff := cmp.Diff(wantArgs, inv.Args); diff != "" {
			t.Errorf("export args (-want +got):\n%s", diff)
		}
		wantConfig := filepath.Join(env.top, "out", "trees", "vendor_oem", workspace.SandboxConfigFile)
		if inv.ConfigPath != wantConfig {
			t.Errorf("config path = %q; want %q", inv.ConfigPath, wantConfig)
		}
		cfg := env.runner.configs[wantConfig]
		for _, want := range []string{`envar: "TARGET_PRODUCT=oem"`, `envar: "MULTITREE_BUILD_ID=build-1234"`} {
			if !strings.Contains(cfg, want) {
				t.Errorf("vendor sandbox config does not contain %s", want)
			}
		}
	})

	t.Run("Assemble", func(t *testing.T) {
		text := readFile(t, env.out.Abs(workspace.Origin, workspace.APISurfacesNinjaFile))
		if !strings.HasPrefix(text, "builddir = out\n") {
			t.Errorf("%s does not start with builddir = out:\n%s", workspace.APISurfacesNinjaFile, text)
		}
		if !strings.Contains(text, "\nbuild publicapi-1-libfoo: phony ") {
			t.Errorf("%s does not build publicapi-1-libfoo:\n%s", workspace.APISurfacesNinjaFile, text)
		}
		if !strings.Contains(text, "\nbuild multitree-sdk: phony publicapi-1-libfoo\n") {
			t.Errorf("%s does not aggregate publicapi-1-libfoo", workspace.APISurfacesNinjaFile)
		}
	})

	t.Run("Analyze", func(t *testing.T) {
		inv := env.runner.find(StageAnalyze, "system")
		wantArgs := []string{
			filepath.Join(env.top, "system", InnerBuildTool),
			"--out_dir", "out",
			"analyze",
			"--inner_tree", filepath.Join(env.top, "system"),
			"--api_surfaces_dir", filepath.Join(env.top, "system", "platform", "api_surfaces"),
		}
		if diff := cmp.Diff(wantArgs, inv.Args); diff != "" {
			t.Errorf("analyze args (-want +got):\n%s", diff)
		}
	})

	t.Run("Package", func(t *testing.T) {
		text := readFile(t, env.out.Abs(workspace.Origin, workspace.OuterNinjaFile))
		lines := strings.Split(text, "\n")
		want := []string{
			"builddir = out",
			"subninja out/api_surfaces.ninja",
			"subninja system/out/inner_tree.ninja",
			"  chdir = system",
			"build out/staging/system/bin/hello: copy_file system/out/obj/hello",
			"build out/staging/system/etc/hello.rc: copy_file system/hello/hello.rc",
			"build out/dist/hello.txt: copy_file system/hello/NOTICE",
			"build dist: phony out/dist/hello.txt",
			"build staging: phony out/staging/system/bin/hello out/staging/system/etc/hello.rc",
		}
		for _, line := range want {
			if !slices.Contains(lines, line) {
				t.Errorf("%s missing line %q", workspace.OuterNinjaFile, line)
			}
		}
		if strings.Contains(text, "vendor/out/inner_tree.ninja") {
			t.Errorf("%s includes vendor, which has no build targets", workspace.OuterNinjaFile)
		}
	})

	t.Run("Execute", func(t *testing.T) {
		inv := env.runner.find(StageExecute, "")
		wantArgs := []string{DefaultNinjaTool, "--experimentalEnvvar", "-f", "out/multitree.ninja", "staging"}
		if diff := cmp.Diff(wantArgs, inv.Args); diff != "" {
			t.Errorf("ninja args (-want +got):\n%s", diff)
		}
		cfg := env.runner.configs[filepath.Join(env.top, "out", workspace.SandboxConfigFile)]
		for _, want := range []string{
			`envar: "OUT_DIR=out"`,
			`cwd: "` + env.top + `"`,
			`dst: "` + filepath.Join(env.top, "system", "out") + `"`,
			`dst: "` + filepath.Join(env.top, "vendor", "out") + `"`,
		} {
			if !strings.Contains(cfg, want) {
				t.Errorf("outer sandbox config does not contain %s", want)
			}
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		families, err := metrics.Gatherer().Gather()
		if err != nil {
			t.Fatal(err)
		}
		results := make(map[string]float64)
		for _, f := range families {
			if f.GetName() != "multitree_stage_results_total" {
				continue
			}
			for _, m := range f.GetMetric() {
				var stage, result string
				for _, l := range m.GetLabel() {
					switch l.GetName() {
					case "stage":
						stage = l.GetValue()
					case "result":
						result = l.GetValue()
					}
				}
				results[stage+"/"+result] = m.GetCounter().GetValue()
			}
		}
		want := map[string]float64{
			"interrogate/success": 1,
			"export/success":      1,
			"assemble/success":    1,
			"analyze/success":     1,
			"package/success":     1,
			"execute/success":     1,
		}
		if diff := cmp.Diff(want, results); diff != "" {
			t.Errorf("stage results (-want +got):\n%s", diff)
		}

		path := filepath.Join(t.TempDir(), "multitree.prom")
		if err := metrics.WriteFile(path); err != nil {
			t.Fatal(err)
		}
		if text := readFile(t, path); !strings.Contains(text, "multitree_stub_libraries 1") {
			t.Errorf("metrics file does not report 1 stub library:\n%s", text)
		}
	})
}

func TestBuildTargets(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	o := env.newOrchestrator(t, nil)
	if err := o.Build(ctx, []string{"dist", "staging"}); err != nil {
		t.Fatal(err)
	}
	inv := env.runner.find(StageExecute, "")
	if got, want := inv.Args[len(inv.Args)-2:], []string{"dist", "staging"}; !cmp.Equal(got, want) {
		t.Errorf("ninja targets = %q; want %q", got, want)
	}
}

func TestBuildDescribeVersion(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	env.runner.responses[StageInterrogate]["vendor"][workspace.TreeInfoFile] = `{"version": 1}`
	o := env.newOrchestrator(t, nil)

	err := o.Build(ctx, nil)
	var describeErr *DescribeError
	if !errors.As(err, &describeErr) {
		t.Fatalf("Build(...) = %v; want DescribeError", err)
	}
	if got, want := describeErr.Workspace, env.set.Domain("vendor").Workspace.Key(); got != want {
		t.Errorf("DescribeError.Workspace = %v; want %v", got, want)
	}
	if slices.Contains(env.runner.stages(), StageExport) {
		t.Error("export ran after a failed interrogation")
	}
}

func TestBuildDescribeNoResponse(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	delete(env.runner.responses[StageInterrogate], "system")
	o := env.newOrchestrator(t, nil)

	err := o.Interrogate(ctx)
	var describeErr *DescribeError
	if !errors.As(err, &describeErr) {
		t.Fatalf("Interrogate(...) = %v; want DescribeError", err)
	}
}

func TestBuildStageFailure(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	env.runner.fail = map[Stage]string{StageAnalyze: "vendor"}
	o := env.newOrchestrator(t, nil)

	err := o.Build(ctx, nil)
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Build(...) = %v; want StageError", err)
	}
	if stageErr.Stage != StageAnalyze {
		t.Errorf("StageError.Stage = %q; want %q", stageErr.Stage, StageAnalyze)
	}
	if got, want := stageErr.Workspace, env.set.Domain("vendor").Workspace.Key(); got != want {
		t.Errorf("StageError.Workspace = %v; want %v", got, want)
	}
	if !strings.Contains(err.Error(), "vendor") || !strings.Contains(err.Error(), "analyze") {
		t.Errorf("error %q does not name the tree and stage", err)
	}
	if slices.Contains(env.runner.stages(), StageExecute) {
		t.Error("ninja ran after a failed analysis")
	}
	if _, err := os.Stat(env.out.Abs(workspace.Origin, workspace.OuterNinjaFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("outer ninja file written after a failed analysis (stat error = %v)", err)
	}
}

func TestBuildExecuteFailure(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	env.runner.fail = map[Stage]string{StageExecute: ""}
	o := env.newOrchestrator(t, nil)

	err := o.Build(ctx, nil)
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageExecute || stageErr.Workspace != (workspace.Key{}) {
		t.Fatalf("Build(...) = %v; want outer execute StageError", err)
	}
}

func TestBuildSkipsBadContribution(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	env.runner.responses[StageExport]["vendor"] = map[string]string{
		filepath.Join(workspace.APIContributionsDir, "broken.json"): `{"name": "vendorapi", "bogus": true}`,
	}
	o := env.newOrchestrator(t, nil)

	if err := o.Build(ctx, nil); err != nil {
		t.Fatal("Build:", err)
	}
	if got := env.diags.Len(); got != 1 {
		t.Errorf("%d diagnostics reported; want 1", got)
	}
}

func TestPackageErrors(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	o := env.newOrchestrator(t, nil)
	system := env.set.Domain("system").Workspace
	path := system.Out().Abs(workspace.Origin, workspace.BuildTargetsFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		t.Fatal(err)
	}
	manifest := `{
		"staging": [{"dest": "bin/both", "src": "a", "obj": "b"}],
		"modules": [{"name": "com.example", "type": "apk", "file": "x.apk"}]
	}`
	if err := os.WriteFile(path, []byte(manifest), 0o666); err != nil {
		t.Fatal(err)
	}

	if err := o.Package(ctx); err == nil {
		t.Error("Package did not return an error")
	}
	var messages []string
	for _, d := range env.diags.Diagnostics() {
		if d.Pos.Filename != path {
			t.Errorf("diagnostic %v not positioned in %s", d, path)
		}
		messages = append(messages, d.Message)
	}
	want := []string{
		`modules[0] (com.example): invalid module type "apk"`,
		`staging[0] (bin/both): can't have both "src" and "obj"`,
	}
	if diff := cmp.Diff(want, messages); diff != "" {
		t.Errorf("diagnostics (-want +got):\n%s", diff)
	}
}

func TestPackageYAML(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	o := env.newOrchestrator(t, nil)
	vendor := env.set.Domain("vendor").Workspace
	path := vendor.Out().Abs(workspace.Origin, "build_targets.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		t.Fatal(err)
	}
	manifest := "modules:\n" +
		"  - name: com.example.foo\n" +
		"    type: apex\n" +
		"    file: apex/foo.apex\n"
	if err := os.WriteFile(path, []byte(manifest), 0o666); err != nil {
		t.Fatal(err)
	}

	if err := o.Package(ctx); err != nil {
		t.Fatal("Package:", err)
	}
	text := readFile(t, env.out.Abs(workspace.Origin, workspace.OuterNinjaFile))
	want := "build out/shared/apex/com.example.foo/com.example.foo.apex: copy_file vendor/apex/foo.apex"
	if !slices.Contains(strings.Split(text, "\n"), want) {
		t.Errorf("%s missing %q:\n%s", workspace.OuterNinjaFile, want, text)
	}
}

func TestParseBuildTargetsUnknownField(t *testing.T) {
	tests := []struct {
		filename string
		data     string
	}{
		{"build_targets.json", `{"staging": [], "extra": 1}`},
		{"build_targets.yaml", "staging: []\nextra: 1\n"},
	}
	for _, test := range tests {
		_, err := ParseBuildTargets(test.filename, []byte(test.data))
		var d *diag.Diagnostic
		if !errors.As(err, &d) {
			t.Errorf("ParseBuildTargets(%q, ...) = _, %v; want diagnostic", test.filename, err)
		}
	}
}

func TestParseTreeInfo(t *testing.T) {
	good := []struct {
		data        string
		domainCount int
	}{
		{`{}`, 0},
		{`{"version": 0}`, 0},
		{`{"domain_data": null}`, 0},
		{`{"version": 0, "domain_data": [{"domain": "system"}, "vendor"]}`, 2},
	}
	for _, test := range good {
		info, err := ParseTreeInfo([]byte(test.data))
		if err != nil {
			t.Errorf("ParseTreeInfo(%s): %v", test.data, err)
			continue
		}
		if info.DomainData == nil || len(info.DomainData) != test.domainCount {
			t.Errorf("ParseTreeInfo(%s).DomainData = %v; want %d items", test.data, info.DomainData, test.domainCount)
		}
	}

	bad := []string{
		``,
		`{`,
		`[]`,
		`"version"`,
		`{"version": 1}`,
		`{"version": "0"}`,
		`{"version": 0, "extra": true}`,
		`{"domain_data": {}}`,
	}
	for _, data := range bad {
		if info, err := ParseTreeInfo([]byte(data)); err == nil {
			t.Errorf("ParseTreeInfo(%q) = %+v, <nil>; want error", data, info)
		}
	}
}

func TestShell(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	env.runner.fail = map[Stage]string{StageShell: ""}
	t.Setenv("HOME", "/home/builder")
	o := env.newOrchestrator(t, nil)

	if err := o.Shell(ctx, true); err != nil {
		t.Fatal("Shell:", err)
	}
	inv := env.runner.find(StageShell, "")
	if inv == nil {
		t.Fatal("shell not run")
	}
	if !inv.Interactive || !cmp.Equal(inv.Args, []string{"/bin/bash"}) {
		t.Errorf("shell invocation = %+v; want interactive /bin/bash", inv)
	}
	wantPath := filepath.Join(env.top, "out", workspace.SandboxConfigFile+ShellConfigSuffix)
	if inv.ConfigPath != wantPath {
		t.Errorf("config path = %q; want %q", inv.ConfigPath, wantPath)
	}
	cfg := env.runner.configs[wantPath]
	for _, want := range []string{`envar: "TERM"`, `envar: "HOME=/home/builder"`} {
		if !strings.Contains(cfg, want) {
			t.Errorf("shell sandbox config does not contain %s:\n%s", want, cfg)
		}
	}
}

func TestOuterSandboxCollision(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	env := newTestEnv(t)
	// Same tree built for another product mounts a different output directory
	// at the same place.
	if _, err := env.set.Add("other", []string{"system"}, "other"); err != nil {
		t.Fatal(err)
	}
	o := env.newOrchestrator(t, nil)
	if _, err := o.OuterSandbox(ctx); err == nil {
		t.Error("OuterSandbox did not return an error")
	}
	if err := o.Build(ctx, nil); err == nil {
		t.Error("Build did not return an error")
	}
	if stages := env.runner.stages(); len(stages) > 0 {
		t.Errorf("child processes ran for stages %v; want none", stages)
	}
}

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	ctx, cancel := testcontext.New(t)
	defer cancel()
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	engine := filepath.Join(dir, "engine")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > '" + argsFile + "'\n"
	if err := os.WriteFile(engine, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	r := &ExecRunner{Engine: engine}
	err := r.Run(ctx, &Invocation{
		Stage:      StageExecute,
		ConfigPath: "/out/nsjail.cfg",
		Args:       []string{"ninja", "-f", "out/multitree.ninja"},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimSuffix(readFile(t, argsFile), "\n"), "\n")
	want := []string{"--config", "/out/nsjail.cfg", "--", "ninja", "-f", "out/multitree.ninja"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("engine args (-want +got):\n%s", diff)
	}

	if err := os.Chmod(engine, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.Run(ctx, &Invocation{ConfigPath: "/out/nsjail.cfg", Args: []string{"true"}}); err == nil {
		t.Error("Run with non-executable engine did not return an error")
	}
}
