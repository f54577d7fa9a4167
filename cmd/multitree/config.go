// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"slices"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
	"go4.org/xdgdir"
	"zb.256lights.llc/multitree/apisurface"
	"zb.256lights.llc/multitree/orchestrator"
)

// Tool paths relative to the outer tree root.
const (
	defaultSandboxTool = "orchestrator/prebuilts/build-tools/linux-x86/bin/nsjail"
	defaultCopyTool    = "orchestrator/prebuilts/build-tools/linux-x86/bin/acp"
)

const defaultVariant = "eng"

type globalConfig struct {
	Debug         bool                  `json:"debug"`
	Top           string                `json:"-"`
	OutDir        string                `json:"outDir"`
	Combo         string                `json:"combo"`
	Variant       string                `json:"variant"`
	SandboxTool   string                `json:"sandboxTool"`
	NinjaTool     string                `json:"ninjaTool"`
	CopyTool      string                `json:"copyTool"`
	StubGenerator string                `json:"stubGenerator"`
	Arches        []string              `json:"arches"`
	Jobs          int                   `json:"jobs"`
	EnvFile       string                `json:"envFile"`
	Env           map[string]string     `json:"env"`
	APILevels     *apisurface.APILevels `json:"apiLevels"`
	MetricsFile   string                `json:"metricsFile"`
}

func defaultGlobalConfig() *globalConfig {
	g := &globalConfig{
		Variant:       defaultVariant,
		SandboxTool:   defaultSandboxTool,
		NinjaTool:     orchestrator.DefaultNinjaTool,
		CopyTool:      defaultCopyTool,
		StubGenerator: apisurface.DefaultStubGenerator,
		Arches:        slices.Clone(apisurface.DefaultArches),
		Env:           make(map[string]string),
	}
	g.Top, _ = os.Getwd()
	return g
}

// configFiles returns the configuration files to merge
// from least to most preferred.
func configFiles() iter.Seq[string] {
	return func(yield func(string) bool) {
		dirs := xdgdir.Config.SearchPaths()
		for _, dir := range slices.Backward(dirs) {
			if !yield(filepath.Join(dir, "multitree", "config.jwcc")) {
				return
			}
		}
	}
}

func (g *globalConfig) mergeEnvironment() error {
	if dir := os.Getenv("OUT_DIR"); dir != "" {
		g.OutDir = dir
	}
	if path := os.Getenv("MULTITREE_COMBO"); path != "" {
		g.Combo = path
	} else if path := os.Getenv("TARGET_BUILD_COMBO"); path != "" {
		g.Combo = path
	}
	if variant := os.Getenv("TARGET_BUILD_VARIANT"); variant != "" {
		g.Variant = variant
	}
	if path := os.Getenv("MULTITREE_SANDBOX"); path != "" {
		g.SandboxTool = path
	}
	return nil
}

func (g *globalConfig) mergeFiles(paths iter.Seq[string]) error {
	for path := range paths {
		huJSONData, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		jsonData, err := hujson.Standardize(huJSONData)
		if err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
		if err := jsonv2.Unmarshal(jsonData, g, jsonv2.RejectUnknownMembers(false)); err != nil {
			return fmt.Errorf("read %s: %v", path, err)
		}
	}
	return nil
}

// UnmarshalJSONFrom unmarshals the configuration object from the JSON decoder,
// merging any fields in the JSON object with existing values.
func (g *globalConfig) UnmarshalJSONFrom(in *jsontext.Decoder) error {
	tok, err := in.ReadToken()
	if err != nil {
		return err
	}
	if got := tok.Kind(); got != '{' {
		return fmt.Errorf("config must be an object not a %v", got)
	}

	for {
		keyToken, err := in.ReadToken()
		if err != nil {
			return err
		}
		switch kind := keyToken.Kind(); kind {
		case '}':
			return nil
		case '"':
			// Keep going.
		default:
			return fmt.Errorf("unexpected non-string key (%v) in object", kind)
		}

		var dst any
		switch k := keyToken.String(); k {
		case "debug":
			dst = &g.Debug
		case "outDir":
			dst = &g.OutDir
		case "combo":
			dst = &g.Combo
		case "variant":
			dst = &g.Variant
		case "sandboxTool":
			dst = &g.SandboxTool
		case "ninjaTool":
			dst = &g.NinjaTool
		case "copyTool":
			dst = &g.CopyTool
		case "stubGenerator":
			dst = &g.StubGenerator
		case "arches":
			// Replaces the default list.
			g.Arches = nil
			dst = &g.Arches
		case "jobs":
			dst = &g.Jobs
		case "envFile":
			dst = &g.EnvFile
		case "env":
			dst = &g.Env
		case "apiLevels":
			g.APILevels = new(apisurface.APILevels)
			dst = g.APILevels
		case "metricsFile":
			dst = &g.MetricsFile
		default:
			if reject, _ := jsonv2.GetOption(in.Options(), jsonv2.RejectUnknownMembers); reject {
				return fmt.Errorf("unmarshal config: unknown field %q", k)
			}
			if err := in.SkipValue(); err != nil {
				return err
			}
			continue
		}
		if err := jsonv2.UnmarshalDecode(in, dst); err != nil {
			return fmt.Errorf("unmarshal config.%s: %w", keyToken.String(), err)
		}
		if g.Env == nil {
			// "env": null clears the map, but flags still add to it.
			g.Env = make(map[string]string)
		}
	}
}

func (g *globalConfig) validate() error {
	if !filepath.IsAbs(g.Top) {
		return fmt.Errorf("outer tree root %q is not absolute", g.Top)
	}
	if g.Variant == "" {
		return fmt.Errorf("build variant not set")
	}
	if g.SandboxTool == "" {
		return fmt.Errorf("MULTITREE_SANDBOX not set")
	}
	if g.NinjaTool == "" {
		return fmt.Errorf("ninja tool not set")
	}
	if g.Jobs < 0 {
		return fmt.Errorf("jobs must be non-negative (got %d)", g.Jobs)
	}
	if g.APILevels != nil {
		if err := g.APILevels.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// path resolves a path in the configuration against the outer tree root.
func (g *globalConfig) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(g.Top, p)
}

// sandboxEnv returns the additional variables for every inner-tree sandbox.
// Variables in g.Env override those in g.EnvFile.
func (g *globalConfig) sandboxEnv() (map[string]string, error) {
	if g.EnvFile == "" && len(g.Env) == 0 {
		return nil, nil
	}
	env := make(map[string]string)
	if g.EnvFile != "" {
		var err error
		env, err = godotenv.Read(g.path(g.EnvFile))
		if err != nil {
			return nil, fmt.Errorf("read env file: %v", err)
		}
	}
	maps.Copy(env, g.Env)
	return env, nil
}

func (g *globalConfig) apiLevels() *apisurface.APILevels {
	if g.APILevels != nil {
		return g.APILevels
	}
	return apisurface.DefaultAPILevels()
}
