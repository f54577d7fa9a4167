// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package apisurface

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"zb.256lights.llc/multitree/diag"
	"zb.256lights.llc/multitree/ninja"
	"zb.256lights.llc/multitree/workspace"
)

// VersionedSurfaces is the list of API surfaces whose native stubs
// are generated for every API level.
var VersionedSurfaces = []string{"publicapi", "module-libapi"}

// APILevelsFile is the name of the generated API level map
// in the API surfaces intermediates directory.
const APILevelsFile = "api_levels.json"

const (
	stubgenRule     = "genCcStubsRule"
	stubgenVariable = "ndkstubgen"
)

var stubgenRuleDef = ninja.MustRule(stubgenRule, map[string]string{
	"description": "Generate stub .c files from .map.txt API description files",
	"command":     "${ndkstubgen} --arch ${arch} --api ${apiLevel} --api-map ${apiMap} ${additionalArgs} ${in} ${out}",
})

// stubgenArgs returns the surface-specific arguments to the stub generator.
func stubgenArgs(surface string) string {
	switch surface {
	case "vendorapi":
		return "--llndk"
	case "systemapi":
		// Contributions come from both APEXes and the platform.
		return "--apex --systemapi"
	default:
		return ""
	}
}

// ccAssembler stages headers and API description files of native libraries
// and generates stubs for each API level and architecture.
type ccAssembler struct{}

func (ccAssembler) Assemble(ctx context.Context, a *Assembly, lib *StubLibrary) error {
	if err := a.addStubgen(); err != nil {
		return err
	}
	levelsFile, err := a.addAPILevelsFile()
	if err != nil {
		return err
	}
	versions := []string{lib.Version}
	if slices.Contains(VersionedSurfaces, lib.Surface) {
		versions = a.levels.Versions()
	}
	extraArgs := stubgenArgs(lib.Surface)

	var deps []string
	for _, c := range lib.Contributions {
		staging := a.stagingDir(lib, c)
		for _, hs := range c.Library.Headers {
			if hs == nil || hs.Name == "" {
				a.reportf(ctx, diag.Position{Filename: c.Filename}, "%s: header set without a name", lib.Name)
				continue
			}
			includeDir := filepath.Join(staging, hs.Name)
			for _, file := range hs.Headers {
				rel, err := filepath.Rel(hs.Root, file)
				if err != nil || !filepath.IsLocal(rel) {
					a.reportf(ctx, diag.Position{Filename: c.Filename}, "%s: header %s is not under %s", hs.Name, file, hs.Root)
					continue
				}
				dst := filepath.Join(includeDir, rel)
				if err := a.graph.AddCopyFile(dst, sourcePath(c, file)); err != nil {
					return err
				}
				deps = append(deps, dst)
			}
		}

		api, err := a.stageAPIFile(c, staging)
		if err != nil {
			return err
		}
		deps = append(deps, api)

		work := a.workDir(lib, c)
		for _, version := range versions {
			for _, arch := range a.arches {
				dir := filepath.Join(work, version, arch)
				outputs := []string{
					filepath.Join(dir, "stub.c"),
					filepath.Join(dir, "stub.map"),
					filepath.Join(dir, "abi_symbol_list.txt"),
				}
				err := a.graph.AddBuildAction(&ninja.BuildAction{
					Outputs:   outputs,
					Rule:      stubgenRule,
					Inputs:    []string{api},
					Implicits: []string{a.stubgen, levelsFile},
					Variables: map[string]string{
						"arch":           arch,
						"apiLevel":       version,
						"apiMap":         levelsFile,
						"additionalArgs": extraArgs,
					},
				})
				if err != nil {
					return err
				}
				deps = append(deps, outputs...)
			}
		}
	}
	return a.finish(lib, deps)
}

// addStubgen declares the stub generator variable and rule once per assembly.
func (a *Assembly) addStubgen() error {
	a.stubOnce.Do(func() {
		if a.stubErr = a.graph.AddVariable(stubgenVariable, a.stubgen); a.stubErr != nil {
			return
		}
		a.stubErr = a.graph.AddRule(stubgenRuleDef)
	})
	return a.stubErr
}

// APILevelsPath returns the path of the generated API level map
// relative to the outer tree root.
func (a *Assembly) APILevelsPath() string {
	return a.out.Path(workspace.Outer, workspace.APISurfacesWorkDir(APILevelsFile))
}

// addAPILevelsFile adds the action that writes the API level map
// the first time it is called and returns the map's path.
func (a *Assembly) addAPILevelsFile() (string, error) {
	path := a.APILevelsPath()
	a.levelsOnce.Do(func() {
		data, err := a.levels.MarshalMap()
		if err != nil {
			a.levelsErr = fmt.Errorf("api levels: %v", err)
			return
		}
		a.levelsErr = a.graph.AddWriteFile(path, string(data))
	})
	return path, a.levelsErr
}
