// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"zb.256lights.llc/multitree/internal/osutil"
	"zb.256lights.llc/multitree/internal/xmaps"
	"zb.256lights.llc/multitree/sandbox"
	"zombiezen.com/go/log"
)

// Environment variables set in every workspace sandbox.
const (
	ProductEnv = "TARGET_PRODUCT"
	VariantEnv = "TARGET_BUILD_VARIANT"
)

// compose builds the workspace's sandbox configuration:
// the base policy, the source tree (read-only),
// the output directory (read-write) mounted at <root>/out,
// the published API surfaces (read-only),
// and the version-controlled projects of each overlay root
// that the primary root does not provide.
func (w *Workspace) compose(ctx context.Context) (*sandbox.Config, error) {
	srcRoot := w.Root()
	cfg, err := sandbox.Base(srcRoot)
	if err != nil {
		return nil, fmt.Errorf("sandbox for %v: %v", w.key, err)
	}
	cfg.Verbose = w.opts.Verbose

	if w.key.product != "" {
		cfg.AddEnv(ProductEnv, w.key.product)
	}
	cfg.AddEnv(VariantEnv, w.opts.Variant)
	for k, v := range xmaps.Sorted(w.opts.Env) {
		cfg.AddEnv(k, v)
	}

	top := w.opts.Out.Top()
	melds := w.key.Melds()
	treeRoot := srcRoot
	if len(melds) > 0 && strings.HasPrefix(melds[0], OverrideMarker) {
		treeRoot = abs(top, strings.TrimPrefix(melds[0], OverrideMarker))
		melds = melds[1:]
		log.Infof(ctx, "Overlaying %s with %s", w.key.root, treeRoot)
	}
	if err := cfg.AddMount(sandbox.Mount{
		Src:       treeRoot,
		Dst:       srcRoot,
		IsBind:    sandbox.True,
		RW:        sandbox.False,
		Mandatory: sandbox.True,
	}); err != nil {
		return nil, fmt.Errorf("sandbox for %v: %v", w.key, err)
	}

	outOrigin := w.layout.Abs(Origin)
	if err := os.MkdirAll(outOrigin, 0o777); err != nil {
		return nil, fmt.Errorf("sandbox for %v: %v", w.key, err)
	}
	if err := cfg.AddMount(sandbox.Mount{
		Src:       outOrigin,
		Dst:       w.layout.Abs(Outer),
		IsBind:    sandbox.True,
		RW:        sandbox.True,
		Mandatory: sandbox.True,
	}); err != nil {
		return nil, fmt.Errorf("sandbox for %v: %v", w.key, err)
	}

	apiSurfaces := w.opts.Out.Abs(Origin, APISurfacesDir)
	if err := os.MkdirAll(apiSurfaces, 0o777); err != nil {
		return nil, fmt.Errorf("sandbox for %v: %v", w.key, err)
	}
	if err := cfg.AddMount(sandbox.Mount{
		Src:       apiSurfaces,
		Dst:       filepath.Join(srcRoot, PublishedAPISurfacesDir),
		IsBind:    sandbox.True,
		RW:        sandbox.False,
		Mandatory: sandbox.False,
	}); err != nil {
		return nil, fmt.Errorf("sandbox for %v: %v", w.key, err)
	}

	for _, m := range melds {
		if err := meld(ctx, cfg, srcRoot, abs(top, m)); err != nil {
			return nil, fmt.Errorf("sandbox for %v: meld %s: %v", w.key, m, err)
		}
	}
	return cfg, nil
}

// meld walks the overlay root shared and binds each version-controlled project
// into the corresponding directory of primary,
// unless the destination is already mounted or populated.
func meld(ctx context.Context, cfg *sandbox.Config, primary, shared string) error {
	if _, err := os.Stat(shared); errors.Is(err, os.ErrNotExist) {
		log.Warnf(ctx, "Overlay root %s does not exist", shared)
		return nil
	}
	vc, err := isVersionControlled(shared)
	if err != nil {
		return err
	}
	if vc {
		// TODO(someday): Meld the submodules of an overlay root
		// that is a single project.
		log.Warnf(ctx, "Skipping %s: overlay root is a single project", shared)
		return nil
	}
	return filepath.WalkDir(shared, func(src string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Name() == git.GitDirName {
			return skipDir(entry)
		}
		if src == shared || !isDirEntry(src, entry) {
			return nil
		}
		vc, err := isVersionControlled(src)
		if err != nil {
			return err
		}
		if !vc {
			return nil
		}
		rel, err := filepath.Rel(shared, src)
		if err != nil {
			return err
		}
		if err := meldProject(ctx, cfg, src, filepath.Join(primary, rel)); err != nil {
			return err
		}
		return skipDir(entry)
	})
}

// skipDir stops [filepath.WalkDir] from descending into entry.
func skipDir(entry fs.DirEntry) error {
	if entry.IsDir() {
		return filepath.SkipDir
	}
	// Symbolic links are not followed.
	return nil
}

func meldProject(ctx context.Context, cfg *sandbox.Config, src, dst string) error {
	if cfg.HasDestination(dst) {
		log.Infof(ctx, "%s already mounted, ignoring %s", dst, src)
		return nil
	}
	if _, err := os.Lstat(dst); err == nil {
		// The sandbox engine creates empty directories for its mount points,
		// so an empty directory is treated as absent.
		empty, err := osutil.IsEmptyDir(dst)
		if err != nil {
			return err
		}
		if !empty {
			log.Debugf(ctx, "%s is present in the primary tree, ignoring %s", dst, src)
			return nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	log.Infof(ctx, "Melding %s into %s", src, dst)
	return cfg.AddMount(sandbox.Mount{
		Src:       src,
		Dst:       dst,
		IsBind:    sandbox.True,
		RW:        sandbox.False,
		Mandatory: sandbox.True,
	})
}

// isDirEntry reports whether entry is a directory
// or a symbolic link to one.
func isDirEntry(path string, entry fs.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// isVersionControlled reports whether dir is the top of a Git working copy.
// Workspaces synced by repo use a symbolic link for the .git directory.
func isVersionControlled(dir string) (bool, error) {
	if _, err := os.Stat(filepath.Join(dir, git.GitDirName)); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	_, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{
		DetectDotGit:          false,
		EnableDotGitCommonDir: true,
	})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %v", dir, err)
	}
	return true, nil
}
