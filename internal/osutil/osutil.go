// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package osutil provides convenience functions for working with the local filesystem.
package osutil

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
)

// WriteFilePerm replaces the named file with data
// and sets its permission bits to perm.
// The file is written to a temporary file in the same directory
// and renamed into place, so readers never observe a partial file.
func WriteFilePerm(name string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %v", name, err)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if err == nil {
		err = f.Chmod(perm)
	}
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err == nil {
		err = os.Rename(tmp, name)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %v", name, err)
	}
	return nil
}

// FirstPresentFile returns the first path in the sequence that exists in the filesystem.
// If none exist, FirstPresentFile returns the error for the first path,
// which satisfies errors.Is(err, os.ErrNotExist).
// Any other error stops the search.
func FirstPresentFile(paths iter.Seq[string]) (string, error) {
	var firstError error
	for path := range paths {
		_, err := os.Lstat(path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		if firstError == nil {
			firstError = err
		}
	}
	if firstError == nil {
		firstError = fmt.Errorf("no files searched: %w", os.ErrNotExist)
	}
	return "", firstError
}

// IsEmptyDir reports whether path names a directory with no entries.
// A path that does not exist or is not a directory is not an empty directory.
func IsEmptyDir(path string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}
	_, err = f.Readdirnames(1)
	if err == io.EOF {
		return true, nil
	}
	return false, err
}
