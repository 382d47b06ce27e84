// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package fileutils provides small filesystem helpers shared by the
// profile store and the cache patcher: both need the same
// write-tmp-fsync-rename protocol from spec §6.
package fileutils

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path using the write-to-tmp, fsync,
// rename-over protocol from spec §6, so a reader never observes a
// partially written file. perm is applied to the temp file before
// rename so the final file carries the requested permissions.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fileutils: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("fileutils: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	// Remove the temp file on any early return; the final rename makes
	// this a no-op on the success path since the name no longer exists.
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("fileutils: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fileutils: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fileutils: closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("fileutils: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("fileutils: renaming into place: %w", err)
	}
	return nil
}

// Exists reports whether path exists, treating any stat error other than
// "not found" as false-with-no-panic (callers that need the real error
// use os.Stat directly).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
