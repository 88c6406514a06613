// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

// Package fsutil provides filesystem helpers for the keyplane secret store.
// Store files are owner-only (0600 files, 0700 dirs): every record under the
// store directory wraps key material or credential data, so nothing is ever
// group- or world-readable.
package fsutil

import (
	"fmt"
	"os"
)

// StoreDirPerm is the permission mode for store directories.
const StoreDirPerm os.FileMode = 0700

// StoreFilePerm is the permission mode for store files.
const StoreFilePerm os.FileMode = 0600

// MkdirAll creates a directory and all parents with store permissions.
// Unlike os.MkdirAll, this explicitly sets permissions after creation to
// bypass umask restrictions.
func MkdirAll(path string) error {
	if err := os.MkdirAll(path, StoreDirPerm); err != nil {
		return err
	}
	return os.Chmod(path, StoreDirPerm)
}

// WriteFile writes data to a file with store permissions.
// Unlike os.WriteFile, this explicitly sets permissions after creation to
// bypass umask restrictions.
func WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, StoreFilePerm); err != nil {
		return err
	}
	return os.Chmod(path, StoreFilePerm)
}

// CreateFile opens a file for writing with store permissions.
// Returns the opened file. Caller is responsible for closing it.
func CreateFile(path string, flag int) (*os.File, error) {
	f, err := os.OpenFile(path, flag, StoreFilePerm)
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(StoreFilePerm); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return f, nil
}

// CheckPerms warns to stderr if path is more permissive than the store modes.
// Returns true if permissions are acceptable.
func CheckPerms(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: %s has mode %04o, should not be group/world accessible; run: chmod go-rwx %s\n", path, perm, path)
		return false
	}
	return true
}
