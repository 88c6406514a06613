// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

// Package security provides process-level hardening for binaries that hold
// seed or key material in memory.
package security

import (
	"fmt"
	"os"
	"syscall"
)

// LockMemory attempts to lock all memory pages to prevent swapping to disk
// This is critical for preventing seeds and private keys from being written to swap
func LockMemory() error {
	// Try to lock all current and future memory pages
	if err := syscall.Mlockall(syscall.MCL_CURRENT | syscall.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall failed: %w\n\nTo fix this, run:\n  sudo setcap cap_ipc_lock+ep %s", err, os.Args[0])
	}
	return nil
}

// DisableCoreDumps prevents core dumps which could leak seed material
func DisableCoreDumps() error {
	var rlimit syscall.Rlimit
	rlimit.Max = 0
	rlimit.Cur = 0
	if err := syscall.Setrlimit(syscall.RLIMIT_CORE, &rlimit); err != nil {
		return fmt.Errorf("failed to disable core dumps: %w", err)
	}
	return nil
}

// Harden applies all process hardening measures. When required is true any
// failure is returned as an error; otherwise failures are reported to stderr
// and startup continues.
func Harden(required bool) error {
	for _, step := range []struct {
		name string
		fn   func() error
	}{
		{"memory locking", LockMemory},
		{"core dump disable", DisableCoreDumps},
	} {
		if err := step.fn(); err != nil {
			if required {
				return fmt.Errorf("%s: %w", step.name, err)
			}
			fmt.Fprintf(os.Stderr, "Warning: %s unavailable: %v\n", step.name, err)
		}
	}
	return nil
}
