// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package util

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// ColorFormatter provides a function type for getting color codes by script type
type ColorFormatter func(scriptType string) string

// supportsColor checks if the terminal supports ANSI color codes
func supportsColor() bool {
	// Check if stdout is a terminal
	if !term.IsTerminal(int(os.Stdout.Fd())) { // #nosec G115 - file descriptors are small integers
		return false
	}

	// Check TERM environment variable
	termEnv := os.Getenv("TERM")
	if termEnv == "" || termEnv == "dumb" {
		return false
	}

	return true
}

// FormatAddressWithColor formats an address with ANSI color based on script type
// Uses the provided colorFormatter function to get the color code
func FormatAddressWithColor(address string, scriptType string, colorFormatter ColorFormatter) string {
	if !supportsColor() || colorFormatter == nil {
		return address
	}

	colorCode := colorFormatter(scriptType)
	if colorCode == "" {
		return address
	}

	return fmt.Sprintf("\033[%sm%s\033[0m", colorCode, address)
}

// DefaultScriptTypeColor returns the ANSI color code used for a script type
// in CLI listings: legacy dim, nested yellow, native segwit green.
func DefaultScriptTypeColor(scriptType string) string {
	switch scriptType {
	case "p2pkh":
		return "2"
	case "p2sh-p2wpkh":
		return "33"
	case "p2wpkh":
		return "32"
	default:
		return ""
	}
}
