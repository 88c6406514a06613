// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/keyplane-btc/keyplane/internal/crypto"
	"github.com/keyplane-btc/keyplane/internal/session"
	"github.com/keyplane-btc/keyplane/internal/vault"
)

// stdinReader is a shared reader for non-terminal stdin
var stdinReader *bufio.Reader

// readSecret reads a passphrase or PIN into a wipeable buffer. The caller
// must Destroy the returned value when done.
func readSecret() (*crypto.SecureString, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 - file descriptors are small integers
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		if err != nil {
			return nil, err
		}
		secret := crypto.NewSecureStringFromBytes(raw)
		crypto.ZeroBytes(raw)
		return secret, nil
	}

	// Not a terminal - read plaintext line using shared reader
	if stdinReader == nil {
		stdinReader = bufio.NewReader(os.Stdin)
	}
	line, err := stdinReader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(line)
	secret := crypto.NewSecureStringFromBytes(trimmed)
	crypto.ZeroBytes(line)
	return secret, nil
}

// readPassword reads a line the same way readSecret does but returns a
// plain string. Only for inputs that must survive as strings, like the
// optional BIP39 passphrase fed to seed derivation.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 - file descriptors are small integers
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	if stdinReader == nil {
		stdinReader = bufio.NewReader(os.Stdin)
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func readLine() (string, error) {
	if stdinReader == nil {
		stdinReader = bufio.NewReader(os.Stdin)
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirmAction requires the user to type the given word to proceed.
func confirmAction(prompt, word string) (bool, error) {
	fmt.Printf("%s\nType %q to continue: ", prompt, word)
	line, err := readLine()
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return line == word, nil
}

// promptNewPassphrase collects a new passphrase with confirmation. The
// caller must Destroy the returned value when done.
func promptNewPassphrase(label string) (*crypto.SecureString, error) {
	fmt.Printf("Enter %s: ", label)
	pass, err := readSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", label, err)
	}
	fmt.Println()
	if pass.IsEmpty() {
		pass.Destroy()
		return nil, fmt.Errorf("%s cannot be empty", label)
	}

	fmt.Printf("Confirm %s: ", label)
	confirm, err := readSecret()
	if err != nil {
		pass.Destroy()
		return nil, fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()
	match := pass.Equal(confirm)
	confirm.Destroy()
	if !match {
		pass.Destroy()
		return nil, fmt.Errorf("%ss do not match", label)
	}
	return pass, nil
}

// unlockStore prompts for the store passphrase, verifies it against the
// store metadata and returns the opened store. The caller must Close the
// returned sealer.
func unlockStore() (*vault.Store, *crypto.ProtectedKeySealer, error) {
	meta, err := crypto.LoadStoreMeta(storeDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load store metadata: %w", err)
	}
	if meta == nil {
		return nil, nil, fmt.Errorf("store not initialized (run 'kpstore init' first)")
	}

	fmt.Print("Enter store passphrase: ")
	passphrase, err := readSecret()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	fmt.Println()

	var sealer *crypto.ProtectedKeySealer
	err = passphrase.WithBytes(func(p []byte) error {
		var unsealErr error
		sealer, unsealErr = meta.Unseal(p)
		return unsealErr
	})
	passphrase.Destroy()
	if err != nil {
		return nil, nil, err
	}

	store, err := vault.Open(storeDir, sealer)
	if err != nil {
		sealer.Close()
		return nil, nil, err
	}

	params, err := configuredKDFParams()
	if err != nil {
		sealer.Close()
		return nil, nil, err
	}
	if err := store.SetKDFParams(params); err != nil {
		sealer.Close()
		return nil, nil, err
	}
	return store, sealer, nil
}

// maxPINAttempts bounds the interactive PIN retry loop.
const maxPINAttempts = 3

// requireSession runs the unlock flow against the store's PIN gate before a
// command touches secret material, and returns the unlocked session manager
// so the caller can keep checking it. With no PIN configured the session
// unlocks immediately.
func requireSession(store *vault.Store) (*session.Manager, error) {
	timeout, err := config.SessionTimeoutDuration()
	if err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = -1 // config "0" means no auto-lock
	}

	manager := session.NewManager(session.Config{
		PINGate: store,
		Timeout: timeout,
	})

	err = manager.Request(context.Background())
	if err == nil {
		return manager, nil
	}
	if !errors.Is(err, session.ErrPINRequired) {
		return nil, err
	}

	for attempt := 1; attempt <= maxPINAttempts; attempt++ {
		fmt.Print("Enter PIN: ")
		pin, err := readSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to read PIN: %w", err)
		}
		fmt.Println()

		var ok bool
		err = pin.WithBytes(func(p []byte) error {
			var attemptErr error
			ok, attemptErr = manager.PINAttempt(p)
			return attemptErr
		})
		pin.Destroy()
		if err != nil {
			return nil, err
		}
		if ok {
			return manager, nil
		}
		fmt.Printf("Incorrect PIN (%d/%d)\n", attempt, maxPINAttempts)
	}
	manager.Logout()
	return nil, fmt.Errorf("too many incorrect PIN attempts")
}
