// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package vault

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/keyplane-btc/keyplane/internal/crypto"
)

const pinFile = "pin.json"

// pinCredential is the stored PIN verifier. It is deliberately NOT sealed:
// it contains only a salt and an Argon2id hash, from which the PIN cannot be
// recovered, and PIN verification must work before the store key is
// available (the PIN gates unlocking in the first place).
type pinCredential struct {
	Salt    []byte           `json:"salt"`
	Hash    []byte           `json:"hash"`
	KDF     crypto.KDFParams `json:"kdf"`
	Created time.Time        `json:"created"`
}

// SetPIN hashes pin with a fresh salt and persists the verifier, replacing
// any previous PIN. The caller keeps ownership of the pin bytes and should
// zero them when done.
func (s *Store) SetPIN(pin []byte) error {
	if len(pin) == 0 {
		return fmt.Errorf("vault: PIN is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	salt, err := crypto.NewSalt()
	if err != nil {
		return fmt.Errorf("failed to generate PIN salt: %w", err)
	}

	hash := crypto.DeriveKey(pin, salt, s.kdf)

	cred := pinCredential{
		Salt:    salt,
		Hash:    hash,
		KDF:     s.kdf,
		Created: time.Now().UTC(),
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal PIN credential: %w", err)
	}

	return atomicWrite(filepath.Join(s.dir, pinFile), data)
}

// VerifyPIN reports whether pin matches the stored credential. Every failure
// mode (no PIN set, unreadable credential, mismatch) reads as false; the
// comparison is constant-time.
func (s *Store) VerifyPIN(pin []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, pinFile))
	if err != nil {
		return false
	}

	var cred pinCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return false
	}
	if cred.KDF.Validate() != nil || len(cred.Salt) == 0 || len(cred.Hash) != crypto.KeyLen {
		return false
	}

	hash := crypto.DeriveKey(pin, cred.Salt, cred.KDF)

	ok := subtle.ConstantTimeCompare(hash, cred.Hash) == 1
	crypto.ZeroBytes(hash)
	return ok
}

// HasPIN reports whether a PIN credential is stored.
func (s *Store) HasPIN() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(filepath.Join(s.dir, pinFile))
	return err == nil
}

// RemovePIN deletes the stored PIN credential. Removing an absent PIN is
// not an error.
func (s *Store) RemovePIN() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, pinFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PIN credential: %w", err)
	}
	return nil
}
