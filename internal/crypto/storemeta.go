// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package crypto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/keyplane-btc/keyplane/internal/fsutil"
)

const (
	storeMetaFile = ".keyplane"

	// checkPlaintext is the known value encrypted in the Check field
	checkPlaintext = "KEYPLANE_OK"
)

// StoreMeta holds store-wide encryption metadata: the Argon2id salt and cost
// profile for the store passphrase, plus an encrypted check value used to
// verify the passphrase without decrypting any real record.
type StoreMeta struct {
	Version int       `json:"version"`
	Salt    string    `json:"salt"`  // Base64-encoded master salt
	Check   string    `json:"check"` // Base64-encoded sealed verification value
	KDF     KDFParams `json:"kdf"`
	Created string    `json:"created"`
}

// CreateStoreMeta creates a new store metadata file with a random master salt.
// The passphrase is used to derive the protected key and create the check field.
// Returns the metadata and a ready sealer over the derived key.
func CreateStoreMeta(storeDir string, passphrase []byte, params KDFParams) (*StoreMeta, *ProtectedKeySealer, error) {
	meta, sealer, err := newStoreMeta(passphrase, params)
	if err != nil {
		return nil, nil, err
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		sealer.Close()
		return nil, nil, fmt.Errorf("failed to marshal store metadata: %w", err)
	}

	if err := fsutil.MkdirAll(storeDir); err != nil {
		sealer.Close()
		return nil, nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	if err := fsutil.WriteFile(filepath.Join(storeDir, storeMetaFile), data); err != nil {
		sealer.Close()
		return nil, nil, fmt.Errorf("failed to write store metadata: %w", err)
	}

	return meta, sealer, nil
}

// CreateStoreMetaTemp creates store metadata in memory without writing to disk.
// Used for atomic passphrase change operations.
func CreateStoreMetaTemp(passphrase []byte, params KDFParams) (*StoreMeta, *ProtectedKeySealer, error) {
	return newStoreMeta(passphrase, params)
}

func newStoreMeta(passphrase []byte, params KDFParams) (*StoreMeta, *ProtectedKeySealer, error) {
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}

	salt, err := NewSalt()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate master salt: %w", err)
	}

	key := DeriveKey(passphrase, salt, params)
	defer ZeroBytes(key)

	sealer, err := NewProtectedKeySealer(key)
	if err != nil {
		return nil, nil, err
	}

	check, err := sealer.Seal([]byte(checkPlaintext), nil)
	if err != nil {
		sealer.Close()
		return nil, nil, fmt.Errorf("failed to create check value: %w", err)
	}

	meta := &StoreMeta{
		Version: 1,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Check:   base64.StdEncoding.EncodeToString(check),
		KDF:     params,
		Created: time.Now().UTC().Format(time.RFC3339),
	}
	return meta, sealer, nil
}

// StoreMetaExists checks if the .keyplane metadata file exists in the directory.
func StoreMetaExists(storeDir string) bool {
	_, err := os.Stat(filepath.Join(storeDir, storeMetaFile))
	return err == nil
}

// LoadStoreMeta loads the store metadata file.
// Returns nil without error if the file doesn't exist (uninitialized store).
func LoadStoreMeta(storeDir string) (*StoreMeta, error) {
	data, err := os.ReadFile(filepath.Join(storeDir, storeMetaFile))
	if os.IsNotExist(err) {
		return nil, nil // No metadata file
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store metadata: %w", err)
	}

	var meta StoreMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse store metadata: %w", err)
	}
	if meta.KDF == (KDFParams{}) {
		// Metadata written before the KDF profile was persisted.
		meta.KDF = DefaultKDFParams()
	}

	return &meta, nil
}

// RemoveStoreMeta deletes the .keyplane metadata file. Removing metadata
// that was never written is not an error.
func RemoveStoreMeta(storeDir string) error {
	err := os.Remove(filepath.Join(storeDir, storeMetaFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove store metadata: %w", err)
	}
	return nil
}

// Write persists the metadata to the store directory.
func (m *StoreMeta) Write(storeDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store metadata: %w", err)
	}
	return fsutil.WriteFile(filepath.Join(storeDir, storeMetaFile), data)
}

// MasterSalt returns the decoded master salt.
func (m *StoreMeta) MasterSalt() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.Salt)
}

// Unseal verifies the passphrase against the check value and returns a sealer
// over the derived protected key.
// Returns an error if the passphrase is incorrect.
func (m *StoreMeta) Unseal(passphrase []byte) (*ProtectedKeySealer, error) {
	salt, err := m.MasterSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to decode master salt: %w", err)
	}

	key := DeriveKey(passphrase, salt, m.KDF)
	defer ZeroBytes(key)

	sealer, err := NewProtectedKeySealer(key)
	if err != nil {
		return nil, err
	}

	check, err := base64.StdEncoding.DecodeString(m.Check)
	if err != nil {
		sealer.Close()
		return nil, fmt.Errorf("failed to decode check value: %w", err)
	}

	plaintext, err := sealer.Open(check, nil)
	if err != nil {
		sealer.Close()
		return nil, fmt.Errorf("incorrect passphrase")
	}
	if string(plaintext) != checkPlaintext {
		sealer.Close()
		return nil, fmt.Errorf("incorrect passphrase (check mismatch)")
	}

	return sealer, nil
}

// VerifyPassphrase verifies the passphrase without retaining the derived key.
func (m *StoreMeta) VerifyPassphrase(passphrase []byte) error {
	sealer, err := m.Unseal(passphrase)
	if err != nil {
		return err
	}
	sealer.Close() // Don't need the key, just verifying
	return nil
}
