// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

// Package vault implements the secure storage service: authenticated
// encryption of the seed and other secrets at rest, salted constant-time PIN
// verification, and password-based encrypted backup export/import.
//
// A Store is rooted at a directory. Every secret is a sealed record file
// written atomically; the sealing key is held by an injected crypto.Sealer
// and never persisted here. Save, retrieve, export, import and wipe are
// mutually exclusive per store (single writer, snapshot-consistent readers).
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/keyplane-btc/keyplane/internal/crypto"
	"github.com/keyplane-btc/keyplane/internal/fsutil"
)

var (
	// ErrNotFound is returned when no record exists under the requested
	// identifier (no seed saved, no such payload).
	ErrNotFound = errors.New("record not found")

	// ErrDecryptionFailed is returned when a stored record is corrupt or
	// the protecting key cannot open it.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrAuthenticationFailed is returned when a backup does not decrypt
	// under the supplied password. The AEAD tag check is the sole arbiter:
	// a wrong password is indistinguishable from a tampered blob.
	ErrAuthenticationFailed = errors.New("backup authentication failed")

	// ErrInvalidBackup is returned for structurally malformed backup blobs.
	ErrInvalidBackup = errors.New("invalid backup format")

	// ErrInvalidRecordID is returned for record identifiers that are empty
	// or would escape the store directory.
	ErrInvalidRecordID = errors.New("invalid record identifier")
)

const recordExt = ".rec"

// Store is one logical secret store rooted at a directory.
type Store struct {
	mu     sync.RWMutex
	dir    string
	sealer crypto.Sealer
	kdf    crypto.KDFParams // cost profile for PIN hashing and backup keys
}

// Open opens (creating if needed) the store rooted at dir. The sealer is the
// injected "encrypt/decrypt under a protected key" capability; the store
// never sees or persists the key itself.
func Open(dir string, sealer crypto.Sealer) (*Store, error) {
	if sealer == nil {
		return nil, fmt.Errorf("vault: sealer is required")
	}
	if err := fsutil.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	fsutil.CheckPerms(dir)

	return &Store{
		dir:    dir,
		sealer: sealer,
		kdf:    crypto.DefaultKDFParams(),
	}, nil
}

// SetKDFParams overrides the Argon2id cost profile used for PIN hashing and
// backup key derivation.
func (s *Store) SetKDFParams(params crypto.KDFParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.kdf = params
	s.mu.Unlock()
	return nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// SaveRecord seals plaintext and writes it under id, replacing any previous
// record atomically. The id is bound into the authentication tag, so a
// record file renamed to another id will not decrypt.
func (s *Store) SaveRecord(id string, plaintext []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRecordLocked(id, plaintext)
}

func (s *Store) saveRecordLocked(id string, plaintext []byte) error {
	path, err := s.recordPath(id)
	if err != nil {
		return err
	}

	sealed, err := s.sealer.Seal(plaintext, []byte(id))
	if err != nil {
		return fmt.Errorf("failed to seal record %s: %w", id, err)
	}

	return atomicWrite(path, sealed)
}

// LoadRecord reads and unseals the record stored under id.
func (s *Store) LoadRecord(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadRecordLocked(id)
}

func (s *Store) loadRecordLocked(id string) ([]byte, error) {
	path, err := s.recordPath(id)
	if err != nil {
		return nil, err
	}

	sealed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}

	plaintext, err := s.sealer.Open(sealed, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", ErrDecryptionFailed, id, err)
	}
	return plaintext, nil
}

// DeleteRecord removes the record stored under id. Deleting a missing
// record returns ErrNotFound.
func (s *Store) DeleteRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.recordPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// HasRecord reports whether a record exists under id.
func (s *Store) HasRecord(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.recordPath(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// ListRecords returns the identifiers of all stored records, sorted.
func (s *Store) ListRecords() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRecordsLocked()
}

func (s *Store) listRecordsLocked() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, recordExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// WipeAll deletes every record and the PIN credential. Subsequent retrieves
// and PIN verifications behave as if the store was never configured.
func (s *Store) WipeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.listRecordsLocked()
	if err != nil {
		return err
	}
	for _, id := range ids {
		path, err := s.recordPath(id)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to wipe record %s: %w", id, err)
		}
	}

	if err := os.Remove(filepath.Join(s.dir, pinFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to wipe PIN credential: %w", err)
	}
	return nil
}

// Rewrap re-seals every record under a new sealer, staging the rewritten set
// before swapping it in. Used for passphrase changes. On success the store
// uses newSealer for all further operations.
func (s *Store) Rewrap(newSealer crypto.Sealer) error {
	if newSealer == nil {
		return fmt.Errorf("vault: sealer is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.listRecordsLocked()
	if err != nil {
		return err
	}

	// Stage: open everything under the old key, reseal under the new one.
	staged := make(map[string][]byte, len(ids))
	for _, id := range ids {
		plaintext, err := s.loadRecordLocked(id)
		if err != nil {
			return err
		}
		sealed, err := newSealer.Seal(plaintext, []byte(id))
		crypto.ZeroBytes(plaintext)
		if err != nil {
			return fmt.Errorf("failed to reseal record %s: %w", id, err)
		}
		staged[id] = sealed
	}

	// Swap: every record was readable and resealable, write the new set.
	for id, sealed := range staged {
		path, err := s.recordPath(id)
		if err != nil {
			return err
		}
		if err := atomicWrite(path, sealed); err != nil {
			return err
		}
	}

	s.sealer = newSealer
	return nil
}

// recordPath validates id and maps it to its file path. Identifiers are
// restricted to a conservative character set so a crafted id can never
// escape the store directory.
func (s *Store) recordPath(id string) (string, error) {
	if id == "" {
		return "", ErrInvalidRecordID
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidRecordID, id)
		}
	}
	if strings.Contains(id, "..") || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecordID, id)
	}
	return filepath.Join(s.dir, id+recordExt), nil
}

// atomicWrite writes data via a temp file and rename so a crash never
// leaves a half-written record.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Chmod(fsutil.StoreFilePerm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close record: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}

// SaveJSON marshals v and stores it as a sealed record under id. Use for
// non-seed secrets that callers want encrypted under the same protected key.
func SaveJSON[T any](s *Store, id string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", id, err)
	}
	defer crypto.ZeroBytes(data)
	return s.SaveRecord(id, data)
}

// LoadJSON loads and unmarshals the sealed record stored under id.
func LoadJSON[T any](s *Store, id string) (T, error) {
	var v T
	data, err := s.LoadRecord(id)
	if err != nil {
		return v, err
	}
	defer crypto.ZeroBytes(data)

	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	return v, nil
}
