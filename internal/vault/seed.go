// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/keyplane-btc/keyplane/internal/crypto"
)

const seedRecordID = "seed"

// seedRecord is the sealed seed payload. The seed bytes travel base64 inside
// JSON (encoding/json handles []byte that way) together with the policy
// metadata set at save time.
type seedRecord struct {
	Seed              []byte    `json:"seed"`
	RequiresBiometric bool      `json:"requires_biometric"`
	CreatedAt         time.Time `json:"created_at"`
}

// SaveSeed seals the BIP39 seed and stores it, replacing any previous seed.
// requiresBiometric records whether retrieval should be gated on a
// presence check; the store persists the policy but enforcement belongs to
// the session layer.
func (s *Store) SaveSeed(seed []byte, requiresBiometric bool) error {
	if len(seed) == 0 {
		return fmt.Errorf("vault: seed is empty")
	}

	rec := seedRecord{
		Seed:              seed,
		RequiresBiometric: requiresBiometric,
		CreatedAt:         time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal seed record: %w", err)
	}
	defer crypto.ZeroBytes(data)

	return s.SaveRecord(seedRecordID, data)
}

// RetrieveSeed unseals and returns the stored seed. The caller owns the
// returned bytes and should zero them when done.
func (s *Store) RetrieveSeed() ([]byte, error) {
	data, err := s.LoadRecord(seedRecordID)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(data)

	var rec seedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: seed record: %v", ErrDecryptionFailed, err)
	}
	return rec.Seed, nil
}

// SeedRequiresBiometric reports the biometric policy recorded with the seed.
func (s *Store) SeedRequiresBiometric() (bool, error) {
	data, err := s.LoadRecord(seedRecordID)
	if err != nil {
		return false, err
	}
	defer crypto.ZeroBytes(data)

	var rec seedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return false, fmt.Errorf("%w: seed record: %v", ErrDecryptionFailed, err)
	}
	crypto.ZeroBytes(rec.Seed)
	return rec.RequiresBiometric, nil
}

// HasSeed reports whether a seed is stored.
func (s *Store) HasSeed() bool {
	return s.HasRecord(seedRecordID)
}

// DeleteSeed removes the stored seed.
func (s *Store) DeleteSeed() error {
	return s.DeleteRecord(seedRecordID)
}
