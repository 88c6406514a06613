// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters (OWASP recommended)
	defaultKDFTime     = 1         // iterations
	defaultKDFMemoryKB = 64 * 1024 // 64 MB
	defaultKDFThreads  = 4         // parallelism

	// KeyLen is the derived key length (AES-256)
	KeyLen = 32

	// SaltLen is the length of freshly generated KDF salts
	SaltLen = 32
)

// KDFParams holds the Argon2id cost profile used for key derivation.
// The parameters are persisted alongside anything encrypted under a
// passphrase-derived key so decryption can re-derive with the same cost.
type KDFParams struct {
	Time     uint32 `json:"time"`
	MemoryKB uint32 `json:"memory_kb"`
	Threads  uint8  `json:"threads"`
}

// DefaultKDFParams returns the default Argon2id cost profile.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Time:     defaultKDFTime,
		MemoryKB: defaultKDFMemoryKB,
		Threads:  defaultKDFThreads,
	}
}

// Validate checks the profile for degenerate values that argon2 would reject.
func (p KDFParams) Validate() error {
	if p.Time == 0 || p.MemoryKB == 0 || p.Threads == 0 {
		return fmt.Errorf("invalid KDF parameters: time=%d memory_kb=%d threads=%d", p.Time, p.MemoryKB, p.Threads)
	}
	return nil
}

// DeriveKey derives a 32-byte key from a passphrase and salt using Argon2id
// (memory-hard, GPU-resistant).
// Caller is responsible for zeroing the returned key when done.
func DeriveKey(passphrase, salt []byte, params KDFParams) []byte {
	return argon2.IDKey(passphrase, salt, params.Time, params.MemoryKB, params.Threads, KeyLen)
}

// NewSalt generates a fresh random KDF salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
