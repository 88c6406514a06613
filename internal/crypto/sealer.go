// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
)

// ErrSealerClosed is returned when a sealer is used after Close.
var ErrSealerClosed = errors.New("sealer closed")

// Sealer is the opaque "encrypt/decrypt under a protected key" capability the
// secret store is built on. Implementations wrap a platform keystore or a
// passphrase-derived key; the store never sees the key material itself.
//
// Open must fail verifiably (authentication tag mismatch) when the sealed
// data, the associated data, or the protecting key is wrong.
type Sealer interface {
	Seal(plaintext, associated []byte) ([]byte, error)
	Open(sealed, associated []byte) ([]byte, error)
}

// ProtectedKeySealer implements Sealer with AES-256-GCM over a caller-held
// 32-byte key. The sealed layout is nonce || ciphertext || tag, raw bytes.
//
// This is the adapter a platform-keystore integration (or the CLI's
// passphrase unlock flow) hands to the vault: the key lives only in this
// process and is zeroed on Close.
type ProtectedKeySealer struct {
	mu     sync.RWMutex
	key    []byte
	aead   cipher.AEAD
	closed bool
}

var _ Sealer = (*ProtectedKeySealer)(nil)

// NewProtectedKeySealer creates a sealer over a copy of key.
// The caller can safely zero its own copy afterwards.
func NewProtectedKeySealer(key []byte) (*ProtectedKeySealer, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("protected key must be %d bytes, got %d", KeyLen, len(key))
	}

	owned := make([]byte, len(key))
	copy(owned, key)

	block, err := aes.NewCipher(owned)
	if err != nil {
		ZeroBytes(owned)
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		ZeroBytes(owned)
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &ProtectedKeySealer{key: owned, aead: aead}, nil
}

// Seal encrypts plaintext, binding the optional associated data into the
// authentication tag.
func (s *ProtectedKeySealer) Seal(plaintext, associated []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSealerClosed
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Sealed layout: nonce || ciphertext || tag
	return s.aead.Seal(nonce, nonce, plaintext, associated), nil
}

// Open decrypts data produced by Seal. The same associated data must be
// supplied or authentication fails.
func (s *ProtectedKeySealer) Open(sealed, associated []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSealerClosed
	}

	if len(sealed) < s.aead.NonceSize() {
		return nil, fmt.Errorf("sealed data too short")
	}

	nonce := sealed[:s.aead.NonceSize()]
	ciphertext := sealed[s.aead.NonceSize():]

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, associated)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data: %w", err)
	}
	return plaintext, nil
}

// Close zeroes the protected key. The sealer is unusable afterwards.
func (s *ProtectedKeySealer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	ZeroBytes(s.key)
	s.key = nil
	s.aead = nil
	s.closed = true
}
