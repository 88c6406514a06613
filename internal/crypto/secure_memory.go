// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package crypto

import (
	"crypto/subtle"
	"runtime"
	"sync"
)

// ZeroBytes overwrites b with zeros. The constant-time copy keeps the
// compiler from eliding the wipe as a dead store.
func ZeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
	runtime.KeepAlive(b)
}

// SecureString holds a PIN or passphrase in a wipeable buffer. Unlike a
// Go string the backing bytes can be zeroed when the value is no longer
// needed, so the secret does not linger on the heap until GC.
type SecureString struct {
	data []byte
	lock sync.RWMutex
}

// NewSecureStringFromBytes copies b into a fresh SecureString. The caller
// keeps ownership of b and should zero it after the call.
func NewSecureStringFromBytes(b []byte) *SecureString {
	if b == nil {
		return &SecureString{}
	}
	data := make([]byte, len(b))
	copy(data, b)
	return &SecureString{data: data}
}

// WithBytes runs fn with direct access to the underlying bytes. No copy
// is made; the slice is only valid for the duration of the callback and
// must not escape it.
func (s *SecureString) WithBytes(fn func([]byte) error) error {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return fn(s.data)
}

// Equal reports whether s and other hold the same secret, comparing in
// constant time.
func (s *SecureString) Equal(other *SecureString) bool {
	if s == other {
		return true
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	other.lock.RLock()
	defer other.lock.RUnlock()
	return subtle.ConstantTimeCompare(s.data, other.data) == 1
}

// Destroy zeros the buffer. The SecureString must not be used afterwards.
func (s *SecureString) Destroy() {
	s.lock.Lock()
	defer s.lock.Unlock()
	ZeroBytes(s.data)
	s.data = nil
}

// IsEmpty reports whether the string is empty or destroyed.
func (s *SecureString) IsEmpty() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.data) == 0
}
