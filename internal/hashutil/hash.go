// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

// Package hashutil provides the hash pipeline used to turn public keys into
// address payloads: SHA-256, RIPEMD-160 and their HASH160 composition.
package hashutil

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required by the address format
)

// Sha256 returns the SHA-256 digest of data.
func Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// DoubleSha256 returns SHA256(SHA256(data)), the checksum primitive used by
// Base58Check encoding.
func DoubleSha256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// Ripemd160 returns the RIPEMD-160 digest of data.
func Ripemd160(data []byte) []byte {
	h := ripemd160.New()
	// The hash.Hash contract documents Write as never returning an error.
	_, _ = h.Write(data)
	return h.Sum(nil)
}

// Hash160 returns RIPEMD160(SHA256(data)). This is the standard shortening of
// a serialized public key into the 20-byte payload carried by P2PKH and
// P2WPKH addresses.
func Hash160(data []byte) []byte {
	first := sha256.Sum256(data)
	return Ripemd160(first[:])
}
