// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

// Package mnemonic implements BIP39 mnemonic handling: generation from
// entropy, checksum validation, and deterministic seed derivation.
//
// A mnemonic encodes 128-256 bits of entropy plus a checksum (the first
// entropy/32 bits of SHA256(entropy)) as 12-24 words from the standard
// 2048-word list. Seed derivation is PBKDF2-HMAC-SHA512 over the
// NFKD-normalized mnemonic with salt "mnemonic" || passphrase, 2048 rounds,
// 64 bytes out. The same mnemonic and passphrase always yield the same seed.
package mnemonic

import (
	"errors"
	"fmt"
	"strings"

	bip39 "github.com/tyler-smith/go-bip39"
	"golang.org/x/text/unicode/norm"

	"github.com/keyplane-btc/keyplane/internal/crypto"
)

// ErrInvalidMnemonic is returned for any mnemonic that fails validation:
// unsupported word count, unknown word, or checksum mismatch.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// ErrInvalidStrength is returned for entropy sizes outside {128,160,192,224,256}.
var ErrInvalidStrength = errors.New("invalid mnemonic strength")

// SeedLen is the length of a derived seed in bytes.
const SeedLen = 64

// Strength is the entropy size of a mnemonic in bits.
type Strength int

const (
	Strength128 Strength = 128 // 12 words
	Strength160 Strength = 160 // 15 words
	Strength192 Strength = 192 // 18 words
	Strength224 Strength = 224 // 21 words
	Strength256 Strength = 256 // 24 words
)

// Words returns the word count a strength produces: (strength + strength/32) / 11.
func (s Strength) Words() int {
	return (int(s) + int(s)/32) / 11
}

// Valid reports whether s is a supported strength.
func (s Strength) Valid() bool {
	switch s {
	case Strength128, Strength160, Strength192, Strength224, Strength256:
		return true
	}
	return false
}

// Generate draws strength bits from a cryptographically secure source and
// returns the corresponding mnemonic.
func Generate(strength Strength) (string, error) {
	if !strength.Valid() {
		return "", fmt.Errorf("%w: %d bits", ErrInvalidStrength, strength)
	}

	entropy, err := bip39.NewEntropy(int(strength))
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	defer crypto.ZeroBytes(entropy)

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return phrase, nil
}

// FromEntropy maps raw entropy bytes to a mnemonic. Entropy length must
// correspond to a supported strength.
func FromEntropy(entropy []byte) (string, error) {
	if !Strength(len(entropy) * 8).Valid() {
		return "", fmt.Errorf("%w: %d bits of entropy", ErrInvalidStrength, len(entropy)*8)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to encode entropy: %w", err)
	}
	return phrase, nil
}

// Validate checks word count, word membership and checksum.
// Returns nil for a valid mnemonic, an error wrapping ErrInvalidMnemonic otherwise.
func Validate(phrase string) error {
	words := strings.Fields(normalize(phrase))
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return fmt.Errorf("%w: %d words", ErrInvalidMnemonic, len(words))
	}

	// EntropyFromMnemonic performs the full inverse mapping: unknown words
	// and checksum mismatches both fail here.
	if _, err := bip39.EntropyFromMnemonic(strings.Join(words, " ")); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return nil
}

// EntropyBits returns the entropy strength encoded by a valid mnemonic.
func EntropyBits(phrase string) (Strength, error) {
	if err := Validate(phrase); err != nil {
		return 0, err
	}
	words := len(strings.Fields(phrase))
	// words*11 = strength + strength/32
	return Strength(words * 11 * 32 / 33), nil
}

// Seed derives the 64-byte seed for a mnemonic and optional passphrase.
// Both inputs are NFKD-normalized before the KDF. Unlike the raw PBKDF2
// mapping, Seed refuses invalid mnemonics: deriving a seed from a mistyped
// phrase would silently produce an unrecoverable wallet.
func Seed(phrase, passphrase string) ([]byte, error) {
	if err := Validate(phrase); err != nil {
		return nil, err
	}
	// The passphrase is normalized but never trimmed: BIP39 treats
	// leading and trailing spaces in a passphrase as significant.
	return bip39.NewSeed(normalize(phrase), norm.NFKD.String(passphrase)), nil
}

// normalize applies NFKD and canonical single-space word separation.
func normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFKD.String(s)), " ")
}
