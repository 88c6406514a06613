// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package mnemonic

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

const (
	// The standard BIP39 test mnemonic (entropy of all zero bytes).
	abandonMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

	// PBKDF2-HMAC-SHA512 of the abandon mnemonic with an empty passphrase.
	abandonSeedHex = "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"

	// The same mnemonic with passphrase "TREZOR" (published BIP39 vector).
	abandonTrezorSeedHex = "c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04"
)

// TestGenerateValidateRoundTrip verifies generated mnemonics validate for every strength
func TestGenerateValidateRoundTrip(t *testing.T) {
	tests := []struct {
		strength Strength
		words    int
	}{
		{Strength128, 12},
		{Strength160, 15},
		{Strength192, 18},
		{Strength224, 21},
		{Strength256, 24},
	}

	for _, tt := range tests {
		phrase, err := Generate(tt.strength)
		if err != nil {
			t.Fatalf("Generate(%d) failed: %v", tt.strength, err)
		}
		if got := len(strings.Fields(phrase)); got != tt.words {
			t.Errorf("Generate(%d) produced %d words, want %d", tt.strength, got, tt.words)
		}
		if err := Validate(phrase); err != nil {
			t.Errorf("Validate(Generate(%d)) failed: %v", tt.strength, err)
		}
	}
}

// TestGenerateInvalidStrength verifies strength validation
func TestGenerateInvalidStrength(t *testing.T) {
	for _, s := range []Strength{0, 1, 64, 127, 129, 512} {
		if _, err := Generate(s); !errors.Is(err, ErrInvalidStrength) {
			t.Errorf("Generate(%d) = %v, want ErrInvalidStrength", s, err)
		}
	}
}

// TestValidateRejects verifies checksum, word and word-count failures
func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		phrase string
	}{
		{
			name:   "bad checksum",
			phrase: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon",
		},
		{
			name:   "unknown word",
			phrase: "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon zzzzzz",
		},
		{
			name:   "wrong word count",
			phrase: "abandon abandon abandon",
		},
		{
			name:   "empty",
			phrase: "",
		},
		{
			name:   "thirteen words",
			phrase: abandonMnemonic + " abandon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.phrase); !errors.Is(err, ErrInvalidMnemonic) {
				t.Errorf("Validate(%q) = %v, want ErrInvalidMnemonic", tt.phrase, err)
			}
		})
	}
}

// TestValidateWhitespace verifies whitespace canonicalization
func TestValidateWhitespace(t *testing.T) {
	sloppy := "  abandon abandon  abandon abandon abandon abandon abandon abandon abandon abandon abandon\tabout "
	if err := Validate(sloppy); err != nil {
		t.Errorf("Validate with irregular whitespace failed: %v", err)
	}
}

// TestFromEntropy verifies the entropy-to-words mapping for the all-zero vector
func TestFromEntropy(t *testing.T) {
	phrase, err := FromEntropy(make([]byte, 16))
	if err != nil {
		t.Fatalf("FromEntropy failed: %v", err)
	}
	if phrase != abandonMnemonic {
		t.Errorf("FromEntropy(zeros) = %q, want %q", phrase, abandonMnemonic)
	}

	if _, err := FromEntropy(make([]byte, 17)); !errors.Is(err, ErrInvalidStrength) {
		t.Error("FromEntropy with 136-bit entropy should fail")
	}
}

// TestEntropyBits verifies strength recovery from word count
func TestEntropyBits(t *testing.T) {
	got, err := EntropyBits(abandonMnemonic)
	if err != nil {
		t.Fatalf("EntropyBits failed: %v", err)
	}
	if got != Strength128 {
		t.Errorf("EntropyBits = %d, want 128", got)
	}
}

// TestSeedKnownVectors verifies seed derivation against the published vectors
func TestSeedKnownVectors(t *testing.T) {
	tests := []struct {
		name       string
		passphrase string
		expected   string
	}{
		{"empty passphrase", "", abandonSeedHex},
		{"TREZOR passphrase", "TREZOR", abandonTrezorSeedHex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed, err := Seed(abandonMnemonic, tt.passphrase)
			if err != nil {
				t.Fatalf("Seed failed: %v", err)
			}
			if len(seed) != SeedLen {
				t.Fatalf("Seed length = %d, want %d", len(seed), SeedLen)
			}
			if got := hex.EncodeToString(seed); got != tt.expected {
				t.Errorf("Seed = %s, want %s", got, tt.expected)
			}
		})
	}
}

// TestSeedDeterminism verifies byte-identical seeds across repeated calls
func TestSeedDeterminism(t *testing.T) {
	phrase, err := Generate(Strength256)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	first, err := Seed(phrase, "pass")
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Seed(phrase, "pass")
		if err != nil {
			t.Fatalf("Seed failed: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("Seed is not deterministic")
		}
	}

	// A different passphrase must change the seed.
	other, err := Seed(phrase, "other")
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if bytes.Equal(first, other) {
		t.Error("different passphrases should derive different seeds")
	}
}

// TestSeedRejectsInvalid verifies Seed refuses invalid mnemonics
func TestSeedRejectsInvalid(t *testing.T) {
	_, err := Seed("abandon abandon abandon", "")
	if !errors.Is(err, ErrInvalidMnemonic) {
		t.Errorf("Seed of invalid mnemonic = %v, want ErrInvalidMnemonic", err)
	}
}
