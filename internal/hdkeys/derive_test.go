// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package hdkeys

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/keyplane-btc/keyplane/internal/address"
	"github.com/keyplane-btc/keyplane/internal/mnemonic"
)

// The 24-word reference mnemonic used by the derivation vector suite.
const vectorMnemonic = "twist outside favorite taxi bracket admit unveil around demand number mixture civil diesel enhance hammer meat then replace master carpet farm viable toast muscle"

func vectorSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := mnemonic.Seed(vectorMnemonic, "")
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	return seed
}

// TestDeriveAddressVectors verifies the forward path against fixed vectors
// covering every script family and network
func TestDeriveAddressVectors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		network    address.Network
		scriptType address.ScriptType
		expected   string
	}{
		{"bip84 mainnet", "m/84'/0'/0'/0/0", address.Mainnet, address.P2WPKH, "bc1q249u4yzmkas7jk7cne0kqwr8ky8097ttxlmlrz"},
		{"bip84 testnet", "m/84'/0'/0'/0/0", address.Testnet, address.P2WPKH, "tb1q249u4yzmkas7jk7cne0kqwr8ky8097ttveqvc3"},
		{"bip84 regtest", "m/84'/0'/0'/0/0", address.Regtest, address.P2WPKH, "bcrt1q249u4yzmkas7jk7cne0kqwr8ky8097ttwsep0c"},
		{"bip44 mainnet", "m/44'/0'/0'/0/0", address.Mainnet, address.P2PKH, "18aMubkFwPxivuML8WyNjkXp371fENV8L3"},
		{"bip44 testnet", "m/44'/0'/0'/0/0", address.Testnet, address.P2PKH, "mo6KCeqEkRPyi1pwr5wkZfk8u6cNDP4vhk"},
		{"bip49 mainnet", "m/49'/0'/0'/0/0", address.Mainnet, address.P2SHP2WPKH, "3P2tycxruADyNV6n6jfYRE8Nob7MXt6TqB"},
		{"bip49 testnet", "m/49'/0'/0'/0/0", address.Testnet, address.P2SHP2WPKH, "2NEb73MttWcjKaGjKmsHR3B7e1wKXGGSbtt"},
	}

	seed := vectorSeed(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := ParsePath(tt.path)
			if err != nil {
				t.Fatalf("ParsePath failed: %v", err)
			}

			derived, err := DeriveAddress(seed, path, tt.network, tt.scriptType)
			if err != nil {
				t.Fatalf("DeriveAddress failed: %v", err)
			}
			defer derived.Zero()

			if derived.Address != tt.expected {
				t.Errorf("DeriveAddress = %s, want %s", derived.Address, tt.expected)
			}
			if len(derived.PubKey) != 33 {
				t.Errorf("PubKey length = %d, want 33", len(derived.PubKey))
			}
			if derived.PrivKey == nil {
				t.Error("PrivKey should be populated")
			}
		})
	}
}

// TestDeriveAddressKeyMaterial pins the private and public key bytes at the
// reference path, not just the encoded address
func TestDeriveAddressKeyMaterial(t *testing.T) {
	path, err := ParsePath("m/84'/0'/0'/0/0")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}

	derived, err := DeriveAddress(vectorSeed(t), path, address.Mainnet, address.P2WPKH)
	if err != nil {
		t.Fatalf("DeriveAddress failed: %v", err)
	}
	defer derived.Zero()

	wantPriv := "f76025da807252fb63d44c3228648b5acb305ee44a2acf7df540a6f156ee0045"
	wantPub := "02742b849eacf72ef906a1eaf21e9a2cba8d5a0038196aca3c67d34543b7b1cfaa"

	if got := hex.EncodeToString(derived.PrivKey.Serialize()); got != wantPriv {
		t.Errorf("private key = %s, want %s", got, wantPriv)
	}
	if got := hex.EncodeToString(derived.PubKey); got != wantPub {
		t.Errorf("public key = %s, want %s", got, wantPub)
	}
}

// TestDeriveAddressDeterminism verifies repeated derivations are identical
func TestDeriveAddressDeterminism(t *testing.T) {
	seed := vectorSeed(t)
	path, _ := ParsePath("m/84'/0'/0'/0/7")

	first, err := DeriveAddress(seed, path, address.Mainnet, address.P2WPKH)
	if err != nil {
		t.Fatalf("DeriveAddress failed: %v", err)
	}
	defer first.Zero()

	for i := 0; i < 3; i++ {
		again, err := DeriveAddress(seed, path, address.Mainnet, address.P2WPKH)
		if err != nil {
			t.Fatalf("DeriveAddress failed: %v", err)
		}
		if again.Address != first.Address {
			t.Fatal("DeriveAddress is not deterministic")
		}
		again.Zero()
	}
}

// TestMasterSeedLength verifies seed length bounds
func TestMasterSeedLength(t *testing.T) {
	for _, n := range []int{0, 8, 15, 65, 128} {
		if _, err := Master(make([]byte, n), address.Mainnet); err == nil {
			t.Errorf("Master with %d-byte seed should fail", n)
		}
	}

	key, err := Master(vectorSeed(t), address.Mainnet)
	if err != nil {
		t.Fatalf("Master with 64-byte seed failed: %v", err)
	}
	key.Zero()
}

// TestDeriveChildHardenedFromPublic verifies hardened derivation requires
// the private key
func TestDeriveChildHardenedFromPublic(t *testing.T) {
	master, err := Master(vectorSeed(t), address.Mainnet)
	if err != nil {
		t.Fatalf("Master failed: %v", err)
	}
	defer master.Zero()

	neutered, err := master.Neuter()
	if err != nil {
		t.Fatalf("Neuter failed: %v", err)
	}

	if _, err := DeriveChild(neutered, HardenedOffset); !errors.Is(err, ErrInvalidDerivation) {
		t.Errorf("hardened derive from public key = %v, want ErrInvalidDerivation", err)
	}

	// Non-hardened derivation from a public key succeeds and matches the
	// private-side derivation.
	fromPub, err := DeriveChild(neutered, 5)
	if err != nil {
		t.Fatalf("non-hardened derive from public key failed: %v", err)
	}
	fromPriv, err := DeriveChild(master, 5)
	if err != nil {
		t.Fatalf("derive from private key failed: %v", err)
	}
	defer fromPriv.Zero()

	pubA, err := fromPub.ECPubKey()
	if err != nil {
		t.Fatalf("ECPubKey failed: %v", err)
	}
	pubB, err := fromPriv.ECPubKey()
	if err != nil {
		t.Fatalf("ECPubKey failed: %v", err)
	}
	if !bytes.Equal(pubA.SerializeCompressed(), pubB.SerializeCompressed()) {
		t.Error("public derivation diverged from private derivation")
	}
}

// TestPublicKey verifies scalar validation and serialization forms
func TestPublicKey(t *testing.T) {
	// Scalar 1 maps to the generator point.
	one := make([]byte, 32)
	one[31] = 0x01

	compressed, err := PublicKey(one, true)
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}
	wantCompressed := "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	if got := hex.EncodeToString(compressed); got != wantCompressed {
		t.Errorf("compressed = %s, want %s", got, wantCompressed)
	}

	uncompressed, err := PublicKey(one, false)
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}
	if len(uncompressed) != 65 || uncompressed[0] != 0x04 {
		t.Errorf("uncompressed form invalid: %d bytes, prefix %02x", len(uncompressed), uncompressed[0])
	}

	// Out-of-range scalars.
	zero := make([]byte, 32)
	if _, err := PublicKey(zero, true); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("PublicKey(0) = %v, want ErrInvalidKey", err)
	}

	order, _ := hex.DecodeString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	if _, err := PublicKey(order, true); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("PublicKey(N) = %v, want ErrInvalidKey", err)
	}

	if _, err := PublicKey(make([]byte, 16), true); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("PublicKey with short input = %v, want ErrInvalidKey", err)
	}
}

// TestCachingDeriver verifies memoization returns identical addresses and
// caps retained entries
func TestCachingDeriver(t *testing.T) {
	deriver, err := NewCachingDeriver(vectorSeed(t), 8)
	if err != nil {
		t.Fatalf("NewCachingDeriver failed: %v", err)
	}
	defer deriver.Close()

	path, _ := ParsePath("m/84'/0'/0'/0/0")

	first, err := deriver.Address(path, address.Mainnet, address.P2WPKH)
	if err != nil {
		t.Fatalf("Address failed: %v", err)
	}
	if first != "bc1q249u4yzmkas7jk7cne0kqwr8ky8097ttxlmlrz" {
		t.Errorf("Address = %s, want vector address", first)
	}

	// Cache hit must return the same address.
	second, err := deriver.Address(path, address.Mainnet, address.P2WPKH)
	if err != nil {
		t.Fatalf("Address (cached) failed: %v", err)
	}
	if second != first {
		t.Errorf("cached address %s differs from first %s", second, first)
	}

	// The same path on a different network or script type is a distinct entry.
	testnetAddr, err := deriver.Address(path, address.Testnet, address.P2WPKH)
	if err != nil {
		t.Fatalf("Address (testnet) failed: %v", err)
	}
	if testnetAddr == first {
		t.Error("testnet address should differ from mainnet")
	}
}
