// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package address

import (
	"encoding/hex"
	"errors"
	"testing"
)

// generatorPubKey is the compressed secp256k1 base point, the pubkey behind
// several canonical test vectors.
func generatorPubKey(t *testing.T) []byte {
	t.Helper()
	pub, err := hex.DecodeString("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	if err != nil {
		t.Fatalf("Failed to decode pubkey: %v", err)
	}
	return pub
}

// TestFromPubKeyFamilies verifies each script family against fixed vectors
func TestFromPubKeyFamilies(t *testing.T) {
	pub := generatorPubKey(t)

	tests := []struct {
		name       string
		scriptType ScriptType
		network    Network
		expected   string
	}{
		{"p2pkh mainnet", P2PKH, Mainnet, "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"},
		{"p2sh-p2wpkh mainnet", P2SHP2WPKH, Mainnet, "3JvL6Ymt8MVWiCNHC7oWU6nLeHNJKLZGLN"},
		{"p2wpkh mainnet", P2WPKH, Mainnet, "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"},
		{"p2wpkh testnet", P2WPKH, Testnet, "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"},
		{"p2wpkh regtest", P2WPKH, Regtest, "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromPubKey(pub, tt.scriptType, tt.network)
			if err != nil {
				t.Fatalf("FromPubKey failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("FromPubKey = %s, want %s", got, tt.expected)
			}
		})
	}
}

// TestFromPubKeyRejectsUncompressed verifies the compressed-key requirement
func TestFromPubKeyRejectsUncompressed(t *testing.T) {
	if _, err := FromPubKey(make([]byte, 65), P2WPKH, Mainnet); err == nil {
		t.Error("FromPubKey with 65-byte key should fail")
	}
	if _, err := FromPubKey(nil, P2PKH, Mainnet); err == nil {
		t.Error("FromPubKey with nil key should fail")
	}
}

// TestValidateClassifies verifies network and script type recovery
func TestValidateClassifies(t *testing.T) {
	tests := []struct {
		addr       string
		network    Network
		scriptType ScriptType
	}{
		{"1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH", Mainnet, P2PKH},
		{"3JvL6Ymt8MVWiCNHC7oWU6nLeHNJKLZGLN", Mainnet, P2SHP2WPKH},
		{"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", Mainnet, P2WPKH},
		{"tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", Testnet, P2WPKH},
		{"bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080", Regtest, P2WPKH},
		{"moHxXRqXd7AHpzuh1HUsUy1ejss3yNqi4F", Testnet, P2PKH},
		{"2MzvgmjBohG59MdpGZAN4H7gmya3BCHWSco", Testnet, P2SHP2WPKH},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			info, err := Validate(tt.addr)
			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if info.Network != tt.network || info.ScriptType != tt.scriptType {
				t.Errorf("Validate = (%s, %s), want (%s, %s)",
					info.Network, info.ScriptType, tt.network, tt.scriptType)
			}
		})
	}
}

// TestValidateAdversarial verifies malformed inputs fail loudly
func TestValidateAdversarial(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"garbage", "not-an-address"},
		{"base58 corrupted checksum", "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMI"},
		{"bech32 corrupted checksum", "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t5"},
		{"bech32 mixed case", "bc1Qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"},
		{"unknown hrp", "xyz1qw508d6qejxtdg4y5r3zarvary0c5xw7k8d4mf2"},
		{"base58 with invalid chars", "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SA0O"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Validate(tt.addr); err == nil {
				t.Errorf("Validate(%q) should fail", tt.addr)
			}
		})
	}
}

// TestValidateChecksumTyped verifies corrupted checksums map to ErrInvalidChecksum
func TestValidateChecksumTyped(t *testing.T) {
	_, err := Validate("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t5")
	if !errors.Is(err, ErrInvalidChecksum) {
		t.Errorf("Validate of corrupted bech32 = %v, want ErrInvalidChecksum", err)
	}
}

// TestParseNetwork verifies network name parsing
func TestParseNetwork(t *testing.T) {
	for name, want := range map[string]Network{
		"mainnet": Mainnet,
		"testnet": Testnet,
		"regtest": Regtest,
	} {
		got, err := ParseNetwork(name)
		if err != nil || got != want {
			t.Errorf("ParseNetwork(%s) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseNetwork("signet"); err == nil {
		t.Error("ParseNetwork(signet) should fail")
	}
}

// TestParseScriptType verifies script type aliases
func TestParseScriptType(t *testing.T) {
	for name, want := range map[string]ScriptType{
		"p2pkh":       P2PKH,
		"legacy":      P2PKH,
		"p2sh-p2wpkh": P2SHP2WPKH,
		"p2wpkh":      P2WPKH,
		"segwit":      P2WPKH,
	} {
		got, err := ParseScriptType(name)
		if err != nil || got != want {
			t.Errorf("ParseScriptType(%s) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseScriptType("p2tr"); err == nil {
		t.Error("ParseScriptType(p2tr) should fail")
	}
}
