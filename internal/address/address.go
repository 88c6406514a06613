// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package address

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/keyplane-btc/keyplane/internal/hashutil"
)

// FromPubKey encodes a serialized compressed public key as an address of the
// requested script type on the requested network. One key yields exactly one
// canonical address per (script type, network) combination.
func FromPubKey(pubKey []byte, scriptType ScriptType, network Network) (string, error) {
	if len(pubKey) != 33 {
		return "", fmt.Errorf("expected 33-byte compressed public key, got %d bytes", len(pubKey))
	}

	switch scriptType {
	case P2PKH:
		return EncodeP2PKH(pubKey, network)
	case P2SHP2WPKH:
		return EncodeP2SHP2WPKH(pubKey, network)
	case P2WPKH:
		return EncodeP2WPKH(pubKey, network)
	default:
		return "", fmt.Errorf("unknown script type %d", scriptType)
	}
}

// EncodeP2PKH encodes HASH160(pubKey) as a legacy Base58Check address
// (version byte || hash, double-SHA256 checksum).
func EncodeP2PKH(pubKey []byte, network Network) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(hashutil.Hash160(pubKey), network.Params())
	if err != nil {
		return "", fmt.Errorf("failed to encode p2pkh address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// EncodeP2SHP2WPKH wraps the v0 witness program for pubKey in a P2SH
// redeem script (OP_0 || push-20 || hash160) and encodes the script hash
// as a Base58Check P2SH address.
func EncodeP2SHP2WPKH(pubKey []byte, network Network) (string, error) {
	redeem := witnessV0Script(hashutil.Hash160(pubKey))
	addr, err := btcutil.NewAddressScriptHash(redeem, network.Params())
	if err != nil {
		return "", fmt.Errorf("failed to encode p2sh-p2wpkh address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// EncodeP2WPKH encodes HASH160(pubKey) as a native SegWit v0 Bech32 address.
func EncodeP2WPKH(pubKey []byte, network Network) (string, error) {
	return EncodeSegWit(network.HRP(), 0, hashutil.Hash160(pubKey))
}

// witnessV0Script builds the canonical v0 witness script for a 20-byte
// pubkey hash: OP_0 followed by a 20-byte data push.
func witnessV0Script(pubKeyHash []byte) []byte {
	script := make([]byte, 0, 22)
	script = append(script, 0x00, 0x14)
	return append(script, pubKeyHash...)
}

// Info describes a successfully validated address.
type Info struct {
	Network    Network
	ScriptType ScriptType
	// WitnessVersion is set for SegWit addresses (currently always 0).
	WitnessVersion byte
}

// Validate classifies an address string, returning its network and script
// type, or an error describing why it is not a valid address. It accepts the
// three produced families and is safe against adversarial inputs: any
// checksum or structure failure is reported, never defaulted.
func Validate(addr string) (*Info, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidFormat)
	}

	// Try Bech32 SegWit first: the HRP identifies the network directly.
	if hrp, version, program, err := DecodeSegWit(addr); err == nil {
		for _, network := range []Network{Mainnet, Testnet, Regtest} {
			if hrp != network.HRP() {
				continue
			}
			if version != 0 || len(program) != 20 {
				return nil, fmt.Errorf("%w: not a v0 pubkey hash program", ErrInvalidFormat)
			}
			return &Info{Network: network, ScriptType: P2WPKH, WitnessVersion: version}, nil
		}
		return nil, fmt.Errorf("%w: unknown prefix %q", ErrInvalidFormat, hrp)
	} else if looksBech32(addr) {
		// The string targets the SegWit family; surface the precise
		// checksum/format error instead of falling through to Base58.
		return nil, err
	}

	// Base58Check families. DecodeAddress validates the 4-byte checksum and
	// classifies by version byte; the network is recovered by matching the
	// decoded address against each parameter set.
	for _, network := range []Network{Mainnet, Testnet, Regtest} {
		decoded, err := btcutil.DecodeAddress(addr, network.Params())
		if err != nil {
			continue
		}
		if !decoded.IsForNet(network.Params()) {
			continue
		}
		switch decoded.(type) {
		case *btcutil.AddressPubKeyHash:
			return &Info{Network: network, ScriptType: P2PKH}, nil
		case *btcutil.AddressScriptHash:
			return &Info{Network: network, ScriptType: P2SHP2WPKH}, nil
		default:
			return nil, fmt.Errorf("%w: unsupported address kind", ErrInvalidFormat)
		}
	}

	return nil, fmt.Errorf("%w: not a recognized address", ErrInvalidChecksum)
}

// looksBech32 reports whether addr carries a known SegWit HRP separator
// prefix, so decode errors can be attributed to the right family.
func looksBech32(addr string) bool {
	for _, network := range []Network{Mainnet, Testnet, Regtest} {
		prefix := network.HRP() + "1"
		if len(addr) > len(prefix) && strings.EqualFold(addr[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}
