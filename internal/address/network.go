// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

// Package address encodes and validates Bitcoin addresses: legacy
// Base58Check P2PKH, P2SH-wrapped SegWit, and native Bech32 SegWit v0,
// across mainnet, testnet and regtest.
package address

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network selects the address version bytes and Bech32 prefix.
type Network int

const (
	Mainnet Network = iota
	Testnet
	Regtest
)

// ParseNetwork maps a config/CLI network name to a Network.
func ParseNetwork(name string) (Network, error) {
	switch name {
	case "mainnet":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	case "regtest":
		return Regtest, nil
	default:
		return 0, fmt.Errorf("unknown network %q (expected mainnet, testnet or regtest)", name)
	}
}

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Regtest:
		return "regtest"
	default:
		return "unknown"
	}
}

// Params returns the chain parameters for the network.
func (n Network) Params() *chaincfg.Params {
	switch n {
	case Testnet:
		return &chaincfg.TestNet3Params
	case Regtest:
		return &chaincfg.RegressionNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// HRP returns the Bech32 human-readable prefix for the network
// (bc, tb or bcrt).
func (n Network) HRP() string {
	return n.Params().Bech32HRPSegwit
}

// ScriptType selects the address family derived from a public key.
type ScriptType int

const (
	// P2PKH is a legacy pay-to-pubkey-hash address (prefix 1/m/n).
	P2PKH ScriptType = iota
	// P2SHP2WPKH is a SegWit pubkey hash nested in P2SH (prefix 3/2).
	P2SHP2WPKH
	// P2WPKH is a native SegWit v0 pubkey hash address (prefix bc1/tb1/bcrt1).
	P2WPKH
)

// ParseScriptType maps a config/CLI script type name to a ScriptType.
func ParseScriptType(name string) (ScriptType, error) {
	switch name {
	case "p2pkh", "legacy":
		return P2PKH, nil
	case "p2sh-p2wpkh", "p2sh":
		return P2SHP2WPKH, nil
	case "p2wpkh", "segwit", "bech32":
		return P2WPKH, nil
	default:
		return 0, fmt.Errorf("unknown script type %q (expected p2pkh, p2sh-p2wpkh or p2wpkh)", name)
	}
}

func (t ScriptType) String() string {
	switch t {
	case P2PKH:
		return "p2pkh"
	case P2SHP2WPKH:
		return "p2sh-p2wpkh"
	case P2WPKH:
		return "p2wpkh"
	default:
		return "unknown"
	}
}
