// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package hdkeys

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/keyplane-btc/keyplane/internal/address"
)

// Derived is the result of the full forward derivation:
// seed → master → path walk → public key → address.
type Derived struct {
	Path       Path
	Network    address.Network
	ScriptType address.ScriptType
	PrivKey    *btcec.PrivateKey
	PubKey     []byte // compressed, 33 bytes
	Address    string
}

// Zero clears the private key material held by the result.
func (d *Derived) Zero() {
	if d.PrivKey != nil {
		d.PrivKey.Zero()
		d.PrivKey = nil
	}
}

// DeriveAddress runs the complete forward path for one (seed, path, network,
// script type) tuple. This is the single most safety-critical routine in the
// module: the path-walking order and the hardened/non-hardened branching at
// each level fully determine the resulting address, and any deviation derives
// a different, unrecoverable one.
func DeriveAddress(seed []byte, path Path, network address.Network, scriptType address.ScriptType) (*Derived, error) {
	master, err := Master(seed, network)
	if err != nil {
		return nil, err
	}
	defer master.Zero()

	key, err := DerivePath(master, path)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}

	pub := priv.PubKey().SerializeCompressed()
	addr, err := address.FromPubKey(pub, scriptType, network)
	if err != nil {
		priv.Zero()
		return nil, err
	}

	return &Derived{
		Path:       path,
		Network:    network,
		ScriptType: scriptType,
		PrivKey:    priv,
		PubKey:     pub,
		Address:    addr,
	}, nil
}
