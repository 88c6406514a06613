// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

// Package hdkeys implements hierarchical deterministic key derivation: a
// 64-byte seed expands into a master extended key, children derive along a
// path of hardened and non-hardened indices, and the resulting public key
// encodes to an address.
//
// Determinism is the correctness property everything here rests on: the same
// seed and path must always yield the same key and address, on every run and
// every machine. A deviation does not error, it derives a different,
// unrecoverable wallet.
package hdkeys

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"

	"github.com/keyplane-btc/keyplane/internal/address"
)

var (
	// ErrInvalidDerivation is returned when child derivation hits a
	// degenerate key (zero or beyond the curve order). The probability is
	// below 1 in 2^127; it is reported rather than silently skipped, and
	// the caller may deliberately retry with the next index.
	ErrInvalidDerivation = errors.New("invalid child derivation")

	// ErrInvalidKey is returned for private key scalars outside [1, N-1].
	ErrInvalidKey = errors.New("private key out of range")
)

// Master derives the master extended key from a seed via
// HMAC-SHA512("Bitcoin seed", seed). Seed length must be 16-64 bytes.
func Master(seed []byte, network address.Network) (*hdkeychain.ExtendedKey, error) {
	key, err := hdkeychain.NewMaster(seed, network.Params())
	if err != nil {
		if errors.Is(err, hdkeychain.ErrUnusableSeed) {
			return nil, fmt.Errorf("%w: unusable seed", ErrInvalidDerivation)
		}
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}
	return key, nil
}

// DeriveChild derives the child of parent at index. Hardened indices
// (>= 2^31) mix the parent private key into the HMAC; non-hardened indices
// use the parent public key and so also work on neutered parents.
func DeriveChild(parent *hdkeychain.ExtendedKey, index uint32) (*hdkeychain.ExtendedKey, error) {
	child, err := parent.Derive(index)
	if err != nil {
		switch {
		case errors.Is(err, hdkeychain.ErrInvalidChild):
			return nil, fmt.Errorf("%w: index %d produced a degenerate key", ErrInvalidDerivation, index)
		case errors.Is(err, hdkeychain.ErrDeriveHardFromPublic):
			return nil, fmt.Errorf("%w: hardened index %d requires the parent private key", ErrInvalidDerivation, index)
		default:
			return nil, fmt.Errorf("failed to derive child %d: %w", index, err)
		}
	}
	return child, nil
}

// DerivePath walks the child derivation from master along path. Intermediate
// keys are zeroed as soon as the next level is derived; the caller owns the
// returned key and should Zero it when done.
func DerivePath(master *hdkeychain.ExtendedKey, path Path) (*hdkeychain.ExtendedKey, error) {
	current := master
	for depth, index := range path {
		child, err := DeriveChild(current, index)
		if err != nil {
			if current != master {
				current.Zero()
			}
			return nil, fmt.Errorf("at %s: %w", path[:depth+1], err)
		}
		if current != master {
			current.Zero()
		}
		current = child
	}
	if current == master {
		// Empty path addresses the master key itself; hand back a copy the
		// caller can zero independently.
		clone, err := hdkeychain.NewKeyFromString(master.String())
		if err != nil {
			return nil, fmt.Errorf("failed to copy master key: %w", err)
		}
		return clone, nil
	}
	return current, nil
}

// PublicKey derives the serialized public key for a raw 32-byte private key
// scalar: elliptic-curve multiplication of the base point, serialized in
// 33-byte compressed or 65-byte uncompressed form.
// Returns ErrInvalidKey if the scalar is not in [1, N-1].
func PublicKey(privKey []byte, compressed bool) ([]byte, error) {
	if len(privKey) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidKey, len(privKey))
	}

	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(privKey); overflow {
		return nil, fmt.Errorf("%w: scalar >= curve order", ErrInvalidKey)
	}
	if scalar.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidKey)
	}
	scalar.Zero()

	priv, _ := btcec.PrivKeyFromBytes(privKey)
	defer priv.Zero()

	if compressed {
		return priv.PubKey().SerializeCompressed(), nil
	}
	return priv.PubKey().SerializeUncompressed(), nil
}
