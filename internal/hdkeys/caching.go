// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package hdkeys

import (
	"fmt"

	"github.com/keyplane-btc/keyplane/internal/address"
	"github.com/keyplane-btc/keyplane/internal/crypto"
	"github.com/keyplane-btc/keyplane/internal/lru"
)

// CachingDeriver memoizes derived addresses for one seed behind a bounded
// LRU cache keyed by (network, script type, path). Only the address string
// is cached; private keys are never retained, so repeated listing of known
// addresses skips the full derivation walk without widening the surface
// that holds key material.
type CachingDeriver struct {
	seed  []byte
	cache *lru.Cache[string, string]
}

// NewCachingDeriver creates a deriver over a copy of seed with a cache of
// the given capacity. The caller can zero its own seed copy afterwards, and
// must Close the deriver when done.
func NewCachingDeriver(seed []byte, capacity int) (*CachingDeriver, error) {
	cache, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(seed))
	copy(owned, seed)
	return &CachingDeriver{seed: owned, cache: cache}, nil
}

// Address returns the address for a path, deriving and caching on miss.
func (d *CachingDeriver) Address(path Path, network address.Network, scriptType address.ScriptType) (string, error) {
	key := cacheKey(path, network, scriptType)
	if addr, ok := d.cache.Get(key); ok {
		return addr, nil
	}

	derived, err := DeriveAddress(d.seed, path, network, scriptType)
	if err != nil {
		return "", err
	}
	derived.Zero()

	d.cache.Put(key, derived.Address)
	return derived.Address, nil
}

// Close zeroes the held seed and drops the cache.
func (d *CachingDeriver) Close() {
	crypto.ZeroBytes(d.seed)
	d.seed = nil
	d.cache.Purge()
}

func cacheKey(path Path, network address.Network, scriptType address.ScriptType) string {
	return fmt.Sprintf("%s/%s/%s", network, scriptType, path)
}
