// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/keyplane-btc/keyplane/internal/address"
	"github.com/keyplane-btc/keyplane/internal/crypto"
	"github.com/keyplane-btc/keyplane/internal/hdkeys"
	"github.com/keyplane-btc/keyplane/internal/mnemonic"
	"github.com/keyplane-btc/keyplane/internal/util"
)

func parseGenerateArgs(args []string) (mnemonic.Strength, bool, error) {
	strength := mnemonic.Strength128
	if v, ok := flagValue(args, "--words"); ok {
		words, err := strconv.Atoi(v)
		if err != nil {
			return 0, false, fmt.Errorf("invalid --words value %q", v)
		}
		switch words {
		case 12:
			strength = mnemonic.Strength128
		case 15:
			strength = mnemonic.Strength160
		case 18:
			strength = mnemonic.Strength192
		case 21:
			strength = mnemonic.Strength224
		case 24:
			strength = mnemonic.Strength256
		default:
			return 0, false, fmt.Errorf("--words must be 12, 15, 18, 21 or 24")
		}
	}
	return strength, hasFlag(args, "--save"), nil
}

func parseTypeArg(args []string) (address.ScriptType, error) {
	if v, ok := flagValue(args, "--type"); ok {
		return address.ParseScriptType(v)
	}
	return address.P2WPKH, nil
}

func parseAddressesArgs(args []string) (count int, account uint32, scriptType address.ScriptType, err error) {
	count = 5
	if v, ok := flagValue(args, "-n"); ok {
		count, err = strconv.Atoi(v)
		if err != nil || count < 1 {
			return 0, 0, 0, fmt.Errorf("invalid -n value %q", v)
		}
	}
	if v, ok := flagValue(args, "--account"); ok {
		a, err := strconv.ParseUint(v, 10, 31)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid --account value %q", v)
		}
		account = uint32(a)
	}
	scriptType, err = parseTypeArg(args)
	if err != nil {
		return 0, 0, 0, err
	}
	return count, account, scriptType, nil
}

// cmdGenerate creates a fresh mnemonic and optionally installs its seed.
func cmdGenerate(strength mnemonic.Strength, save bool) error {
	phrase, err := mnemonic.Generate(strength)
	if err != nil {
		return err
	}

	fmt.Printf("Generated %d-word mnemonic:\n\n  %s\n\n", strength.Words(), phrase)
	fmt.Println("Write these words down in order and keep them offline.")
	fmt.Println("Anyone holding the words controls the wallet.")

	if !save {
		return nil
	}
	return installSeed(phrase, false)
}

// cmdRestore installs a seed from a user-supplied mnemonic.
func cmdRestore(requireBiometric bool) error {
	fmt.Print("Enter mnemonic phrase: ")
	phrase, err := readLine()
	if err != nil {
		return fmt.Errorf("failed to read mnemonic: %w", err)
	}

	if err := mnemonic.Validate(phrase); err != nil {
		return err
	}
	return installSeed(phrase, requireBiometric)
}

// installSeed derives the BIP39 seed from phrase and stores it, prompting
// for the optional passphrase and for confirmation when replacing.
func installSeed(phrase string, requireBiometric bool) error {
	fmt.Print("Enter BIP39 passphrase (empty for none): ")
	passphrase, err := readPassword()
	if err != nil {
		return fmt.Errorf("failed to read BIP39 passphrase: %w", err)
	}
	fmt.Println()

	seed, err := mnemonic.Seed(phrase, passphrase)
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(seed)

	store, sealer, err := unlockStore()
	if err != nil {
		return err
	}
	defer sealer.Close()

	if store.HasSeed() {
		ok, err := confirmAction(
			"The store already holds a seed. Saving replaces it.", "replace")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := store.SaveSeed(seed, requireBiometric); err != nil {
		return err
	}
	fmt.Println("Seed stored.")
	return nil
}

// cmdDerive derives one address at an explicit BIP32 path.
func cmdDerive(pathStr string, scriptType address.ScriptType, showPrivate bool) error {
	path, err := hdkeys.ParsePath(pathStr)
	if err != nil {
		return err
	}

	store, sealer, err := unlockStore()
	if err != nil {
		return err
	}
	defer sealer.Close()

	if _, err := requireSession(store); err != nil {
		return err
	}

	seed, err := store.RetrieveSeed()
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(seed)

	derived, err := hdkeys.DeriveAddress(seed, path, network, scriptType)
	if err != nil {
		return err
	}
	defer derived.Zero()

	fmt.Printf("Path:       %s\n", path)
	fmt.Printf("Network:    %s\n", network)
	fmt.Printf("Type:       %s\n", scriptType)
	fmt.Printf("Address:    %s\n",
		util.FormatAddressWithColor(derived.Address, scriptType.String(), util.DefaultScriptTypeColor))
	fmt.Printf("Public key: %s\n", hex.EncodeToString(derived.PubKey))
	if showPrivate {
		wif, err := btcutil.NewWIF(derived.PrivKey, network.Params(), true)
		if err != nil {
			return fmt.Errorf("failed to encode WIF: %w", err)
		}
		fmt.Printf("Private key: %x\n", derived.PrivKey.Serialize())
		fmt.Printf("WIF:         %s\n", wif.String())
		fmt.Println("\nWARNING: the private key above grants full control of this address.")
	}
	return nil
}

// cmdAddresses derives the first N external addresses of a BIP44/49/84
// account through the caching deriver.
func cmdAddresses(count int, account uint32, scriptType address.ScriptType) error {
	store, sealer, err := unlockStore()
	if err != nil {
		return err
	}
	defer sealer.Close()

	manager, err := requireSession(store)
	if err != nil {
		return err
	}

	// External edits to the store files invalidate the session for the
	// remainder of the run.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := store.Watch(watchCtx, manager.Logout); err != nil {
		return fmt.Errorf("failed to watch store directory: %w", err)
	}

	seed, err := store.RetrieveSeed()
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(seed)

	deriver, err := hdkeys.NewCachingDeriver(seed, addressCacheCapacity)
	if err != nil {
		return err
	}
	defer deriver.Close()

	purpose := purposeFor(scriptType)
	coin := coinTypeFor(network)
	fmt.Printf("Account m/%d'/%d'/%d' (%s, %s):\n\n", purpose, coin, account, network, scriptType)

	for i := uint32(0); i < uint32(count); i++ {
		if err := manager.Require(); err != nil {
			return fmt.Errorf("session no longer valid: %w", err)
		}
		path := hdkeys.Path{
			purpose + hdkeys.HardenedOffset,
			coin + hdkeys.HardenedOffset,
			account + hdkeys.HardenedOffset,
			0,
			i,
		}
		addr, err := deriver.Address(path, network, scriptType)
		if err != nil {
			return fmt.Errorf("derivation failed at %s: %w", path, err)
		}
		fmt.Printf("  %-22s %s\n", path,
			util.FormatAddressWithColor(addr, scriptType.String(), util.DefaultScriptTypeColor))
	}
	return nil
}

// addressCacheCapacity bounds the derived-address cache in the CLI.
const addressCacheCapacity = 100

// purposeFor maps a script type to its BIP43 purpose field.
func purposeFor(t address.ScriptType) uint32 {
	switch t {
	case address.P2PKH:
		return 44
	case address.P2SHP2WPKH:
		return 49
	default:
		return 84
	}
}

// coinTypeFor maps a network to its SLIP44 coin type.
func coinTypeFor(n address.Network) uint32 {
	if n == address.Mainnet {
		return 0
	}
	return 1
}

// cmdCheck validates an address and reports what it encodes.
func cmdCheck(addr string) error {
	info, err := address.Validate(addr)
	if err != nil {
		switch {
		case errors.Is(err, address.ErrInvalidChecksum):
			return fmt.Errorf("invalid address: checksum mismatch")
		case errors.Is(err, address.ErrInvalidFormat):
			return fmt.Errorf("invalid address: %w", err)
		default:
			return err
		}
	}

	fmt.Println("Address: valid")
	fmt.Printf("  Network: %s\n", info.Network)
	fmt.Printf("  Type:    %s\n", info.ScriptType)
	if info.ScriptType == address.P2WPKH {
		fmt.Printf("  Witness: v%d\n", info.WitnessVersion)
	}
	if info.Network != network {
		fmt.Printf("\nNote: address belongs to %s, configured network is %s.\n",
			info.Network, network)
	}
	return nil
}
