// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/keyplane-btc/keyplane/internal/crypto"
	"github.com/keyplane-btc/keyplane/internal/fsutil"
	"github.com/keyplane-btc/keyplane/internal/vault"
	"github.com/keyplane-btc/keyplane/internal/version"
)

// cmdInit creates an empty store protected by a new passphrase.
func cmdInit() error {
	if crypto.StoreMetaExists(storeDir) {
		return fmt.Errorf("store already initialized at %s", storeDir)
	}

	fmt.Println("Keyplane Store Initialization")
	fmt.Println("=============================")
	fmt.Printf("Store directory: %s\n", storeDir)
	fmt.Printf("Network:         %s\n\n", network)

	passphrase, err := promptNewPassphrase("store passphrase")
	if err != nil {
		return err
	}
	defer passphrase.Destroy()

	params, err := configuredKDFParams()
	if err != nil {
		return err
	}

	err = passphrase.WithBytes(func(p []byte) error {
		_, sealer, createErr := crypto.CreateStoreMeta(storeDir, p, params)
		if createErr != nil {
			return createErr
		}
		sealer.Close()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	fmt.Println("\nStore initialized.")
	fmt.Println("Next: 'kpstore generate --save' or 'kpstore restore' to install a seed.")
	return nil
}

// cmdStatus prints store state without requiring the passphrase.
func cmdStatus() error {
	fmt.Printf("kpstore %s\n\n", version.String())
	fmt.Printf("Store directory: %s\n", storeDir)
	fmt.Printf("Network:         %s\n", network)

	if !crypto.StoreMetaExists(storeDir) {
		fmt.Println("Status:          not initialized")
		return nil
	}
	fmt.Println("Status:          initialized")

	meta, err := crypto.LoadStoreMeta(storeDir)
	if err != nil {
		return err
	}
	fmt.Printf("Created:         %s\n", meta.Created)
	fmt.Printf("KDF:             argon2id(t=%d, m=%dKiB, p=%d)\n",
		meta.KDF.Time, meta.KDF.MemoryKB, meta.KDF.Threads)

	// Presence checks only - no decryption without the passphrase.
	seed := false
	records := 0
	entries, err := os.ReadDir(storeDir)
	if err != nil {
		return fmt.Errorf("failed to read store directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".rec") {
			continue
		}
		records++
		if name == "seed.rec" {
			seed = true
		}
	}
	fmt.Printf("Seed:            %s\n", yesNo(seed))
	fmt.Printf("Records:         %d\n", records)

	_, pinErr := os.Stat(filepath.Join(storeDir, "pin.json"))
	fmt.Printf("PIN:             %s\n", yesNo(pinErr == nil))
	return nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// cmdPIN handles pin set|verify|remove.
func cmdPIN(action string) error {
	store, sealer, err := unlockStore()
	if err != nil {
		return err
	}
	defer sealer.Close()

	switch action {
	case "set":
		pin, err := promptNewPassphrase("PIN")
		if err != nil {
			return err
		}
		err = pin.WithBytes(func(p []byte) error {
			return store.SetPIN(p)
		})
		pin.Destroy()
		if err != nil {
			return err
		}
		fmt.Println("PIN set.")
		return nil

	case "verify":
		fmt.Print("Enter PIN: ")
		pin, err := readSecret()
		if err != nil {
			return fmt.Errorf("failed to read PIN: %w", err)
		}
		fmt.Println()
		var good bool
		_ = pin.WithBytes(func(p []byte) error {
			good = store.VerifyPIN(p)
			return nil
		})
		pin.Destroy()
		if !good {
			return fmt.Errorf("PIN verification failed")
		}
		fmt.Println("PIN verified.")
		return nil

	case "remove":
		if !store.HasPIN() {
			return fmt.Errorf("no PIN is set")
		}
		if err := store.RemovePIN(); err != nil {
			return err
		}
		fmt.Println("PIN removed.")
		return nil

	default:
		return fmt.Errorf("unknown pin action %q (want set, verify or remove)", action)
	}
}

// cmdBackup exports the encrypted backup to the destination file.
func cmdBackup(destination string) error {
	store, sealer, err := unlockStore()
	if err != nil {
		return err
	}
	defer sealer.Close()

	if _, err := requireSession(store); err != nil {
		return err
	}

	password, err := promptNewPassphrase("backup password")
	if err != nil {
		return err
	}

	var blob []byte
	err = password.WithBytes(func(p []byte) error {
		var exportErr error
		blob, exportErr = store.ExportBackup(p)
		return exportErr
	})
	password.Destroy()
	if err != nil {
		return err
	}

	if err := fsutil.WriteFile(destination, blob); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	info, err := vault.VerifyBackup(blob)
	if err != nil {
		return fmt.Errorf("exported backup failed verification: %w", err)
	}
	fmt.Printf("Backup written to %s (version %d, %s, %d bytes of ciphertext)\n",
		destination, info.Version, info.KDF, info.CiphertextLen)
	fmt.Println("Store the backup password separately from the file.")
	return nil
}

// cmdRestoreBackup imports an encrypted backup, replacing the current
// record set.
func cmdRestoreBackup(source string) error {
	blob, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}
	info, err := vault.VerifyBackup(blob)
	if err != nil {
		return err
	}
	fmt.Printf("Backup: version %d, %s", info.Version, info.KDF)
	if info.Created != "" {
		fmt.Printf(", created %s", info.Created)
	}
	fmt.Println()

	store, sealer, err := unlockStore()
	if err != nil {
		return err
	}
	defer sealer.Close()

	if store.HasSeed() {
		ok, err := confirmAction(
			"The store already holds a seed. Importing replaces ALL stored secrets.",
			"replace")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Print("Enter backup password: ")
	password, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read backup password: %w", err)
	}
	fmt.Println()

	err = password.WithBytes(func(p []byte) error {
		return store.ImportBackup(blob, p)
	})
	password.Destroy()
	if err != nil {
		return err
	}
	fmt.Println("Backup restored.")
	return nil
}

// cmdVerifyBackup checks a backup file's structure without a password.
func cmdVerifyBackup(source string) error {
	blob, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	info, err := vault.VerifyBackup(blob)
	if err != nil {
		return err
	}
	fmt.Println("Backup structure: OK")
	fmt.Printf("  Version:    %d\n", info.Version)
	fmt.Printf("  KDF:        %s\n", info.KDF)
	if info.Created != "" {
		fmt.Printf("  Created:    %s\n", info.Created)
	}
	fmt.Printf("  Ciphertext: %d bytes\n", info.CiphertextLen)
	fmt.Println("\nNote: structural check only; the password was not verified.")
	return nil
}

// cmdChangepass re-encrypts the store under a new passphrase.
func cmdChangepass() error {
	fmt.Println("Keyplane Passphrase Change")
	fmt.Println("==========================")

	store, sealer, err := unlockStore()
	if err != nil {
		return err
	}
	defer sealer.Close()

	newPass, err := promptNewPassphrase("new store passphrase")
	if err != nil {
		return err
	}

	params, err := configuredKDFParams()
	if err != nil {
		newPass.Destroy()
		return err
	}

	// Build the new metadata and sealer in memory, rewrap every record,
	// then persist the metadata. A failure mid-rewrap leaves the old
	// passphrase valid.
	var (
		newMeta   *crypto.StoreMeta
		newSealer *crypto.ProtectedKeySealer
	)
	err = newPass.WithBytes(func(p []byte) error {
		var createErr error
		newMeta, newSealer, createErr = crypto.CreateStoreMetaTemp(p, params)
		return createErr
	})
	newPass.Destroy()
	if err != nil {
		return err
	}
	if err := store.Rewrap(newSealer); err != nil {
		newSealer.Close()
		return fmt.Errorf("failed to re-encrypt records: %w", err)
	}
	if err := newMeta.Write(storeDir); err != nil {
		return fmt.Errorf("records re-encrypted but metadata write failed: %w", err)
	}
	newSealer.Close()

	fmt.Println("Passphrase changed.")
	return nil
}

// cmdWipe destroys all stored secrets and the store metadata.
func cmdWipe() error {
	store, sealer, err := unlockStore()
	if err != nil {
		return err
	}
	defer sealer.Close()

	ok, err := confirmAction(
		"This permanently destroys the stored seed, all records and the PIN.\n"+
			"Without a backup the wallet CANNOT be recovered.",
		"wipe")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
	}

	if err := store.WipeAll(); err != nil {
		return err
	}
	if err := crypto.RemoveStoreMeta(storeDir); err != nil {
		return err
	}
	fmt.Println("Store wiped.")
	return nil
}
