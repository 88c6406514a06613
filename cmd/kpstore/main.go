// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

// kpstore manages a keyplane secret store: seed generation and restore,
// address derivation and validation, PIN management, and encrypted backups.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/keyplane-btc/keyplane/internal/address"
	"github.com/keyplane-btc/keyplane/internal/crypto"
	"github.com/keyplane-btc/keyplane/internal/security"
	"github.com/keyplane-btc/keyplane/internal/util"
	"github.com/keyplane-btc/keyplane/internal/version"
)

// Global config for commands that need it
var config util.CoreConfig

// storeDir is the resolved secret store directory
var storeDir string

// network is the configured Bitcoin network
var network address.Network

func main() {
	// Handle early-exit flags before any other processing
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" {
			fmt.Printf("kpstore %s\n", version.String())
			os.Exit(0)
		}
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "kpstore - Wallet secret store management\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] init\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] status\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] generate [--words N] [--save]\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] restore [--require-biometric]\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] derive <path> [--type T] [--show-private]\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] addresses [-n N] [--type T] [--account A]\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] check <address>\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] pin <set|verify|remove>\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] backup <destination>\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] restore-backup <source>\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] verify-backup <source>\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] changepass\n")
		fmt.Fprintf(os.Stderr, "  kpstore [-d path] wipe\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		fmt.Fprintf(os.Stderr, "  -d path              Data directory (or set KEYPLANE_DATA env var)\n")
		fmt.Fprintf(os.Stderr, "  --words N            Mnemonic length: 12, 15, 18, 21 or 24 (generate)\n")
		fmt.Fprintf(os.Stderr, "  --save               Store the seed after generating (generate)\n")
		fmt.Fprintf(os.Stderr, "  --require-biometric  Record a biometric-required policy with the seed\n")
		fmt.Fprintf(os.Stderr, "  --type T             Script type: p2pkh, p2sh-p2wpkh or p2wpkh\n")
		fmt.Fprintf(os.Stderr, "  --show-private       Show private key material (derive only)\n")
		fmt.Fprintf(os.Stderr, "  -n N                 Number of addresses to derive (addresses)\n")
		fmt.Fprintf(os.Stderr, "  --account A          BIP44 account index (addresses)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  kpstore init\n")
		fmt.Fprintf(os.Stderr, "  kpstore generate --words 24 --save\n")
		fmt.Fprintf(os.Stderr, "  kpstore derive m/84'/0'/0'/0/0\n")
		fmt.Fprintf(os.Stderr, "  kpstore addresses -n 10 --type p2wpkh\n")
		fmt.Fprintf(os.Stderr, "  kpstore check bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4\n")
		fmt.Fprintf(os.Stderr, "  kpstore pin set\n")
		fmt.Fprintf(os.Stderr, "  kpstore backup /mnt/usb/wallet.kpb\n")
		fmt.Fprintf(os.Stderr, "  kpstore restore-backup /mnt/usb/wallet.kpb\n")
		fmt.Fprintf(os.Stderr, "  kpstore changepass\n")
	}

	dataDir := flag.String("d", "", "Data directory (required, or set KEYPLANE_DATA)")
	flag.Parse()

	util.InitLogger()

	// Resolve data directory from -d flag or KEYPLANE_DATA env var
	resolvedDataDir := util.RequireDataDir(*dataDir)

	// Load config from data directory
	config = util.LoadCoreConfig(resolvedDataDir)

	if config.StoreDir == "" {
		config.StoreDir = "store"
	}
	storeDir = util.ResolvePath(config.StoreDir, resolvedDataDir)

	var err error
	network, err = address.ParseNetwork(config.Network)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := security.Harden(config.RequireMemoryProtection); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]

	switch command {
	case "init":
		if err := cmdInit(); err != nil {
			fatal(err)
		}

	case "status":
		if err := cmdStatus(); err != nil {
			fatal(err)
		}

	case "generate":
		words, save, err := parseGenerateArgs(args[1:])
		if err != nil {
			fatal(err)
		}
		if err := cmdGenerate(words, save); err != nil {
			fatal(err)
		}

	case "restore":
		requireBiometric := hasFlag(args[1:], "--require-biometric")
		if err := cmdRestore(requireBiometric); err != nil {
			fatal(err)
		}

	case "derive":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: kpstore derive <path> [--type T] [--show-private]\n")
			os.Exit(1)
		}
		scriptType, err := parseTypeArg(args[2:])
		if err != nil {
			fatal(err)
		}
		showPrivate := hasFlag(args[2:], "--show-private")
		if err := cmdDerive(args[1], scriptType, showPrivate); err != nil {
			fatal(err)
		}

	case "addresses":
		count, account, scriptType, err := parseAddressesArgs(args[1:])
		if err != nil {
			fatal(err)
		}
		if err := cmdAddresses(count, account, scriptType); err != nil {
			fatal(err)
		}

	case "check":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: kpstore check <address>\n")
			os.Exit(1)
		}
		if err := cmdCheck(args[1]); err != nil {
			fatal(err)
		}

	case "pin":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: kpstore pin <set|verify|remove>\n")
			os.Exit(1)
		}
		if err := cmdPIN(args[1]); err != nil {
			fatal(err)
		}

	case "backup":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: kpstore backup <destination>\n")
			os.Exit(1)
		}
		if err := cmdBackup(args[1]); err != nil {
			fatal(err)
		}

	case "restore-backup":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: kpstore restore-backup <source>\n")
			os.Exit(1)
		}
		if err := cmdRestoreBackup(args[1]); err != nil {
			fatal(err)
		}

	case "verify-backup":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: kpstore verify-backup <source>\n")
			os.Exit(1)
		}
		if err := cmdVerifyBackup(args[1]); err != nil {
			fatal(err)
		}

	case "changepass":
		if err := cmdChangepass(); err != nil {
			fatal(err)
		}

	case "wipe":
		if err := cmdWipe(); err != nil {
			fatal(err)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func hasFlag(args []string, name string) bool {
	for _, arg := range args {
		if arg == name {
			return true
		}
	}
	return false
}

// flagValue returns the value following name in args, if present.
func flagValue(args []string, name string) (string, bool) {
	for i, arg := range args {
		if arg == name && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func configuredKDFParams() (crypto.KDFParams, error) {
	params := crypto.KDFParams{
		Time:     config.KDFTime,
		MemoryKB: config.KDFMemoryKB,
		Threads:  config.KDFThreads,
	}
	if err := params.Validate(); err != nil {
		return params, fmt.Errorf("invalid KDF profile in config.yaml: %w", err)
	}
	return params, nil
}
