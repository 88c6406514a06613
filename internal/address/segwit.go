// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package address

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

var (
	// ErrInvalidFormat is returned for structurally malformed SegWit
	// addresses: mixed case, bad separator, out-of-range witness version
	// or program length, or non-charset characters.
	ErrInvalidFormat = errors.New("invalid address format")

	// ErrInvalidChecksum is returned when the Bech32 checksum does not
	// verify against the generator polynomial.
	ErrInvalidChecksum = errors.New("invalid address checksum")
)

// EncodeSegWit encodes a witness version and program as a Bech32 address:
// the program repacked into 5-bit groups, prefixed by the version, with the
// checksum computed over the expanded HRP. Output is always lowercase.
// Witness v0 uses the original Bech32 checksum, v1-v16 use Bech32m.
func EncodeSegWit(hrp string, version byte, program []byte) (string, error) {
	if version > 16 {
		return "", fmt.Errorf("%w: witness version %d exceeds 16", ErrInvalidFormat, version)
	}
	if len(program) < 2 || len(program) > 40 {
		return "", fmt.Errorf("%w: witness program length %d outside 2-40", ErrInvalidFormat, len(program))
	}
	if version == 0 && len(program) != 20 && len(program) != 32 {
		return "", fmt.Errorf("%w: v0 witness program must be 20 or 32 bytes, got %d", ErrInvalidFormat, len(program))
	}

	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	data := append([]byte{version}, converted...)

	if version == 0 {
		return bech32.Encode(hrp, data)
	}
	return bech32.EncodeM(hrp, data)
}

// DecodeSegWit decodes a Bech32 SegWit address into its HRP, witness version
// and witness program, verifying the checksum. Mixed-case input is rejected;
// all-uppercase input is accepted and folded.
// Round-trip law: DecodeSegWit(EncodeSegWit(hrp, v, prog)) == (hrp, v, prog).
func DecodeSegWit(addr string) (string, byte, []byte, error) {
	// Case must be uniform before folding; the bech32 library also checks
	// this, but mapping it to the format error here keeps the taxonomy
	// independent of library error types.
	if strings.ToLower(addr) != addr && strings.ToUpper(addr) != addr {
		return "", 0, nil, fmt.Errorf("%w: mixed case", ErrInvalidFormat)
	}

	hrp, data, bech32Version, err := bech32.DecodeGeneric(strings.ToLower(addr))
	if err != nil {
		return "", 0, nil, mapBech32Error(err)
	}
	if len(data) < 1 {
		return "", 0, nil, fmt.Errorf("%w: missing witness version", ErrInvalidFormat)
	}

	version := data[0]
	if version > 16 {
		return "", 0, nil, fmt.Errorf("%w: witness version %d exceeds 16", ErrInvalidFormat, version)
	}
	// v0 requires the original Bech32 checksum, later versions Bech32m.
	if version == 0 && bech32Version != bech32.Version0 {
		return "", 0, nil, fmt.Errorf("%w: v0 address carries a bech32m checksum", ErrInvalidChecksum)
	}
	if version > 0 && bech32Version != bech32.VersionM {
		return "", 0, nil, fmt.Errorf("%w: v%d address carries a bech32 checksum", ErrInvalidChecksum, version)
	}

	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if len(program) < 2 || len(program) > 40 {
		return "", 0, nil, fmt.Errorf("%w: witness program length %d outside 2-40", ErrInvalidFormat, len(program))
	}
	if version == 0 && len(program) != 20 && len(program) != 32 {
		return "", 0, nil, fmt.Errorf("%w: v0 witness program must be 20 or 32 bytes, got %d", ErrInvalidFormat, len(program))
	}

	return hrp, version, program, nil
}

// mapBech32Error folds library error types into the package taxonomy.
func mapBech32Error(err error) error {
	var checksumErr bech32.ErrInvalidChecksum
	if errors.As(err, &checksumErr) {
		return fmt.Errorf("%w: %v", ErrInvalidChecksum, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
}
