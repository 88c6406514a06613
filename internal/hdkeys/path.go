// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package hdkeys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// ErrInvalidPath is returned for malformed derivation path strings.
var ErrInvalidPath = errors.New("invalid derivation path")

// HardenedOffset is added to an index to mark it hardened: deriving a
// hardened child requires the parent private key.
const HardenedOffset = hdkeychain.HardenedKeyStart

// Path is an ordered sequence of child indices walked from the master key.
// Hardened indices carry the offset bit.
type Path []uint32

// ParsePath parses the textual form m/purpose'/coin'/account'/change/index.
// Each apostrophe (or trailing 'h'/'H') marks a hardened index. A bare "m"
// parses to the empty path (the master key itself).
func ParsePath(s string) (Path, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	segments := strings.Split(trimmed, "/")
	if segments[0] != "m" && segments[0] != "M" {
		return nil, fmt.Errorf("%w: path must start with m/", ErrInvalidPath)
	}

	path := make(Path, 0, len(segments)-1)
	for _, segment := range segments[1:] {
		if segment == "" {
			return nil, fmt.Errorf("%w: empty segment", ErrInvalidPath)
		}

		hardened := false
		switch segment[len(segment)-1] {
		case '\'', 'h', 'H':
			hardened = true
			segment = segment[:len(segment)-1]
		}

		index, err := strconv.ParseUint(segment, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q: %v", ErrInvalidPath, segment, err)
		}
		if index >= HardenedOffset {
			return nil, fmt.Errorf("%w: index %d exceeds 2^31-1", ErrInvalidPath, index)
		}

		if hardened {
			index += HardenedOffset
		}
		path = append(path, uint32(index))
	}

	return path, nil
}

// String renders the path in its textual form.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, index := range p {
		b.WriteString("/")
		if index >= HardenedOffset {
			b.WriteString(strconv.FormatUint(uint64(index-HardenedOffset), 10))
			b.WriteString("'")
		} else {
			b.WriteString(strconv.FormatUint(uint64(index), 10))
		}
	}
	return b.String()
}

// Hardened reports whether the index at position i requires the parent
// private key to derive.
func (p Path) Hardened(i int) bool {
	return p[i] >= HardenedOffset
}
