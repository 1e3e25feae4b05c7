// Package codec converts between text encodings and raw bytes.
package codec

import (
	"encoding/hex"
	"errors"
	"strings"
)

var ErrInvalidHex = errors.New("invalid hex string")

// FromHex decodes hex with an optional 0x/0X prefix. Odd-length input is
// left-padded with a zero nibble so "0x1" and "0x01" decode identically.
func FromHex(s string) ([]byte, error) {
	s = TrimHexPrefix(strings.TrimSpace(s))
	if len(s)%2 == 1 {
		s = "0" + s
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidHex
	}
	return out, nil
}

// ToHex encodes lower-case without prefix.
func ToHex(b []byte) string {
	return hex.EncodeToString(b)
}

func ToHexPrefixed(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func TrimHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

// IsHex reports whether s is a non-empty hex string, prefix optional.
func IsHex(s string) bool {
	s = TrimHexPrefix(s)
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
