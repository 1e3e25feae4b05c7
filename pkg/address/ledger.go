// Package address models identities on the ledger and on foreign chains.
package address

import (
	"fmt"
	"strings"

	"roochkit/go-sdk/pkg/codec"
	"roochkit/go-sdk/pkg/sdkerr"

	"golang.org/x/crypto/blake2b"
)

const (
	LedgerAddressLength = 32
	LedgerBech32HRP     = "rooch"
)

// LedgerAddress is the fixed-width canonical account identity on the ledger.
type LedgerAddress [LedgerAddressLength]byte

// DeriveLedgerAddress hashes self-describing bytes (a wrapped chain address or
// flag ‖ public key) into a ledger address. It is one-way.
func DeriveLedgerAddress(wrapped []byte) LedgerAddress {
	return LedgerAddress(blake2b.Sum256(wrapped))
}

func LedgerAddressFromBytes(b []byte) (LedgerAddress, error) {
	if len(b) != LedgerAddressLength {
		return LedgerAddress{}, &sdkerr.AddressFormatError{
			Input:  codec.ToHexPrefixed(b),
			Reason: fmt.Sprintf("ledger address must be %d bytes, got %d", LedgerAddressLength, len(b)),
		}
	}
	var out LedgerAddress
	copy(out[:], b)
	return out, nil
}

// ParseLedgerAddress accepts hex (prefix optional, any case, short forms
// left-padded) or the lower-case bech32m form.
func ParseLedgerAddress(text string) (LedgerAddress, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(strings.ToLower(text), LedgerBech32HRP+"1") {
		hrp, data, err := codec.DecodeBech32m(text)
		if err != nil {
			return LedgerAddress{}, &sdkerr.AddressFormatError{Input: text, Err: err}
		}
		if hrp != LedgerBech32HRP {
			return LedgerAddress{}, &sdkerr.AddressFormatError{Input: text, Reason: "unexpected prefix " + hrp}
		}
		addr, err := LedgerAddressFromBytes(data)
		if err != nil {
			return LedgerAddress{}, &sdkerr.AddressFormatError{Input: text, Err: err}
		}
		return addr, nil
	}
	return parseHexAddress(text)
}

func parseHexAddress(text string) (LedgerAddress, error) {
	body := codec.TrimHexPrefix(text)
	if body == "" || len(body) > 2*LedgerAddressLength || !codec.IsHex(body) {
		return LedgerAddress{}, &sdkerr.AddressFormatError{Input: text, Reason: "not a hex address"}
	}
	padded := strings.Repeat("0", 2*LedgerAddressLength-len(body)) + body
	raw, err := codec.FromHex(padded)
	if err != nil {
		return LedgerAddress{}, &sdkerr.AddressFormatError{Input: text, Err: err}
	}
	return LedgerAddressFromBytes(raw)
}

// NormalizeHexAddress returns the canonical 0x-prefixed, full-width,
// lower-case form of a hex address.
func NormalizeHexAddress(text string) (string, error) {
	addr, err := parseHexAddress(strings.TrimSpace(text))
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

func (a LedgerAddress) Hex() string {
	return codec.ToHexPrefixed(a[:])
}

func (a LedgerAddress) String() string {
	return a.Hex()
}

func (a LedgerAddress) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

func (a LedgerAddress) Bech32() string {
	s, err := codec.EncodeBech32m(LedgerBech32HRP, a[:])
	if err != nil {
		// 32 bytes under a fixed HRP always fits the bech32 length limit.
		panic(err)
	}
	return s
}

func (a LedgerAddress) IsZero() bool {
	return a == LedgerAddress{}
}

func (a LedgerAddress) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *LedgerAddress) UnmarshalText(text []byte) error {
	parsed, err := ParseLedgerAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
