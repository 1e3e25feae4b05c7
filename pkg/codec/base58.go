package codec

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/mr-tron/base58/base58"
)

var (
	ErrBase58Checksum = errors.New("base58 checksum mismatch")
	ErrBase58Length   = errors.New("base58 payload too short")
)

const checksumLen = 4

// Base58CheckEncode encodes version ‖ payload ‖ dsha256(version ‖ payload)[:4].
func Base58CheckEncode(version byte, payload []byte) string {
	b := make([]byte, 0, 1+len(payload)+checksumLen)
	b = append(b, version)
	b = append(b, payload...)
	sum := doubleSHA256(b)
	b = append(b, sum[:checksumLen]...)
	return base58.Encode(b)
}

// Base58CheckDecode verifies the checksum and splits off the version byte.
func Base58CheckDecode(s string) (byte, []byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return 0, nil, err
	}
	if len(raw) < 1+checksumLen {
		return 0, nil, ErrBase58Length
	}
	body := raw[:len(raw)-checksumLen]
	sum := doubleSHA256(body)
	if !bytes.Equal(sum[:checksumLen], raw[len(raw)-checksumLen:]) {
		return 0, nil, ErrBase58Checksum
	}
	return body[0], append([]byte(nil), body[1:]...), nil
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}
