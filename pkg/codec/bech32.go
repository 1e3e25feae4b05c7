package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

var (
	ErrBech32Case           = errors.New("bech32 string must be lower-case")
	ErrBech32Variant        = errors.New("bech32 checksum variant does not match witness version")
	ErrWitnessVersion       = errors.New("witness version out of range")
	ErrWitnessProgramLength = errors.New("invalid witness program length")
	ErrBech32Empty          = errors.New("bech32 data is empty")
)

const maxWitnessVersion = 16

// DecodeSegwit decodes a segwit address into its HRP, witness version and
// program. Version 0 must use the bech32 checksum, versions 1..16 bech32m.
// Upper-case input is rejected rather than normalized.
func DecodeSegwit(s string) (hrp string, version byte, program []byte, err error) {
	if s != strings.ToLower(s) {
		return "", 0, nil, ErrBech32Case
	}
	hrp, data, variant, err := bech32.DecodeGeneric(s)
	if err != nil {
		return "", 0, nil, err
	}
	if len(data) < 1 {
		return "", 0, nil, ErrBech32Empty
	}
	version = data[0]
	if version > maxWitnessVersion {
		return "", 0, nil, fmt.Errorf("%w: %d", ErrWitnessVersion, version)
	}
	if (version == 0 && variant != bech32.Version0) || (version != 0 && variant != bech32.VersionM) {
		return "", 0, nil, ErrBech32Variant
	}
	program, err = bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return "", 0, nil, err
	}
	if err := ValidateWitness(version, program); err != nil {
		return "", 0, nil, err
	}
	return hrp, version, program, nil
}

// EncodeSegwit is the inverse of DecodeSegwit.
func EncodeSegwit(hrp string, version byte, program []byte) (string, error) {
	if err := ValidateWitness(version, program); err != nil {
		return "", err
	}
	conv, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := append([]byte{version}, conv...)
	if version == 0 {
		return bech32.Encode(hrp, data)
	}
	return bech32.EncodeM(hrp, data)
}

// ValidateWitness applies the BIP-141 program rules.
func ValidateWitness(version byte, program []byte) error {
	if version > maxWitnessVersion {
		return fmt.Errorf("%w: %d", ErrWitnessVersion, version)
	}
	if len(program) < 2 || len(program) > 40 {
		return fmt.Errorf("%w: %d", ErrWitnessProgramLength, len(program))
	}
	if version == 0 && len(program) != 20 && len(program) != 32 {
		return fmt.Errorf("%w: v0 program of %d bytes", ErrWitnessProgramLength, len(program))
	}
	return nil
}

// EncodeBech32m encodes arbitrary bytes under hrp with the bech32m checksum.
func EncodeBech32m(hrp string, data []byte) (string, error) {
	conv, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.EncodeM(hrp, conv)
}

// DecodeBech32m decodes a lower-case bech32m string into its HRP and bytes.
func DecodeBech32m(s string) (string, []byte, error) {
	if s != strings.ToLower(s) {
		return "", nil, ErrBech32Case
	}
	hrp, data, variant, err := bech32.DecodeGeneric(s)
	if err != nil {
		return "", nil, err
	}
	if variant != bech32.VersionM {
		return "", nil, ErrBech32Variant
	}
	out, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	return hrp, out, nil
}
