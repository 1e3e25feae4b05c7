package crypto

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

const (
	DefaultEd25519Path   = "m/44'/784'/0'/0'/0'"
	DefaultSecp256k1Path = "m/86'/0'/0'/0/0"

	hardenedOffset = hdkeychain.HardenedKeyStart
	ed25519Curve   = "ed25519 seed"
)

var (
	ErrInvalidMnemonic    = errors.New("invalid mnemonic")
	ErrInvalidPath        = errors.New("invalid derivation path")
	ErrNonHardenedEd25519 = errors.New("ed25519 derivation supports hardened indexes only")
)

// GenerateMnemonic returns a fresh 12-word phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

func IsValidMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(strings.TrimSpace(mnemonic))
}

func mnemonicSeed(mnemonic string) ([]byte, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return bip39.NewSeed(mnemonic, ""), nil
}

// Ed25519FromMnemonic derives with SLIP-10; an empty path means
// DefaultEd25519Path.
func Ed25519FromMnemonic(mnemonic, path string) (*Ed25519Keypair, error) {
	if path == "" {
		path = DefaultEd25519Path
	}
	seed, err := mnemonicSeed(mnemonic)
	if err != nil {
		return nil, err
	}
	indexes, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	key, _, err := deriveSLIP10(seed, indexes)
	if err != nil {
		return nil, err
	}
	return Ed25519FromSecretKey(key)
}

// Secp256k1FromMnemonic derives with BIP-32; an empty path means
// DefaultSecp256k1Path.
func Secp256k1FromMnemonic(mnemonic, path string) (*Secp256k1Keypair, error) {
	if path == "" {
		path = DefaultSecp256k1Path
	}
	seed, err := mnemonicSeed(mnemonic)
	if err != nil {
		return nil, err
	}
	indexes, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	key, _, err := deriveBIP32(seed, indexes)
	if err != nil {
		return nil, err
	}
	return Secp256k1FromSecretKey(key)
}

func parsePath(path string) ([]uint32, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: %q must start with m", ErrInvalidPath, path)
	}
	out := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'")
		n, err := strconv.ParseUint(strings.TrimSuffix(part, "'"), 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q", ErrInvalidPath, part)
		}
		idx := uint32(n)
		if hardened {
			idx += hardenedOffset
		}
		out = append(out, idx)
	}
	return out, nil
}

func hmacSHA512(key []byte, parts ...[]byte) (il, ir []byte) {
	mac := hmac.New(sha512.New, key)
	for _, p := range parts {
		mac.Write(p)
	}
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

func ser32(i uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, i)
}

// deriveSLIP10 is the ed25519 variant of SLIP-10: hardened steps only, the
// parent secret fed straight into the HMAC. hdkeychain covers secp256k1 only.
func deriveSLIP10(seed []byte, indexes []uint32) (key, chain []byte, err error) {
	key, chain = hmacSHA512([]byte(ed25519Curve), seed)
	for _, idx := range indexes {
		if idx < hardenedOffset {
			return nil, nil, ErrNonHardenedEd25519
		}
		key, chain = hmacSHA512(chain, []byte{0}, key, ser32(idx))
	}
	return key, chain, nil
}

// deriveBIP32 walks indexes from the seed's master key. The network
// parameters only affect extended-key serialization, never the derived key.
func deriveBIP32(seed []byte, indexes []uint32) (key, chain []byte, err error) {
	ext, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: master key: %v", ErrInvalidKey, err)
	}
	for _, idx := range indexes {
		if ext, err = ext.Derive(idx); err != nil {
			return nil, nil, fmt.Errorf("%w: child %d: %v", ErrInvalidKey, idx, err)
		}
	}
	priv, err := ext.ECPrivKey()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return priv.Serialize(), ext.ChainCode(), nil
}
