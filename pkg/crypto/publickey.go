package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"math/big"

	"roochkit/go-sdk/pkg/address"
	"roochkit/go-sdk/pkg/codec"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PublicKey is a scheme-tagged public key whose length has been checked.
type PublicKey struct {
	scheme Scheme
	raw    []byte
}

// NewPublicKey rejects keys whose length does not match the scheme, and
// compressed points that are not on the curve.
func NewPublicKey(scheme Scheme, raw []byte) (PublicKey, error) {
	if !scheme.Valid() {
		return PublicKey{}, ErrUnknownScheme
	}
	if len(raw) != scheme.PublicKeyLength() {
		return PublicKey{}, fmt.Errorf("%w: %s public key must be %d bytes, got %d", ErrInvalidKeyLength, scheme, scheme.PublicKeyLength(), len(raw))
	}
	switch scheme {
	case Secp256k1:
		if _, err := secp256k1.ParsePubKey(raw); err != nil {
			return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
	case P256:
		if x, _ := elliptic.UnmarshalCompressed(elliptic.P256(), raw); x == nil {
			return PublicKey{}, fmt.Errorf("%w: not a compressed P-256 point", ErrInvalidKey)
		}
	}
	return PublicKey{scheme: scheme, raw: append([]byte(nil), raw...)}, nil
}

func (k PublicKey) Scheme() Scheme {
	return k.scheme
}

func (k PublicKey) Bytes() []byte {
	return append([]byte(nil), k.raw...)
}

// FlaggedBytes is flag ‖ public key.
func (k PublicKey) FlaggedBytes() []byte {
	out := make([]byte, 0, 1+len(k.raw))
	out = append(out, k.scheme.Flag())
	return append(out, k.raw...)
}

func (k PublicKey) String() string {
	return k.scheme.String() + ":" + codec.ToHexPrefixed(k.raw)
}

func (k PublicKey) Equal(other PublicKey) bool {
	return k.scheme == other.scheme && string(k.raw) == string(other.raw)
}

// LedgerAddress derives the account address. Secp256k1 keys go through their
// Taproot address; other schemes hash flag ‖ public key.
func (k PublicKey) LedgerAddress() address.LedgerAddress {
	if k.scheme == Secp256k1 {
		if a, err := k.TaprootAddress(address.Mainnet); err == nil {
			return a.LedgerAddress()
		}
	}
	return address.DeriveLedgerAddress(k.FlaggedBytes())
}

// TaprootAddress is the BIP-86 key-path address of a Secp256k1 key.
func (k PublicKey) TaprootAddress(network address.Network) (*address.ChainAddress, error) {
	if k.scheme != Secp256k1 {
		return nil, ErrNoChainAddress
	}
	outputKey, err := taprootOutputKey(k.raw)
	if err != nil {
		return nil, err
	}
	return address.NewChainAddress(address.P2TR, network, outputKey)
}

// P2WPKHAddress is the native segwit v0 address of a Secp256k1 key.
func (k PublicKey) P2WPKHAddress(network address.Network) (*address.ChainAddress, error) {
	if k.scheme != Secp256k1 {
		return nil, ErrNoChainAddress
	}
	return address.NewChainAddress(address.P2WPKH, network, Hash160(k.raw))
}

// Verify checks a signature produced by the matching keypair's Sign.
func (k PublicKey) Verify(msg, sig []byte) bool {
	if len(sig) != k.scheme.SignatureLength() {
		return false
	}
	switch k.scheme {
	case Ed25519:
		return ed25519.Verify(ed25519.PublicKey(k.raw), msg, sig)
	case Secp256k1:
		pub, err := secp256k1.ParsePubKey(k.raw)
		if err != nil {
			return false
		}
		var r, s secp256k1.ModNScalar
		if r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) {
			return false
		}
		digest := sha256.Sum256(msg)
		return secpecdsa.NewSignature(&r, &s).Verify(digest[:], pub)
	case P256:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), k.raw)
		if x == nil {
			return false
		}
		digest := sha256.Sum256(msg)
		pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		return ecdsa.Verify(pub, digest[:], new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:]))
	default:
		return false
	}
}
