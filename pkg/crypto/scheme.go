// Package crypto provides the signature schemes, public keys and local
// keypairs accepted by the ledger.
package crypto

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownScheme    = errors.New("unknown signature scheme")
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrInvalidKey       = errors.New("invalid key")
	ErrNoChainAddress   = errors.New("scheme has no foreign chain address")
)

// Scheme is the signature scheme; its value is the flag byte on the wire.
type Scheme uint8

const (
	Ed25519   Scheme = 0
	Secp256k1 Scheme = 1
	P256      Scheme = 2
)

type schemeInfo struct {
	name         string
	publicKeyLen int
	secretKeyLen int
	signatureLen int
}

var schemes = map[Scheme]schemeInfo{
	Ed25519:   {name: "ED25519", publicKeyLen: 32, secretKeyLen: 32, signatureLen: 64},
	Secp256k1: {name: "Secp256k1", publicKeyLen: 33, secretKeyLen: 32, signatureLen: 64},
	P256:      {name: "EcdsaR1", publicKeyLen: 33, secretKeyLen: 32, signatureLen: 64},
}

func (s Scheme) Flag() byte {
	return byte(s)
}

func (s Scheme) String() string {
	if info, ok := schemes[s]; ok {
		return info.name
	}
	return fmt.Sprintf("scheme(%d)", uint8(s))
}

func (s Scheme) Valid() bool {
	_, ok := schemes[s]
	return ok
}

func (s Scheme) PublicKeyLength() int { return schemes[s].publicKeyLen }

func (s Scheme) SignatureLength() int { return schemes[s].signatureLen }

func (s Scheme) SecretKeyLength() int { return schemes[s].secretKeyLen }

// SchemeFromFlag resolves a wire flag byte.
func SchemeFromFlag(flag byte) (Scheme, error) {
	s := Scheme(flag)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: flag %d", ErrUnknownScheme, flag)
	}
	return s, nil
}
