package crypto

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"roochkit/go-sdk/pkg/address"
)

type Ed25519Keypair struct {
	priv ed25519.PrivateKey
	pub  PublicKey
}

func GenerateEd25519() (*Ed25519Keypair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return Ed25519FromSecretKey(seed)
}

// Ed25519FromSecretKey takes the 32-byte seed.
func Ed25519FromSecretKey(seed []byte) (*Ed25519Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: ed25519 secret must be %d bytes, got %d", ErrInvalidKeyLength, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub, err := NewPublicKey(Ed25519, priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Ed25519Keypair{priv: priv, pub: pub}, nil
}

func (k *Ed25519Keypair) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ed25519.Sign(k.priv, msg), nil
}

func (k *Ed25519Keypair) PublicKey() PublicKey { return k.pub }

func (k *Ed25519Keypair) Scheme() Scheme { return Ed25519 }

func (k *Ed25519Keypair) LedgerAddress() address.LedgerAddress { return k.pub.LedgerAddress() }

func (k *Ed25519Keypair) ChainAddress() (*address.ChainAddress, error) {
	return nil, ErrNoChainAddress
}

func (k *Ed25519Keypair) SecretKey() []byte {
	return append([]byte(nil), k.priv.Seed()...)
}

func (k *Ed25519Keypair) String() string {
	return "Ed25519Keypair(" + k.LedgerAddress().Hex() + ")"
}
