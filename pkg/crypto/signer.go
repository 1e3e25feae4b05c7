package crypto

import (
	"context"

	"roochkit/go-sdk/pkg/address"
)

// Signer produces signatures for one key. Sign may block (hardware wallets,
// WebAuthn prompts) and should honor ctx.
type Signer interface {
	Sign(ctx context.Context, msg []byte) ([]byte, error)
	PublicKey() PublicKey
	Scheme() Scheme
	LedgerAddress() address.LedgerAddress
	// ChainAddress returns ErrNoChainAddress for schemes without one.
	ChainAddress() (*address.ChainAddress, error)
}

// Keypair is a Signer holding its secret locally.
type Keypair interface {
	Signer
	// SecretKey returns a copy of the raw secret.
	SecretKey() []byte
}

// KeypairFromSecretKey builds a local keypair for scheme.
func KeypairFromSecretKey(scheme Scheme, secret []byte) (Keypair, error) {
	switch scheme {
	case Ed25519:
		return Ed25519FromSecretKey(secret)
	case Secp256k1:
		return Secp256k1FromSecretKey(secret)
	case P256:
		return P256FromSecretKey(secret)
	default:
		return nil, ErrUnknownScheme
	}
}

// GenerateKeypair creates a random keypair for scheme.
func GenerateKeypair(scheme Scheme) (Keypair, error) {
	switch scheme {
	case Ed25519:
		return GenerateEd25519()
	case Secp256k1:
		return GenerateSecp256k1()
	case P256:
		return GenerateP256()
	default:
		return nil, ErrUnknownScheme
	}
}
