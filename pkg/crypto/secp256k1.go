package crypto

import (
	"context"
	"crypto/sha256"
	"fmt"

	"roochkit/go-sdk/pkg/address"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

type Secp256k1Keypair struct {
	priv *secp256k1.PrivateKey
	pub  PublicKey
}

func GenerateSecp256k1() (*Secp256k1Keypair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return newSecp256k1Keypair(priv)
}

// Secp256k1FromSecretKey takes a 32-byte big-endian scalar in [1, n).
func Secp256k1FromSecretKey(secret []byte) (*Secp256k1Keypair, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("%w: secp256k1 secret must be 32 bytes, got %d", ErrInvalidKeyLength, len(secret))
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(secret); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("%w: secp256k1 secret out of range", ErrInvalidKey)
	}
	return newSecp256k1Keypair(secp256k1.NewPrivateKey(&scalar))
}

func newSecp256k1Keypair(priv *secp256k1.PrivateKey) (*Secp256k1Keypair, error) {
	pub, err := NewPublicKey(Secp256k1, priv.PubKey().SerializeCompressed())
	if err != nil {
		return nil, err
	}
	return &Secp256k1Keypair{priv: priv, pub: pub}, nil
}

// Sign returns r ‖ s (low-S, RFC 6979) over sha256(msg).
func (k *Secp256k1Keypair) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(msg)
	compact := secpecdsa.SignCompact(k.priv, digest[:], true)
	// drop the recovery byte
	return compact[1:], nil
}

func (k *Secp256k1Keypair) PublicKey() PublicKey { return k.pub }

func (k *Secp256k1Keypair) Scheme() Scheme { return Secp256k1 }

func (k *Secp256k1Keypair) LedgerAddress() address.LedgerAddress { return k.pub.LedgerAddress() }

// ChainAddress is the mainnet Taproot address.
func (k *Secp256k1Keypair) ChainAddress() (*address.ChainAddress, error) {
	return k.pub.TaprootAddress(address.Mainnet)
}

// ChainAddressFor returns the Taproot or P2WPKH address on network.
func (k *Secp256k1Keypair) ChainAddressFor(network address.Network, kind address.Kind) (*address.ChainAddress, error) {
	switch kind {
	case address.P2TR:
		return k.pub.TaprootAddress(network)
	case address.P2WPKH:
		return k.pub.P2WPKHAddress(network)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoChainAddress, kind)
	}
}

func (k *Secp256k1Keypair) SecretKey() []byte {
	return k.priv.Serialize()
}

func (k *Secp256k1Keypair) String() string {
	return "Secp256k1Keypair(" + k.LedgerAddress().Hex() + ")"
}
