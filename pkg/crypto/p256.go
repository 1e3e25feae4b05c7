package crypto

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"roochkit/go-sdk/pkg/address"
)

// P256Keypair signs with ECDSA over NIST P-256, the curve WebAuthn
// authenticators use.
type P256Keypair struct {
	priv *ecdsa.PrivateKey
	pub  PublicKey
}

func GenerateP256() (*P256Keypair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return newP256Keypair(priv)
}

func P256FromSecretKey(secret []byte) (*P256Keypair, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("%w: p256 secret must be 32 bytes, got %d", ErrInvalidKeyLength, len(secret))
	}
	priv, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return newP256Keypair(priv)
}

func newP256Keypair(priv *ecdsa.PrivateKey) (*P256Keypair, error) {
	uncompressed, err := priv.PublicKey.Bytes()
	if err != nil {
		return nil, err
	}
	pub, err := NewPublicKey(P256, compressP256(uncompressed))
	if err != nil {
		return nil, err
	}
	return &P256Keypair{priv: priv, pub: pub}, nil
}

// compressP256 turns 0x04 ‖ X ‖ Y into (0x02|parity(Y)) ‖ X.
func compressP256(uncompressed []byte) []byte {
	x := uncompressed[1:33]
	y := uncompressed[33:65]
	return append([]byte{0x02 | (y[31] & 1)}, x...)
}

// Sign returns r ‖ s over sha256(msg), with s normalized to the lower half.
func (k *P256Keypair) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, k.priv, digest[:])
	if err != nil {
		return nil, err
	}
	n := elliptic.P256().Params().N
	if s.Cmp(new(big.Int).Rsh(n, 1)) > 0 {
		s = new(big.Int).Sub(n, s)
	}
	out := make([]byte, 64)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}

func (k *P256Keypair) PublicKey() PublicKey { return k.pub }

func (k *P256Keypair) Scheme() Scheme { return P256 }

func (k *P256Keypair) LedgerAddress() address.LedgerAddress { return k.pub.LedgerAddress() }

func (k *P256Keypair) ChainAddress() (*address.ChainAddress, error) {
	return nil, ErrNoChainAddress
}

func (k *P256Keypair) SecretKey() []byte {
	b, err := k.priv.Bytes()
	if err != nil {
		return nil
	}
	return b
}

func (k *P256Keypair) String() string {
	return "P256Keypair(" + k.LedgerAddress().Hex() + ")"
}
