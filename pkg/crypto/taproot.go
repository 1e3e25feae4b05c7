package crypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/ripemd160"
)

const tapTweakTag = "TapTweak"

// Hash160 is ripemd160(sha256(b)).
func Hash160(b []byte) []byte {
	sum := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}

func taggedHash(tag string, msg ...[]byte) [32]byte {
	tagHash := sha256.Sum256([]byte(tag))
	h := sha256.New()
	h.Write(tagHash[:])
	h.Write(tagHash[:])
	for _, m := range msg {
		h.Write(m)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// taprootOutputKey applies the BIP-86 tweak (no script tree) to a compressed
// key and returns the x-only output key.
func taprootOutputKey(compressed []byte) ([]byte, error) {
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	xOnly := pub.SerializeCompressed()[1:]
	// lift_x: the internal key is the even-Y point with this x.
	internal, err := secp256k1.ParsePubKey(append([]byte{secp256k1.PubKeyFormatCompressedEven}, xOnly...))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	tweakHash := taggedHash(tapTweakTag, xOnly)
	var tweak secp256k1.ModNScalar
	if overflow := tweak.SetBytes(&tweakHash); overflow != 0 {
		return nil, fmt.Errorf("%w: taproot tweak exceeds group order", ErrInvalidKey)
	}

	var p, tG, q secp256k1.JacobianPoint
	internal.AsJacobian(&p)
	secp256k1.ScalarBaseMultNonConst(&tweak, &tG)
	secp256k1.AddNonConst(&p, &tG, &q)
	if (q.X.IsZero() && q.Y.IsZero()) || q.Z.IsZero() {
		return nil, fmt.Errorf("%w: taproot output is the point at infinity", ErrInvalidKey)
	}
	q.ToAffine()
	out := q.X.Bytes()
	return out[:], nil
}
