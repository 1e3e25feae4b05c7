package transaction

import (
	"errors"

	"roochkit/go-sdk/pkg/bcs"
	"roochkit/go-sdk/pkg/codec"
)

// Validator ids baked into the wire format. New methods get new ids.
const (
	ValidatorSession         uint64 = 0
	ValidatorBitcoin         uint64 = 1
	ValidatorBitcoinMultisig uint64 = 2
	ValidatorWebAuthn        uint64 = 3
)

var ErrNotFrozen = errors.New("transaction must be hashed before signing")

// Authenticator is the validator-tagged proof attached to a transaction.
type Authenticator struct {
	ValidatorID uint64
	Payload     []byte
}

func (a Authenticator) Encode(s *bcs.Serializer) error {
	s.U64(a.ValidatorID)
	return s.ByteVector(a.Payload)
}

// Signed pairs the frozen intent bytes with their authenticator. It is the
// only form submitted for execution.
type Signed struct {
	data   []byte
	digest [32]byte
	auth   Authenticator
}

// NewSigned requires tx to be frozen so the signed bytes cannot drift from
// the digest the authenticator covers.
func NewSigned(tx *Transaction, auth Authenticator) (*Signed, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.frozen {
		return nil, ErrNotFrozen
	}
	return &Signed{
		data:   append([]byte(nil), tx.encoded...),
		digest: tx.digest,
		auth:   Authenticator{ValidatorID: auth.ValidatorID, Payload: append([]byte(nil), auth.Payload...)},
	}, nil
}

func (s *Signed) Digest() [32]byte { return s.digest }

func (s *Signed) Authenticator() Authenticator {
	return Authenticator{ValidatorID: s.auth.ValidatorID, Payload: append([]byte(nil), s.auth.Payload...)}
}

// Encode writes the intent bytes followed by the authenticator.
func (s *Signed) Encode() ([]byte, error) {
	ser := bcs.NewSerializer()
	ser.FixedBytes(s.data)
	if err := s.auth.Encode(ser); err != nil {
		return nil, err
	}
	return ser.Bytes(), nil
}

// Hex is Encode as 0x-prefixed hex, the form the RPC accepts.
func (s *Signed) Hex() (string, error) {
	b, err := s.Encode()
	if err != nil {
		return "", err
	}
	return codec.ToHexPrefixed(b), nil
}
