package bcs

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"roochkit/go-sdk/pkg/sdkerr"
)

var ErrMixedVector = errors.New("vector elements must share one type")

// Argument is a typed, encoded call argument. It is write-only: the client
// builds arguments but never decodes them.
type Argument struct {
	typ     string
	encoded []byte
}

// Type is the Move type name of the value, e.g. "u64" or "vector<u8>".
func (a Argument) Type() string {
	return a.typ
}

// Encoded returns a copy of the canonical bytes.
func (a Argument) Encoded() []byte {
	return append([]byte(nil), a.encoded...)
}

func build(typ string, write func(*Serializer) error) (Argument, error) {
	s := NewSerializer()
	if err := write(s); err != nil {
		return Argument{}, err
	}
	return Argument{typ: typ, encoded: s.buf}, nil
}

func mustBuild(typ string, write func(*Serializer)) Argument {
	s := NewSerializer()
	write(s)
	return Argument{typ: typ, encoded: s.buf}
}

func U8(v uint8) Argument   { return mustBuild("u8", func(s *Serializer) { s.U8(v) }) }
func U16(v uint16) Argument { return mustBuild("u16", func(s *Serializer) { s.U16(v) }) }
func U32(v uint32) Argument { return mustBuild("u32", func(s *Serializer) { s.U32(v) }) }
func U64(v uint64) Argument { return mustBuild("u64", func(s *Serializer) { s.U64(v) }) }
func Bool(v bool) Argument  { return mustBuild("bool", func(s *Serializer) { s.Bool(v) }) }

func U128(v *big.Int) (Argument, error) {
	return build("u128", func(s *Serializer) error { return s.U128(v) })
}

func U256(v *big.Int) (Argument, error) {
	return build("u256", func(s *Serializer) error { return s.U256(v) })
}

// U64FromString parses a base-10 value, as amounts usually arrive as text.
func U64FromString(v string) (Argument, error) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return Argument{}, &sdkerr.SerializationError{Type: "u64", Value: v, Reason: "not a base-10 u64"}
	}
	return U64(n), nil
}

func U128FromString(v string) (Argument, error) {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return Argument{}, &sdkerr.SerializationError{Type: "u128", Value: v, Reason: "not a base-10 integer"}
	}
	return U128(n)
}

func U256FromString(v string) (Argument, error) {
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return Argument{}, &sdkerr.SerializationError{Type: "u256", Value: v, Reason: "not a base-10 integer"}
	}
	return U256(n)
}

// Address writes the 32 raw bytes of a ledger address.
func Address(addr [32]byte) Argument {
	return mustBuild("address", func(s *Serializer) { s.FixedBytes(addr[:]) })
}

func String(v string) (Argument, error) {
	return build("0x1::string::String", func(s *Serializer) error { return s.Str(v) })
}

// Bytes encodes vector<u8>.
func Bytes(v []byte) (Argument, error) {
	return build("vector<u8>", func(s *Serializer) error { return s.ByteVector(v) })
}

// ObjectID encodes an object id as its path of 32-byte segments.
func ObjectID(path ...[32]byte) (Argument, error) {
	return build("0x2::object::ObjectID", func(s *Serializer) error {
		return WriteVector(s, path, func(s *Serializer, seg [32]byte) error {
			s.FixedBytes(seg[:])
			return nil
		})
	})
}

// Vector encodes vector<elemType>: the count followed by each element.
func Vector(elemType string, elems ...Argument) (Argument, error) {
	for i, e := range elems {
		if e.typ != elemType {
			return Argument{}, fmt.Errorf("%w: element %d is %s, want %s", ErrMixedVector, i, e.typ, elemType)
		}
	}
	return build("vector<"+elemType+">", func(s *Serializer) error {
		if err := s.Length(len(elems)); err != nil {
			return err
		}
		for _, e := range elems {
			s.FixedBytes(e.encoded)
		}
		return nil
	})
}

func VecU8(v []byte) (Argument, error) {
	return Bytes(v)
}

func VecString(values []string) (Argument, error) {
	elems := make([]Argument, 0, len(values))
	for _, v := range values {
		arg, err := String(v)
		if err != nil {
			return Argument{}, err
		}
		elems = append(elems, arg)
	}
	return Vector("0x1::string::String", elems...)
}

func VecAddress(values [][32]byte) (Argument, error) {
	elems := make([]Argument, 0, len(values))
	for _, v := range values {
		elems = append(elems, Address(v))
	}
	return Vector("address", elems...)
}

func VecU64(values []uint64) (Argument, error) {
	elems := make([]Argument, 0, len(values))
	for _, v := range values {
		elems = append(elems, U64(v))
	}
	return Vector("u64", elems...)
}

// Raw wraps bytes that were encoded elsewhere.
func Raw(typ string, encoded []byte) Argument {
	return Argument{typ: typ, encoded: append([]byte(nil), encoded...)}
}
