// Package bcs writes the ledger's canonical binary form: little-endian fixed
// width integers, one-byte booleans and ULEB128 length prefixes, no padding.
package bcs

import (
	"encoding/binary"
	"math"
	"math/big"

	"roochkit/go-sdk/pkg/sdkerr"
)

const maxULEB128Size = 10

var (
	maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	maxU256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Serializer accumulates canonical bytes. The zero value is ready to use.
type Serializer struct {
	buf []byte
}

func NewSerializer() *Serializer {
	return &Serializer{buf: make([]byte, 0, 64)}
}

// Bytes returns a copy of everything written so far.
func (s *Serializer) Bytes() []byte {
	return append([]byte(nil), s.buf...)
}

func (s *Serializer) U8(v uint8) {
	s.buf = append(s.buf, v)
}

func (s *Serializer) U16(v uint16) {
	s.buf = binary.LittleEndian.AppendUint16(s.buf, v)
}

func (s *Serializer) U32(v uint32) {
	s.buf = binary.LittleEndian.AppendUint32(s.buf, v)
}

func (s *Serializer) U64(v uint64) {
	s.buf = binary.LittleEndian.AppendUint64(s.buf, v)
}

func (s *Serializer) U128(v *big.Int) error {
	return s.wide("u128", v, maxU128, 16)
}

func (s *Serializer) U256(v *big.Int) error {
	return s.wide("u256", v, maxU256, 32)
}

func (s *Serializer) wide(typ string, v, limit *big.Int, width int) error {
	if v == nil {
		return &sdkerr.SerializationError{Type: typ, Reason: "nil value"}
	}
	if v.Sign() < 0 || v.Cmp(limit) > 0 {
		return &sdkerr.SerializationError{Type: typ, Value: v.String(), Reason: "out of range"}
	}
	be := v.FillBytes(make([]byte, width))
	for i := width - 1; i >= 0; i-- {
		s.buf = append(s.buf, be[i])
	}
	return nil
}

func (s *Serializer) Bool(v bool) {
	if v {
		s.buf = append(s.buf, 1)
		return
	}
	s.buf = append(s.buf, 0)
}

// ULEB128 writes an unsigned LEB128 value: 7 data bits per byte, high bit set
// on every byte but the last.
func (s *Serializer) ULEB128(v uint64) {
	for v >= 0x80 {
		s.buf = append(s.buf, byte(v)|0x80)
		v >>= 7
	}
	s.buf = append(s.buf, byte(v))
}

// Length writes a sequence length. Lengths are bounded by u32 on the ledger.
func (s *Serializer) Length(n int) error {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return &sdkerr.SerializationError{Type: "length", Reason: "exceeds u32"}
	}
	s.ULEB128(uint64(n))
	return nil
}

// FixedBytes writes b verbatim, without a length prefix.
func (s *Serializer) FixedBytes(b []byte) {
	s.buf = append(s.buf, b...)
}

// ByteVector writes a length-prefixed vector<u8>.
func (s *Serializer) ByteVector(b []byte) error {
	if err := s.Length(len(b)); err != nil {
		return err
	}
	s.buf = append(s.buf, b...)
	return nil
}

// Str writes a length-prefixed UTF-8 string.
func (s *Serializer) Str(v string) error {
	return s.ByteVector([]byte(v))
}

// WriteVector writes len(items) followed by each item via write, in order.
func WriteVector[T any](s *Serializer, items []T, write func(*Serializer, T) error) error {
	if err := s.Length(len(items)); err != nil {
		return err
	}
	for _, item := range items {
		if err := write(s, item); err != nil {
			return err
		}
	}
	return nil
}

// ULEB128Bytes returns the ULEB128 encoding of v on its own.
func ULEB128Bytes(v uint64) []byte {
	s := Serializer{buf: make([]byte, 0, maxULEB128Size)}
	s.ULEB128(v)
	return s.buf
}
