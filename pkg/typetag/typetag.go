// Package typetag parses, canonicalizes and encodes Move type tags and
// function identifiers.
package typetag

import (
	"strings"

	"roochkit/go-sdk/pkg/address"
	"roochkit/go-sdk/pkg/bcs"

	"golang.org/x/crypto/sha3"
)

// TypeTag is a parsed Move type.
type TypeTag interface {
	// Canonical renders the tag with full-width lower-case addresses.
	Canonical() string
	Encode(s *bcs.Serializer) error
}

// Variant ids of the TypeTag enum in the canonical binary form.
const (
	variantBool    = 0
	variantU8      = 1
	variantU64     = 2
	variantU128    = 3
	variantAddress = 4
	variantSigner  = 5
	variantVector  = 6
	variantStruct  = 7
	variantU16     = 8
	variantU32     = 9
	variantU256    = 10
)

// Primitive is a non-generic built-in type.
type Primitive uint8

const (
	Bool Primitive = iota
	U8
	U16
	U32
	U64
	U128
	U256
	Address
	Signer
)

var primitiveNames = map[Primitive]string{
	Bool:    "bool",
	U8:      "u8",
	U16:     "u16",
	U32:     "u32",
	U64:     "u64",
	U128:    "u128",
	U256:    "u256",
	Address: "address",
	Signer:  "signer",
}

var primitiveVariants = map[Primitive]uint64{
	Bool:    variantBool,
	U8:      variantU8,
	U16:     variantU16,
	U32:     variantU32,
	U64:     variantU64,
	U128:    variantU128,
	U256:    variantU256,
	Address: variantAddress,
	Signer:  variantSigner,
}

func (p Primitive) Canonical() string {
	return primitiveNames[p]
}

func (p Primitive) String() string {
	return p.Canonical()
}

func (p Primitive) Encode(s *bcs.Serializer) error {
	s.ULEB128(primitiveVariants[p])
	return nil
}

// Vector is vector<Elem>.
type Vector struct {
	Elem TypeTag
}

func (v Vector) Canonical() string {
	return "vector<" + v.Elem.Canonical() + ">"
}

func (v Vector) String() string {
	return v.Canonical()
}

func (v Vector) Encode(s *bcs.Serializer) error {
	s.ULEB128(variantVector)
	return v.Elem.Encode(s)
}

// Struct is address::module::Name<TypeParams...>.
type Struct struct {
	Address    address.LedgerAddress
	Module     string
	Name       string
	TypeParams []TypeTag
}

func (t Struct) Canonical() string {
	var b strings.Builder
	b.WriteString(t.Address.Hex())
	b.WriteString("::")
	b.WriteString(t.Module)
	b.WriteString("::")
	b.WriteString(t.Name)
	if len(t.TypeParams) > 0 {
		b.WriteByte('<')
		for i, p := range t.TypeParams {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(p.Canonical())
		}
		b.WriteByte('>')
	}
	return b.String()
}

func (t Struct) String() string {
	return t.Canonical()
}

func (t Struct) Encode(s *bcs.Serializer) error {
	s.ULEB128(variantStruct)
	return t.encodeBody(s)
}

func (t Struct) encodeBody(s *bcs.Serializer) error {
	s.FixedBytes(t.Address[:])
	if err := s.Str(t.Module); err != nil {
		return err
	}
	if err := s.Str(t.Name); err != nil {
		return err
	}
	return EncodeList(s, t.TypeParams)
}

// EncodeList writes vector<TypeTag>.
func EncodeList(s *bcs.Serializer, tags []TypeTag) error {
	return bcs.WriteVector(s, tags, func(s *bcs.Serializer, tag TypeTag) error {
		return tag.Encode(s)
	})
}

// NamedObjectID derives the deterministic id of a named resource: sha3-256
// of the struct's canonical string.
func NamedObjectID(t Struct) [32]byte {
	return sha3.Sum256([]byte(t.Canonical()))
}

// ParseStruct parses text that must name a struct type.
func ParseStruct(text string) (Struct, error) {
	tag, err := Parse(text)
	if err != nil {
		return Struct{}, err
	}
	st, ok := tag.(Struct)
	if !ok {
		return Struct{}, &ParseError{Input: text, Reason: "not a struct type"}
	}
	return st, nil
}
