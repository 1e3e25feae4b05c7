package typetag

import (
	"fmt"
	"strings"

	"roochkit/go-sdk/pkg/address"
	"roochkit/go-sdk/pkg/bcs"
)

const maxNestingDepth = 32

type ParseError struct {
	Input  string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "invalid type tag"
	}
	if e.Offset > 0 {
		return fmt.Sprintf("invalid type tag %q at %d: %s", e.Input, e.Offset, e.Reason)
	}
	return fmt.Sprintf("invalid type tag %q: %s", e.Input, e.Reason)
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokColons
	tokLess
	tokGreater
	tokComma
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(input string) ([]token, error) {
	var out []token
	for i := 0; i < len(input); {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '<':
			out = append(out, token{tokLess, "<", i})
			i++
		case c == '>':
			out = append(out, token{tokGreater, ">", i})
			i++
		case c == ',':
			out = append(out, token{tokComma, ",", i})
			i++
		case c == ':':
			if i+1 >= len(input) || input[i+1] != ':' {
				return nil, &ParseError{Input: input, Offset: i, Reason: "expected ::"}
			}
			out = append(out, token{tokColons, "::", i})
			i += 2
		case isIdentChar(c):
			start := i
			for i < len(input) && isIdentChar(input[i]) {
				i++
			}
			out = append(out, token{tokIdent, input[start:i], start})
		default:
			return nil, &ParseError{Input: input, Offset: i, Reason: fmt.Sprintf("unexpected %q", c)}
		}
	}
	return append(out, token{kind: tokEOF, pos: len(input)}), nil
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) fail(t token, reason string) error {
	return &ParseError{Input: p.input, Offset: t.pos, Reason: reason}
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.fail(t, "expected "+what)
	}
	return t, nil
}

// Parse reads a type tag such as "u64", "vector<u8>" or
// "0x3::coin::Coin<0x3::gas_coin::RGas>".
func Parse(text string) (TypeTag, error) {
	tokens, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	p := &parser{input: text, tokens: tokens}
	tag, err := p.parseType(0)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.fail(t, "trailing input")
	}
	return tag, nil
}

// ParseList parses each entry with Parse.
func ParseList(texts []string) ([]TypeTag, error) {
	out := make([]TypeTag, 0, len(texts))
	for _, text := range texts {
		tag, err := Parse(text)
		if err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, nil
}

func (p *parser) parseType(depth int) (TypeTag, error) {
	if depth > maxNestingDepth {
		return nil, p.fail(p.peek(), "nesting too deep")
	}
	head, err := p.expect(tokIdent, "type name")
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokColons {
		if head.text == "vector" {
			params, err := p.parseParams(depth)
			if err != nil {
				return nil, err
			}
			if len(params) != 1 {
				return nil, p.fail(head, "vector takes one type parameter")
			}
			return Vector{Elem: params[0]}, nil
		}
		for prim, name := range primitiveNames {
			if name == head.text {
				return prim, nil
			}
		}
		return nil, p.fail(head, "unknown type "+head.text)
	}
	addr, err := address.ParseLedgerAddress(head.text)
	if err != nil {
		return nil, p.fail(head, err.Error())
	}
	p.next()
	module, err := p.expect(tokIdent, "module name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokColons, "::"); err != nil {
		return nil, err
	}
	name, err := p.expect(tokIdent, "struct name")
	if err != nil {
		return nil, err
	}
	st := Struct{Address: addr, Module: module.text, Name: name.text}
	if p.peek().kind == tokLess {
		if st.TypeParams, err = p.parseParams(depth); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (p *parser) parseParams(depth int) ([]TypeTag, error) {
	if _, err := p.expect(tokLess, "<"); err != nil {
		return nil, err
	}
	var params []TypeTag
	for {
		tag, err := p.parseType(depth + 1)
		if err != nil {
			return nil, err
		}
		params = append(params, tag)
		t := p.next()
		switch t.kind {
		case tokComma:
			continue
		case tokGreater:
			return params, nil
		default:
			return nil, p.fail(t, "expected , or >")
		}
	}
}

// FunctionID names an entry function: module address, module name and
// function name.
type FunctionID struct {
	Address  address.LedgerAddress
	Module   string
	Function string
}

// ParseFunctionID reads "address::module::function".
func ParseFunctionID(text string) (FunctionID, error) {
	parts := strings.Split(strings.TrimSpace(text), "::")
	if len(parts) != 3 {
		return FunctionID{}, &ParseError{Input: text, Reason: "function id must be address::module::function"}
	}
	addr, err := address.ParseLedgerAddress(parts[0])
	if err != nil {
		return FunctionID{}, &ParseError{Input: text, Reason: err.Error()}
	}
	for _, ident := range parts[1:] {
		if !isIdentifier(ident) {
			return FunctionID{}, &ParseError{Input: text, Reason: fmt.Sprintf("invalid identifier %q", ident)}
		}
	}
	return FunctionID{Address: addr, Module: parts[1], Function: parts[2]}, nil
}

// MustParseFunctionID is for package-level constants.
func MustParseFunctionID(text string) FunctionID {
	id, err := ParseFunctionID(text)
	if err != nil {
		panic(err)
	}
	return id
}

func isIdentifier(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

func (f FunctionID) String() string {
	return f.Address.Hex() + "::" + f.Module + "::" + f.Function
}

// Encode writes ModuleId{address, name} followed by the function name.
func (f FunctionID) Encode(s *bcs.Serializer) error {
	s.FixedBytes(f.Address[:])
	if err := s.Str(f.Module); err != nil {
		return err
	}
	return s.Str(f.Function)
}
