package session

import (
	"errors"
	"fmt"
	"strings"

	"roochkit/go-sdk/pkg/address"
)

const wildcard = "*"

var ErrInvalidScope = errors.New("invalid session scope")

// Scope grants a session key access to address::module::function; module
// and function may be "*".
type Scope struct {
	Address  address.LedgerAddress
	Module   string
	Function string
}

// SelfRevokeScope lets a session key remove itself.
var SelfRevokeScope = Scope{
	Address:  frameworkAddress,
	Module:   "session_key",
	Function: "remove_session_key_entry",
}

var frameworkAddress = address.LedgerAddress{31: 3}

func ParseScope(text string) (Scope, error) {
	parts := strings.Split(strings.TrimSpace(text), "::")
	if len(parts) != 3 {
		return Scope{}, fmt.Errorf("%w: %q must be address::module::function", ErrInvalidScope, text)
	}
	addr, err := address.ParseLedgerAddress(parts[0])
	if err != nil {
		return Scope{}, fmt.Errorf("%w: %q: %v", ErrInvalidScope, text, err)
	}
	for _, p := range parts[1:] {
		if p == "" || (p != wildcard && strings.Contains(p, wildcard)) {
			return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, text)
		}
	}
	return Scope{Address: addr, Module: parts[1], Function: parts[2]}, nil
}

func ParseScopes(texts []string) ([]Scope, error) {
	out := make([]Scope, 0, len(texts))
	for _, text := range texts {
		s, err := ParseScope(text)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (s Scope) String() string {
	return s.Address.Hex() + "::" + s.Module + "::" + s.Function
}

// Covers reports whether s grants everything other grants.
func (s Scope) Covers(other Scope) bool {
	if s.Address != other.Address {
		return false
	}
	if s.Module != wildcard && s.Module != other.Module {
		return false
	}
	return s.Function == wildcard || s.Function == other.Function
}

// NormalizeScopes appends SelfRevokeScope unless a scope already covers it.
// The input slice is not modified.
func NormalizeScopes(scopes []Scope) []Scope {
	out := append([]Scope(nil), scopes...)
	for _, s := range out {
		if s.Covers(SelfRevokeScope) {
			return out
		}
	}
	return append(out, SelfRevokeScope)
}
