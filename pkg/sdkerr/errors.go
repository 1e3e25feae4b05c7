// Package sdkerr holds the error taxonomy shared by every layer of the client
// stack. Address, serialization and envelope errors are raised locally and
// never retried; transport and RPC errors always propagate to the caller.
package sdkerr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrTransportClosed = errors.New("transport closed")
	ErrSessionExpired  = errors.New("session expired")
)

// AddressFormatError reports text that could not be decoded into an address.
// No partially decoded value is ever returned alongside it.
type AddressFormatError struct {
	Input  string
	Reason string
	Err    error
}

func (e *AddressFormatError) Error() string {
	if e == nil {
		return "invalid address"
	}
	msg := "invalid address"
	if e.Input != "" {
		msg += fmt.Sprintf(" %q", e.Input)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AddressFormatError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SerializationError reports a value that does not fit its declared width.
type SerializationError struct {
	Type   string
	Value  string
	Reason string
}

func (e *SerializationError) Error() string {
	if e == nil {
		return "serialization failed"
	}
	if e.Value == "" {
		return fmt.Sprintf("serialize %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("serialize %s %s: %s", e.Type, e.Value, e.Reason)
}

// SigningError wraps a signer that rejected, failed or timed out.
type SigningError struct {
	Scheme string
	Err    error
}

func (e *SigningError) Error() string {
	if e == nil {
		return "signing failed"
	}
	if e.Scheme == "" {
		return fmt.Sprintf("signing failed: %v", e.Err)
	}
	return fmt.Sprintf("%s signing failed: %v", e.Scheme, e.Err)
}

func (e *SigningError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EnvelopeMisuseError reports a build path an envelope does not support.
type EnvelopeMisuseError struct {
	Envelope  string
	Operation string
	Reason    string
}

func (e *EnvelopeMisuseError) Error() string {
	if e == nil {
		return "envelope misuse"
	}
	msg := fmt.Sprintf("envelope %s does not support %s", e.Envelope, e.Operation)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// TransportStatusError is a non-success transport status, e.g. HTTP 503.
type TransportStatusError struct {
	Status int
	Reason string
}

func (e *TransportStatusError) Error() string {
	if e == nil {
		return "transport status error"
	}
	return fmt.Sprintf("transport status %d: %s", e.Status, e.Reason)
}

// RPCError is an application-level error carried inside an otherwise
// successful exchange. Code and Message are surfaced verbatim.
type RPCError struct {
	Code      int
	Message   string
	SubStatus *SubStatus
}

func (e *RPCError) Error() string {
	if e == nil {
		return "rpc error"
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewRPCError builds an RPCError and decodes any embedded ledger sub-status.
func NewRPCError(code int, message string) *RPCError {
	out := &RPCError{Code: code, Message: message}
	if sub, ok := ParseSubStatus(message); ok {
		out.SubStatus = &sub
	}
	return out
}

// ConnectionError reports a streaming transport that gave up reconnecting.
type ConnectionError struct {
	Transport string
	Attempts  int
	Err       error
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "connection failed"
	}
	msg := fmt.Sprintf("%s connection failed", e.Transport)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d reconnect attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Category is the high word of a ledger sub-status.
type Category uint16

const (
	CategoryInvalidArgument   Category = 0x1
	CategoryOutOfRange        Category = 0x2
	CategoryInvalidState      Category = 0x3
	CategoryUnauthenticated   Category = 0x4
	CategoryPermissionDenied  Category = 0x5
	CategoryNotFound          Category = 0x6
	CategoryAborted           Category = 0x7
	CategoryAlreadyExists     Category = 0x8
	CategoryResourceExhausted Category = 0x9
	CategoryCancelled         Category = 0xA
	CategoryInternal          Category = 0xB
	CategoryNotImplemented    Category = 0xC
	CategoryUnavailable       Category = 0xD
)

var categoryNames = map[Category]string{
	CategoryInvalidArgument:   "INVALID_ARGUMENT",
	CategoryOutOfRange:        "OUT_OF_RANGE",
	CategoryInvalidState:      "INVALID_STATE",
	CategoryUnauthenticated:   "UNAUTHENTICATED",
	CategoryPermissionDenied:  "PERMISSION_DENIED",
	CategoryNotFound:          "NOT_FOUND",
	CategoryAborted:           "ABORTED",
	CategoryAlreadyExists:     "ALREADY_EXISTS",
	CategoryResourceExhausted: "RESOURCE_EXHAUSTED",
	CategoryCancelled:         "CANCELLED",
	CategoryInternal:          "INTERNAL",
	CategoryNotImplemented:    "NOT_IMPLEMENTED",
	CategoryUnavailable:       "UNAVAILABLE",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CATEGORY_%d", uint16(c))
}

// SubStatus is the (category, reason) pair the ledger embeds in abort messages.
type SubStatus struct {
	Raw      uint64
	Category Category
	Reason   uint16
}

var subStatusPattern = regexp.MustCompile(`sub status (\d+)`)

// ParseSubStatus extracts "sub status <digits>" from an RPC error message.
func ParseSubStatus(message string) (SubStatus, bool) {
	m := subStatusPattern.FindStringSubmatch(message)
	if len(m) != 2 {
		return SubStatus{}, false
	}
	raw, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return SubStatus{}, false
	}
	return SubStatus{
		Raw:      raw,
		Category: Category((raw >> 16) & 0xFFFF),
		Reason:   uint16(raw & 0xFFFF),
	}, true
}
