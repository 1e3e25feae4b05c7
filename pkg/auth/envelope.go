// Package auth turns a transaction digest into a validator-tagged
// authenticator: an envelope maps the digest to the exact bytes a signer
// signs, and Build assembles the payload the ledger verifies.
package auth

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"roochkit/go-sdk/pkg/codec"
	"roochkit/go-sdk/pkg/sdkerr"
	"roochkit/go-sdk/pkg/transaction"
)

const (
	// MessagePrefix is the wallet magic without its length byte. The
	// ledger stores it bare and re-frames it when verifying.
	MessagePrefix = "Bitcoin Signed Message:\n"
	// BitcoinMessagePrefix is MessagePrefix with its CompactSize length.
	BitcoinMessagePrefix = "\x18" + MessagePrefix
	TransactionTemplate  = "Rooch Transaction:\n"

	DefaultMaxMessageLength = 255
)

var ErrMessageTooLong = errors.New("wallet message exceeds maximum length")

// Method selects the envelope and validator used for a signature.
type Method uint8

const (
	RawTxHash Method = iota
	ChainMessage
	WebAuthn
)

func (m Method) String() string {
	switch m {
	case RawTxHash:
		return "raw_tx_hash"
	case ChainMessage:
		return "bitcoin_message"
	case WebAuthn:
		return "webauthn"
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// ValidatorID is the on-ledger validator that checks this method's payload.
func (m Method) ValidatorID() uint64 {
	switch m {
	case ChainMessage:
		return transaction.ValidatorBitcoin
	case WebAuthn:
		return transaction.ValidatorWebAuthn
	default:
		return transaction.ValidatorSession
	}
}

// Envelope maps a digest to signable bytes. The set of implementations is
// closed: RawTxHashEnvelope, ChainMessageEnvelope and WebAuthnEnvelope.
type Envelope interface {
	// Tag is the stable name persisted alongside signatures.
	Tag() string
	Method() Method
	// Message returns the bytes a verifier reconstructs from the digest.
	Message(digest [32]byte) ([]byte, error)
	// signerInput is what the signer is handed for a message.
	signerInput(message []byte) []byte
}

// EnvelopeFor returns the envelope for method.
func EnvelopeFor(m Method, maxMessageLength int) (Envelope, error) {
	switch m {
	case RawTxHash:
		return RawTxHashEnvelope{}, nil
	case ChainMessage:
		return ChainMessageEnvelope{MaxMessageLength: maxMessageLength}, nil
	case WebAuthn:
		return WebAuthnEnvelope{}, nil
	default:
		return nil, fmt.Errorf("unknown auth method %d", uint8(m))
	}
}

// EnvelopeForTag resolves a persisted tag.
func EnvelopeForTag(tag string) (Envelope, error) {
	for _, m := range []Method{RawTxHash, ChainMessage, WebAuthn} {
		if m.String() == tag {
			return EnvelopeFor(m, DefaultMaxMessageLength)
		}
	}
	return nil, fmt.Errorf("unknown envelope tag %q", tag)
}

// RawTxHashEnvelope signs the digest unchanged.
type RawTxHashEnvelope struct{}

func (RawTxHashEnvelope) Tag() string { return RawTxHash.String() }

func (RawTxHashEnvelope) Method() Method { return RawTxHash }

func (RawTxHashEnvelope) Message(digest [32]byte) ([]byte, error) {
	return append([]byte(nil), digest[:]...), nil
}

func (RawTxHashEnvelope) signerInput(message []byte) []byte { return message }

// ChainMessageEnvelope wraps the digest in the Bitcoin signed-message format.
// MaxMessageLength bounds the whole framed message, prefix included; zero
// means the default.
type ChainMessageEnvelope struct {
	MaxMessageLength int
}

func (ChainMessageEnvelope) Tag() string { return ChainMessage.String() }

func (ChainMessageEnvelope) Method() Method { return ChainMessage }

// Body is the human-readable text shown by the wallet.
func (ChainMessageEnvelope) Body(digest [32]byte) string {
	return TransactionTemplate + codec.ToHex(digest[:])
}

// Message is prefix ‖ varint(len(body)) ‖ body.
func (e ChainMessageEnvelope) Message(digest [32]byte) ([]byte, error) {
	body := e.Body(digest)
	out := make([]byte, 0, len(BitcoinMessagePrefix)+9+len(body))
	out = append(out, BitcoinMessagePrefix...)
	out = appendVarInt(out, uint64(len(body)))
	out = append(out, body...)

	limit := e.MaxMessageLength
	if limit <= 0 {
		limit = DefaultMaxMessageLength
	}
	if len(out) > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLong, len(out), limit)
	}
	return out, nil
}

// The signer hashes once more, giving the double-sha256 wallets sign.
func (ChainMessageEnvelope) signerInput(message []byte) []byte {
	sum := sha256.Sum256(message)
	return sum[:]
}

// appendVarInt writes a Bitcoin CompactSize integer.
func appendVarInt(b []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(b, byte(n))
	case n <= 0xffff:
		return binary.LittleEndian.AppendUint16(append(b, 0xfd), uint16(n))
	case n <= 0xffffffff:
		return binary.LittleEndian.AppendUint32(append(b, 0xfe), uint32(n))
	default:
		return binary.LittleEndian.AppendUint64(append(b, 0xff), n)
	}
}

// WebAuthnEnvelope signs authenticatorData ‖ sha256(clientDataJSON), which
// only exists once an assertion is supplied; see WebAuthnAssertion.
type WebAuthnEnvelope struct{}

func (WebAuthnEnvelope) Tag() string { return WebAuthn.String() }

func (WebAuthnEnvelope) Method() Method { return WebAuthn }

func (WebAuthnEnvelope) Message([32]byte) ([]byte, error) {
	return nil, &sdkerr.EnvelopeMisuseError{
		Envelope:  WebAuthn.String(),
		Operation: "Message",
		Reason:    "signable bytes come from the assertion; use WebAuthnAssertion.SignableBytes",
	}
}

func (WebAuthnEnvelope) signerInput(message []byte) []byte { return message }
