package auth

import (
	"context"
	"errors"
	"fmt"

	"roochkit/go-sdk/pkg/address"
	"roochkit/go-sdk/pkg/bcs"
	"roochkit/go-sdk/pkg/crypto"
	"roochkit/go-sdk/pkg/sdkerr"
	"roochkit/go-sdk/pkg/transaction"
)

// MethodHinter is implemented by signers that require a specific method,
// such as sessions.
type MethodHinter interface {
	AuthMethod() Method
}

// MethodFor picks the default method for signer: the signer's own hint if
// it has one, otherwise one derived from its scheme.
func MethodFor(signer crypto.Signer) Method {
	if h, ok := signer.(MethodHinter); ok {
		return h.AuthMethod()
	}
	switch signer.Scheme() {
	case crypto.Secp256k1:
		return ChainMessage
	case crypto.P256:
		return WebAuthn
	default:
		return RawTxHash
	}
}

type buildOptions struct {
	maxMessageLength int
	assertion        *WebAuthnAssertion
	fromAddress      *address.ChainAddress
	network          address.Network
}

type Option func(*buildOptions)

// WithMaxMessageLength overrides the wallet-message body ceiling.
func WithMaxMessageLength(n int) Option {
	return func(o *buildOptions) { o.maxMessageLength = n }
}

// WithWebAuthnAssertion supplies the authenticator output. Required for the
// WebAuthn method.
func WithWebAuthnAssertion(a WebAuthnAssertion) Option {
	return func(o *buildOptions) { o.assertion = &a }
}

// WithFromAddress overrides the signer's default chain address in the
// wallet-message payload.
func WithFromAddress(a *address.ChainAddress) Option {
	return func(o *buildOptions) { o.fromAddress = a }
}

// WithNetwork formats the signer's default chain address for network.
// SignTransaction sets it from the transaction's chain id.
func WithNetwork(n address.Network) Option {
	return func(o *buildOptions) { o.network = n }
}

// Build signs digest with signer under method and assembles the
// authenticator. Envelope and ceiling checks run before the signer is called.
func Build(ctx context.Context, method Method, digest [32]byte, signer crypto.Signer, opts ...Option) (transaction.Authenticator, error) {
	o := buildOptions{maxMessageLength: DefaultMaxMessageLength, network: address.Mainnet}
	for _, opt := range opts {
		opt(&o)
	}
	switch method {
	case RawTxHash:
		return buildRawTxHash(ctx, digest, signer)
	case ChainMessage:
		return buildChainMessage(ctx, digest, signer, o)
	case WebAuthn:
		return buildWebAuthn(ctx, digest, signer, o)
	default:
		return transaction.Authenticator{}, fmt.Errorf("unknown auth method %d", uint8(method))
	}
}

func sign(ctx context.Context, signer crypto.Signer, msg []byte) ([]byte, error) {
	sig, err := signer.Sign(ctx, msg)
	if err != nil {
		var se *sdkerr.SigningError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &sdkerr.SigningError{Scheme: signer.Scheme().String(), Err: err}
	}
	if len(sig) != signer.Scheme().SignatureLength() {
		return nil, &sdkerr.SigningError{
			Scheme: signer.Scheme().String(),
			Err:    fmt.Errorf("signature is %d bytes, want %d", len(sig), signer.Scheme().SignatureLength()),
		}
	}
	return sig, nil
}

// buildRawTxHash payload: flag ‖ signature ‖ public key.
func buildRawTxHash(ctx context.Context, digest [32]byte, signer crypto.Signer) (transaction.Authenticator, error) {
	env := RawTxHashEnvelope{}
	msg, err := env.Message(digest)
	if err != nil {
		return transaction.Authenticator{}, err
	}
	sig, err := sign(ctx, signer, env.signerInput(msg))
	if err != nil {
		return transaction.Authenticator{}, err
	}
	pk := signer.PublicKey().Bytes()
	payload := make([]byte, 0, 1+len(sig)+len(pk))
	payload = append(payload, signer.Scheme().Flag())
	payload = append(payload, sig...)
	payload = append(payload, pk...)
	return transaction.Authenticator{ValidatorID: RawTxHash.ValidatorID(), Payload: payload}, nil
}

// buildChainMessage payload: {signature, message_prefix, message_info,
// public_key, from_address} with every field a byte vector. The prefix is
// stored without its length byte and the info without the digest; the
// ledger appends hex(digest) and re-frames both before verifying.
func buildChainMessage(ctx context.Context, digest [32]byte, signer crypto.Signer, o buildOptions) (transaction.Authenticator, error) {
	env := ChainMessageEnvelope{MaxMessageLength: o.maxMessageLength}
	msg, err := env.Message(digest)
	if err != nil {
		return transaction.Authenticator{}, err
	}
	from := o.fromAddress
	if from == nil {
		if from, err = signer.ChainAddress(); err != nil {
			return transaction.Authenticator{}, &sdkerr.EnvelopeMisuseError{
				Envelope:  ChainMessage.String(),
				Operation: "Build",
				Reason:    fmt.Sprintf("%s signer has no chain address: %v", signer.Scheme(), err),
			}
		}
		if from.Network() != o.network {
			if from, err = address.NewChainAddress(from.Kind(), o.network, from.Program()); err != nil {
				return transaction.Authenticator{}, err
			}
		}
	}
	sig, err := sign(ctx, signer, env.signerInput(msg))
	if err != nil {
		return transaction.Authenticator{}, err
	}
	s := bcs.NewSerializer()
	for _, field := range [][]byte{sig, []byte(MessagePrefix), []byte(TransactionTemplate), signer.PublicKey().Bytes(), []byte(from.String())} {
		if err := s.ByteVector(field); err != nil {
			return transaction.Authenticator{}, err
		}
	}
	return transaction.Authenticator{ValidatorID: ChainMessage.ValidatorID(), Payload: s.Bytes()}, nil
}

// buildWebAuthn payload: {scheme u8, signature, public_key,
// authenticator_data, client_data_json}.
func buildWebAuthn(ctx context.Context, digest [32]byte, signer crypto.Signer, o buildOptions) (transaction.Authenticator, error) {
	if o.assertion == nil {
		return transaction.Authenticator{}, &sdkerr.EnvelopeMisuseError{
			Envelope:  WebAuthn.String(),
			Operation: "Build",
			Reason:    "no assertion supplied",
		}
	}
	if err := o.assertion.CheckChallenge(digest); err != nil {
		return transaction.Authenticator{}, err
	}
	env := WebAuthnEnvelope{}
	sig, err := sign(ctx, signer, env.signerInput(o.assertion.SignableBytes()))
	if err != nil {
		return transaction.Authenticator{}, err
	}
	s := bcs.NewSerializer()
	s.U8(signer.Scheme().Flag())
	for _, field := range [][]byte{sig, signer.PublicKey().Bytes(), o.assertion.AuthenticatorData, o.assertion.ClientDataJSON} {
		if err := s.ByteVector(field); err != nil {
			return transaction.Authenticator{}, err
		}
	}
	return transaction.Authenticator{ValidatorID: WebAuthn.ValidatorID(), Payload: s.Bytes()}, nil
}

// SignTransaction hashes (and so freezes) tx, builds an authenticator with
// the signer's default method and returns the signed form.
func SignTransaction(ctx context.Context, tx *transaction.Transaction, signer crypto.Signer, opts ...Option) (*transaction.Signed, error) {
	return SignTransactionWith(ctx, MethodFor(signer), tx, signer, opts...)
}

// SignTransactionWith is SignTransaction with an explicit method.
func SignTransactionWith(ctx context.Context, method Method, tx *transaction.Transaction, signer crypto.Signer, opts ...Option) (*transaction.Signed, error) {
	digest, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithNetwork(address.NetworkForChainID(tx.ChainID()))}, opts...)
	authenticator, err := Build(ctx, method, digest, signer, opts...)
	if err != nil {
		return nil, err
	}
	return transaction.NewSigned(tx, authenticator)
}
