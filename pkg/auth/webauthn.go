package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	webauthnGetType = "webauthn.get"

	flagUserPresent  = 0x01
	flagUserVerified = 0x04
)

var ErrChallengeMismatch = errors.New("webauthn challenge does not match transaction digest")

// WebAuthnAssertion carries the raw fields returned by an authenticator.
type WebAuthnAssertion struct {
	AuthenticatorData []byte
	ClientDataJSON    []byte
}

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// SignableBytes is authenticatorData ‖ sha256(clientDataJSON).
func (a WebAuthnAssertion) SignableBytes() []byte {
	sum := sha256.Sum256(a.ClientDataJSON)
	out := make([]byte, 0, len(a.AuthenticatorData)+len(sum))
	out = append(out, a.AuthenticatorData...)
	return append(out, sum[:]...)
}

// CheckChallenge verifies the assertion was produced for digest.
func (a WebAuthnAssertion) CheckChallenge(digest [32]byte) error {
	var cd clientData
	if err := json.Unmarshal(a.ClientDataJSON, &cd); err != nil {
		return fmt.Errorf("decode client data: %w", err)
	}
	if cd.Challenge != base64.RawURLEncoding.EncodeToString(digest[:]) {
		return ErrChallengeMismatch
	}
	return nil
}

// NewWebAuthnAssertion builds the fields a platform authenticator would
// return for digest. It lets a local P-256 key act as a WebAuthn credential.
func NewWebAuthnAssertion(digest [32]byte, rpID, origin string) (WebAuthnAssertion, error) {
	cd, err := json.Marshal(clientData{
		Type:      webauthnGetType,
		Challenge: base64.RawURLEncoding.EncodeToString(digest[:]),
		Origin:    origin,
	})
	if err != nil {
		return WebAuthnAssertion{}, err
	}
	rpHash := sha256.Sum256([]byte(rpID))
	authData := make([]byte, 0, 37)
	authData = append(authData, rpHash[:]...)
	authData = append(authData, flagUserPresent|flagUserVerified)
	authData = binary.BigEndian.AppendUint32(authData, 0)
	return WebAuthnAssertion{AuthenticatorData: authData, ClientDataJSON: cd}, nil
}
