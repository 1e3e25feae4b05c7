// Package keystore keeps local keypairs in passphrase-sealed files.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"roochkit/go-sdk/pkg/address"
	"roochkit/go-sdk/pkg/crypto"
)

var ErrAddressMismatch = errors.New("keystore address does not match its key")

type entry struct {
	Scheme    uint8                 `json:"scheme"`
	SecretKey []byte                `json:"secret_key"`
	Address   address.LedgerAddress `json:"address"`
}

// Save seals kp under passphrase and writes it with owner-only permissions.
func Save(path, passphrase string, kp crypto.Keypair) error {
	secret := kp.SecretKey()
	defer clear(secret)
	payload, err := json.Marshal(entry{
		Scheme:    kp.Scheme().Flag(),
		SecretKey: secret,
		Address:   kp.LedgerAddress(),
	})
	if err != nil {
		return err
	}
	defer clear(payload)

	sealed, err := Seal(passphrase, payload)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}

// Load opens the key file at path. The stored address must match the
// address derived from the stored key.
func Load(path, passphrase string) (crypto.Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	payload, err := Open(passphrase, raw)
	if err != nil {
		return nil, err
	}
	defer clear(payload)

	var e entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	defer clear(e.SecretKey)
	scheme, err := crypto.SchemeFromFlag(e.Scheme)
	if err != nil {
		return nil, err
	}
	kp, err := crypto.KeypairFromSecretKey(scheme, e.SecretKey)
	if err != nil {
		return nil, err
	}
	if kp.LedgerAddress() != e.Address {
		return nil, fmt.Errorf("%w: %s", ErrAddressMismatch, path)
	}
	return kp, nil
}
