package keystore

import (
	"errors"
	"testing"
)

func TestSealOpenRoundtrip(t *testing.T) {
	data, err := Seal("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	plain, err := Open("pass", data)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Fatalf("unexpected plaintext: %q", string(plain))
	}
}

func TestOpenTamperedFailsDeterministically(t *testing.T) {
	data, err := Seal("pass", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if len(data) < 10 {
		t.Fatalf("unexpected sealed payload size: %d", len(data))
	}
	data[len(data)-4] ^= 0x01
	_, err = Open("pass", data)
	if !errors.Is(err, ErrAuthFailed) && !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	data, _ := Seal("pass", []byte("secret"))
	if _, err := Open("other", data); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestPassphraseRequired(t *testing.T) {
	if _, err := Seal("", []byte("secret")); !errors.Is(err, ErrPassphraseRequired) {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
	data, _ := Seal("pass", []byte("secret"))
	if _, err := Open("", data); !errors.Is(err, ErrPassphraseRequired) {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
}

func TestOpenRejectsForeignData(t *testing.T) {
	if _, err := Open("pass", []byte(`{"version":1}`)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := Open("pass", []byte(filePrefix+`{"version":1,"kdf":"scrypt"}`)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown kdf, got %v", err)
	}
}
