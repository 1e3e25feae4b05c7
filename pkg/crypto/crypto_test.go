package crypto

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"roochkit/go-sdk/pkg/address"
	"roochkit/go-sdk/pkg/codec"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := codec.FromHex(s)
	if err != nil {
		t.Fatalf("decode hex %s: %v", s, err)
	}
	return b
}

func TestNewPublicKeyRejectsWrongLength(t *testing.T) {
	cases := map[Scheme]int{Ed25519: 31, Secp256k1: 32, P256: 65}
	for scheme, n := range cases {
		if _, err := NewPublicKey(scheme, make([]byte, n)); !errors.Is(err, ErrInvalidKeyLength) {
			t.Fatalf("%s with %d bytes: expected ErrInvalidKeyLength, got %v", scheme, n, err)
		}
	}
	if _, err := NewPublicKey(Scheme(9), make([]byte, 32)); !errors.Is(err, ErrUnknownScheme) {
		t.Fatalf("expected ErrUnknownScheme, got %v", err)
	}
	if _, err := NewPublicKey(Secp256k1, append([]byte{0x02}, bytes.Repeat([]byte{0xff}, 32)...)); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected off-curve point to be rejected, got %v", err)
	}
}

func TestSchemeFromFlag(t *testing.T) {
	for _, s := range []Scheme{Ed25519, Secp256k1, P256} {
		got, err := SchemeFromFlag(s.Flag())
		if err != nil || got != s {
			t.Fatalf("flag %d: got %v %v", s.Flag(), got, err)
		}
	}
	if _, err := SchemeFromFlag(7); !errors.Is(err, ErrUnknownScheme) {
		t.Fatalf("expected ErrUnknownScheme, got %v", err)
	}
}

func TestSignAndVerifyEveryScheme(t *testing.T) {
	msg := []byte("ledger transaction digest")
	for _, scheme := range []Scheme{Ed25519, Secp256k1, P256} {
		kp, err := GenerateKeypair(scheme)
		if err != nil {
			t.Fatalf("generate %s: %v", scheme, err)
		}
		sig, err := kp.Sign(context.Background(), msg)
		if err != nil {
			t.Fatalf("sign %s: %v", scheme, err)
		}
		if len(sig) != scheme.SignatureLength() {
			t.Fatalf("%s signature length %d", scheme, len(sig))
		}
		if !kp.PublicKey().Verify(msg, sig) {
			t.Fatalf("%s signature does not verify", scheme)
		}
		if kp.PublicKey().Verify([]byte("other"), sig) {
			t.Fatalf("%s signature verifies for a different message", scheme)
		}

		restored, err := KeypairFromSecretKey(scheme, kp.SecretKey())
		if err != nil {
			t.Fatalf("restore %s: %v", scheme, err)
		}
		if !restored.PublicKey().Equal(kp.PublicKey()) {
			t.Fatalf("%s restored public key differs", scheme)
		}
	}
}

func TestSignHonorsCancelledContext(t *testing.T) {
	kp, err := GenerateEd25519()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := kp.Sign(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEd25519LedgerAddressHashesFlagAndKey(t *testing.T) {
	kp, err := Ed25519FromSecretKey(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("from secret: %v", err)
	}
	want := address.DeriveLedgerAddress(append([]byte{0}, kp.PublicKey().Bytes()...))
	if kp.LedgerAddress() != want {
		t.Fatalf("unexpected ledger address %s", kp.LedgerAddress())
	}
	if _, err := kp.ChainAddress(); !errors.Is(err, ErrNoChainAddress) {
		t.Fatalf("expected ErrNoChainAddress, got %v", err)
	}
}

func TestSecretKeyReturnsCopy(t *testing.T) {
	kp, err := Ed25519FromSecretKey(bytes.Repeat([]byte{2}, 32))
	if err != nil {
		t.Fatalf("from secret: %v", err)
	}
	sk := kp.SecretKey()
	sk[0] = 0xff
	if kp.SecretKey()[0] != 2 {
		t.Fatal("secret key must not be mutable through the returned slice")
	}
}

func TestSecp256k1FromSecretKeyRejectsOutOfRange(t *testing.T) {
	if _, err := Secp256k1FromSecretKey(make([]byte, 32)); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for zero scalar, got %v", err)
	}
	if _, err := Secp256k1FromSecretKey(bytes.Repeat([]byte{0xff}, 32)); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for overflow, got %v", err)
	}
	if _, err := Secp256k1FromSecretKey(make([]byte, 31)); !errors.Is(err, ErrInvalidKeyLength) {
		t.Fatalf("expected ErrInvalidKeyLength, got %v", err)
	}
}

func TestBIP86TaprootFromMnemonic(t *testing.T) {
	kp, err := Secp256k1FromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	addr, err := kp.ChainAddress()
	if err != nil {
		t.Fatalf("chain address: %v", err)
	}
	const want = "bc1p5cyxnuxmeuwuvkwfem96lqzszd02n6xdcjrs20cac6yqjjwudpxqkedrcr"
	if addr.String() != want {
		t.Fatalf("unexpected taproot address %s", addr)
	}
	if kp.LedgerAddress() != addr.LedgerAddress() {
		t.Fatal("secp256k1 ledger address must derive from the taproot address")
	}
	wpkh, err := kp.ChainAddressFor(address.Testnet, address.P2WPKH)
	if err != nil {
		t.Fatalf("p2wpkh: %v", err)
	}
	if wpkh.Kind() != address.P2WPKH || wpkh.String()[:3] != "tb1" {
		t.Fatalf("unexpected p2wpkh address %s", wpkh)
	}
}

func TestBIP32MasterAndHardenedChild(t *testing.T) {
	seed := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	key, chain, err := deriveBIP32(seed, nil)
	if err != nil {
		t.Fatalf("master: %v", err)
	}
	if codec.ToHex(key) != "e8f32e723decf4051aefac8e2c93c9c5b214313817cdb01a1494b917c8436b35" {
		t.Fatalf("unexpected master key %x", key)
	}
	if codec.ToHex(chain) != "873dff81c02f525623fd1fe5167eac3a55a049de3d314bb42ee227ffed37d508" {
		t.Fatalf("unexpected master chain code %x", chain)
	}
	child, _, err := deriveBIP32(seed, []uint32{hardenedOffset})
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	if codec.ToHex(child) != "edb2e14f9ee77d26dd93b4ecede8d16ed408ce149b6cd80b0715a2d911a0afea" {
		t.Fatalf("unexpected m/0' key %x", child)
	}
	normal, _, err := deriveBIP32(seed, []uint32{hardenedOffset, 1})
	if err != nil {
		t.Fatalf("normal child: %v", err)
	}
	if codec.ToHex(normal) != "3c6cb8d0f6a264c91ea8b5030fadaa8e538b020f0a387421a12de9319dc93368" {
		t.Fatalf("unexpected m/0'/1 key %x", normal)
	}
	if _, _, err := deriveBIP32([]byte{1, 2, 3}, nil); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("short seed must be rejected, got %v", err)
	}
}

func TestSLIP10Master(t *testing.T) {
	seed := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	key, chain, err := deriveSLIP10(seed, nil)
	if err != nil {
		t.Fatalf("master: %v", err)
	}
	if codec.ToHex(key) != "2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7" {
		t.Fatalf("unexpected master key %x", key)
	}
	if codec.ToHex(chain) != "90046a93de5380a72b5e45010748567d5ea02bbf6522f979e05c0d8d8ca9fffb" {
		t.Fatalf("unexpected master chain code %x", chain)
	}
	if _, _, err := deriveSLIP10(seed, []uint32{1}); !errors.Is(err, ErrNonHardenedEd25519) {
		t.Fatalf("expected ErrNonHardenedEd25519, got %v", err)
	}
}

func TestEd25519FromMnemonicIsDeterministic(t *testing.T) {
	a, err := Ed25519FromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Ed25519FromMnemonic(testMnemonic, DefaultEd25519Path)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !a.PublicKey().Equal(b.PublicKey()) {
		t.Fatal("default path must match the explicit path")
	}
	other, err := Ed25519FromMnemonic(testMnemonic, "m/44'/784'/1'/0'/0'")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if other.PublicKey().Equal(a.PublicKey()) {
		t.Fatal("different accounts must derive different keys")
	}
	if _, err := Ed25519FromMnemonic("not a mnemonic", ""); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
	if _, err := Ed25519FromMnemonic(testMnemonic, "44'/0'"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func TestGenerateMnemonic(t *testing.T) {
	m, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !IsValidMnemonic(m) {
		t.Fatalf("generated mnemonic is invalid: %q", m)
	}
}
