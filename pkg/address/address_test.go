package address

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"roochkit/go-sdk/pkg/codec"
	"roochkit/go-sdk/pkg/sdkerr"
)

func TestDecodeSegwitV0RoundTrip(t *testing.T) {
	const text = "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	addr, err := DecodeChainAddress(text)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if addr.Kind() != P2WPKH || addr.Network() != Mainnet {
		t.Fatalf("unexpected kind=%s network=%s", addr.Kind(), addr.Network())
	}
	again, err := ChainAddressFromWrapped(addr.Wrapped(), addr.Network())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if again.String() != text {
		t.Fatalf("round trip mismatch: %s", again.String())
	}
	redecoded, err := DecodeChainAddress(again.String())
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if !bytes.Equal(redecoded.Wrapped(), addr.Wrapped()) {
		t.Fatalf("wrapped bytes differ: %x vs %x", redecoded.Wrapped(), addr.Wrapped())
	}
}

func TestDecodeAllKindsRoundTrip(t *testing.T) {
	cases := []struct {
		text    string
		kind    Kind
		network Network
	}{
		{"1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", P2PKH, Mainnet},
		{"3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", P2SH, Mainnet},
		{"tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", P2WPKH, Testnet},
		{"bc1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3qccfmv3", P2WSH, Mainnet},
		{"bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0", P2TR, Mainnet},
	}
	for _, tc := range cases {
		addr, err := DecodeChainAddress(tc.text)
		if err != nil {
			t.Fatalf("decode %s: %v", tc.text, err)
		}
		if addr.Kind() != tc.kind || addr.Network() != tc.network {
			t.Fatalf("%s: got %s/%s", tc.text, addr.Kind(), addr.Network())
		}
		rebuilt, err := NewChainAddress(addr.Kind(), addr.Network(), addr.Program())
		if err != nil {
			t.Fatalf("rebuild %s: %v", tc.text, err)
		}
		if rebuilt.String() != tc.text {
			t.Fatalf("rebuild mismatch: %s vs %s", rebuilt.String(), tc.text)
		}
	}
}

func TestWrappedLayout(t *testing.T) {
	addr, err := DecodeChainAddress("bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	wrapped := addr.Wrapped()
	if len(wrapped) != 34 || wrapped[0] != byte(WrapWitness) || wrapped[1] != 1 {
		t.Fatalf("unexpected wrapped form: %x", wrapped)
	}

	pkh, err := DecodeChainAddress("1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w := pkh.Wrapped(); len(w) != 21 || w[0] != byte(WrapPKH) {
		t.Fatalf("unexpected pkh wrapped form: %x", w)
	}
}

func TestDecodeRejectsWithoutPartialResult(t *testing.T) {
	bad := []string{
		"BC1QW508D6QEJXTDG4Y5R3ZARVARY0C5XW7KV8F3T4",
		"Bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t5",
		"1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN3",
		"short",
		strings.Repeat("1", 80),
	}
	for _, text := range bad {
		addr, err := DecodeChainAddress(text)
		var fmtErr *sdkerr.AddressFormatError
		if !errors.As(err, &fmtErr) {
			t.Fatalf("%q: expected AddressFormatError, got %v", text, err)
		}
		if addr != nil {
			t.Fatalf("%q: partial result returned", text)
		}
	}
}

func TestLedgerAddressIsMemoizedAndConcurrent(t *testing.T) {
	addr, err := DecodeChainAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := DeriveLedgerAddress(addr.Wrapped())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := addr.LedgerAddress(); got != want {
				t.Errorf("ledger address mismatch: %s", got)
			}
		}()
	}
	wg.Wait()
}

func TestParseLedgerAddressNormalizesHex(t *testing.T) {
	a, err := ParseLedgerAddress("0X1")
	if err != nil {
		t.Fatalf("parse 0X1: %v", err)
	}
	b, err := ParseLedgerAddress("0x01")
	if err != nil {
		t.Fatalf("parse 0x01: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical addresses: %s vs %s", a, b)
	}
	want := "0x" + strings.Repeat("0", 63) + "1"
	if a.Hex() != want {
		t.Fatalf("unexpected canonical form: %s", a.Hex())
	}
	norm, err := NormalizeHexAddress("0xAB")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if norm != "0x"+strings.Repeat("0", 62)+"ab" {
		t.Fatalf("unexpected normalized form: %s", norm)
	}
	if _, err := ParseLedgerAddress("0x" + strings.Repeat("1", 65)); err == nil {
		t.Fatal("expected error for oversized hex")
	}
}

func TestLedgerAddressBech32RoundTrip(t *testing.T) {
	raw, _ := codec.FromHex("0x" + strings.Repeat("ab", 32))
	addr, err := LedgerAddressFromBytes(raw)
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	text := addr.Bech32()
	if !strings.HasPrefix(text, "rooch1") {
		t.Fatalf("unexpected bech32 form: %s", text)
	}
	back, err := ParseLedgerAddress(text)
	if err != nil {
		t.Fatalf("parse bech32: %v", err)
	}
	if back != addr {
		t.Fatalf("round trip mismatch: %s", back)
	}
	if _, err := ParseLedgerAddress(strings.ToUpper(text)); err == nil {
		t.Fatal("expected upper-case bech32 to be rejected")
	}
	if _, err := LedgerAddressFromBytes(raw[:31]); err == nil {
		t.Fatal("expected length error")
	}
}

func TestMultiChainAddress(t *testing.T) {
	addr, err := DecodeChainAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m := NewBitcoinMultiChainAddress(addr)
	encoded, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(encoded[:8], make([]byte, 8)) || encoded[8] != 22 || len(encoded) != 8+1+22 {
		t.Fatalf("unexpected encoding: %x", encoded)
	}
	text, err := m.HumanReadable()
	if err != nil {
		t.Fatalf("human readable: %v", err)
	}
	if !strings.HasPrefix(text, "bitcoin1") {
		t.Fatalf("unexpected human readable: %s", text)
	}
	parsed, err := ParseMultiChainAddress(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.ChainID != ChainBitcoin || !bytes.Equal(parsed.RawAddress, m.RawAddress) {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
	back, err := parsed.ChainAddress(Mainnet)
	if err != nil {
		t.Fatalf("chain address: %v", err)
	}
	if back.String() != addr.String() {
		t.Fatalf("unexpected chain address: %s", back)
	}
}

func TestAliasedNetworksRoundTripEqual(t *testing.T) {
	program := make([]byte, 20)
	program[0] = 0x42
	cases := []struct {
		kind    Kind
		network Network
	}{
		{P2WPKH, Signet},
		{P2WPKH, Regtest},
		{P2PKH, Signet},
		{P2PKH, Regtest},
		{P2SH, Regtest},
	}
	for _, tc := range cases {
		built, err := NewChainAddress(tc.kind, tc.network, program)
		if err != nil {
			t.Fatalf("%s/%s: %v", tc.kind, tc.network, err)
		}
		decoded, err := DecodeChainAddress(built.String())
		if err != nil {
			t.Fatalf("decode %s: %v", built, err)
		}
		if !decoded.Equal(built) || !built.Equal(decoded) {
			t.Fatalf("%s/%s: %s must equal its decoded form (%s)", tc.kind, tc.network, built, decoded.Network())
		}
	}

	main, _ := NewChainAddress(P2WPKH, Mainnet, program)
	test, _ := NewChainAddress(P2WPKH, Testnet, program)
	if main.Equal(test) {
		t.Fatal("mainnet and testnet encodings must differ")
	}
}

func TestNetworkForChainID(t *testing.T) {
	cases := map[uint64]Network{
		ChainIDMain:  Mainnet,
		ChainIDTest:  Testnet,
		ChainIDDev:   Regtest,
		ChainIDLocal: Regtest,
		99:           Regtest,
	}
	for id, want := range cases {
		if got := NetworkForChainID(id); got != want {
			t.Fatalf("chain %d: got %s, want %s", id, got, want)
		}
	}
}
