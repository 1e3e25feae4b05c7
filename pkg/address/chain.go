package address

import (
	"fmt"
	"strings"
	"sync"

	"roochkit/go-sdk/pkg/codec"
	"roochkit/go-sdk/pkg/sdkerr"
)

const (
	minChainAddressLength = 14
	maxChainAddressLength = 74
	hash160Length         = 20
)

// Kind is the script type of a Bitcoin address.
type Kind uint8

const (
	P2PKH Kind = iota + 1
	P2SH
	P2WPKH
	P2WSH
	P2TR
)

func (k Kind) String() string {
	switch k {
	case P2PKH:
		return "p2pkh"
	case P2SH:
		return "p2sh"
	case P2WPKH:
		return "p2wpkh"
	case P2WSH:
		return "p2wsh"
	case P2TR:
		return "p2tr"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// WrapType is the leading byte of the wrapped (self-describing) form.
type WrapType byte

const (
	WrapPKH     WrapType = 0
	WrapSH      WrapType = 1
	WrapWitness WrapType = 2
)

func (k Kind) wrapType() WrapType {
	switch k {
	case P2PKH:
		return WrapPKH
	case P2SH:
		return WrapSH
	default:
		return WrapWitness
	}
}

type Network uint8

const (
	Mainnet Network = iota
	Testnet
	Signet
	Regtest
)

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Signet:
		return "signet"
	case Regtest:
		return "regtest"
	default:
		return fmt.Sprintf("network(%d)", uint8(n))
	}
}

// ParseNetwork accepts the names returned by Network.String.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "main", "bitcoin":
		return Mainnet, nil
	case "testnet", "test":
		return Testnet, nil
	case "signet":
		return Signet, nil
	case "regtest":
		return Regtest, nil
	default:
		return 0, fmt.Errorf("unknown network %q", s)
	}
}

// HRP is the segwit human-readable part. Signet shares testnet's.
func (n Network) HRP() string {
	switch n {
	case Mainnet:
		return "bc"
	case Regtest:
		return "bcrt"
	default:
		return "tb"
	}
}

// Built-in ledger chain ids.
const (
	ChainIDMain  uint64 = 1
	ChainIDTest  uint64 = 2
	ChainIDDev   uint64 = 3
	ChainIDLocal uint64 = 4
)

// NetworkForChainID is the Bitcoin network a built-in ledger chain anchors
// to. Unknown ids are treated as a local chain, as the ledger's signer does.
func NetworkForChainID(chainID uint64) Network {
	switch chainID {
	case ChainIDMain:
		return Mainnet
	case ChainIDTest:
		return Testnet
	default:
		return Regtest
	}
}

// Decoding cannot tell every network apart: signet shares testnet's "tb"
// prefix, and base58 has one version pair for all test networks. Those
// decode as Testnet.
var segwitNetworks = map[string]Network{
	"bc":   Mainnet,
	"tb":   Testnet,
	"bcrt": Regtest,
}

type base58Entry struct {
	kind    Kind
	network Network
}

var base58Versions = map[byte]base58Entry{
	0x00: {P2PKH, Mainnet},
	0x6f: {P2PKH, Testnet},
	0x05: {P2SH, Mainnet},
	0xc4: {P2SH, Testnet},
}

func base58Version(kind Kind, network Network) byte {
	mainnet := network == Mainnet
	switch {
	case kind == P2PKH && mainnet:
		return 0x00
	case kind == P2PKH:
		return 0x6f
	case kind == P2SH && mainnet:
		return 0x05
	default:
		return 0xc4
	}
}

// ChainAddress is a decoded Bitcoin address. It is immutable; the derived
// ledger address is computed at most once and may be read concurrently.
type ChainAddress struct {
	kind    Kind
	network Network
	version byte
	program []byte
	text    string

	ledgerOnce sync.Once
	ledger     LedgerAddress
}

// DecodeChainAddress parses wallet text. A recognized segwit prefix commits
// the decoder to bech32/bech32m; anything else must be base58check.
func DecodeChainAddress(text string) (*ChainAddress, error) {
	if len(text) < minChainAddressLength || len(text) > maxChainAddressLength {
		return nil, &sdkerr.AddressFormatError{Input: text, Reason: fmt.Sprintf("length %d outside %d..%d", len(text), minChainAddressLength, maxChainAddressLength)}
	}
	if idx := strings.LastIndex(text, "1"); idx > 0 {
		if _, ok := segwitNetworks[strings.ToLower(text[:idx])]; ok {
			return decodeSegwitAddress(text)
		}
	}
	return decodeBase58Address(text)
}

func decodeSegwitAddress(text string) (*ChainAddress, error) {
	hrp, version, program, err := codec.DecodeSegwit(text)
	if err != nil {
		return nil, &sdkerr.AddressFormatError{Input: text, Err: err}
	}
	kind, err := witnessKind(version, program)
	if err != nil {
		return nil, &sdkerr.AddressFormatError{Input: text, Err: err}
	}
	return &ChainAddress{
		kind:    kind,
		network: segwitNetworks[hrp],
		version: version,
		program: program,
		text:    text,
	}, nil
}

func decodeBase58Address(text string) (*ChainAddress, error) {
	version, payload, err := codec.Base58CheckDecode(text)
	if err != nil {
		return nil, &sdkerr.AddressFormatError{Input: text, Err: err}
	}
	entry, ok := base58Versions[version]
	if !ok {
		return nil, &sdkerr.AddressFormatError{Input: text, Reason: fmt.Sprintf("unknown version byte 0x%02x", version)}
	}
	if len(payload) != hash160Length {
		return nil, &sdkerr.AddressFormatError{Input: text, Reason: fmt.Sprintf("payload must be %d bytes, got %d", hash160Length, len(payload))}
	}
	return &ChainAddress{kind: entry.kind, network: entry.network, program: payload, text: text}, nil
}

func witnessKind(version byte, program []byte) (Kind, error) {
	switch {
	case version == 0 && len(program) == 20:
		return P2WPKH, nil
	case version == 0 && len(program) == 32:
		return P2WSH, nil
	case version == 1 && len(program) == 32:
		return P2TR, nil
	default:
		return 0, fmt.Errorf("unsupported witness program v%d of %d bytes", version, len(program))
	}
}

// NewChainAddress builds an address from its script payload: the hash160
// for P2PKH/P2SH/P2WPKH, the script hash for P2WSH, the output key for P2TR.
func NewChainAddress(kind Kind, network Network, payload []byte) (*ChainAddress, error) {
	a := &ChainAddress{kind: kind, network: network, program: append([]byte(nil), payload...)}
	switch kind {
	case P2PKH, P2SH:
		if len(payload) != hash160Length {
			return nil, &sdkerr.AddressFormatError{Input: codec.ToHex(payload), Reason: kind.String() + " payload must be 20 bytes"}
		}
		a.text = codec.Base58CheckEncode(base58Version(kind, network), payload)
		return a, nil
	case P2WPKH, P2WSH:
		a.version = 0
	case P2TR:
		a.version = 1
	default:
		return nil, &sdkerr.AddressFormatError{Reason: "unknown address kind " + kind.String()}
	}
	if got, err := witnessKind(a.version, payload); err != nil || got != kind {
		return nil, &sdkerr.AddressFormatError{Input: codec.ToHex(payload), Reason: fmt.Sprintf("%s payload of %d bytes", kind, len(payload))}
	}
	text, err := codec.EncodeSegwit(network.HRP(), a.version, payload)
	if err != nil {
		return nil, &sdkerr.AddressFormatError{Input: codec.ToHex(payload), Err: err}
	}
	a.text = text
	return a, nil
}

// WrapAddress produces [type][version?][payload]; version is only written
// for witness addresses.
func WrapAddress(t WrapType, payload []byte, version *byte) []byte {
	out := make([]byte, 0, 2+len(payload))
	out = append(out, byte(t))
	if version != nil {
		out = append(out, *version)
	}
	return append(out, payload...)
}

// ChainAddressFromWrapped rebuilds the text form from wrapped bytes. The
// wrapped form does not carry the network, so the caller supplies it.
func ChainAddressFromWrapped(wrapped []byte, network Network) (*ChainAddress, error) {
	if len(wrapped) < 2 {
		return nil, &sdkerr.AddressFormatError{Input: codec.ToHexPrefixed(wrapped), Reason: "wrapped address too short"}
	}
	switch WrapType(wrapped[0]) {
	case WrapPKH:
		return NewChainAddress(P2PKH, network, wrapped[1:])
	case WrapSH:
		return NewChainAddress(P2SH, network, wrapped[1:])
	case WrapWitness:
		kind, err := witnessKind(wrapped[1], wrapped[2:])
		if err != nil {
			return nil, &sdkerr.AddressFormatError{Input: codec.ToHexPrefixed(wrapped), Err: err}
		}
		return NewChainAddress(kind, network, wrapped[2:])
	default:
		return nil, &sdkerr.AddressFormatError{Input: codec.ToHexPrefixed(wrapped), Reason: fmt.Sprintf("unknown wrap type %d", wrapped[0])}
	}
}

func (a *ChainAddress) Kind() Kind { return a.kind }

func (a *ChainAddress) Network() Network { return a.network }

func (a *ChainAddress) String() string { return a.text }

func (a *ChainAddress) IsWitness() bool { return a.kind.wrapType() == WrapWitness }

func (a *ChainAddress) WitnessVersion() byte { return a.version }

// Program returns a copy of the script payload.
func (a *ChainAddress) Program() []byte { return append([]byte(nil), a.program...) }

// Wrapped returns the self-describing byte form used for derivation.
func (a *ChainAddress) Wrapped() []byte {
	if a.IsWitness() {
		v := a.version
		return WrapAddress(WrapWitness, a.program, &v)
	}
	return WrapAddress(a.kind.wrapType(), a.program, nil)
}

// LedgerAddress is blake2b-256 of the wrapped bytes, computed once.
func (a *ChainAddress) LedgerAddress() LedgerAddress {
	a.ledgerOnce.Do(func() {
		a.ledger = DeriveLedgerAddress(a.Wrapped())
	})
	return a.ledger
}

// Equal compares the encoded form. Networks that share an encoding, such
// as signet and testnet, compare equal so that decode(encode(a)) equals a.
func (a *ChainAddress) Equal(b *ChainAddress) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.text == b.text
}
