package address

import (
	"fmt"
	"strings"

	"roochkit/go-sdk/pkg/bcs"
	"roochkit/go-sdk/pkg/codec"
	"roochkit/go-sdk/pkg/sdkerr"
)

// MultiChainID identifies the chain an address was issued on.
type MultiChainID uint64

const (
	ChainBitcoin MultiChainID = 0
	ChainEther   MultiChainID = 60
	ChainNostr   MultiChainID = 1237
	ChainRooch   MultiChainID = 20230101
)

var chainNames = map[MultiChainID]string{
	ChainBitcoin: "bitcoin",
	ChainEther:   "ether",
	ChainNostr:   "nostr",
	ChainRooch:   "rooch",
}

func (id MultiChainID) String() string {
	if name, ok := chainNames[id]; ok {
		return name
	}
	return fmt.Sprintf("chain(%d)", uint64(id))
}

func chainIDByName(name string) (MultiChainID, bool) {
	for id, n := range chainNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// MultiChainAddress proves the chain provenance of raw address bytes.
type MultiChainAddress struct {
	ChainID    MultiChainID
	RawAddress []byte
}

func NewBitcoinMultiChainAddress(a *ChainAddress) MultiChainAddress {
	return MultiChainAddress{ChainID: ChainBitcoin, RawAddress: a.Wrapped()}
}

func NewRoochMultiChainAddress(a LedgerAddress) MultiChainAddress {
	return MultiChainAddress{ChainID: ChainRooch, RawAddress: a.Bytes()}
}

// Encode writes u64 chain id followed by the length-prefixed raw address.
func (m MultiChainAddress) Encode() ([]byte, error) {
	s := bcs.NewSerializer()
	s.U64(uint64(m.ChainID))
	if err := s.ByteVector(m.RawAddress); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

// HumanReadable is bech32m keyed by the chain name.
func (m MultiChainAddress) HumanReadable() (string, error) {
	name, ok := chainNames[m.ChainID]
	if !ok {
		return "", &sdkerr.AddressFormatError{Input: codec.ToHexPrefixed(m.RawAddress), Reason: "no name for " + m.ChainID.String()}
	}
	return codec.EncodeBech32m(name, m.RawAddress)
}

func ParseMultiChainAddress(text string) (MultiChainAddress, error) {
	hrp, data, err := codec.DecodeBech32m(strings.TrimSpace(text))
	if err != nil {
		return MultiChainAddress{}, &sdkerr.AddressFormatError{Input: text, Err: err}
	}
	id, ok := chainIDByName(hrp)
	if !ok {
		return MultiChainAddress{}, &sdkerr.AddressFormatError{Input: text, Reason: "unknown chain " + hrp}
	}
	return MultiChainAddress{ChainID: id, RawAddress: data}, nil
}

// ChainAddress rebuilds the Bitcoin address carried by a bitcoin-tagged value.
func (m MultiChainAddress) ChainAddress(network Network) (*ChainAddress, error) {
	if m.ChainID != ChainBitcoin {
		return nil, &sdkerr.AddressFormatError{Input: codec.ToHexPrefixed(m.RawAddress), Reason: m.ChainID.String() + " is not a bitcoin address"}
	}
	return ChainAddressFromWrapped(m.RawAddress, network)
}
