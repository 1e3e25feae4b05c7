// Package transaction models the unsigned intent, its digest and the signed
// form placed on the wire.
package transaction

import (
	"errors"
	"sync"

	"roochkit/go-sdk/pkg/address"
	"roochkit/go-sdk/pkg/bcs"
	"roochkit/go-sdk/pkg/codec"
	"roochkit/go-sdk/pkg/typetag"

	"golang.org/x/crypto/sha3"
)

const DefaultMaxGas uint64 = 100_000_000

var (
	ErrFrozen          = errors.New("transaction is frozen after hashing")
	ErrNoAction        = errors.New("transaction has no action")
	ErrSenderRequired  = errors.New("transaction sender is required")
	ErrChainIDRequired = errors.New("transaction chain id is required")
)

type actionKind uint8

// Action variant ids in the canonical binary form.
const (
	actionScript       actionKind = 0
	actionFunction     actionKind = 1
	actionModuleBundle actionKind = 2
)

// Transaction is an intent under construction. Once Hash succeeds the intent
// is frozen: every setter returns ErrFrozen and the encoded bytes never
// change.
type Transaction struct {
	mu sync.Mutex

	sender   address.LedgerAddress
	seq      uint64
	chainID  uint64
	maxGas   uint64
	hasChain bool
	hasSend  bool

	kind     actionKind
	function typetag.FunctionID
	typeArgs []typetag.TypeTag
	args     []bcs.Argument
	modules  [][]byte

	frozen  bool
	encoded []byte
	digest  [32]byte
}

func New() *Transaction {
	return &Transaction{maxGas: DefaultMaxGas}
}

func (t *Transaction) mutate(fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return ErrFrozen
	}
	fn()
	return nil
}

func (t *Transaction) SetSender(sender address.LedgerAddress) error {
	return t.mutate(func() {
		t.sender = sender
		t.hasSend = true
	})
}

func (t *Transaction) SetSequenceNumber(seq uint64) error {
	return t.mutate(func() { t.seq = seq })
}

func (t *Transaction) SetChainID(id uint64) error {
	return t.mutate(func() {
		t.chainID = id
		t.hasChain = true
	})
}

func (t *Transaction) SetMaxGas(gas uint64) error {
	return t.mutate(func() { t.maxGas = gas })
}

// CallFunction sets the action to an entry function call. Arguments keep
// their order.
func (t *Transaction) CallFunction(fn typetag.FunctionID, typeArgs []typetag.TypeTag, args ...bcs.Argument) error {
	return t.mutate(func() {
		t.kind = actionFunction
		t.function = fn
		t.typeArgs = append([]typetag.TypeTag(nil), typeArgs...)
		t.args = append([]bcs.Argument(nil), args...)
		t.modules = nil
	})
}

// PublishModules sets the action to a module bundle.
func (t *Transaction) PublishModules(modules ...[]byte) error {
	return t.mutate(func() {
		t.kind = actionModuleBundle
		t.modules = make([][]byte, 0, len(modules))
		for _, m := range modules {
			t.modules = append(t.modules, append([]byte(nil), m...))
		}
		t.function = typetag.FunctionID{}
		t.typeArgs = nil
		t.args = nil
	})
}

func (t *Transaction) Sender() address.LedgerAddress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sender
}

func (t *Transaction) SequenceNumber() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

func (t *Transaction) ChainID() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chainID
}

func (t *Transaction) MaxGas() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxGas
}

// Function is the called entry function; zero for a module bundle.
func (t *Transaction) Function() typetag.FunctionID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.function
}

func (t *Transaction) Arguments() []bcs.Argument {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]bcs.Argument(nil), t.args...)
}

func (t *Transaction) Frozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen
}

// Encode returns the canonical bytes: sender, sequence number, chain id,
// max gas, action. Field order is part of the wire contract.
func (t *Transaction) Encode() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return append([]byte(nil), t.encoded...), nil
	}
	return t.encodeLocked()
}

func (t *Transaction) encodeLocked() ([]byte, error) {
	if !t.hasSend {
		return nil, ErrSenderRequired
	}
	if !t.hasChain {
		return nil, ErrChainIDRequired
	}
	s := bcs.NewSerializer()
	s.FixedBytes(t.sender[:])
	s.U64(t.seq)
	s.U64(t.chainID)
	s.U64(t.maxGas)
	if err := t.encodeAction(s); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

func (t *Transaction) encodeAction(s *bcs.Serializer) error {
	switch t.kind {
	case actionFunction:
		s.ULEB128(uint64(actionFunction))
		if err := t.function.Encode(s); err != nil {
			return err
		}
		if err := typetag.EncodeList(s, t.typeArgs); err != nil {
			return err
		}
		return bcs.WriteVector(s, t.args, func(s *bcs.Serializer, a bcs.Argument) error {
			return s.ByteVector(a.Encoded())
		})
	case actionModuleBundle:
		s.ULEB128(uint64(actionModuleBundle))
		return bcs.WriteVector(s, t.modules, func(s *bcs.Serializer, m []byte) error {
			return s.ByteVector(m)
		})
	default:
		return ErrNoAction
	}
}

// Hash returns the sha3-256 digest of the encoding and freezes the intent.
// Later calls return the same digest.
func (t *Transaction) Hash() ([32]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return t.digest, nil
	}
	encoded, err := t.encodeLocked()
	if err != nil {
		return [32]byte{}, err
	}
	t.encoded = encoded
	t.digest = sha3.Sum256(encoded)
	t.frozen = true
	return t.digest, nil
}

// HashHex is Hash rendered as 0x-prefixed hex.
func (t *Transaction) HashHex() (string, error) {
	d, err := t.Hash()
	if err != nil {
		return "", err
	}
	return codec.ToHexPrefixed(d[:]), nil
}
