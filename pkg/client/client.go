// Package client composes the transports, signing stack and session layer
// into the ledger's RPC surface.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"roochkit/go-sdk/pkg/address"
	"roochkit/go-sdk/pkg/auth"
	"roochkit/go-sdk/pkg/bcs"
	"roochkit/go-sdk/pkg/codec"
	"roochkit/go-sdk/pkg/crypto"
	"roochkit/go-sdk/pkg/session"
	"roochkit/go-sdk/pkg/transaction"
	"roochkit/go-sdk/pkg/transport"
	"roochkit/go-sdk/pkg/typetag"
)

// RPC method names.
const (
	MethodDiscover              = "rpc.discover"
	MethodGetChainID            = "rooch_getChainID"
	MethodExecuteViewFunction   = "rooch_executeViewFunction"
	MethodExecuteRawTransaction = "rooch_executeRawTransaction"
	MethodGetStates             = "rooch_getStates"
	MethodGetBalance            = "rooch_getBalance"
	MethodSubscribeEvents       = "rooch_subscribeEvents"
	MethodSubscribeTransactions = "rooch_subscribeTransactions"
)

// VMStatusExecuted is the view-function status for a successful call.
const VMStatusExecuted = "Executed"

var (
	ErrNoSubscriber  = errors.New("client has no subscription transport")
	ErrViewFailed    = errors.New("view function failed")
	ErrEmptyResponse = errors.New("empty rpc result")
)

var (
	sequenceNumberFunction = typetag.MustParseFunctionID("0x2::account::sequence_number")
	sessionExpiredFunction = typetag.MustParseFunctionID("0x3::session_key::is_expired_session_key")
)

type Option func(*Client)

func WithSubscriber(s transport.Subscriber) Option {
	return func(c *Client) { c.subscriber = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithAuthOptions applies opts to every authenticator the client builds,
// e.g. auth.WithMaxMessageLength.
func WithAuthOptions(opts ...auth.Option) Option {
	return func(c *Client) { c.authOpts = append(c.authOpts, opts...) }
}

// Client is safe for concurrent use. The chain id is fetched once and
// cached.
type Client struct {
	caller     transport.Caller
	subscriber transport.Subscriber
	log        *slog.Logger
	authOpts   []auth.Option

	mu      sync.Mutex
	chainID *uint64
}

var _ session.Submitter = (*Client)(nil)

func New(caller transport.Caller, opts ...Option) *Client {
	c := &Client{caller: caller, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) call(ctx context.Context, method string, out any, params ...any) error {
	raw, err := c.caller.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%s: %w", method, ErrEmptyResponse)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// RPCAPIVersion reads info.version from rpc.discover.
func (c *Client) RPCAPIVersion(ctx context.Context) (string, error) {
	var out struct {
		Info struct {
			Version string `json:"version"`
		} `json:"info"`
	}
	if err := c.call(ctx, MethodDiscover, &out); err != nil {
		return "", err
	}
	return out.Info.Version, nil
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	if c.chainID != nil {
		id := *c.chainID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var raw json.RawMessage
	if err := c.call(ctx, MethodGetChainID, &raw); err != nil {
		return 0, err
	}
	id, err := parseU64(raw)
	if err != nil {
		return 0, fmt.Errorf("decode chain id: %w", err)
	}
	c.mu.Lock()
	c.chainID = &id
	c.mu.Unlock()
	return id, nil
}

// ReturnValue is one view-function return value.
type ReturnValue struct {
	Value struct {
		TypeTag string `json:"type_tag"`
		Value   string `json:"value"`
	} `json:"value"`
	DecodedValue json.RawMessage `json:"decoded_value"`
}

type ViewResult struct {
	VMStatus     json.RawMessage `json:"vm_status"`
	ReturnValues []ReturnValue   `json:"return_values"`
}

// Executed reports a vm_status of "Executed". Failures arrive as objects.
func (r *ViewResult) Executed() bool {
	var status string
	return json.Unmarshal(r.VMStatus, &status) == nil && status == VMStatusExecuted
}

// ExecuteViewFunction runs a read-only call. Arguments travel as
// 0x-prefixed hex of their canonical encoding.
func (c *Client) ExecuteViewFunction(ctx context.Context, fn typetag.FunctionID, typeArgs []typetag.TypeTag, args ...bcs.Argument) (*ViewResult, error) {
	encodedArgs := make([]string, 0, len(args))
	for _, a := range args {
		encodedArgs = append(encodedArgs, codec.ToHexPrefixed(a.Encoded()))
	}
	tyArgs := make([]string, 0, len(typeArgs))
	for _, ta := range typeArgs {
		tyArgs = append(tyArgs, ta.Canonical())
	}
	req := map[string]any{
		"function_id": fn.String(),
		"args":        encodedArgs,
		"ty_args":     tyArgs,
	}
	var out ViewResult
	if err := c.call(ctx, MethodExecuteViewFunction, &out, req); err != nil {
		return nil, err
	}
	return &out, nil
}

// SequenceNumber reads 0x2::account::sequence_number; accounts that do not
// exist yet report zero.
func (c *Client) SequenceNumber(ctx context.Context, account address.LedgerAddress) (uint64, error) {
	res, err := c.ExecuteViewFunction(ctx, sequenceNumberFunction, nil, bcs.Address(account))
	if err != nil {
		return 0, err
	}
	if len(res.ReturnValues) == 0 || len(res.ReturnValues[0].DecodedValue) == 0 {
		return 0, nil
	}
	return parseU64(res.ReturnValues[0].DecodedValue)
}

// ExecutionInfo is the execution_info object of an executed transaction.
type ExecutionInfo struct {
	TxHash    string                      `json:"tx_hash"`
	StateRoot string                      `json:"state_root"`
	EventRoot string                      `json:"event_root"`
	GasUsed   string                      `json:"gas_used"`
	Status    transaction.ExecutionStatus `json:"status"`
}

type ExecuteResponse struct {
	SequenceInfo  json.RawMessage `json:"sequence_info"`
	ExecutionInfo ExecutionInfo   `json:"execution_info"`
	Output        json.RawMessage `json:"output,omitempty"`
}

func (r *ExecuteResponse) Result() transaction.ExecutionResult {
	return transaction.ExecutionResult{
		TxHash:  r.ExecutionInfo.TxHash,
		GasUsed: r.ExecutionInfo.GasUsed,
		Status:  r.ExecutionInfo.Status,
	}
}

type executeOptions struct {
	WithOutput bool `json:"withOutput"`
}

// ExecuteSigned submits the wire encoding of signed. A non-executed status
// is returned in the response, not as an error.
func (c *Client) ExecuteSigned(ctx context.Context, signed *transaction.Signed, withOutput bool) (*ExecuteResponse, error) {
	txHex, err := signed.Hex()
	if err != nil {
		return nil, err
	}
	var out ExecuteResponse
	if err := c.call(ctx, MethodExecuteRawTransaction, &out, txHex, executeOptions{WithOutput: withOutput}); err != nil {
		return nil, err
	}
	if out.ExecutionInfo.Status.Type != transaction.StatusExecuted {
		c.log.Warn("transaction not executed", "tx_hash", out.ExecutionInfo.TxHash, "status", out.ExecutionInfo.Status.String())
	}
	return &out, nil
}

// Execute implements session.Submitter.
func (c *Client) Execute(ctx context.Context, signed *transaction.Signed) (transaction.ExecutionResult, error) {
	resp, err := c.ExecuteSigned(ctx, signed, false)
	if err != nil {
		return transaction.ExecutionResult{}, err
	}
	return resp.Result(), nil
}

// SignAndExecute fills sender, sequence number and chain id from the
// ledger, signs with signer's default method and submits.
func (c *Client) SignAndExecute(ctx context.Context, tx *transaction.Transaction, signer crypto.Signer, opts ...auth.Option) (*ExecuteResponse, error) {
	if err := c.prepare(ctx, tx, signer.LedgerAddress()); err != nil {
		return nil, err
	}
	signed, err := auth.SignTransaction(ctx, tx, signer, c.authOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return c.ExecuteSigned(ctx, signed, true)
}

func (c *Client) prepare(ctx context.Context, tx *transaction.Transaction, sender address.LedgerAddress) error {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return err
	}
	seq, err := c.SequenceNumber(ctx, sender)
	if err != nil {
		return err
	}
	if err := tx.SetSender(sender); err != nil {
		return err
	}
	if err := tx.SetChainID(chainID); err != nil {
		return err
	}
	return tx.SetSequenceNumber(seq)
}

func (c *Client) authOptions(extra []auth.Option) []auth.Option {
	out := make([]auth.Option, 0, len(c.authOpts)+len(extra))
	out = append(out, c.authOpts...)
	return append(out, extra...)
}

// CreateSession registers a session key for signer.
func (c *Client) CreateSession(ctx context.Context, signer crypto.Signer, args session.CreateArgs) (*session.Session, error) {
	return session.Create(ctx, c, signer, args, c.authOpts...)
}

// RemoveSession removes authKey from signer's account. It reports whether
// the ledger executed the removal.
func (c *Client) RemoveSession(ctx context.Context, signer crypto.Signer, authKey address.LedgerAddress) (bool, error) {
	arg, err := bcs.Bytes(authKey[:])
	if err != nil {
		return false, err
	}
	tx := transaction.New()
	if err := tx.CallFunction(session.RemoveSessionFunction, nil, arg); err != nil {
		return false, err
	}
	resp, err := c.SignAndExecute(ctx, tx, signer)
	if err != nil {
		return false, err
	}
	return resp.Result().Executed(), nil
}

// SessionIsExpired asks the ledger whether authKey has expired for account.
func (c *Client) SessionIsExpired(ctx context.Context, account, authKey address.LedgerAddress) (bool, error) {
	key, err := bcs.Bytes(authKey[:])
	if err != nil {
		return false, err
	}
	res, err := c.ExecuteViewFunction(ctx, sessionExpiredFunction, nil, bcs.Address(account), key)
	if err != nil {
		return false, err
	}
	if !res.Executed() {
		return false, fmt.Errorf("%w: %s: %s", ErrViewFailed, sessionExpiredFunction, res.VMStatus)
	}
	if len(res.ReturnValues) == 0 {
		return false, fmt.Errorf("%s: %w", sessionExpiredFunction, ErrEmptyResponse)
	}
	var expired bool
	if err := json.Unmarshal(res.ReturnValues[0].DecodedValue, &expired); err != nil {
		return false, fmt.Errorf("decode %s result: %w", sessionExpiredFunction, err)
	}
	return expired, nil
}

type StateOptions struct {
	Decode      bool `json:"decode"`
	ShowDisplay bool `json:"showDisplay"`
}

// GetStates reads the object states at accessPath, e.g.
// "/resource/0x..::0x3::session_key::SessionKeys".
func (c *Client) GetStates(ctx context.Context, accessPath string, opts StateOptions) ([]json.RawMessage, error) {
	var out []json.RawMessage
	if err := c.call(ctx, MethodGetStates, &out, accessPath, opts); err != nil {
		return nil, err
	}
	return out, nil
}

type BalanceInfo struct {
	CoinType string `json:"coin_type"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Balance  string `json:"balance"`
}

func (c *Client) GetBalance(ctx context.Context, owner address.LedgerAddress, coinType typetag.Struct) (*BalanceInfo, error) {
	var out BalanceInfo
	if err := c.call(ctx, MethodGetBalance, &out, owner.Hex(), coinType.Canonical()); err != nil {
		return nil, err
	}
	return &out, nil
}

// Subscription is a handle to a server-push subscription.
type Subscription struct {
	ID         uint64
	subscriber transport.Subscriber
	once       sync.Once
}

// Unsubscribe is idempotent.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.subscriber.Unsubscribe(s.ID) })
}

func (c *Client) Subscribe(ctx context.Context, method string, params any, listener transport.Listener) (*Subscription, error) {
	if c.subscriber == nil {
		return nil, ErrNoSubscriber
	}
	id, err := c.subscriber.Subscribe(ctx, method, params, listener)
	if err != nil {
		return nil, err
	}
	return &Subscription{ID: id, subscriber: c.subscriber}, nil
}

func (c *Client) SubscribeEvents(ctx context.Context, filter any, listener transport.Listener) (*Subscription, error) {
	return c.Subscribe(ctx, MethodSubscribeEvents, filter, listener)
}

func (c *Client) SubscribeTransactions(ctx context.Context, filter any, listener transport.Listener) (*Subscription, error) {
	return c.Subscribe(ctx, MethodSubscribeTransactions, filter, listener)
}

// parseU64 accepts a JSON number or a decimal or 0x-hex string.
func parseU64(raw json.RawMessage) (uint64, error) {
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a u64: %s", raw)
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
