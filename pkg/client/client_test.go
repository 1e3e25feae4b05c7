package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"roochkit/go-sdk/pkg/bcs"
	"roochkit/go-sdk/pkg/codec"
	"roochkit/go-sdk/pkg/crypto"
	"roochkit/go-sdk/pkg/sdkerr"
	"roochkit/go-sdk/pkg/session"
	"roochkit/go-sdk/pkg/transaction"
	"roochkit/go-sdk/pkg/transport"
	"roochkit/go-sdk/pkg/transport/httprpc"
	"roochkit/go-sdk/pkg/typetag"
)

type call struct {
	method string
	params []any
}

// fakeLedger answers RPC methods from a table and records every call.
type fakeLedger struct {
	mu       sync.Mutex
	calls    []call
	handlers map[string]func(params []any) (string, error)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{handlers: map[string]func([]any) (string, error){
		MethodGetChainID: func([]any) (string, error) { return `"0x4"`, nil },
		MethodExecuteViewFunction: func([]any) (string, error) {
			return `{"vm_status":"Executed","return_values":[{"value":{"type_tag":"u64","value":"0x0700000000000000"},"decoded_value":"7"}]}`, nil
		},
		MethodExecuteRawTransaction: func([]any) (string, error) {
			return `{"sequence_info":{"tx_order":"12"},"execution_info":{"tx_hash":"0xabc","gas_used":"321","status":{"type":"executed"}}}`, nil
		},
	}}
}

func (f *fakeLedger) Call(_ context.Context, method string, params []any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, params: params})
	h, ok := f.handlers[method]
	f.mu.Unlock()
	if !ok {
		return nil, sdkerr.NewRPCError(-32601, "method not found")
	}
	out, err := h(params)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

func (f *fakeLedger) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

func (f *fakeLedger) last(method string) call {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method {
			return f.calls[i]
		}
	}
	return call{}
}

func TestChainIDIsCached(t *testing.T) {
	ledger := newFakeLedger()
	c := New(ledger)
	for i := 0; i < 3; i++ {
		id, err := c.ChainID(context.Background())
		if err != nil {
			t.Fatalf("chain id: %v", err)
		}
		if id != 4 {
			t.Fatalf("expected chain id 4, got %d", id)
		}
	}
	if n := ledger.count(MethodGetChainID); n != 1 {
		t.Fatalf("chain id must be fetched once, got %d calls", n)
	}
}

func TestParseU64Forms(t *testing.T) {
	cases := map[string]uint64{`42`: 42, `"42"`: 42, `"0x2a"`: 42, `" 0X2A "`: 42}
	for raw, want := range cases {
		got, err := parseU64(json.RawMessage(raw))
		if err != nil || got != want {
			t.Fatalf("parse %s: got %d, %v", raw, got, err)
		}
	}
	if _, err := parseU64(json.RawMessage(`{"n":1}`)); err == nil {
		t.Fatal("objects must be rejected")
	}
}

func TestSequenceNumberUsesViewFunction(t *testing.T) {
	ledger := newFakeLedger()
	c := New(ledger)
	kp, _ := crypto.GenerateEd25519()

	seq, err := c.SequenceNumber(context.Background(), kp.LedgerAddress())
	if err != nil {
		t.Fatalf("sequence number: %v", err)
	}
	if seq != 7 {
		t.Fatalf("expected 7, got %d", seq)
	}

	got := ledger.last(MethodExecuteViewFunction)
	if len(got.params) != 1 {
		t.Fatalf("view call takes one request object, got %v", got.params)
	}
	req := got.params[0].(map[string]any)
	if !strings.HasSuffix(req["function_id"].(string), "::account::sequence_number") {
		t.Fatalf("unexpected function id %v", req["function_id"])
	}
	args := req["args"].([]string)
	addr := kp.LedgerAddress()
	if len(args) != 1 || args[0] != codec.ToHexPrefixed(addr[:]) {
		t.Fatalf("address argument must be hex of its encoding, got %v", args)
	}
	if tyArgs := req["ty_args"].([]string); len(tyArgs) != 0 {
		t.Fatalf("expected no type args, got %v", tyArgs)
	}
}

func TestSequenceNumberForUnknownAccountIsZero(t *testing.T) {
	ledger := newFakeLedger()
	ledger.handlers[MethodExecuteViewFunction] = func([]any) (string, error) {
		return `{"vm_status":"Executed","return_values":[]}`, nil
	}
	kp, _ := crypto.GenerateEd25519()
	seq, err := New(ledger).SequenceNumber(context.Background(), kp.LedgerAddress())
	if err != nil || seq != 0 {
		t.Fatalf("expected 0, got %d, %v", seq, err)
	}
}

func TestSignAndExecuteFillsTransaction(t *testing.T) {
	ledger := newFakeLedger()
	c := New(ledger)
	kp, _ := crypto.GenerateEd25519()

	tx := transaction.New()
	if err := tx.CallFunction(typetag.MustParseFunctionID("0x3::empty::empty"), nil); err != nil {
		t.Fatalf("call function: %v", err)
	}
	resp, err := c.SignAndExecute(context.Background(), tx, kp)
	if err != nil {
		t.Fatalf("sign and execute: %v", err)
	}
	if tx.Sender() != kp.LedgerAddress() || tx.ChainID() != 4 || tx.SequenceNumber() != 7 {
		t.Fatalf("transaction not filled: sender=%s chain=%d seq=%d", tx.Sender(), tx.ChainID(), tx.SequenceNumber())
	}
	result := resp.Result()
	if !result.Executed() || result.TxHash != "0xabc" || result.GasUsed != "321" {
		t.Fatalf("unexpected result %+v", result)
	}

	got := ledger.last(MethodExecuteRawTransaction)
	if len(got.params) != 2 {
		t.Fatalf("expected hex and options, got %v", got.params)
	}
	txHex, ok := got.params[0].(string)
	if !ok || !strings.HasPrefix(txHex, "0x") {
		t.Fatalf("transaction must travel as 0x hex, got %v", got.params[0])
	}
	if opts := got.params[1].(executeOptions); !opts.WithOutput {
		t.Fatal("sign and execute must ask for output")
	}
}

func TestExecuteReportsAbortInResult(t *testing.T) {
	ledger := newFakeLedger()
	ledger.handlers[MethodExecuteRawTransaction] = func([]any) (string, error) {
		return `{"execution_info":{"tx_hash":"0xdef","gas_used":"10","status":{"type":"moveabort","location":"0x3::session_key","abort_code":"5"}}}`, nil
	}
	c := New(ledger)
	kp, _ := crypto.GenerateEd25519()

	tx := transaction.New()
	_ = tx.CallFunction(typetag.MustParseFunctionID("0x3::empty::empty"), nil)
	resp, err := c.SignAndExecute(context.Background(), tx, kp)
	if err != nil {
		t.Fatalf("aborts are results, not errors: %v", err)
	}
	if resp.Result().Executed() {
		t.Fatal("abort must not report executed")
	}
	if got := resp.ExecutionInfo.Status.String(); !strings.Contains(got, "abort code 5") {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestCreateSessionThroughClient(t *testing.T) {
	ledger := newFakeLedger()
	c := New(ledger)
	primary, _ := crypto.GenerateEd25519()

	s, err := c.CreateSession(context.Background(), primary, session.CreateArgs{
		AppName: "demo",
		AppURL:  "https://demo.example",
		Scopes:  []string{"0x1::*::*"},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if s.LedgerAddress() != primary.LedgerAddress() {
		t.Fatal("session must act for the primary account")
	}
	if ledger.count(MethodExecuteRawTransaction) != 1 {
		t.Fatal("registration must be submitted once")
	}
}

func TestSessionIsExpired(t *testing.T) {
	ledger := newFakeLedger()
	var gotArgs []string
	ledger.handlers[MethodExecuteViewFunction] = func(params []any) (string, error) {
		gotArgs = params[0].(map[string]any)["args"].([]string)
		return `{"vm_status":"Executed","return_values":[{"value":{"type_tag":"bool","value":"0x01"},"decoded_value":true}]}`, nil
	}
	c := New(ledger)
	account, _ := crypto.GenerateEd25519()
	sessionKey, _ := crypto.GenerateEd25519()

	expired, err := c.SessionIsExpired(context.Background(), account.LedgerAddress(), sessionKey.LedgerAddress())
	if err != nil {
		t.Fatalf("session is expired: %v", err)
	}
	if !expired {
		t.Fatal("expected expired")
	}
	authKey := sessionKey.LedgerAddress()
	wantKey, _ := bcs.Bytes(authKey[:])
	if len(gotArgs) != 2 || gotArgs[1] != codec.ToHexPrefixed(wantKey.Encoded()) {
		t.Fatalf("auth key must be a length-prefixed byte vector, got %v", gotArgs)
	}
}

func TestSessionIsExpiredViewFailure(t *testing.T) {
	ledger := newFakeLedger()
	ledger.handlers[MethodExecuteViewFunction] = func([]any) (string, error) {
		return `{"vm_status":{"MoveAbort":["0x3::session_key",2]},"return_values":null}`, nil
	}
	account, _ := crypto.GenerateEd25519()
	_, err := New(ledger).SessionIsExpired(context.Background(), account.LedgerAddress(), account.LedgerAddress())
	if !errors.Is(err, ErrViewFailed) {
		t.Fatalf("expected ErrViewFailed, got %v", err)
	}
}

func TestRemoveSession(t *testing.T) {
	ledger := newFakeLedger()
	c := New(ledger)
	kp, _ := crypto.GenerateEd25519()
	ok, err := c.RemoveSession(context.Background(), kp, kp.LedgerAddress())
	if err != nil || !ok {
		t.Fatalf("remove session: %v, %v", ok, err)
	}
}

func TestRPCErrorsPassThrough(t *testing.T) {
	ledger := newFakeLedger()
	ledger.handlers[MethodGetChainID] = func([]any) (string, error) {
		return "", sdkerr.NewRPCError(-32000, "unavailable")
	}
	_, err := New(ledger).ChainID(context.Background())
	var rpcErr *sdkerr.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
}

type fakeSubscriber struct {
	mu           sync.Mutex
	method       string
	params       any
	unsubscribed []uint64
}

func (f *fakeSubscriber) Subscribe(_ context.Context, method string, params any, _ transport.Listener) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method, f.params = method, params
	return 9, nil
}

func (f *fakeSubscriber) Unsubscribe(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, id)
}

func TestSubscribeRequiresSubscriber(t *testing.T) {
	_, err := New(newFakeLedger()).SubscribeEvents(context.Background(), nil, transport.Listener{})
	if !errors.Is(err, ErrNoSubscriber) {
		t.Fatalf("expected ErrNoSubscriber, got %v", err)
	}
}

func TestSubscriptionUnsubscribeOnce(t *testing.T) {
	sub := &fakeSubscriber{}
	c := New(newFakeLedger(), WithSubscriber(sub))
	s, err := c.SubscribeTransactions(context.Background(), map[string]string{"sender": "0x1"}, transport.Listener{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.method != MethodSubscribeTransactions || s.ID != 9 {
		t.Fatalf("unexpected subscription %s/%d", sub.method, s.ID)
	}
	s.Unsubscribe()
	s.Unsubscribe()
	if len(sub.unsubscribed) != 1 {
		t.Fatalf("unsubscribe must reach the transport once, got %v", sub.unsubscribed)
	}
}

func TestOverHTTPTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transport.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var result string
		switch req.Method {
		case MethodDiscover:
			result = `{"openrpc":"1.2.6","info":{"title":"ledger","version":"0.7.1"}}`
		case MethodGetChainID:
			result = `"20230104"`
		default:
			http.Error(w, "unexpected method", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, result)
	}))
	defer srv.Close()

	tr, err := httprpc.New(httprpc.Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	c := New(tr)
	version, err := c.RPCAPIVersion(context.Background())
	if err != nil || version != "0.7.1" {
		t.Fatalf("version: %q, %v", version, err)
	}
	id, err := c.ChainID(context.Background())
	if err != nil || id != 20230104 {
		t.Fatalf("chain id: %d, %v", id, err)
	}
}
