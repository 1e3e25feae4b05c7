// Package transport defines the JSON-RPC envelope shared by the request,
// socket and subscription transports, and the interfaces the client facade
// programs against.
package transport

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"

	"roochkit/go-sdk/pkg/sdkerr"
)

const Version = "2.0"

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// NewRequest builds an envelope; nil params encode as an empty array.
func NewRequest(id uint64, method string, params []any) Request {
	if params == nil {
		params = []any{}
	}
	return Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}

type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is an inbound frame. Frames without an id and with a method are
// server notifications.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Err converts the error object, if any, into *sdkerr.RPCError.
func (r *Response) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return sdkerr.NewRPCError(r.Error.Code, r.Error.Message)
}

// RequestID decodes the id field. Ids may arrive as numbers or numeric
// strings.
func (r *Response) RequestID() (uint64, bool) {
	if r == nil || len(r.ID) == 0 || string(r.ID) == "null" {
		return 0, false
	}
	var n uint64
	if err := json.Unmarshal(r.ID, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsNotification reports a server push frame.
func (r *Response) IsNotification() bool {
	_, hasID := r.RequestID()
	return !hasID && r.Method != ""
}

// IDs hands out monotonically increasing ids starting at 1. Each transport
// owns its own generator.
type IDs struct {
	n atomic.Uint64
}

func (g *IDs) Next() uint64 {
	return g.n.Add(1)
}

// Caller is a request/response transport.
type Caller interface {
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
}

// Listener receives events for one subscription. OnError is called at most
// once, when the subscription gives up.
type Listener struct {
	OnEvent func(event json.RawMessage)
	OnError func(err error)
}

// Subscriber is a server-push transport.
type Subscriber interface {
	Subscribe(ctx context.Context, method string, params any, listener Listener) (uint64, error)
	// Unsubscribe is idempotent.
	Unsubscribe(id uint64)
}
