package httprpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"roochkit/go-sdk/internal/metrics"
	"roochkit/go-sdk/pkg/sdkerr"
	"roochkit/go-sdk/pkg/transport"
)

type recordedRequest struct {
	header http.Header
	body   transport.Request
}

func newRPCServer(t *testing.T, handle func(req transport.Request) (int, string)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var req transport.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		mu.Lock()
		seen = append(seen, recordedRequest{header: r.Header.Clone(), body: req})
		mu.Unlock()
		status, body := handle(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestCallReturnsResult(t *testing.T) {
	srv, seen := newRPCServer(t, func(req transport.Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0x4"}`
	})
	tr, err := New(Config{URL: srv.URL, Headers: map[string]string{"X-Client": "ledgerctl"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 2; i++ {
		result, err := tr.Call(context.Background(), "rooch_getChainID", nil)
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if string(result) != `"0x4"` {
			t.Fatalf("unexpected result %s", result)
		}
	}
	if len(*seen) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(*seen))
	}
	first, second := (*seen)[0], (*seen)[1]
	if first.body.JSONRPC != "2.0" || first.body.Method != "rooch_getChainID" {
		t.Fatalf("unexpected envelope %+v", first.body)
	}
	if second.body.ID <= first.body.ID {
		t.Fatalf("ids must increase: %d then %d", first.body.ID, second.body.ID)
	}
	if first.header.Get("X-Client") != "ledgerctl" || first.header.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected headers %v", first.header)
	}
}

func TestNonSuccessStatusIsTransportStatusError(t *testing.T) {
	srv, _ := newRPCServer(t, func(transport.Request) (int, string) {
		return http.StatusServiceUnavailable, `{}`
	})
	tr, _ := New(Config{URL: srv.URL})
	_, err := tr.Call(context.Background(), "rooch_getChainID", nil)
	var statusErr *sdkerr.TransportStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected TransportStatusError, got %v", err)
	}
	if statusErr.Status != http.StatusServiceUnavailable || statusErr.Reason != "Service Unavailable" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestErrorObjectIsRPCError(t *testing.T) {
	srv, _ := newRPCServer(t, func(transport.Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"Invalid params: sub status 393218"}}`
	})
	tr, _ := New(Config{URL: srv.URL})
	_, err := tr.Call(context.Background(), "rooch_executeRawTransaction", []any{"0x00"})
	var rpcErr *sdkerr.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -32602 || rpcErr.SubStatus == nil || rpcErr.SubStatus.Category != sdkerr.CategoryNotFound || rpcErr.SubStatus.Reason != 2 {
		t.Fatalf("unexpected rpc error %+v", rpcErr)
	}
}

func TestCallHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr, _ := New(Config{URL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := tr.Call(ctx, "rooch_getChainID", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCallRecordsMetrics(t *testing.T) {
	srv, _ := newRPCServer(t, func(transport.Request) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":true}`
	})
	reg := prometheus.NewRegistry()
	tr, _ := New(Config{URL: srv.URL}, WithMetrics(metrics.NewTransport(reg)))
	if _, err := tr.Call(context.Background(), "rooch_getStates", nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if n, err := testutil.GatherAndCount(reg, "ledger_client_rpc_requests_total"); err != nil || n != 1 {
		t.Fatalf("expected one request series, got %d (%v)", n, err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://host", "http://"} {
		if _, err := New(Config{URL: raw}); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("%q: expected ErrInvalidURL, got %v", raw, err)
		}
	}
}
