package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"roochkit/go-sdk/pkg/sdkerr"
)

func TestRequestEnvelope(t *testing.T) {
	raw, err := json.Marshal(NewRequest(7, "rooch_getChainID", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":7,"method":"rooch_getChainID","params":[]}`
	if string(raw) != want {
		t.Fatalf("unexpected envelope:\n got %s\nwant %s", raw, want)
	}
}

func TestResponseErrorCarriesSubStatus(t *testing.T) {
	var resp Response
	body := `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"MoveAbort: sub status 65537"}}`
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var rpcErr *sdkerr.RPCError
	if !errors.As(resp.Err(), &rpcErr) {
		t.Fatalf("expected RPCError, got %v", resp.Err())
	}
	if rpcErr.Code != -32000 || rpcErr.Message != "MoveAbort: sub status 65537" {
		t.Fatalf("code/message must be verbatim: %+v", rpcErr)
	}
	if rpcErr.SubStatus == nil || rpcErr.SubStatus.Category != sdkerr.CategoryInvalidArgument || rpcErr.SubStatus.Reason != 1 {
		t.Fatalf("unexpected sub status %+v", rpcErr.SubStatus)
	}
}

func TestResponseIDForms(t *testing.T) {
	cases := map[string]struct {
		id uint64
		ok bool
	}{
		`{"id":12,"result":1}`:              {12, true},
		`{"id":"13","result":1}`:            {13, true},
		`{"id":null,"result":1}`:            {0, false},
		`{"method":"event","params":{}}`:    {0, false},
		`{"id":"not-a-number","result":1}`: {0, false},
	}
	for body, want := range cases {
		var resp Response
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			t.Fatalf("%s: %v", body, err)
		}
		id, ok := resp.RequestID()
		if id != want.id || ok != want.ok {
			t.Fatalf("%s: got (%d, %v) want (%d, %v)", body, id, ok, want.id, want.ok)
		}
	}
	var note Response
	_ = json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"rooch_event","params":[1]}`), &note)
	if !note.IsNotification() {
		t.Fatal("frame without id but with method is a notification")
	}
}

func TestIDsAreUniqueUnderConcurrency(t *testing.T) {
	var ids IDs
	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := ids.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 800 {
		t.Fatalf("expected 800 unique ids, got %d", len(seen))
	}
	if seen[0] {
		t.Fatal("ids start at 1")
	}
}
