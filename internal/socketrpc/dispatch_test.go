package socketrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/tinytelemetry/flowdash/internal/dashboard"
	"github.com/tinytelemetry/flowdash/internal/model"
)

// stubBackend returns fixed values for dispatch unit testing.
type stubBackend struct{}

func (b *stubBackend) Info() *model.DatasetInfo {
	return &model.DatasetInfo{Rows: 3, Protocols: []string{"TCP", "UDP"}, MaliciousIPs: []string{"A"}}
}

func (b *stubBackend) ComputeView(ctx context.Context, sel model.Selection) (*model.View, error) {
	if sel.DurationMin > sel.DurationMax {
		return nil, fmt.Errorf("%w: min > max", dashboard.ErrInvalidSelection)
	}
	return &model.View{Selection: sel, Matched: 3, Rows: 3}, nil
}

func (b *stubBackend) ComputeChart(ctx context.Context, sel model.Selection, id string) (*model.ChartSpec, error) {
	if id != model.ChartProtocolBar {
		return nil, fmt.Errorf("%w: %s", dashboard.ErrUnknownChart, id)
	}
	return &model.ChartSpec{ID: id, Kind: model.KindBar}, nil
}

type stubHistory struct{}

func (h *stubHistory) LoadHistory(limit int) ([]model.LoadRecord, error) {
	return []model.LoadRecord{{ID: "load-1", RowsKept: 3}}, nil
}

func newTestDispatcher() *Server {
	return NewServer("", &stubBackend{}, &stubHistory{})
}

func TestDispatch_AllMethods(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	tests := []struct {
		method string
		params string
	}{
		{"DatasetInfo", `{}`},
		{"ComputeView", `{"Selection":{"protocol":"TCP","duration_min":0,"duration_max":100}}`},
		{"ComputeChart", `{"Selection":{},"ID":"bar-protocol"}`},
		{"LoadHistory", `{"Limit":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			t.Parallel()
			req := Request{
				JSONRPC: "2.0",
				ID:      1,
				Method:  tt.method,
				Params:  json.RawMessage(tt.params),
			}
			resp := srv.dispatch(req)
			if resp.Error != nil {
				t.Fatalf("dispatch(%s) error: %s", tt.method, resp.Error.Message)
			}
			if resp.Result == nil {
				t.Fatalf("dispatch(%s) returned nil result", tt.method)
			}
			if resp.JSONRPC != "2.0" {
				t.Errorf("JSONRPC = %q, want 2.0", resp.JSONRPC)
			}
			if resp.ID != 1 {
				t.Errorf("ID = %d, want 1", resp.ID)
			}
		})
	}
}

func TestDispatch_MethodNotFound(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	resp := srv.dispatch(Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "NonExistentMethod",
		Params:  json.RawMessage(`{}`),
	})
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != codeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, codeMethodNotFound)
	}
}

func TestDispatch_InvalidParams(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	resp := srv.dispatch(Request{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "ComputeChart",
		Params:  json.RawMessage(`not json`),
	})
	if resp.Error == nil {
		t.Fatal("expected error for malformed params")
	}
	if resp.Error.Code != codeInvalidParams {
		t.Errorf("error code = %d, want %d (invalid params)", resp.Error.Code, codeInvalidParams)
	}
}

func TestDispatch_InvalidSelection(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	tests := []struct {
		method string
		params string
	}{
		{"ComputeView", `{"Selection":{"duration_min":10,"duration_max":1}}`},
		{"ComputeChart", `{"Selection":{},"ID":"nope"}`},
	}
	for _, tt := range tests {
		resp := srv.dispatch(Request{JSONRPC: "2.0", ID: 3, Method: tt.method, Params: json.RawMessage(tt.params)})
		if resp.Error == nil {
			t.Fatalf("%s: expected error", tt.method)
		}
		if resp.Error.Code != codeInvalidParams {
			t.Errorf("%s: error code = %d, want %d", tt.method, resp.Error.Code, codeInvalidParams)
		}
	}
}

func TestDispatch_EmptyParamsOnOptionalMethods(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	// DatasetInfo, ComputeView and LoadHistory accept empty/null params.
	methods := []string{"DatasetInfo", "ComputeView", "LoadHistory"}

	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			t.Parallel()
			resp := srv.dispatch(Request{
				JSONRPC: "2.0",
				ID:      1,
				Method:  method,
				Params:  nil,
			})
			if resp.Error != nil {
				t.Fatalf("dispatch(%s) with nil params: %s", method, resp.Error.Message)
			}
		})
	}
}

func TestDispatch_LoadHistoryWithoutSource(t *testing.T) {
	t.Parallel()
	srv := NewServer("", &stubBackend{}, nil)

	resp := srv.dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "LoadHistory"})
	if resp.Error != nil {
		t.Fatalf("LoadHistory: %s", resp.Error.Message)
	}
	if string(resp.Result) != "[]" {
		t.Errorf("result = %s, want []", resp.Result)
	}
}

func TestDispatch_PreservesRequestID(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	for _, id := range []int{0, 1, 42, 9999} {
		resp := srv.dispatch(Request{
			JSONRPC: "2.0",
			ID:      id,
			Method:  "DatasetInfo",
			Params:  json.RawMessage(`{}`),
		})
		if resp.ID != id {
			t.Errorf("request ID %d: response ID = %d", id, resp.ID)
		}
	}
}
