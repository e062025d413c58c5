package socketrpc_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/flowdash/internal/dashboard"
	"github.com/tinytelemetry/flowdash/internal/model"
	"github.com/tinytelemetry/flowdash/internal/socketrpc"
)

// mockBackend is a minimal Backend for roundtrip testing.
type mockBackend struct{}

func (m *mockBackend) Info() *model.DatasetInfo {
	return &model.DatasetInfo{
		Rows:         3,
		Protocols:    []string{"TCP", "UDP"},
		MaliciousIPs: []string{"A"},
		Duration:     model.DurationRange{Min: 100, Max: 50000},
	}
}

func (m *mockBackend) ComputeView(ctx context.Context, sel model.Selection) (*model.View, error) {
	if sel.DurationMin > sel.DurationMax {
		return nil, fmt.Errorf("%w: min > max", dashboard.ErrInvalidSelection)
	}
	return &model.View{
		Selection: sel,
		Matched:   2,
		Rows:      2,
		Charts: []model.ChartSpec{{
			ID:     model.ChartProtocolBar,
			Kind:   model.KindBar,
			Series: []model.Series{{Name: "Count", Points: []model.Point{{Category: "TCP", Y: 2}}}},
		}},
		Summary: model.Summary{Placeholder: dashboard.SummaryPrompt},
	}, nil
}

func (m *mockBackend) ComputeChart(ctx context.Context, sel model.Selection, id string) (*model.ChartSpec, error) {
	return &model.ChartSpec{ID: id, Kind: model.KindBar}, nil
}

type mockHistory struct{}

func (m *mockHistory) LoadHistory(limit int) ([]model.LoadRecord, error) {
	return []model.LoadRecord{{ID: "load-1", Files: 2, RowsKept: 3}}, nil
}

func startTestServer(t *testing.T) (string, *socketrpc.Server) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, &mockBackend{}, &mockHistory{})
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return sockPath, srv
}

func TestRoundtrip(t *testing.T) {
	sockPath, srv := startTestServer(t)
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	t.Run("DatasetInfo", func(t *testing.T) {
		info, err := client.DatasetInfo()
		if err != nil {
			t.Fatal(err)
		}
		if info.Rows != 3 || len(info.Protocols) != 2 || info.Duration.Max != 50000 {
			t.Fatalf("unexpected info: %+v", info)
		}
	})

	t.Run("ComputeView", func(t *testing.T) {
		sel := model.Selection{Protocol: "TCP", SourceIP: "A"}.WithRange(0, 1000)
		view, err := client.ComputeView(context.Background(), sel)
		if err != nil {
			t.Fatal(err)
		}
		if view.Selection != sel {
			t.Errorf("selection = %+v, want %+v", view.Selection, sel)
		}
		if view.Matched != 2 || len(view.Charts) != 1 {
			t.Fatalf("unexpected view: %+v", view)
		}
		if got := view.Charts[0].Series[0].Points[0]; got.Category != "TCP" || got.Y != 2 {
			t.Errorf("point = %+v", got)
		}

		minOnly := model.Selection{}.WithMin(150)
		view, err = client.ComputeView(context.Background(), minOnly)
		if err != nil {
			t.Fatal(err)
		}
		if view.Selection != minOnly || view.Selection.HasMax {
			t.Errorf("min-only selection = %+v, want %+v", view.Selection, minOnly)
		}
	})

	t.Run("ComputeChart", func(t *testing.T) {
		spec, err := client.ComputeChart(context.Background(), model.Selection{}, model.ChartLabelPie)
		if err != nil {
			t.Fatal(err)
		}
		if spec.ID != model.ChartLabelPie {
			t.Fatalf("id = %q", spec.ID)
		}
	})

	t.Run("LoadHistory", func(t *testing.T) {
		loads, err := client.LoadHistory(10)
		if err != nil {
			t.Fatal(err)
		}
		if len(loads) != 1 || loads[0].ID != "load-1" {
			t.Fatalf("unexpected loads: %v", loads)
		}
	})
}

func TestRemoteErrorCode(t *testing.T) {
	sockPath, srv := startTestServer(t)
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	_, err = client.ComputeView(context.Background(), model.Selection{}.WithRange(10, 1))
	var rpcErr *socketrpc.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32602 {
		t.Errorf("code = %d, want -32602", rpcErr.Code)
	}

	// The connection stays usable after an application error.
	if _, err := client.DatasetInfo(); err != nil {
		t.Fatalf("DatasetInfo after error: %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	sockPath, srv := startTestServer(t)
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.ComputeView(ctx, model.Selection{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDialFailure(t *testing.T) {
	_, err := socketrpc.Dial(filepath.Join(t.TempDir(), "nonexistent.sock"))
	if err == nil {
		t.Fatal("expected error dialing nonexistent socket")
	}
}

func TestSecondServerRefused(t *testing.T) {
	sockPath, srv := startTestServer(t)
	defer srv.Stop()

	other := socketrpc.NewServer(sockPath, &mockBackend{}, nil)
	if err := other.Start(); err == nil {
		other.Stop()
		t.Fatal("expected second server on the same socket to fail")
	}
}

func TestServerStopCleansSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cleanup.sock")
	srv := socketrpc.NewServer(sockPath, &mockBackend{}, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv.Stop()

	if _, err := socketrpc.Dial(sockPath); err == nil {
		t.Fatal("expected dial to fail after server stop")
	}
}

func TestStopIdempotent(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "idempotent.sock")
	srv := socketrpc.NewServer(sockPath, &mockBackend{}, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	srv.Stop()
	srv.Stop()
}

func TestStopClosesConns(t *testing.T) {
	sockPath, srv := startTestServer(t)
	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	// Ensure the connection has been accepted before stopping.
	if _, err := client.DatasetInfo(); err != nil {
		t.Fatalf("DatasetInfo: %v", err)
	}

	srv.Stop()

	done := make(chan error, 1)
	go func() {
		_, callErr := client.DatasetInfo()
		done <- callErr
	}()

	select {
	case callErr := <-done:
		if callErr == nil {
			t.Fatal("expected client call to fail after server stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client call hung after server stop")
	}
}
