package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tinytelemetry/flowdash/internal/dashboard"
)

func TestObserveViewCountsByResult(t *testing.T) {
	r := NewRecorder()

	r.ObserveView(5*time.Millisecond, 120, 100, nil)
	r.ObserveView(0, 0, 0, fmt.Errorf("bad: %w", dashboard.ErrInvalidSelection))
	r.ObserveView(0, 0, 0, errors.New("boom"))

	for result, want := range map[string]float64{"ok": 1, "invalid": 1, "error": 1} {
		if got := testutil.ToFloat64(r.views.WithLabelValues(result)); got != want {
			t.Errorf("views_total{result=%q} = %v, want %v", result, got, want)
		}
	}
	if n := testutil.CollectAndCount(r.viewSeconds); n != 1 {
		t.Fatalf("view duration collected %d series, want 1", n)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.SetDataset(3, 1)
	r.ObserveRequest("/api/view", http.StatusOK)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"flowdash_base_rows 3",
		"flowdash_load_parse_warnings 1",
		`flowdash_http_requests_total{code="200",route="/api/view"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
