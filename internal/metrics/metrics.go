// Package metrics exposes Prometheus instrumentation for the dashboard service.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinytelemetry/flowdash/internal/dashboard"
)

const namespace = "flowdash"

// Recorder owns a private registry with the service metrics.
type Recorder struct {
	registry     *prometheus.Registry
	viewSeconds  prometheus.Histogram
	views        *prometheus.CounterVec
	viewRows     prometheus.Histogram
	matchedRows  prometheus.Histogram
	baseRows     prometheus.Gauge
	loadWarnings prometheus.Gauge
	requests     *prometheus.CounterVec
}

// NewRecorder creates a recorder with Go runtime and process collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		viewSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_duration_seconds",
			Help:      "Time spent computing a dashboard view.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		views: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "views_total",
			Help:      "Dashboard views computed, by result.",
		}, []string{"result"}),
		viewRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_rows",
			Help:      "Rows aggregated per view after sampling.",
			Buckets:   []float64{0, 10, 100, 500, 1000, 2500, 5000},
		}),
		matchedRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_matched_rows",
			Help:      "Rows matching the selection before sampling.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		baseRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "base_rows",
			Help:      "Rows in the loaded flow table.",
		}),
		loadWarnings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "load_parse_warnings",
			Help:      "Rows of the last load whose Timestamp could not be parsed.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.viewSeconds, r.views, r.viewRows, r.matchedRows, r.baseRows, r.loadWarnings, r.requests,
	)
	return r
}

// ObserveView implements dashboard.Observer.
func (r *Recorder) ObserveView(elapsed time.Duration, matched, rows int, err error) {
	result := "ok"
	switch {
	case errors.Is(err, dashboard.ErrInvalidSelection):
		result = "invalid"
	case err != nil:
		result = "error"
	}
	r.views.WithLabelValues(result).Inc()
	if err != nil {
		return
	}
	r.viewSeconds.Observe(elapsed.Seconds())
	r.viewRows.Observe(float64(rows))
	r.matchedRows.Observe(float64(matched))
}

// SetDataset records the size of the loaded flow table.
func (r *Recorder) SetDataset(rows, parseWarnings int64) {
	r.baseRows.Set(float64(rows))
	r.loadWarnings.Set(float64(parseWarnings))
}

// ObserveRequest counts one served HTTP request.
func (r *Recorder) ObserveRequest(route string, code int) {
	if route == "" {
		route = "unmatched"
	}
	r.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
