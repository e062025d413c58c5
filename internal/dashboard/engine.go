// Package dashboard turns a filter selection over the loaded flow table into
// the ten chart specifications and the label summary shown by the dashboard.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/tinytelemetry/flowdash/internal/model"
)

var (
	// ErrInvalidSelection indicates a selection that cannot be applied.
	ErrInvalidSelection = errors.New("dashboard: invalid selection")
	// ErrUnknownChart indicates a chart id outside model.ChartIDs.
	ErrUnknownChart = errors.New("dashboard: unknown chart")
)

// FlowSource returns the filtered, sampled rows of the flow table.
type FlowSource interface {
	FilteredFlows(ctx context.Context, f model.FlowFilter) (*model.FlowSample, error)
}

// Observer receives one call per computed view.
type Observer interface {
	ObserveView(elapsed time.Duration, matched, rows int, err error)
}

// Options tunes view computation.
type Options struct {
	MaxRows       int
	Seed          int64
	ZeroFillHours bool
}

// Engine computes dashboard views. It is safe for concurrent use: the base
// dataset description is fixed at construction and every call filters afresh.
type Engine struct {
	src      FlowSource
	base     *model.DatasetInfo
	opts     Options
	observer Observer
}

// NewEngine returns an engine over src. base describes the loaded flow table
// and is never modified.
func NewEngine(src FlowSource, base *model.DatasetInfo, opts Options) *Engine {
	if opts.MaxRows <= 0 {
		opts.MaxRows = model.DefaultMaxViewRows
	}
	if base == nil {
		base = &model.DatasetInfo{}
	}
	return &Engine{src: src, base: base, opts: opts}
}

// WithObserver sets the observer notified after each view.
func (e *Engine) WithObserver(o Observer) *Engine {
	e.observer = o
	return e
}

// Info returns the description of the base flow table.
func (e *Engine) Info() *model.DatasetInfo {
	return e.base
}

// DefaultSelection returns the selection covering the whole table.
func (e *Engine) DefaultSelection() model.Selection {
	return model.Selection{}.WithRange(e.base.Duration.Min, e.base.Duration.Max)
}

// Resolve validates sel and fills defaults. Each unset duration bound takes
// the matching end of the observed duration range; set bounds are kept as
// given, so an explicit [0,0] only matches zero-length flows.
func (e *Engine) Resolve(sel model.Selection) (model.Selection, error) {
	sel = sel.Normalize()
	if !sel.HasMin {
		sel = sel.WithMin(e.base.Duration.Min)
	}
	if !sel.HasMax {
		sel = sel.WithMax(e.base.Duration.Max)
	}
	for _, v := range []float64{sel.DurationMin, sel.DurationMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return sel, fmt.Errorf("%w: duration bound %v", ErrInvalidSelection, v)
		}
	}
	if sel.DurationMin > sel.DurationMax {
		return sel, fmt.Errorf("%w: duration min %v exceeds max %v", ErrInvalidSelection, sel.DurationMin, sel.DurationMax)
	}
	return sel, nil
}

// ComputeView filters the flow table by sel and builds every chart and the
// summary. A failing flow source degrades to an empty view with a warning;
// only an invalid selection is returned as an error.
func (e *Engine) ComputeView(ctx context.Context, sel model.Selection) (*model.View, error) {
	start := time.Now()
	sel, err := e.Resolve(sel)
	if err != nil {
		e.observe(start, 0, 0, err)
		return nil, err
	}

	var warnings []string
	sample, err := e.src.FilteredFlows(ctx, model.FlowFilter{
		Protocol:    sel.Protocol,
		SourceIP:    sel.SourceIP,
		DurationMin: sel.DurationMin,
		DurationMax: sel.DurationMax,
		Limit:       e.opts.MaxRows,
		Seed:        e.opts.Seed,
	})
	if err != nil {
		log.Printf("dashboard: filter flows: %v", err)
		warnings = append(warnings, fmt.Sprintf("flow query failed: %v", err))
		sample = &model.FlowSample{NumericColumns: e.base.NumericColumns}
	}

	view := BuildView(e.base, sel, sample, e.opts.ZeroFillHours)
	view.Warnings = append(view.Warnings, warnings...)
	e.observe(start, view.Matched, view.Rows, nil)
	return view, nil
}

// ComputeChart computes the view for sel and returns the chart with the given id.
func (e *Engine) ComputeChart(ctx context.Context, sel model.Selection, id string) (*model.ChartSpec, error) {
	if !knownChart(id) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChart, id)
	}
	view, err := e.ComputeView(ctx, sel)
	if err != nil {
		return nil, err
	}
	c, _ := view.Chart(id)
	return &c, nil
}

func (e *Engine) observe(start time.Time, matched, rows int, err error) {
	if e.observer != nil {
		e.observer.ObserveView(time.Since(start), matched, rows, err)
	}
}

func knownChart(id string) bool {
	for _, c := range model.ChartIDs {
		if c == id {
			return true
		}
	}
	return false
}

// BuildView aggregates sample into the dashboard view. It is a pure function
// of its inputs.
func BuildView(base *model.DatasetInfo, sel model.Selection, sample *model.FlowSample, zeroFill bool) *model.View {
	if sample == nil {
		sample = &model.FlowSample{}
	}
	rows := sample.Rows
	return &model.View{
		Selection: sel,
		Matched:   sample.Matched,
		Rows:      len(rows),
		Charts: []model.ChartSpec{
			scatterChart(rows),
			protocolBarChart(rows),
			hourlyLineChart(rows, zeroFill),
			labelPieChart(base.LabelCounts),
			ipTimelineChart(rows, sel.SourceIP),
			hourlyHeatmap(rows, sel.SourceIP, zeroFill),
			durationBoxChart(rows),
			protocolLabelHistogram(rows),
			hourByLabelChart(rows, zeroFill),
			correlationChart(rows, sample.NumericColumns),
		},
		Summary: BuildSummary(rows, sel.SourceIP),
	}
}
