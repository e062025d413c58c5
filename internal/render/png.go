// Package render draws chart specifications as PNG images.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/tinytelemetry/flowdash/internal/model"
)

var (
	// ErrUnsupportedKind indicates a chart kind that has no PNG rendering.
	ErrUnsupportedKind = errors.New("render: unsupported chart kind")
	// ErrNoData indicates a chart with nothing to draw.
	ErrNoData = errors.New("render: chart has no data")
)

// Size is the output image size in pixels.
type Size struct {
	Width  int
	Height int
}

// DefaultSize is used when a zero Size is passed.
var DefaultSize = Size{Width: 960, Height: 540}

// Supported reports whether kind can be rendered to PNG.
func Supported(kind string) bool {
	switch kind {
	case model.KindScatter, model.KindLine, model.KindBar, model.KindPie, model.KindHistogram:
		return true
	}
	return false
}

// PNG renders spec to w.
func PNG(w io.Writer, spec model.ChartSpec, size Size) error {
	if !Supported(spec.Kind) {
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, spec.Kind)
	}
	if spec.IsPlaceholder() || spec.Empty() {
		return fmt.Errorf("%w: %s", ErrNoData, spec.ID)
	}
	if size.Width <= 0 || size.Height <= 0 {
		size = DefaultSize
	}

	switch spec.Kind {
	case model.KindBar:
		return renderBar(w, spec, size)
	case model.KindPie:
		return renderPie(w, spec, size)
	case model.KindHistogram:
		return renderStacked(w, spec, size)
	default:
		return renderXY(w, spec, size)
	}
}

// pointStyle draws markers without connecting lines.
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    4,
		DotColor:    col,
	}
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: 2,
		StrokeColor: col,
		DotWidth:    3,
		DotColor:    col,
	}
}

// paddedRange returns a range covering [lo, hi] that never has zero width.
func paddedRange(lo, hi float64) *chart.ContinuousRange {
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.05, 1)
		return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
	}
	pad := (hi - lo) * 0.03
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func renderXY(w io.Writer, spec model.ChartSpec, size Size) error {
	timeAxis := spec.Encoding.X == model.ColTimestamp
	xlo, xhi := math.Inf(1), math.Inf(-1)
	ylo, yhi := math.Inf(1), math.Inf(-1)

	var series []chart.Series
	for i, s := range spec.Series {
		col := chart.GetDefaultColor(i)
		st := lineStyle(col)
		if spec.Kind == model.KindScatter {
			st = pointStyle(col)
		}

		var xs []float64
		var ts []time.Time
		var ys []float64
		for _, p := range s.Points {
			x := p.X
			if timeAxis {
				if p.Time == nil {
					continue
				}
				ts = append(ts, *p.Time)
				x = chart.TimeToFloat64(*p.Time)
			} else {
				xs = append(xs, x)
			}
			ys = append(ys, p.Y)
			xlo, xhi = math.Min(xlo, x), math.Max(xhi, x)
			ylo, yhi = math.Min(ylo, p.Y), math.Max(yhi, p.Y)
		}
		if len(ys) == 0 {
			continue
		}
		if timeAxis {
			series = append(series, chart.TimeSeries{Name: s.Name, XValues: ts, YValues: ys, Style: st})
		} else {
			series = append(series, chart.ContinuousSeries{Name: s.Name, XValues: xs, YValues: ys, Style: st})
		}
	}
	if len(series) == 0 {
		return fmt.Errorf("%w: %s", ErrNoData, spec.ID)
	}

	xAxis := chart.XAxis{Name: spec.Encoding.X, Range: paddedRange(xlo, xhi)}
	if timeAxis {
		xAxis.ValueFormatter = chart.TimeValueFormatterWithFormat("01-02 15:04")
	}
	ch := chart.Chart{
		Title:      spec.Title,
		Width:      size.Width,
		Height:     size.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      xAxis,
		YAxis:      chart.YAxis{Name: spec.Encoding.Y, Range: paddedRange(ylo, yhi)},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return ch.Render(chart.PNG, w)
}

func maxY(spec model.ChartSpec) float64 {
	m := 0.0
	for _, s := range spec.Series {
		for _, p := range s.Points {
			m = math.Max(m, p.Y)
		}
	}
	return m
}

func renderBar(w io.Writer, spec model.ChartSpec, size Size) error {
	var bars []chart.Value
	for _, s := range spec.Series {
		for _, p := range s.Points {
			bars = append(bars, chart.Value{Label: p.Category, Value: p.Y})
		}
	}
	bc := chart.BarChart{
		Title:      spec.Title,
		Width:      size.Width,
		Height:     size.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		BarWidth:   barWidth(len(bars), size.Width),
		YAxis:      chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: math.Max(maxY(spec)*1.1, 1)}},
		Bars:       bars,
	}
	return bc.Render(chart.PNG, w)
}

func barWidth(n, width int) int {
	if n == 0 {
		return 40
	}
	bw := width / (n * 2)
	return max(8, min(bw, 80))
}

func renderPie(w io.Writer, spec model.ChartSpec, size Size) error {
	var values []chart.Value
	for _, s := range spec.Series {
		for _, p := range s.Points {
			if p.Y > 0 {
				values = append(values, chart.Value{Label: fmt.Sprintf("%s (%.0f)", p.Category, p.Y), Value: p.Y})
			}
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: %s", ErrNoData, spec.ID)
	}
	pc := chart.PieChart{
		Title:  spec.Title,
		Width:  size.Width,
		Height: size.Height,
		Values: values,
	}
	return pc.Render(chart.PNG, w)
}

// renderStacked draws a stacked histogram with one bar per x category and
// one segment per series.
func renderStacked(w io.Writer, spec model.ChartSpec, size Size) error {
	var categories []string
	seen := make(map[string]bool)
	for _, s := range spec.Series {
		for _, p := range s.Points {
			if !seen[p.Category] {
				seen[p.Category] = true
				categories = append(categories, p.Category)
			}
		}
	}

	var bars []chart.StackedBar
	for _, cat := range categories {
		bar := chart.StackedBar{Name: cat}
		for i, s := range spec.Series {
			for _, p := range s.Points {
				if p.Category != cat {
					continue
				}
				col := chart.GetDefaultColor(i)
				bar.Values = append(bar.Values, chart.Value{
					Label: s.Name,
					Value: p.Y,
					Style: chart.Style{FillColor: col, StrokeColor: col},
				})
			}
		}
		bars = append(bars, bar)
	}
	sbc := chart.StackedBarChart{
		Title:      spec.Title,
		Width:      size.Width,
		Height:     size.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		Bars:       bars,
	}
	return sbc.Render(chart.PNG, w)
}
