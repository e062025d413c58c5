package model

import "time"

// Chart kinds.
const (
	KindScatter   = "scatter"
	KindBar       = "bar"
	KindLine      = "line"
	KindPie       = "pie"
	KindHeatmap   = "heatmap"
	KindBox       = "box"
	KindHistogram = "histogram"
	KindMatrix    = "matrix"
)

// Chart identifiers, in dashboard order.
const (
	ChartScatter       = "scatter-plot"
	ChartProtocolBar   = "bar-protocol"
	ChartTimeSeries    = "time-series"
	ChartLabelPie      = "label-distribution"
	ChartIPTimeline    = "ip-timeline"
	ChartHourlyHeatmap = "heatmap-hourly"
	ChartDurationBox   = "box-duration"
	ChartProtocolHist  = "hist-protocol-label"
	ChartHourByLabel   = "multi-line-hour-label"
	ChartCorrelation   = "correlation-matrix"
)

// ChartIDs lists every chart identifier in dashboard order.
var ChartIDs = []string{
	ChartScatter,
	ChartProtocolBar,
	ChartTimeSeries,
	ChartLabelPie,
	ChartIPTimeline,
	ChartHourlyHeatmap,
	ChartDurationBox,
	ChartProtocolHist,
	ChartHourByLabel,
	ChartCorrelation,
}

// Encoding names the columns bound to each visual channel.
type Encoding struct {
	X     string   `json:"x,omitempty" yaml:"x,omitempty"`
	Y     string   `json:"y,omitempty" yaml:"y,omitempty"`
	Z     string   `json:"z,omitempty" yaml:"z,omitempty"`
	Color string   `json:"color,omitempty" yaml:"color,omitempty"`
	Hover []string `json:"hover,omitempty" yaml:"hover,omitempty"`
}

// Point is a single mark. Numeric x-axes use X, categorical ones Category,
// temporal ones Time.
type Point struct {
	X        float64           `json:"x" yaml:"x"`
	Category string            `json:"category,omitempty" yaml:"category,omitempty"`
	Time     *time.Time        `json:"time,omitempty" yaml:"time,omitempty"`
	Y        float64           `json:"y" yaml:"y"`
	Hover    map[string]string `json:"hover,omitempty" yaml:"hover,omitempty"`
}

// BoxStats are the five-number summary of one box plus Tukey fences.
type BoxStats struct {
	N          int     `json:"n" yaml:"n"`
	Min        float64 `json:"min" yaml:"min"`
	Q1         float64 `json:"q1" yaml:"q1"`
	Median     float64 `json:"median" yaml:"median"`
	Q3         float64 `json:"q3" yaml:"q3"`
	Max        float64 `json:"max" yaml:"max"`
	Mean       float64 `json:"mean" yaml:"mean"`
	LowerFence float64 `json:"lower_fence" yaml:"lower_fence"`
	UpperFence float64 `json:"upper_fence" yaml:"upper_fence"`
}

// Series is one colored group of marks.
type Series struct {
	Name   string    `json:"name" yaml:"name"`
	Points []Point   `json:"points" yaml:"points"`
	Box    *BoxStats `json:"box,omitempty" yaml:"box,omitempty"`
}

// Matrix is a dense grid. Values[i][j] is the cell at row Y[i], column X[j];
// nil marks an undefined cell.
type Matrix struct {
	X      []string     `json:"x" yaml:"x"`
	Y      []string     `json:"y" yaml:"y"`
	Values [][]*float64 `json:"values" yaml:"values"`
}

// ChartSpec is a renderer-independent description of one chart.
type ChartSpec struct {
	ID          string   `json:"id" yaml:"id"`
	Kind        string   `json:"kind" yaml:"kind"`
	Title       string   `json:"title" yaml:"title"`
	Encoding    Encoding `json:"encoding" yaml:"encoding"`
	Barmode     string   `json:"barmode,omitempty" yaml:"barmode,omitempty"`
	Series      []Series `json:"series" yaml:"series"`
	Matrix      *Matrix  `json:"matrix,omitempty" yaml:"matrix,omitempty"`
	Placeholder string   `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// IsPlaceholder reports whether the chart carries a prompt instead of data.
func (c ChartSpec) IsPlaceholder() bool { return c.Placeholder != "" }

// Empty reports whether the chart has no marks and no cells.
func (c ChartSpec) Empty() bool {
	for _, s := range c.Series {
		if len(s.Points) > 0 {
			return false
		}
	}
	return c.Matrix == nil || len(c.Matrix.X) == 0
}

// Badge is one label count in the summary fragment.
type Badge struct {
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
	Color string `json:"color" yaml:"color"`
}

// Summary is the per-IP label count fragment.
type Summary struct {
	Badges      []Badge `json:"badges,omitempty" yaml:"badges,omitempty"`
	Placeholder string  `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// View is the result of one dashboard recomputation.
type View struct {
	Selection Selection   `json:"selection" yaml:"selection"`
	Matched   int         `json:"matched" yaml:"matched"`
	Rows      int         `json:"rows" yaml:"rows"`
	Charts    []ChartSpec `json:"charts" yaml:"charts"`
	Summary   Summary     `json:"summary" yaml:"summary"`
	Warnings  []string    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Chart returns the chart with the given id.
func (v *View) Chart(id string) (ChartSpec, bool) {
	for _, c := range v.Charts {
		if c.ID == id {
			return c, true
		}
	}
	return ChartSpec{}, false
}
