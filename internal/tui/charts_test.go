package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/flowdash/internal/model"
)

func fptr(v float64) *float64 { return &v }

func TestRenderChart_Placeholder(t *testing.T) {
	t.Parallel()
	out := RenderChart(model.ChartSpec{Kind: model.KindScatter, Placeholder: "Select an IP"}, 60, 8)
	if !strings.Contains(out, "Select an IP") {
		t.Fatalf("placeholder not rendered:\n%s", out)
	}
}

func TestRenderChart_Empty(t *testing.T) {
	t.Parallel()
	out := RenderChart(model.ChartSpec{Kind: model.KindBar, Series: []model.Series{{Name: "Count"}}}, 60, 8)
	if !strings.Contains(out, "No data") {
		t.Fatalf("empty chart not reported:\n%s", out)
	}
}

func TestRenderChart_Kinds(t *testing.T) {
	t.Parallel()
	ts := time.Date(2017, 7, 3, 9, 10, 0, 0, time.UTC)

	tests := []struct {
		name string
		spec model.ChartSpec
		want []string
	}{
		{
			name: "bar",
			spec: model.ChartSpec{Kind: model.KindBar, Series: []model.Series{{Name: "Count", Points: []model.Point{
				{Category: "TCP", Y: 2}, {Category: "UDP", Y: 1},
			}}}},
			want: []string{"TCP", "UDP"},
		},
		{
			name: "stacked histogram",
			spec: model.ChartSpec{Kind: model.KindHistogram, Barmode: "stack", Series: []model.Series{
				{Name: "BENIGN", Points: []model.Point{{Category: "TCP", Y: 2}}},
				{Name: "DDoS", Points: []model.Point{{Category: "UDP", Y: 1}}},
			}},
			want: []string{"BENIGN", "DDoS"},
		},
		{
			name: "line",
			spec: model.ChartSpec{Kind: model.KindLine, Series: []model.Series{{Name: "Counts", Points: []model.Point{
				{X: 8, Y: 1}, {X: 10, Y: 1}, {X: 9, Y: 1},
			}}}},
			want: []string{"Counts"},
		},
		{
			name: "pie",
			spec: model.ChartSpec{Kind: model.KindPie, Series: []model.Series{{Name: "Count", Points: []model.Point{
				{Category: "BENIGN", Y: 3}, {Category: "DDoS", Y: 1},
			}}}},
			want: []string{"BENIGN", "75.0%", "25.0%"},
		},
		{
			name: "scatter with time axis",
			spec: model.ChartSpec{Kind: model.KindScatter, Encoding: model.Encoding{X: model.ColTimestamp, Y: model.ColFlowDuration},
				Series: []model.Series{{Name: "DDoS", Points: []model.Point{{Time: &ts, Y: 5000}, {Y: 1}}}}},
			want: []string{"DDoS", "07-03 09:10"},
		},
		{
			name: "heatmap",
			spec: model.ChartSpec{Kind: model.KindHeatmap, Matrix: &model.Matrix{
				X: []string{"8", "9"}, Y: []string{"BENIGN", "DDoS"},
				Values: [][]*float64{{fptr(1), fptr(0)}, {fptr(0), fptr(1)}},
			}},
			want: []string{"BENIGN", "DDoS"},
		},
		{
			name: "correlation",
			spec: model.ChartSpec{Kind: model.KindMatrix, Matrix: &model.Matrix{
				X: []string{"a", "b"}, Y: []string{"a", "b"},
				Values: [][]*float64{{fptr(1), nil}, {nil, fptr(-0.5)}},
			}},
			want: []string{"+1.00", "-0.50", "·"},
		},
		{
			name: "box",
			spec: model.ChartSpec{Kind: model.KindBox, Series: []model.Series{{
				Name:   "BENIGN",
				Points: []model.Point{{Y: 500}, {Y: 800}},
				Box:    &model.BoxStats{N: 2, Min: 500, Q1: 575, Median: 650, Q3: 725, Max: 800},
			}}},
			want: []string{"BENIGN", "n=2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := RenderChart(tt.spec, 100, 10)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestRenderChart_PlotsOnCanvas(t *testing.T) {
	t.Parallel()
	hasBraille := func(s string) bool {
		for _, r := range s {
			if r > 0x2800 && r <= 0x28FF {
				return true
			}
		}
		return false
	}

	line := RenderChart(model.ChartSpec{Kind: model.KindLine, Series: []model.Series{{Name: "Counts", Points: []model.Point{
		{X: 0, Y: 3}, {X: 12, Y: 40}, {X: 23, Y: 7},
	}}}}, 100, 12)
	if !hasBraille(line) {
		t.Errorf("line chart has no braille segments:\n%s", line)
	}

	scatter := RenderChart(model.ChartSpec{Kind: model.KindScatter, Encoding: model.Encoding{X: model.ColFlowDuration, Y: model.ColTotalFwdPackets},
		Series: []model.Series{{Name: "BENIGN", Points: []model.Point{{X: 100, Y: 2}, {X: 50000, Y: 9}}}}}, 100, 12)
	if strings.Count(scatter, "•") != 2 {
		t.Errorf("scatter should mark two points:\n%s", scatter)
	}
	if !strings.Contains(scatter, "Flow Duration: 100..50000") {
		t.Errorf("scatter footer missing x range:\n%s", scatter)
	}

	t0 := time.Date(2017, 7, 3, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(2 * time.Hour)
	timeline := RenderChart(model.ChartSpec{Kind: model.KindScatter, Encoding: model.Encoding{X: model.ColTimestamp, Y: model.ColFlowDuration},
		Series: []model.Series{{Name: "DDoS", Points: []model.Point{{Time: &t0, Y: 100}, {Time: &t1, Y: 200}}}}}, 100, 12)
	if !hasBraille(timeline) || !strings.Contains(timeline, "07-03 11:00") {
		t.Errorf("timeline not drawn on a time axis:\n%s", timeline)
	}
}

func TestRenderChart_HeatmapOmitsHiddenRows(t *testing.T) {
	t.Parallel()
	m := &model.Matrix{X: []string{"0"}, Y: []string{"r1", "r2", "r3", "r4"},
		Values: [][]*float64{{fptr(1)}, {fptr(2)}, {fptr(3)}, {fptr(4)}}}
	out := RenderChart(model.ChartSpec{Kind: model.KindHeatmap, Matrix: m}, 60, 4)
	if !strings.Contains(out, "r1") || strings.Contains(out, "r4") {
		t.Fatalf("heatmap rows not limited to height:\n%s", out)
	}
}

func TestRenderChart_UndefinedCorrelation(t *testing.T) {
	t.Parallel()
	out := RenderChart(model.ChartSpec{Kind: model.KindMatrix, Matrix: &model.Matrix{}}, 60, 8)
	if !strings.Contains(out, "undefined") {
		t.Fatalf("undefined matrix not reported:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ab", 4); got != "ab" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ab", 0); got != "" {
		t.Errorf("truncate = %q", got)
	}
}
