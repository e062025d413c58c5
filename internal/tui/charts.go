package tui

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/NimbleMarkets/ntcharts/canvas"
	"github.com/NimbleMarkets/ntcharts/heatmap"
	"github.com/NimbleMarkets/ntcharts/linechart"
	"github.com/NimbleMarkets/ntcharts/linechart/timeserieslinechart"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tinytelemetry/flowdash/internal/model"
)

const legendWidth = 22

// RenderChart draws spec into a width x height block of terminal text.
func RenderChart(spec model.ChartSpec, width, height int) string {
	width = max(width, 20)
	height = max(height, 3)

	if spec.IsPlaceholder() {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, helpStyle.Render(spec.Placeholder))
	}
	if spec.Kind != model.KindMatrix && spec.Empty() {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, helpStyle.Render("No data for this selection"))
	}

	switch spec.Kind {
	case model.KindBar:
		return renderBars(spec.Series[0].Points, width, height)
	case model.KindLine:
		return renderLines(spec, width, height)
	case model.KindHistogram:
		return renderStackedBars(spec, width, height)
	case model.KindPie:
		return renderShares(spec.Series[0].Points, width, height)
	case model.KindScatter:
		if spec.Encoding.X == model.ColTimestamp {
			return renderTimeline(spec, width, height)
		}
		return renderScatter(spec, width, height)
	case model.KindHeatmap:
		return renderHeatmap(spec.Matrix, width, height, "%.0f", countScale, 0, matrixMax(spec.Matrix))
	case model.KindMatrix:
		if spec.Matrix == nil || len(spec.Matrix.X) == 0 {
			return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, helpStyle.Render("Correlation undefined for this selection"))
		}
		return renderHeatmap(spec.Matrix, width, height, "%+.2f", correlationScale, -1, 1)
	case model.KindBox:
		return renderBoxes(spec.Series, width, height)
	}
	return helpStyle.Render("Unsupported chart kind " + spec.Kind)
}

func pointLabel(p model.Point) string {
	if p.Category != "" {
		return p.Category
	}
	return strconv.FormatFloat(p.X, 'f', -1, 64)
}

// renderBars draws one bar per point with a value legend on the right.
func renderBars(points []model.Point, width, height int) string {
	chartW := max(width-legendWidth-2, 10)
	bc := barchart.New(chartW, height,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(max(1, min(6, chartW/max(len(points), 1)-1))),
	)
	legend := make([]string, 0, len(points))
	for i, p := range points {
		style := lipgloss.NewStyle().Foreground(seriesColor(i))
		bc.Push(barchart.BarData{
			Label:  truncate(pointLabel(p), 6),
			Values: []barchart.BarValue{{Name: pointLabel(p), Value: p.Y, Style: style}},
		})
		legend = append(legend, style.Render(fmt.Sprintf("%-12s %8.0f", truncate(pointLabel(p), 12), p.Y)))
	}
	bc.Draw()
	return joinWithLegend(bc.View(), legend, chartW, height)
}

// renderStackedBars draws one bar per category with one stacked segment per
// series, preserving series and category order of appearance.
func renderStackedBars(spec model.ChartSpec, width, height int) string {
	var categories []string
	seen := make(map[string]bool)
	for _, s := range spec.Series {
		for _, p := range s.Points {
			c := pointLabel(p)
			if !seen[c] {
				seen[c] = true
				categories = append(categories, c)
			}
		}
	}
	chartW := max(width-legendWidth-2, 10)
	bc := barchart.New(chartW, height,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(max(1, min(4, chartW/max(len(categories), 1)-1))),
	)
	for _, c := range categories {
		var values []barchart.BarValue
		for i, s := range spec.Series {
			for _, p := range s.Points {
				if pointLabel(p) == c && p.Y > 0 {
					style := lipgloss.NewStyle().Foreground(seriesColor(i))
					values = append(values, barchart.BarValue{Name: s.Name, Value: p.Y, Style: style})
				}
			}
		}
		if len(values) == 0 {
			values = []barchart.BarValue{{Name: c, Value: 0, Style: helpStyle}}
		}
		bc.Push(barchart.BarData{Label: truncate(c, 4), Values: values})
	}
	bc.Draw()

	legend := make([]string, 0, len(spec.Series))
	for i, s := range spec.Series {
		total := 0.0
		for _, p := range s.Points {
			total += p.Y
		}
		legend = append(legend, lipgloss.NewStyle().Foreground(seriesColor(i)).
			Render(fmt.Sprintf("%-12s %8.0f", truncate(s.Name, 12), total)))
	}
	return joinWithLegend(bc.View(), legend, chartW, height)
}

// renderShares draws a horizontal percentage bar per category.
func renderShares(points []model.Point, width, height int) string {
	total := 0.0
	for _, p := range points {
		total += p.Y
	}
	if total <= 0 {
		return helpStyle.Render("No data for this selection")
	}
	barW := max(width-34, 5)
	lines := make([]string, 0, len(points))
	for i, p := range points {
		if i >= height {
			break
		}
		share := p.Y / total
		filled := int(math.Round(share * float64(barW)))
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barW-filled)
		lines = append(lines, lipgloss.NewStyle().Foreground(seriesColor(i)).Render(
			fmt.Sprintf("%-14s %s %5.1f%% %8.0f", truncate(p.Category, 14), bar, share*100, p.Y)))
	}
	return strings.Join(lines, "\n")
}

// plotBounds is the data range of a chart, widened so both spans are positive.
type plotBounds struct {
	minX, maxX, minY, maxY float64
	n                      int
}

func newPlotBounds() plotBounds {
	return plotBounds{minX: math.Inf(1), maxX: math.Inf(-1), minY: math.Inf(1), maxY: math.Inf(-1)}
}

func (b *plotBounds) add(x, y float64) {
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return
	}
	b.minX, b.maxX = math.Min(b.minX, x), math.Max(b.maxX, x)
	b.minY, b.maxY = math.Min(b.minY, y), math.Max(b.maxY, y)
	b.n++
}

func (b plotBounds) padded() plotBounds {
	if b.maxX <= b.minX {
		b.minX, b.maxX = b.minX-1, b.maxX+1
	}
	if b.maxY <= b.minY {
		b.minY, b.maxY = b.minY-1, b.maxY+1
	}
	return b
}

// valueLabel formats axis ticks with SI prefixes so wide ranges stay narrow.
func valueLabel(_ int, v float64) string {
	return strings.ReplaceAll(humanize.SIWithDigits(v, 1, ""), " ", "")
}

func clockLabel(_ int, v float64) string {
	return time.Unix(int64(v), 0).UTC().Format("15:04")
}

func newLineChart(w, h int, b plotBounds, xLabel linechart.LabelFormatter) linechart.Model {
	return linechart.New(w, h, b.minX, b.maxX, b.minY, b.maxY,
		linechart.WithXYSteps(4, 2),
		linechart.WithStyles(chartAxisStyle, chartAxisStyle, lipgloss.NewStyle()),
		linechart.WithXLabelFormatter(xLabel),
		linechart.WithYLabelFormatter(valueLabel),
	)
}

// renderLines draws each series as a braille polyline over its x order.
func renderLines(spec model.ChartSpec, width, height int) string {
	chartW := max(width-legendWidth-2, 10)
	b := newPlotBounds()
	for _, s := range spec.Series {
		for _, p := range s.Points {
			b.add(p.X, p.Y)
		}
	}
	if b.n == 0 {
		return helpStyle.Render("No data for this selection")
	}
	b.minY = math.Min(b.minY, 0)
	lc := newLineChart(chartW, height, b.padded(), valueLabel)
	lc.DrawXYAxisAndLabel()

	legend := make([]string, 0, len(spec.Series))
	for i, s := range spec.Series {
		style := lipgloss.NewStyle().Foreground(seriesColor(i))
		pts := make([]canvas.Float64Point, 0, len(s.Points))
		total := 0.0
		for _, p := range s.Points {
			total += p.Y
			pts = append(pts, canvas.Float64Point{X: p.X, Y: p.Y})
		}
		sort.SliceStable(pts, func(a, b int) bool { return pts[a].X < pts[b].X })
		switch len(pts) {
		case 0:
		case 1:
			lc.DrawRuneWithStyle(pts[0], '•', style)
		default:
			for k := 1; k < len(pts); k++ {
				lc.DrawBrailleLineWithStyle(pts[k-1], pts[k], style)
			}
		}
		legend = append(legend, style.Render(fmt.Sprintf("%-12s %8.0f", truncate(s.Name, 12), total)))
	}
	return joinWithLegend(lc.View(), legend, chartW, height)
}

// renderScatter marks every finite point on a linechart canvas.
func renderScatter(spec model.ChartSpec, width, height int) string {
	chartW := max(width-legendWidth-2, 10)
	plotH := max(height-1, 3)

	b := newPlotBounds()
	for _, s := range spec.Series {
		for _, p := range s.Points {
			b.add(p.X, p.Y)
		}
	}
	if b.n == 0 {
		return helpStyle.Render("No plottable points for this selection")
	}
	lc := newLineChart(chartW, plotH, b.padded(), valueLabel)
	lc.DrawXYAxisAndLabel()

	legend := make([]string, 0, len(spec.Series))
	for i, s := range spec.Series {
		style := lipgloss.NewStyle().Foreground(seriesColor(i))
		for _, p := range s.Points {
			if !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0) {
				lc.DrawRuneWithStyle(canvas.Float64Point{X: p.X, Y: p.Y}, '•', style)
			}
		}
		legend = append(legend, style.Render(fmt.Sprintf("%-12s %8d", truncate(s.Name, 12), len(s.Points))))
	}
	footer := helpStyle.Render(truncate(axisSummary(spec, b), chartW))
	return joinWithLegend(lc.View()+"\n"+footer, legend, chartW, plotH+1)
}

// renderTimeline draws one time series per label. Points without a
// timestamp cannot be placed on the time axis and are skipped.
func renderTimeline(spec model.ChartSpec, width, height int) string {
	chartW := max(width-legendWidth-2, 10)
	plotH := max(height-1, 3)

	b := newPlotBounds()
	for _, s := range spec.Series {
		for _, p := range s.Points {
			if p.Time != nil {
				b.add(float64(p.Time.Unix()), p.Y)
			}
		}
	}
	if b.n == 0 {
		return helpStyle.Render("No plottable points for this selection")
	}
	span := b.padded()
	if span.maxX-span.minX < 60 {
		span.minX, span.maxX = span.minX-1800, span.maxX+1800
	}
	span.minY = math.Min(span.minY, 0)

	tc := timeserieslinechart.New(chartW, plotH,
		timeserieslinechart.WithTimeRange(time.Unix(int64(span.minX), 0), time.Unix(int64(span.maxX), 0)),
		timeserieslinechart.WithYRange(span.minY, span.maxY),
		timeserieslinechart.WithXYSteps(6, 2),
		timeserieslinechart.WithAxesStyles(chartAxisStyle, chartAxisStyle),
		timeserieslinechart.WithXLabelFormatter(clockLabel),
		timeserieslinechart.WithYLabelFormatter(valueLabel),
	)
	legend := make([]string, 0, len(spec.Series))
	for i, s := range spec.Series {
		style := lipgloss.NewStyle().Foreground(seriesColor(i))
		tc.SetDataSetStyle(s.Name, style)
		for _, p := range s.Points {
			if p.Time != nil && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) {
				tc.PushDataSet(s.Name, timeserieslinechart.TimePoint{Time: *p.Time, Value: p.Y})
			}
		}
		legend = append(legend, style.Render(fmt.Sprintf("%-12s %8d", truncate(s.Name, 12), len(s.Points))))
	}
	tc.DrawBrailleAll()

	footer := helpStyle.Render(truncate(axisSummary(spec, b), chartW))
	return joinWithLegend(tc.View()+"\n"+footer, legend, chartW, plotH+1)
}

func axisSummary(spec model.ChartSpec, b plotBounds) string {
	return fmt.Sprintf("%s: %s..%s  %s: %s..%s",
		spec.Encoding.X, formatAxis(b.minX, spec), formatAxis(b.maxX, spec),
		spec.Encoding.Y, strconv.FormatFloat(b.minY, 'f', -1, 64), strconv.FormatFloat(b.maxY, 'f', -1, 64))
}

func formatAxis(v float64, spec model.ChartSpec) string {
	if spec.Encoding.X == model.ColTimestamp {
		return timeFromUnix(v)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func timeFromUnix(sec float64) string {
	return time.Unix(int64(sec), 0).UTC().Format("01-02 15:04")
}

// countScale runs from dark to bright for non-negative counts.
var countScale = []lipgloss.Color{
	"17", "18", "19", "20", "21", "26", "27", "32", "33", "38", "39", "44", "45", "50", "51", "195",
}

// correlationScale diverges from red at -1 through white to blue at +1.
var correlationScale = []lipgloss.Color{
	"124", "160", "196", "202", "209", "216", "223", "255", "255", "189", "153", "117", "81", "45", "33", "27",
}

// renderHeatmap colors one block per matrix cell on an ntcharts heatmap and
// prints the value inside blocks wide enough to hold it. Nil cells stay
// uncolored and show a dot.
func renderHeatmap(m *model.Matrix, width, height int, format string, scale []lipgloss.Color, lo, hi float64) string {
	if m == nil || len(m.X) == 0 || len(m.Y) == 0 {
		return helpStyle.Render("No data for this selection")
	}
	rowLabelW := 0
	for _, y := range m.Y {
		rowLabelW = max(rowLabelW, len([]rune(y)))
	}
	rowLabelW = min(rowLabelW, 16)

	gridW := max(width-rowLabelW-1, 1)
	cellW := max(1, min(6, gridW/len(m.X)))
	cols := min(len(m.X), max(gridW/cellW, 1))
	rows := min(len(m.Y), max(height-2, 1))
	if hi <= lo {
		hi = lo + 1
	}

	w, h := cols*cellW, rows
	hm := heatmap.New(w, h,
		heatmap.WithStyle(linechart.New(w, h, 0, float64(w), 0, float64(h), linechart.WithXYSteps(0, 0))),
		heatmap.WithColorScale(scale),
		heatmap.WithValueRange(lo, hi),
	)
	cell := func(i, j int) *float64 {
		if i < len(m.Values) && j < len(m.Values[i]) {
			return m.Values[i][j]
		}
		return nil
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := cell(i, j)
			if v == nil {
				continue
			}
			for dx := 0; dx < cellW; dx++ {
				hm.Push(heatmap.NewHeatPointInt(j*cellW+dx, h-1-i, math.Max(lo, math.Min(hi, *v))))
			}
		}
	}
	hm.Draw()

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := cell(i, j)
			if v == nil {
				hm.Canvas.SetRuneWithStyle(canvas.Point{X: j*cellW + cellW/2, Y: i}, '·', helpStyle)
				continue
			}
			text := []rune(fmt.Sprintf(format, *v))
			if len(text) > cellW {
				continue
			}
			x0 := j*cellW + (cellW-len(text))/2
			for k, r := range text {
				pt := canvas.Point{X: x0 + k, Y: i}
				style := lipgloss.NewStyle()
				if st := hm.Canvas.GetCellStyle(pt); st != nil {
					style = *st
				}
				hm.Canvas.SetRuneWithStyle(pt, r, style.Foreground(lipgloss.Color("0")))
			}
		}
	}

	grid := strings.Split(hm.View(), "\n")
	lines := []string{strings.Repeat(" ", rowLabelW+1) + headerCells(m.X[:cols], cellW)}
	for i := 0; i < rows && i < len(grid); i++ {
		lines = append(lines, fmt.Sprintf("%-*s ", rowLabelW, truncate(m.Y[i], rowLabelW))+grid[i])
	}
	var ramp strings.Builder
	for _, c := range scale {
		ramp.WriteString(lipgloss.NewStyle().Background(c).Render(" "))
	}
	lines = append(lines, strings.Repeat(" ", rowLabelW+1)+
		helpStyle.Render(strconv.FormatFloat(lo, 'g', 4, 64)+" ")+ramp.String()+
		helpStyle.Render(" "+strconv.FormatFloat(hi, 'g', 4, 64)))
	return strings.Join(lines, "\n")
}

func headerCells(labels []string, cellW int) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(fmt.Sprintf("%*s", cellW, truncate(l, cellW-1)))
	}
	return b.String()
}

func matrixMax(m *model.Matrix) float64 {
	hi := 0.0
	if m == nil {
		return hi
	}
	for _, row := range m.Values {
		for _, v := range row {
			if v != nil {
				hi = math.Max(hi, *v)
			}
		}
	}
	return hi
}

// renderBoxes draws one whisker line per series scaled to the global range.
func renderBoxes(series []model.Series, width, height int) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		if s.Box != nil && s.Box.N > 0 {
			lo, hi = math.Min(lo, s.Box.Min), math.Max(hi, s.Box.Max)
		}
	}
	if math.IsInf(lo, 0) {
		return helpStyle.Render("No data for this selection")
	}
	if hi == lo {
		hi = lo + 1
	}

	labelW := 14
	statsW := 30
	plotW := max(width-labelW-statsW-2, 10)
	pos := func(v float64) int {
		return int((v - lo) / (hi - lo) * float64(plotW-1))
	}

	lines := make([]string, 0, len(series))
	for i, s := range series {
		if i >= height || s.Box == nil || s.Box.N == 0 {
			continue
		}
		b := s.Box
		row := []rune(strings.Repeat(" ", plotW))
		for c := pos(b.Min); c <= pos(b.Max); c++ {
			row[c] = '─'
		}
		for c := pos(b.Q1); c <= pos(b.Q3); c++ {
			row[c] = '█'
		}
		row[pos(b.Min)] = '├'
		row[pos(b.Max)] = '┤'
		row[pos(b.Median)] = '┃'
		stats := fmt.Sprintf("n=%d med=%s", b.N, strconv.FormatFloat(b.Median, 'g', 4, 64))
		lines = append(lines, lipgloss.NewStyle().Foreground(seriesColor(i)).Render(
			fmt.Sprintf("%-*s %s %s", labelW, truncate(s.Name, labelW), string(row), truncate(stats, statsW))))
	}
	axis := fmt.Sprintf("%*s %-*s%s", labelW, "", plotW/2, strconv.FormatFloat(lo, 'g', 4, 64), strconv.FormatFloat(hi, 'g', 4, 64))
	lines = append(lines, helpStyle.Render(axis))
	return strings.Join(lines, "\n")
}

// joinWithLegend places the legend to the right of a chart block.
func joinWithLegend(chart string, legend []string, chartW, height int) string {
	chartLines := strings.Split(chart, "\n")
	for len(chartLines) < height {
		chartLines = append(chartLines, "")
	}
	out := make([]string, 0, height)
	for i := 0; i < height && i < len(chartLines); i++ {
		line := chartLines[i]
		if pad := chartW - lipgloss.Width(line); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		if i < len(legend) {
			line += "  " + legend[i]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
