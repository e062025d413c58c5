package dashboard

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/tinytelemetry/flowdash/internal/model"
)

// Prompts shown in place of the per-IP charts when no source IP is selected.
const (
	TimelinePrompt = "Select a malicious IP to view its timeline"
	HeatmapPrompt  = "Select a malicious IP to view the hourly heatmap"
)

// orderedGroups collects items under keys in order of first appearance.
type orderedGroups[T any] struct {
	keys   []string
	groups map[string][]T
}

func newOrderedGroups[T any]() *orderedGroups[T] {
	return &orderedGroups[T]{groups: make(map[string][]T)}
}

func (g *orderedGroups[T]) add(key string, v T) {
	if _, ok := g.groups[key]; !ok {
		g.keys = append(g.keys, key)
	}
	g.groups[key] = append(g.groups[key], v)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func scatterChart(rows []model.FlowRecord) model.ChartSpec {
	groups := newOrderedGroups[model.Point]()
	for _, r := range rows {
		if !r.HasPackets() {
			continue
		}
		groups.add(r.ProtocolName, model.Point{
			X: r.FlowDuration,
			Y: r.TotalFwdPackets,
			Hover: map[string]string{
				model.ColLabel:         r.Label,
				model.ColSourceIP:      r.SourceIP,
				model.ColDestinationIP: r.DestinationIP,
			},
		})
	}
	spec := model.ChartSpec{
		ID:    model.ChartScatter,
		Kind:  model.KindScatter,
		Title: "Flow Duration vs Total Fwd Packets",
		Encoding: model.Encoding{
			X:     model.ColFlowDuration,
			Y:     model.ColTotalFwdPackets,
			Color: model.ColProtocolName,
			Hover: []string{model.ColLabel, model.ColSourceIP, model.ColDestinationIP},
		},
		Series: []model.Series{},
	}
	for _, k := range groups.keys {
		spec.Series = append(spec.Series, model.Series{Name: k, Points: groups.groups[k]})
	}
	return spec
}

type categoryCount struct {
	name  string
	count int
}

// countBy counts rows per key and orders the result by count descending,
// then by name.
func countBy(rows []model.FlowRecord, key func(model.FlowRecord) string) []categoryCount {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[key(r)]++
	}
	out := make([]categoryCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, categoryCount{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}

func protocolBarChart(rows []model.FlowRecord) model.ChartSpec {
	series := model.Series{Name: "Count", Points: []model.Point{}}
	for _, c := range countBy(rows, func(r model.FlowRecord) string { return r.ProtocolName }) {
		series.Points = append(series.Points, model.Point{Category: c.name, Y: float64(c.count)})
	}
	return model.ChartSpec{
		ID:       model.ChartProtocolBar,
		Kind:     model.KindBar,
		Title:    "Filtered protocol counts",
		Encoding: model.Encoding{X: "Protocol", Y: "Count"},
		Series:   []model.Series{series},
	}
}

// hourCounts counts rows per hour of day. Rows without a timestamp are skipped.
func hourCounts(rows []model.FlowRecord) map[int]int {
	counts := make(map[int]int)
	for _, r := range rows {
		if h, ok := r.Hour(); ok {
			counts[h]++
		}
	}
	return counts
}

// hourPoints turns hour counts into points ordered by hour. With zeroFill
// every hour 0..23 is present.
func hourPoints(counts map[int]int, zeroFill bool) []model.Point {
	points := []model.Point{}
	if zeroFill {
		for h := 0; h < 24; h++ {
			points = append(points, model.Point{X: float64(h), Y: float64(counts[h])})
		}
		return points
	}
	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	for _, h := range hours {
		points = append(points, model.Point{X: float64(h), Y: float64(counts[h])})
	}
	return points
}

func hourlyLineChart(rows []model.FlowRecord, zeroFill bool) model.ChartSpec {
	return model.ChartSpec{
		ID:       model.ChartTimeSeries,
		Kind:     model.KindLine,
		Title:    "Connections per hour",
		Encoding: model.Encoding{X: model.ColHour, Y: "Counts"},
		Series:   []model.Series{{Name: "Counts", Points: hourPoints(hourCounts(rows), zeroFill)}},
	}
}

func labelPieChart(counts []model.LabelCount) model.ChartSpec {
	series := model.Series{Name: "Count", Points: []model.Point{}}
	for _, c := range counts {
		series.Points = append(series.Points, model.Point{Category: c.Label, Y: float64(c.Count)})
	}
	return model.ChartSpec{
		ID:       model.ChartLabelPie,
		Kind:     model.KindPie,
		Title:    "Label distribution",
		Encoding: model.Encoding{X: model.ColLabel, Y: "Count"},
		Series:   []model.Series{series},
	}
}

func rowsForIP(rows []model.FlowRecord, ip string) []model.FlowRecord {
	var out []model.FlowRecord
	for _, r := range rows {
		if r.SourceIP == ip {
			out = append(out, r)
		}
	}
	return out
}

func ipTimelineChart(rows []model.FlowRecord, ip string) model.ChartSpec {
	spec := model.ChartSpec{
		ID:   model.ChartIPTimeline,
		Kind: model.KindScatter,
		Encoding: model.Encoding{
			X:     model.ColTimestamp,
			Y:     model.ColFlowDuration,
			Color: model.ColLabel,
			Hover: []string{model.ColProtocolName, model.ColTotalFwdPackets, model.ColDestinationIP},
		},
		Series: []model.Series{},
	}
	if ip == "" {
		spec.Title = TimelinePrompt
		spec.Placeholder = TimelinePrompt
		return spec
	}
	spec.Title = fmt.Sprintf("Event timeline for IP: %s", ip)

	ipRows := rowsForIP(rows, ip)
	sort.SliceStable(ipRows, func(i, j int) bool {
		a, b := ipRows[i].Timestamp, ipRows[j].Timestamp
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.Before(*b)
	})

	groups := newOrderedGroups[model.Point]()
	for _, r := range ipRows {
		packets := ""
		if r.HasPackets() {
			packets = formatNumber(r.TotalFwdPackets)
		}
		groups.add(r.Label, model.Point{
			Time: r.Timestamp,
			Y:    r.FlowDuration,
			Hover: map[string]string{
				model.ColProtocolName:    r.ProtocolName,
				model.ColTotalFwdPackets: packets,
				model.ColDestinationIP:   r.DestinationIP,
			},
		})
	}
	for _, k := range groups.keys {
		spec.Series = append(spec.Series, model.Series{Name: k, Points: groups.groups[k]})
	}
	return spec
}

// hourLabelCounts counts rows per (hour, label). Rows without a timestamp are skipped.
func hourLabelCounts(rows []model.FlowRecord) map[int]map[string]int {
	counts := make(map[int]map[string]int)
	for _, r := range rows {
		h, ok := r.Hour()
		if !ok {
			continue
		}
		if counts[h] == nil {
			counts[h] = make(map[string]int)
		}
		counts[h][r.Label]++
	}
	return counts
}

func sortedHours(counts map[int]map[string]int, zeroFill bool) []int {
	if zeroFill {
		hours := make([]int, 24)
		for h := range hours {
			hours[h] = h
		}
		return hours
	}
	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

func hourlyHeatmap(rows []model.FlowRecord, ip string, zeroFill bool) model.ChartSpec {
	spec := model.ChartSpec{
		ID:       model.ChartHourlyHeatmap,
		Kind:     model.KindHeatmap,
		Encoding: model.Encoding{X: model.ColHour, Y: model.ColLabel, Z: "Counts"},
		Series:   []model.Series{},
	}
	if ip == "" {
		spec.Title = HeatmapPrompt
		spec.Placeholder = HeatmapPrompt
		return spec
	}
	spec.Title = fmt.Sprintf("Hourly connection heatmap for IP: %s", ip)

	counts := hourLabelCounts(rowsForIP(rows, ip))
	labelSet := make(map[string]bool)
	for _, byLabel := range counts {
		for l := range byLabel {
			labelSet[l] = true
		}
	}
	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	hours := []int{}
	if len(labels) > 0 {
		hours = sortedHours(counts, zeroFill)
	}
	m := &model.Matrix{X: []string{}, Y: labels, Values: [][]*float64{}}
	for _, h := range hours {
		m.X = append(m.X, strconv.Itoa(h))
	}
	for _, l := range labels {
		row := make([]*float64, len(hours))
		for j, h := range hours {
			v := float64(counts[h][l])
			row[j] = &v
		}
		m.Values = append(m.Values, row)
	}
	spec.Matrix = m
	return spec
}

func durationBoxChart(rows []model.FlowRecord) model.ChartSpec {
	groups := newOrderedGroups[float64]()
	points := newOrderedGroups[model.Point]()
	for _, r := range rows {
		groups.add(r.Label, r.FlowDuration)
		points.add(r.Label, model.Point{Category: r.Label, Y: r.FlowDuration})
	}
	spec := model.ChartSpec{
		ID:       model.ChartDurationBox,
		Kind:     model.KindBox,
		Title:    "Flow duration distribution by label",
		Encoding: model.Encoding{X: model.ColLabel, Y: model.ColFlowDuration},
		Series:   []model.Series{},
	}
	for _, k := range groups.keys {
		spec.Series = append(spec.Series, model.Series{
			Name:   k,
			Points: points.groups[k],
			Box:    boxStats(groups.groups[k]),
		})
	}
	return spec
}

func protocolLabelHistogram(rows []model.FlowRecord) model.ChartSpec {
	var protocols []string
	seenProto := make(map[string]bool)
	labels := newOrderedGroups[string]()
	for _, r := range rows {
		if !seenProto[r.ProtocolName] {
			seenProto[r.ProtocolName] = true
			protocols = append(protocols, r.ProtocolName)
		}
		labels.add(r.Label, r.ProtocolName)
	}

	spec := model.ChartSpec{
		ID:       model.ChartProtocolHist,
		Kind:     model.KindHistogram,
		Title:    "Protocol counts by label",
		Encoding: model.Encoding{X: model.ColProtocolName, Y: "count", Color: model.ColLabel},
		Barmode:  "stack",
		Series:   []model.Series{},
	}
	for _, l := range labels.keys {
		counts := make(map[string]int)
		for _, p := range labels.groups[l] {
			counts[p]++
		}
		s := model.Series{Name: l}
		for _, p := range protocols {
			if n := counts[p]; n > 0 {
				s.Points = append(s.Points, model.Point{Category: p, Y: float64(n)})
			}
		}
		spec.Series = append(spec.Series, s)
	}
	return spec
}

func hourByLabelChart(rows []model.FlowRecord, zeroFill bool) model.ChartSpec {
	counts := hourLabelCounts(rows)

	// Series follow the order in which labels first appear when scanning
	// hours ascending and labels alphabetically within an hour.
	var labels []string
	seen := make(map[string]bool)
	for _, h := range sortedHours(counts, false) {
		names := make([]string, 0, len(counts[h]))
		for l := range counts[h] {
			names = append(names, l)
		}
		sort.Strings(names)
		for _, l := range names {
			if !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}

	spec := model.ChartSpec{
		ID:       model.ChartHourByLabel,
		Kind:     model.KindLine,
		Title:    "Connections per hour and label",
		Encoding: model.Encoding{X: model.ColHour, Y: "Counts", Color: model.ColLabel},
		Series:   []model.Series{},
	}
	for _, l := range labels {
		perHour := make(map[int]int)
		for h, byLabel := range counts {
			if n := byLabel[l]; n > 0 {
				perHour[h] = n
			}
		}
		spec.Series = append(spec.Series, model.Series{Name: l, Points: hourPoints(perHour, zeroFill)})
	}
	return spec
}

func correlationChart(rows []model.FlowRecord, numeric []string) model.ChartSpec {
	columns := append(append([]string(nil), numeric...), model.ColHour)
	values := make([][]float64, len(columns))
	for i := range numeric {
		col := make([]float64, len(rows))
		for j, r := range rows {
			if i < len(r.Numeric) {
				col[j] = r.Numeric[i]
			} else {
				col[j] = nan
			}
		}
		values[i] = col
	}
	hours := make([]float64, len(rows))
	for j, r := range rows {
		if h, ok := r.Hour(); ok {
			hours[j] = float64(h)
		} else {
			hours[j] = nan
		}
	}
	values[len(columns)-1] = hours

	return model.ChartSpec{
		ID:       model.ChartCorrelation,
		Kind:     model.KindMatrix,
		Title:    "Correlation matrix of numeric variables",
		Encoding: model.Encoding{X: "variable", Y: "variable", Z: "correlation"},
		Series:   []model.Series{},
		Matrix:   correlationMatrix(columns, values),
	}
}
