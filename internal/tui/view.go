package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/flowdash/internal/model"
)

// View renders the dashboard page.
func (m *DashboardModel) View(width, height int) string {
	if height < 16 || width < 60 {
		return "Terminal too small. Resize to at least 60x16."
	}

	controls := m.renderControls(width)
	summary := m.renderSummary(width)
	status := m.renderStatusLine(width)

	chartHeight := height - lipgloss.Height(controls) - lipgloss.Height(summary) - lipgloss.Height(status)
	chart := m.renderChartPanel(width, max(chartHeight, 6))

	return lipgloss.NewStyle().MaxHeight(height).MaxWidth(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, controls, chart, summary, status),
	)
}

func (m *DashboardModel) renderControls(width int) string {
	protocol := m.sel.Protocol
	if protocol == "" {
		protocol = "all"
	}
	ip := m.sel.SourceIP
	if ip == "" {
		ip = "none"
	}

	field := func(label, value string) string {
		return controlLabelStyle.Render(label+": ") + controlValueStyle.Render(value)
	}

	rangeText := field("Duration", formatRange(m.sel.DurationMin, m.sel.DurationMax))
	if m.rangeActive {
		rangeText = controlLabelStyle.Render("Duration: ") + m.rangeInput.View()
	}

	line := strings.Join([]string{
		field("Protocol", protocol),
		rangeText,
		field("Source IP", ip),
	}, "   ")
	return lipgloss.NewStyle().Width(width).Padding(0, 1).Render(line)
}

func (m *DashboardModel) renderChartPanel(width, height int) string {
	innerW := width - 4
	innerH := height - 2

	spec, ok := m.CurrentChart()
	if !ok {
		var body string
		if m.fetchInFlight || (m.info == nil && m.lastError == "") {
			body = renderLoadingPlaceholder(innerW, innerH)
		} else {
			body = lipgloss.Place(innerW, innerH, lipgloss.Center, lipgloss.Center, helpStyle.Render("No view loaded"))
		}
		return sectionStyle.Width(width - 2).Height(innerH).Render(body)
	}

	header := fmt.Sprintf("[%d/%d] %s", m.chartIdx%len(m.view.Charts)+1, len(m.view.Charts), spec.Title)
	if m.fetchInFlight {
		header += "  " + spinnerFrames[time.Now().UnixMilli()/120%int64(len(spinnerFrames))]
	}
	title := chartTitleStyle.Render(truncate(header, innerW))
	body := RenderChart(spec, innerW, innerH-1)

	return activeSectionStyle.Width(width - 2).Height(innerH).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, body),
	)
}

func (m *DashboardModel) renderSummary(width int) string {
	if m.view == nil {
		return ""
	}
	s := m.view.Summary
	if s.Placeholder != "" {
		return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Render(helpStyle.Render(s.Placeholder))
	}
	badges := make([]string, 0, len(s.Badges))
	for _, b := range s.Badges {
		color := ColorRed
		if b.Label == model.BenignLabel {
			color = ColorGreen
		}
		badges = append(badges, lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(color).
			Foreground(color).
			Padding(0, 1).
			Render(fmt.Sprintf("%s: %d", b.Label, b.Count)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, badges...)
}

func (m *DashboardModel) renderStatusLine(width int) string {
	var left string
	switch {
	case m.lastError != "":
		left = errorStyle.Render(" " + truncate(m.lastError, width/2))
	case m.view != nil:
		left = fmt.Sprintf(" %d matched, %d shown, %s", m.view.Matched, m.view.Rows, m.lastFetch.Round(time.Millisecond))
		if len(m.view.Warnings) > 0 {
			left += " | " + m.view.Warnings[0]
		}
	case m.info != nil:
		left = fmt.Sprintf(" %d flows loaded", m.info.Rows)
	default:
		left = " connecting..."
	}

	helps := make([]string, 0, len(m.keys.ShortHelp()))
	for _, b := range m.keys.ShortHelp() {
		helps = append(helps, b.Help().Key+" "+b.Help().Desc)
	}
	right := strings.Join(helps, " · ") + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		right = ""
		gap = max(width-lipgloss.Width(left), 0)
	}
	return statusStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
