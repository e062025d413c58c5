package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages for the dashboard page.
func (m *DashboardModel) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case infoLoadedMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return nil, nil
		}
		m.info = msg.info
		m.protocolIdx, m.ipIdx = -1, -1
		m.sel = m.defaultSelection()
		if !m.refreshOnStart {
			return nil, nil
		}
		return m.requestView(), nil

	case viewLoadedMsg:
		m.fetchInFlight = false
		if msg.err != nil {
			m.setError(msg.err)
		} else if msg.sel == m.sel {
			m.view = msg.view
			m.lastFetch = msg.elapsed
			m.lastError = ""
		}
		if m.pending || msg.sel != m.sel {
			return m.requestView(), nil
		}
		return nil, nil

	case SpinnerTickMsg:
		return m.handleSpinnerTick(), nil
	}
	return nil, nil
}

func (m *DashboardModel) handleKeyPress(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	if m.rangeActive {
		return m.handleRangeInput(msg), nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit, nil

	case key.Matches(msg, m.keys.SwitchPage):
		return nil, &PageNav{PageID: PageDataset}

	case key.Matches(msg, m.keys.NextProtocol):
		if m.info == nil || len(m.info.Protocols) == 0 {
			return nil, nil
		}
		m.protocolIdx = (m.protocolIdx + 1) % len(m.info.Protocols)
		m.sel.Protocol = m.info.Protocols[m.protocolIdx]
		return m.requestView(), nil

	case key.Matches(msg, m.keys.ClearProtocol):
		if m.sel.Protocol == "" {
			return nil, nil
		}
		m.protocolIdx = -1
		m.sel.Protocol = ""
		return m.requestView(), nil

	case key.Matches(msg, m.keys.NextIP):
		if m.info == nil || len(m.info.MaliciousIPs) == 0 {
			return nil, nil
		}
		m.ipIdx = (m.ipIdx + 1) % len(m.info.MaliciousIPs)
		m.sel.SourceIP = m.info.MaliciousIPs[m.ipIdx]
		return m.requestView(), nil

	case key.Matches(msg, m.keys.ClearIP):
		if m.sel.SourceIP == "" {
			return nil, nil
		}
		m.ipIdx = -1
		m.sel.SourceIP = ""
		return m.requestView(), nil

	case key.Matches(msg, m.keys.EditRange):
		m.rangeActive = true
		m.rangeInput.SetValue(formatRange(m.sel.DurationMin, m.sel.DurationMax))
		m.rangeInput.CursorEnd()
		return m.rangeInput.Focus(), nil

	case key.Matches(msg, m.keys.Reset):
		m.protocolIdx, m.ipIdx = -1, -1
		m.sel = m.defaultSelection()
		return m.requestView(), nil

	case key.Matches(msg, m.keys.NextChart):
		m.chartIdx = (m.chartIdx + 1) % chartCount(m)
		return nil, nil

	case key.Matches(msg, m.keys.PrevChart):
		n := chartCount(m)
		m.chartIdx = (m.chartIdx - 1 + n) % n
		return nil, nil
	}
	return nil, nil
}

func chartCount(m *DashboardModel) int {
	if m.view == nil || len(m.view.Charts) == 0 {
		return 1
	}
	return len(m.view.Charts)
}

func (m *DashboardModel) handleRangeInput(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.rangeActive = false
		m.rangeInput.Blur()
		return nil

	case key.Matches(msg, m.keys.Enter):
		lo, hi, err := parseRange(m.rangeInput.Value())
		if err != nil {
			m.setError(err)
			return nil
		}
		m.rangeActive = false
		m.rangeInput.Blur()
		m.sel = m.sel.WithRange(lo, hi)
		return m.requestView()
	}

	var cmd tea.Cmd
	m.rangeInput, cmd = m.rangeInput.Update(msg)
	return cmd
}

func formatRange(lo, hi float64) string {
	return strconv.FormatFloat(lo, 'f', -1, 64) + " " + strconv.FormatFloat(hi, 'f', -1, 64)
}

// parseRange reads "min max" or "min-max" duration bounds.
func parseRange(s string) (float64, float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	if len(fields) == 1 && strings.Count(fields[0], "-") == 1 && !strings.HasPrefix(fields[0], "-") {
		fields = strings.Split(fields[0], "-")
	}
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("range %q: want two numbers", s)
	}
	lo, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("range min: %w", err)
	}
	hi, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("range max: %w", err)
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("range min %v exceeds max %v", lo, hi)
	}
	return lo, hi, nil
}
