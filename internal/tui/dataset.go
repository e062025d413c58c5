package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/flowdash/internal/model"
)

// DatasetPage shows the loaded dataset and the load history.
type DatasetPage struct {
	client  ViewClient
	keys    KeyMap
	info    *model.DatasetInfo
	history []model.LoadRecord
	err     error
}

type datasetLoadedMsg struct {
	info    *model.DatasetInfo
	history []model.LoadRecord
	err     error
}

// NewDatasetPage creates the dataset page over client.
func NewDatasetPage(client ViewClient) *DatasetPage {
	return &DatasetPage{client: client, keys: DefaultKeyMap()}
}

func (p *DatasetPage) ID() string { return PageDataset }

// Init refreshes the page each time it is shown.
func (p *DatasetPage) Init() tea.Cmd {
	client := p.client
	return func() tea.Msg {
		if client == nil {
			return datasetLoadedMsg{err: errNoClient}
		}
		info, err := client.DatasetInfo()
		if err != nil {
			return datasetLoadedMsg{err: err}
		}
		history, err := client.LoadHistory(10)
		return datasetLoadedMsg{info: info, history: history, err: err}
	}
}

func (p *DatasetPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case datasetLoadedMsg:
		p.err = msg.err
		if msg.info != nil {
			p.info = msg.info
		}
		p.history = msg.history
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, p.keys.Quit):
			return tea.Quit, nil
		case key.Matches(msg, p.keys.SwitchPage), key.Matches(msg, p.keys.Escape):
			return nil, &PageNav{PageID: PageDashboard}
		}
	}
	return nil, nil
}

func (p *DatasetPage) View(width, height int) string {
	var sections []string
	sections = append(sections, chartTitleStyle.Render("Dataset"))

	if p.err != nil {
		sections = append(sections, errorStyle.Render(p.err.Error()))
	}
	if p.info != nil {
		sections = append(sections, renderDatasetInfo(p.info))
	}

	sections = append(sections, "", chartTitleStyle.Render("Load history"))
	if len(p.history) == 0 {
		sections = append(sections, helpStyle.Render("No loads recorded"))
	}
	for _, l := range p.history {
		sampled := ""
		if l.Sampled {
			sampled = " (sampled)"
		}
		sections = append(sections, fmt.Sprintf("%s  %-40s files=%d read=%d kept=%d%s warnings=%d %s",
			l.LoadedAt.Local().Format(time.DateTime), truncate(l.Source, 40), l.Files, l.RowsRead,
			l.RowsKept, sampled, l.ParseWarnings, (time.Duration(l.DurationMillis) * time.Millisecond).String()))
	}

	sections = append(sections, "", helpStyle.Render("tab/esc back · q quit"))
	body := lipgloss.JoinVertical(lipgloss.Left, sections...)
	return sectionStyle.Width(max(width-2, 10)).MaxHeight(height).Render(body)
}

func renderDatasetInfo(info *model.DatasetInfo) string {
	lines := []string{
		fmt.Sprintf("Rows:            %d", info.Rows),
		fmt.Sprintf("Protocols:       %s", strings.Join(info.Protocols, ", ")),
		fmt.Sprintf("Malicious IPs:   %d", len(info.MaliciousIPs)),
		fmt.Sprintf("Flow duration:   %s .. %s", formatNumber(info.Duration.Min), formatNumber(info.Duration.Max)),
		fmt.Sprintf("Numeric columns: %d", len(info.NumericColumns)),
	}
	for _, lc := range info.LabelCounts {
		lines = append(lines, fmt.Sprintf("  %-28s %d", lc.Label, lc.Count))
	}
	return strings.Join(lines, "\n")
}

func formatNumber(v float64) string {
	return fmt.Sprintf("%.0f", v)
}
