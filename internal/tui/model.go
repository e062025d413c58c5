package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/flowdash/internal/model"
)

// ViewClient is the service contract used by the terminal dashboard.
type ViewClient interface {
	DatasetInfo() (*model.DatasetInfo, error)
	ComputeView(ctx context.Context, sel model.Selection) (*model.View, error)
	LoadHistory(limit int) ([]model.LoadRecord, error)
}

// FilterState holds the filter controls: protocol, source IP and the
// duration range editor.
type FilterState struct {
	sel         model.Selection
	protocolIdx int // -1 = all protocols
	ipIdx       int // -1 = no IP

	rangeInput  textinput.Model
	rangeActive bool
}

// FetchState tracks the in-flight view request.
type FetchState struct {
	fetchInFlight bool
	pending       bool // selection changed while a fetch was running
	lastFetch     time.Duration
	lastError     string
	lastErrorAt   time.Time
}

// DashboardModel is the main dashboard page.
type DashboardModel struct {
	FilterState
	FetchState

	client  ViewClient
	keys    KeyMap
	timeout time.Duration

	info     *model.DatasetInfo
	view     *model.View
	chartIdx int

	refreshOnStart bool
}

type infoLoadedMsg struct {
	info *model.DatasetInfo
	err  error
}

type viewLoadedMsg struct {
	view    *model.View
	sel     model.Selection
	elapsed time.Duration
	err     error
}

// NewDashboardModel creates the dashboard page over client.
func NewDashboardModel(client ViewClient, timeout time.Duration, refreshOnStart bool) *DashboardModel {
	rangeInput := textinput.New()
	rangeInput.Placeholder = "min max (microseconds)"
	rangeInput.CharLimit = 64

	if timeout <= 0 {
		timeout = model.DefaultQueryTimeout
	}

	return &DashboardModel{
		FilterState: FilterState{
			protocolIdx: -1,
			ipIdx:       -1,
			rangeInput:  rangeInput,
		},
		client:         client,
		keys:           DefaultKeyMap(),
		timeout:        timeout,
		refreshOnStart: refreshOnStart,
	}
}

func (m *DashboardModel) ID() string { return PageDashboard }

// Init loads the dataset description once; later visits keep the current view.
func (m *DashboardModel) Init() tea.Cmd {
	if m.info != nil {
		return nil
	}
	return m.fetchInfoCmd()
}

// Selection returns the current filter selection.
func (m *DashboardModel) Selection() model.Selection { return m.sel }

// CurrentChart returns the chart on screen, if a view is loaded.
func (m *DashboardModel) CurrentChart() (model.ChartSpec, bool) {
	if m.view == nil || len(m.view.Charts) == 0 {
		return model.ChartSpec{}, false
	}
	return m.view.Charts[m.chartIdx%len(m.view.Charts)], true
}

func (m *DashboardModel) fetchInfoCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		if client == nil {
			return infoLoadedMsg{err: errNoClient}
		}
		info, err := client.DatasetInfo()
		return infoLoadedMsg{info: info, err: err}
	}
}

// requestView starts a view fetch for the current selection, or marks one
// pending when a fetch is already running.
func (m *DashboardModel) requestView() tea.Cmd {
	if m.fetchInFlight {
		m.pending = true
		return nil
	}
	m.fetchInFlight = true
	m.pending = false

	client := m.client
	sel := m.sel
	timeout := m.timeout
	fetch := func() tea.Msg {
		if client == nil {
			return viewLoadedMsg{sel: sel, err: errNoClient}
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		view, err := client.ComputeView(ctx, sel)
		return viewLoadedMsg{view: view, sel: sel, elapsed: time.Since(start), err: err}
	}
	return tea.Batch(fetch, spinnerTick())
}

func (m *DashboardModel) setError(err error) {
	m.lastError = err.Error()
	m.lastErrorAt = time.Now()
}

// defaultSelection covers the full duration range with no protocol or IP.
func (m *DashboardModel) defaultSelection() model.Selection {
	if m.info == nil {
		return model.Selection{}
	}
	return model.Selection{}.WithRange(m.info.Duration.Min, m.info.Duration.Max)
}
