package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	tabStyle       = lipgloss.NewStyle().Foreground(ColorGray).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Foreground(ColorWhite).Background(ColorBlue).Bold(true).Padding(0, 1)
)

// App is the root Bubble Tea model. It owns the page set, draws the tab strip
// and forwards messages to the visible page.
type App struct {
	pages  map[string]Page
	order  []string
	active string
	width  int
	height int
}

// NewApp returns an App showing pages in the given order, starting with the first.
func NewApp(pages ...Page) *App {
	a := &App{pages: make(map[string]Page, len(pages))}
	for _, p := range pages {
		if _, dup := a.pages[p.ID()]; dup {
			continue
		}
		a.pages[p.ID()] = p
		a.order = append(a.order, p.ID())
	}
	if len(a.order) > 0 {
		a.active = a.order[0]
	}
	return a
}

func (a *App) Init() tea.Cmd {
	if p := a.current(); p != nil {
		return p.Init()
	}
	return nil
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return a, tea.Quit
		}
	}

	p := a.current()
	if p == nil {
		return a, nil
	}
	cmd, nav := p.Update(msg)
	if nav == nil || nav.PageID == a.active {
		return a, cmd
	}
	next, ok := a.pages[nav.PageID]
	if !ok {
		return a, cmd
	}
	a.active = nav.PageID
	return a, tea.Batch(cmd, next.Init())
}

func (a *App) View() string {
	if a.width <= 0 || a.height <= 0 {
		return "Initializing dashboard..."
	}
	p := a.current()
	if p == nil {
		return "No active page"
	}
	if len(a.order) < 2 {
		return p.View(a.width, a.height)
	}
	return lipgloss.JoinVertical(lipgloss.Left, a.tabs(), p.View(a.width, a.height-1))
}

func (a *App) tabs() string {
	parts := make([]string, 0, len(a.order))
	for _, id := range a.order {
		style := tabStyle
		if id == a.active {
			style = activeTabStyle
		}
		parts = append(parts, style.Render(strings.ToUpper(id[:1])+id[1:]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a *App) current() Page {
	return a.pages[a.active]
}

// ActivePage returns the id of the page currently shown.
func (a *App) ActivePage() string { return a.active }
