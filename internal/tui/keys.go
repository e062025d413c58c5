package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all dashboard key bindings with built-in help text.
type KeyMap struct {
	Quit   key.Binding
	Escape key.Binding
	Enter  key.Binding

	NextProtocol  key.Binding
	ClearProtocol key.Binding
	NextIP        key.Binding
	ClearIP       key.Binding
	EditRange     key.Binding
	Reset         key.Binding

	PrevChart  key.Binding
	NextChart  key.Binding
	SwitchPage key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "apply"),
		),
		NextProtocol: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "next protocol"),
		),
		ClearProtocol: key.NewBinding(
			key.WithKeys("P"),
			key.WithHelp("P", "all protocols"),
		),
		NextIP: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "next malicious IP"),
		),
		ClearIP: key.NewBinding(
			key.WithKeys("I"),
			key.WithHelp("I", "clear IP"),
		),
		EditRange: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "duration range"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset filters"),
		),
		PrevChart: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "prev chart"),
		),
		NextChart: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "next chart"),
		),
		SwitchPage: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "dataset page"),
		),
	}
}

// ShortHelp returns the bindings shown in the status line.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextProtocol, k.NextIP, k.EditRange, k.Reset, k.PrevChart, k.NextChart, k.SwitchPage, k.Quit}
}
