package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorBlue   = lipgloss.Color("39")
	ColorNavy   = lipgloss.Color("17")
	ColorWhite  = lipgloss.Color("15")
	ColorGray   = lipgloss.Color("245")
	ColorGreen  = lipgloss.Color("42")
	ColorRed    = lipgloss.Color("196")
	ColorYellow = lipgloss.Color("220")
)

// seriesPalette colors chart series in order of appearance.
var seriesPalette = []lipgloss.Color{"39", "208", "42", "201", "220", "141", "196", "51", "250", "166"}

func seriesColor(i int) lipgloss.Color {
	return seriesPalette[i%len(seriesPalette)]
}

var (
	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorGray).
		Padding(0, 1)

	activeSectionStyle = sectionStyle.
			BorderForeground(ColorBlue)

	chartTitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorWhite)

	helpStyle = lipgloss.NewStyle().
		Foreground(ColorGray).
		Italic(true)

	chartAxisStyle = lipgloss.NewStyle().
		Foreground(ColorGray)

	statusStyle = lipgloss.NewStyle().
		Background(ColorNavy).
		Foreground(ColorWhite)

	errorStyle = lipgloss.NewStyle().
		Foreground(ColorRed).
		Bold(true)

	controlLabelStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	controlValueStyle = lipgloss.NewStyle().
			Foreground(ColorBlue).
			Bold(true)
)
