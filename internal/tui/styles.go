package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/sadcompare/internal/model"
)

var (
	ColorNavy  = lipgloss.Color("17")
	ColorBlue  = lipgloss.Color("39")
	ColorGray  = lipgloss.Color("241")
	ColorWhite = lipgloss.Color("255")
	ColorRed   = lipgloss.Color("196")

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorNavy).
			Padding(0, 1)
	activeSectionStyle = sectionStyle.BorderForeground(ColorBlue)

	chartTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorWhite)
	helpStyle       = lipgloss.NewStyle().Foreground(ColorGray)
	errorStyle      = lipgloss.NewStyle().Foreground(ColorRed)
	cursorStyle     = lipgloss.NewStyle().Bold(true).Foreground(ColorBlue)

	// Same palette as the terminal summary so a model keeps its color.
	modelColors = [model.Count]lipgloss.Color{"39", "208", "42", "196", "135"}
)

func modelStyle(m model.Model) lipgloss.Style {
	c := lipgloss.Color("250")
	if m.Valid() {
		c = modelColors[m]
	}
	return lipgloss.NewStyle().Foreground(c).Background(c)
}

func modelText(m model.Model) lipgloss.Style {
	c := lipgloss.Color("250")
	if m.Valid() {
		c = modelColors[m]
	}
	return lipgloss.NewStyle().Foreground(c)
}
