package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

var loadingStyle = lipgloss.NewStyle().Foreground(ColorGray).Italic(true)

func newSpinner() spinner.Model {
	return spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(ColorGray)),
	)
}

// renderLoading centers the spinner and a "Loading" caption in the panel.
func renderLoading(spin spinner.Model, width, height int) string {
	text := spin.View() + loadingStyle.Render(" Loading...")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, text)
}
