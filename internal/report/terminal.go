package report

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/tinytelemetry/sadcompare/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	terminalColors = [model.Count]lipgloss.Color{"39", "208", "42", "196", "135"}
)

func modelBlock(m model.Model) lipgloss.Style {
	c := lipgloss.Color("250")
	if m.Valid() {
		c = terminalColors[m]
	}
	return lipgloss.NewStyle().Foreground(c).Background(c)
}

// TerminalSummary renders a bar chart of wins per model with a legend
// listing counts and shares.
func TerminalSummary(title string, counts map[model.Model]int64, width int) string {
	if width < 30 {
		width = 30
	}
	var total int64
	for _, n := range counts {
		total += n
	}

	header := titleStyle.Render(title)
	if total == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, mutedStyle.Render("No wins recorded"))
	}

	legendWidth := 36
	chartWidth := width - legendWidth - 2
	if chartWidth < model.Count*4 {
		chartWidth = model.Count * 4
	}

	bc := barchart.New(chartWidth, 10,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(max(1, chartWidth/model.Count-1)),
	)
	for _, m := range model.Models() {
		bc.Push(barchart.BarData{
			Label: m.Abbrev(),
			Values: []barchart.BarValue{
				{Name: m.Name(), Value: float64(counts[m]), Style: modelBlock(m)},
			},
		})
	}
	bc.Draw()

	var legend strings.Builder
	for _, m := range model.Models() {
		n := counts[m]
		share := float64(n) / float64(total) * 100
		fmt.Fprintf(&legend, "%s %-3s %-22s %8s %5.1f%%\n",
			modelBlock(m).Render("  "), m.Abbrev(), m.Name(), humanize.Comma(n), share)
	}
	fmt.Fprintf(&legend, "%s", mutedStyle.Render(fmt.Sprintf("%s sites", humanize.Comma(total))))

	body := lipgloss.JoinHorizontal(lipgloss.Top, bc.View(), "  ", legend.String())
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}
