package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/tinytelemetry/sadcompare/internal/model"
	"github.com/tinytelemetry/sadcompare/internal/report"
)

const (
	sidebarWidth   = 22
	sparklineBins  = 24
	minPanelWidth  = 40
	minPanelHeight = 12
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

func (b *Browser) View() string {
	width, height := b.width, b.height
	if width == 0 {
		width, height = 100, 30
	}

	footer := b.help.View(b.keys)
	bodyHeight := max(minPanelHeight, height-lipgloss.Height(footer)-1)
	mainWidth := max(minPanelWidth, width-sidebarWidth-4)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		b.renderSidebar(bodyHeight),
		b.renderMain(mainWidth, bodyHeight),
	)
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

func (b *Browser) renderSidebar(height int) string {
	lines := []string{chartTitleStyle.Render("Datasets"), ""}
	items := append([]string{"All"}, b.datasets...)
	for i, name := range items {
		if i == b.cursor {
			lines = append(lines, cursorStyle.Render("▸ "+name))
		} else {
			lines = append(lines, "  "+name)
		}
	}
	if len(b.datasets) == 0 {
		lines = append(lines, "", helpStyle.Render("no stored results"))
	}
	return sectionStyle.Width(sidebarWidth - 2).Height(height - 2).Render(strings.Join(lines, "\n"))
}

func (b *Browser) renderTabs() string {
	tabs := make([]string, 0, viewCount)
	for v := View(0); v < viewCount; v++ {
		if v == b.view {
			tabs = append(tabs, cursorStyle.Render("["+v.String()+"]"))
		} else {
			tabs = append(tabs, helpStyle.Render(" "+v.String()+" "))
		}
	}
	return strings.Join(tabs, " ")
}

func (b *Browser) renderMain(width, height int) string {
	innerWidth := width - 4
	innerHeight := height - 2

	scope := "all datasets"
	if d := b.Dataset(); d != "" {
		scope = d
	}
	header := lipgloss.JoinVertical(lipgloss.Left,
		b.renderTabs(),
		chartTitleStyle.Render(fmt.Sprintf("%s, %s", b.view, scope)),
		"",
	)
	contentHeight := max(1, innerHeight-lipgloss.Height(header))

	var content string
	switch {
	case b.err != nil:
		content = errorStyle.Render("Error: " + b.err.Error())
	case b.loading:
		content = renderLoading(b.spin, innerWidth, contentHeight)
	case b.view == ViewWins:
		content = renderWins(b.data.counts, innerWidth, contentHeight)
	default:
		lo, hi := 0.0, 1.0
		if b.view == ViewLikelihoods {
			lo, hi = valueRange(b.data.values)
		}
		content = renderValues(b.data.values, lo, hi)
	}

	return activeSectionStyle.Width(width - 2).Height(innerHeight).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, content))
}

// renderWins draws one bar per model with a legend of counts and shares.
func renderWins(counts map[model.Model]int64, width, height int) string {
	var total int64
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return helpStyle.Render("No wins recorded")
	}

	legendWidth := 42
	chartWidth := max(model.Count*4, width-legendWidth-2)
	chartHeight := max(4, min(height, 14))

	bc := barchart.New(chartWidth, chartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(max(1, chartWidth/model.Count-1)),
	)
	for _, m := range model.Models() {
		bc.Push(barchart.BarData{
			Label: m.Abbrev(),
			Values: []barchart.BarValue{
				{Name: m.Name(), Value: float64(counts[m]), Style: modelStyle(m)},
			},
		})
	}
	bc.Draw()

	var legend strings.Builder
	for _, m := range model.Models() {
		n := counts[m]
		fmt.Fprintf(&legend, "%s %-22s %7s %5.1f%%\n",
			modelStyle(m).Render("  "), m.Name(), humanize.Comma(n), float64(n)/float64(total)*100)
	}
	legend.WriteString(helpStyle.Render(humanize.Comma(total) + " sites"))

	return lipgloss.JoinHorizontal(lipgloss.Top, bc.View(), "  ", legend.String())
}

// renderValues lists per-model value statistics with a histogram sparkline.
func renderValues(values map[model.Model][]float64, lo, hi float64) string {
	lines := []string{helpStyle.Render(fmt.Sprintf("%-6s %8s %9s %9s  range %.3g..%.3g", "model", "n", "mean", "median", lo, hi))}
	for _, m := range model.Models() {
		vals := values[m]
		if len(vals) == 0 {
			lines = append(lines, fmt.Sprintf("%s %8s %9s %9s", modelText(m).Render(fmt.Sprintf("%-6s", m.Abbrev())), "0", "-", "-"))
			continue
		}
		mean, median := meanMedian(vals)
		lines = append(lines, fmt.Sprintf("%s %8s %9.4f %9.4f  %s",
			modelText(m).Render(fmt.Sprintf("%-6s", m.Abbrev())),
			humanize.Comma(int64(len(vals))), mean, median,
			modelText(m).Render(sparkline(report.Histogram(vals, sparklineBins, lo, hi)))))
	}
	return strings.Join(lines, "\n")
}

func meanMedian(vals []float64) (float64, float64) {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return sum / float64(len(sorted)), median
}

func valueRange(values map[model.Model][]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, vals := range values {
		for _, v := range vals {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

// sparkline maps bin counts onto block glyphs scaled to the largest bin.
func sparkline(bins []int) string {
	peak := 0
	for _, n := range bins {
		peak = max(peak, n)
	}
	var sb strings.Builder
	for _, n := range bins {
		if n == 0 || peak == 0 {
			sb.WriteRune(' ')
			continue
		}
		idx := (n*len(sparkLevels) - 1) / peak
		sb.WriteRune(sparkLevels[min(idx, len(sparkLevels)-1)])
	}
	return sb.String()
}
