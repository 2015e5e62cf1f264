package report

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/tinytelemetry/sadcompare/internal/model"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Chart sizes in pixels.
const (
	chartWidth  = 1024
	chartHeight = 640
	panelWidth  = 480
	panelHeight = 360
	gridColumns = 3
)

var modelColors = [model.Count]drawing.Color{
	chart.ColorBlue,
	chart.ColorOrange,
	chart.ColorGreen,
	chart.ColorRed,
	drawing.ColorFromHex("9467bd"),
}

// ModelColor returns the line and bar color used for a model.
func ModelColor(m model.Model) drawing.Color {
	if !m.Valid() {
		return chart.ColorAlternateGray
	}
	return modelColors[m]
}

func barStyle(m model.Model) chart.Style {
	c := ModelColor(m)
	return chart.Style{FillColor: c, StrokeColor: c, StrokeWidth: 1}
}

func lineStyle(m model.Model) chart.Style {
	return chart.Style{StrokeColor: ModelColor(m), StrokeWidth: 2}
}

// winsBarChart builds one bar per model, in model order, including models
// without wins.
func winsBarChart(title string, counts map[model.Model]int64, width, height int, short bool) chart.BarChart {
	var maxCount int64
	bars := make([]chart.Value, 0, model.Count)
	for _, m := range model.Models() {
		n := counts[m]
		if n > maxCount {
			maxCount = n
		}
		label := m.Name()
		if short {
			label = m.Abbrev()
		}
		bars = append(bars, chart.Value{Label: label, Value: float64(n), Style: barStyle(m)})
	}
	top := math.Max(1, float64(maxCount)*1.1)

	return chart.BarChart{
		Title:      title,
		Width:      width,
		Height:     height,
		BarWidth:   width / (model.Count * 2),
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: top},
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v) },
		},
		Bars: bars,
	}
}

// RenderWinsChart writes a PNG bar chart of wins per model.
func RenderWinsChart(w io.Writer, title string, counts map[model.Model]int64) error {
	return winsBarChart(title, counts, chartWidth, chartHeight, false).Render(chart.PNG, w)
}

// RenderWinsGrid writes one small bar chart per dataset, laid out left to
// right in rows of three.
func RenderWinsGrid(w io.Writer, datasets []string, counts map[string]map[model.Model]int64) error {
	if len(datasets) == 0 {
		return fmt.Errorf("no datasets to chart")
	}
	rows := (len(datasets) + gridColumns - 1) / gridColumns
	grid := image.NewRGBA(image.Rect(0, 0, panelWidth*gridColumns, panelHeight*rows))
	draw.Draw(grid, grid.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	for i, d := range datasets {
		var buf bytes.Buffer
		if err := winsBarChart(d, counts[d], panelWidth, panelHeight, true).Render(chart.PNG, &buf); err != nil {
			return fmt.Errorf("render %s panel: %w", d, err)
		}
		panel, err := png.Decode(&buf)
		if err != nil {
			return fmt.Errorf("decode %s panel: %w", d, err)
		}
		origin := image.Pt((i%gridColumns)*panelWidth, (i/gridColumns)*panelHeight)
		draw.Draw(grid, panel.Bounds().Add(origin), panel, panel.Bounds().Min, draw.Over)
	}
	return png.Encode(w, grid)
}

// HistogramSeries is one model's distribution on a histogram chart.
type HistogramSeries struct {
	Model  model.Model
	Values []float64
}

// RenderHistogram writes overlaid histograms with bins bins over [lo, hi].
func RenderHistogram(w io.Writer, title, xLabel string, series []HistogramSeries, bins int, lo, hi float64) error {
	if len(series) == 0 {
		return fmt.Errorf("no series to chart")
	}
	if hi <= lo {
		hi = lo + 1
	}
	xs := BinCenters(bins, lo, hi)

	maxCount := 0
	chartSeries := make([]chart.Series, 0, len(series))
	for _, s := range series {
		counts := Histogram(s.Values, bins, lo, hi)
		ys := make([]float64, len(counts))
		for i, c := range counts {
			ys[i] = float64(c)
			if c > maxCount {
				maxCount = c
			}
		}
		chartSeries = append(chartSeries, chart.ContinuousSeries{
			Name:    s.Model.Name(),
			XValues: xs,
			YValues: ys,
			Style:   lineStyle(s.Model),
		})
	}

	ch := chart.Chart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: xLabel, Range: &chart.ContinuousRange{Min: lo, Max: hi}},
		YAxis: chart.YAxis{
			Name:           "sites",
			Range:          &chart.ContinuousRange{Min: 0, Max: math.Max(1, float64(maxCount)*1.1)},
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v) },
		},
		Series: chartSeries,
	}
	if len(series) > 1 {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}
	return ch.Render(chart.PNG, w)
}
