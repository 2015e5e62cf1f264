package report

import (
	"bytes"
	"errors"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/sadcompare/internal/model"
)

func TestHistogram(t *testing.T) {
	got := Histogram([]float64{0, 0.05, 0.1, 0.55, 1, 1.5, -0.1}, 10, 0, 1)
	want := []int{2, 1, 0, 0, 0, 1, 0, 0, 0, 1}
	assert.Equal(t, want, got)
}

func TestHistogram_Degenerate(t *testing.T) {
	assert.Nil(t, Histogram([]float64{1}, 0, 0, 1))
	assert.Equal(t, []int{0, 0}, Histogram([]float64{1}, 2, 1, 1))
}

func TestBinCenters(t *testing.T) {
	assert.InDeltaSlice(t, []float64{0.125, 0.375, 0.625, 0.875}, BinCenters(4, 0, 1), 1e-12)
}

func TestSpan(t *testing.T) {
	lo, hi := span(nil)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)

	lo, hi = span([]float64{3, 3})
	assert.Equal(t, 3.0, lo)
	assert.Equal(t, 4.0, hi)

	lo, hi = span([]float64{2, 0.5, 7})
	assert.Equal(t, 0.5, lo)
	assert.Equal(t, 7.0, hi)
}

func TestRenderWinsChart_EqualCounts(t *testing.T) {
	var buf bytes.Buffer
	err := RenderWinsChart(&buf, "wins", map[model.Model]int64{})
	require.NoError(t, err)
	_, err = png.Decode(&buf)
	require.NoError(t, err)
}

func TestRenderWinsGrid_Layout(t *testing.T) {
	var buf bytes.Buffer
	datasets := model.DefaultDatasets
	counts := map[string]map[model.Model]int64{"bbs": {model.Logseries: 3, model.GeometricSeries: 1}}
	require.NoError(t, RenderWinsGrid(&buf, datasets, counts))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, panelWidth*3, img.Bounds().Dx())
	assert.Equal(t, panelHeight*2, img.Bounds().Dy())
}

func TestRenderHistogram_NoValues(t *testing.T) {
	var buf bytes.Buffer
	err := RenderHistogram(&buf, "empty", "x", []HistogramSeries{{Model: model.Logseries}}, DefaultBins, 0, 1)
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())
}

type fakeQuerier struct {
	counts  map[string]map[model.Model]int64
	values  map[model.ValueType][]model.Score
	queries []model.ValueQuery
	err     error
}

func (f *fakeQuerier) CountWinsByModel(dataset string) (map[model.Model]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.counts[dataset], nil
}

func (f *fakeQuerier) Values(q model.ValueQuery) ([]model.Score, error) {
	f.queries = append(f.queries, q)
	return f.values[q.ValueType], nil
}

func TestWriteCharts(t *testing.T) {
	fsys := afero.NewMemMapFs()
	q := &fakeQuerier{
		counts: map[string]map[model.Model]int64{
			"":    {model.GeometricSeries: 1, model.NegativeBinomial: 1},
			"bbs": {model.GeometricSeries: 1, model.NegativeBinomial: 1},
		},
		values: map[model.ValueType][]model.Score{
			model.AICcWeight: {model.Some(0.1), model.Some(0.35), model.Some(0.9)},
			model.Likelihood: {model.Some(0.4), model.Some(2.0)},
		},
	}

	r := New(q, fsys, Config{Dir: "charts"}, nil)
	paths, err := r.WriteCharts()
	require.NoError(t, err)
	assert.Len(t, paths, 4+2*model.Count)

	for _, name := range []string{
		TotalWinsFile, WinsByDatasetFile, WeightsFile, LikelihoodsFile,
		WeightsFileFor(model.Logseries), LikelihoodsFileFor(model.GeometricSeries),
	} {
		path := filepath.Join("charts", name)
		assert.Contains(t, paths, path)
		data, err := afero.ReadFile(fsys, path)
		require.NoError(t, err, name)
		_, err = png.Decode(bytes.NewReader(data))
		assert.NoError(t, err, name)
	}

	for _, vq := range q.queries {
		switch vq.ValueType {
		case model.AICcWeight:
			assert.True(t, vq.ExcludeAbsent)
		case model.Likelihood:
			assert.True(t, vq.PositiveOnly)
		}
	}
}

func TestWriteCharts_QueryError(t *testing.T) {
	r := New(&fakeQuerier{err: errors.New("closed")}, afero.NewMemMapFs(), Config{Dir: "charts"}, nil)
	_, err := r.WriteCharts()
	assert.Error(t, err)
}

func TestFileNames(t *testing.T) {
	assert.Equal(t, "poisson_lognormal_weights.png", WeightsFileFor(model.PoissonLognormal))
	assert.Equal(t, "logseries_likelihoods.png", LikelihoodsFileFor(model.Logseries))
}

func TestTerminalSummary(t *testing.T) {
	out := TerminalSummary("Wins", map[model.Model]int64{model.GeometricSeries: 1500, model.NegativeBinomial: 500}, 100)
	assert.Contains(t, out, "Wins")
	assert.Contains(t, out, "Geometric series")
	assert.Contains(t, out, "1,500")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "2,000 sites")

	empty := TerminalSummary("Wins", nil, 80)
	assert.True(t, strings.Contains(empty, "No wins recorded"))
}
