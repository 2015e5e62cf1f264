package report

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/tinytelemetry/sadcompare/internal/export"
	"github.com/tinytelemetry/sadcompare/internal/model"
	"go.uber.org/zap"
)

// DefaultBins is the number of histogram bins per chart.
const DefaultBins = 50

// Chart file names.
const (
	TotalWinsFile     = "total_wins.png"
	WinsByDatasetFile = "wins_by_dataset.png"
	WeightsFile       = "AICc_weights.png"
	LikelihoodsFile   = "likelihoods.png"
)

// Querier is the read side the reporter needs.
type Querier interface {
	CountWinsByModel(dataset string) (map[model.Model]int64, error)
	Values(q model.ValueQuery) ([]model.Score, error)
}

// Config controls chart output.
type Config struct {
	Dir      string
	Datasets []string
	Bins     int
}

// Reporter renders the comparison charts from the store.
type Reporter struct {
	q      Querier
	fs     afero.Fs
	cfg    Config
	logger *zap.Logger
}

// New creates a reporter. A nil fs uses the OS filesystem.
func New(q Querier, fsys afero.Fs, cfg Config, logger *zap.Logger) *Reporter {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Bins <= 0 {
		cfg.Bins = DefaultBins
	}
	if len(cfg.Datasets) == 0 {
		cfg.Datasets = model.DefaultDatasets
	}
	return &Reporter{q: q, fs: fsys, cfg: cfg, logger: logger}
}

// WeightsFileFor returns the per-model weight histogram file name.
func WeightsFileFor(m model.Model) string { return m.Slug() + "_weights.png" }

// LikelihoodsFileFor returns the per-model likelihood histogram file name.
func LikelihoodsFileFor(m model.Model) string { return m.Slug() + "_likelihoods.png" }

// WriteCharts renders every chart into the configured directory and returns
// the written paths.
func (r *Reporter) WriteCharts() ([]string, error) {
	var written []string
	write := func(name string, render func(io.Writer) error) error {
		path := filepath.Join(r.cfg.Dir, name)
		var buf bytes.Buffer
		if err := render(&buf); err != nil {
			return fmt.Errorf("render %s: %w", name, err)
		}
		if err := export.WriteAtomic(r.fs, path, func(w io.Writer) error {
			_, err := buf.WriteTo(w)
			return err
		}); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, path)
		r.logger.Debug("chart written", zap.String("path", path))
		return nil
	}

	total, err := r.q.CountWinsByModel("")
	if err != nil {
		return nil, fmt.Errorf("count wins: %w", err)
	}
	if err := write(TotalWinsFile, func(w io.Writer) error {
		return RenderWinsChart(w, "Total wins per model", total)
	}); err != nil {
		return written, err
	}

	perDataset := make(map[string]map[model.Model]int64, len(r.cfg.Datasets))
	for _, d := range r.cfg.Datasets {
		counts, err := r.q.CountWinsByModel(d)
		if err != nil {
			return written, fmt.Errorf("count wins for %s: %w", d, err)
		}
		perDataset[d] = counts
	}
	if err := write(WinsByDatasetFile, func(w io.Writer) error {
		return RenderWinsGrid(w, r.cfg.Datasets, perDataset)
	}); err != nil {
		return written, err
	}

	weights, err := r.modelValues(model.ValueQuery{ValueType: model.AICcWeight, ExcludeAbsent: true})
	if err != nil {
		return written, err
	}
	if err := r.writeHistograms(write, weights, "AICc weights", "AICc weight", WeightsFile, WeightsFileFor, 0, 1); err != nil {
		return written, err
	}

	likelihoods, err := r.modelValues(model.ValueQuery{ValueType: model.Likelihood, PositiveOnly: true})
	if err != nil {
		return written, err
	}
	var all []float64
	for _, s := range likelihoods {
		all = append(all, s.Values...)
	}
	lo, hi := span(all)
	if err := r.writeHistograms(write, likelihoods, "Likelihoods", "likelihood", LikelihoodsFile, LikelihoodsFileFor, lo, hi); err != nil {
		return written, err
	}

	r.logger.Info("charts written", zap.String("dir", r.cfg.Dir), zap.Int("files", len(written)))
	return written, nil
}

func (r *Reporter) writeHistograms(
	write func(string, func(io.Writer) error) error,
	series []HistogramSeries,
	title, xLabel, combinedFile string,
	perModelFile func(model.Model) string,
	lo, hi float64,
) error {
	if err := write(combinedFile, func(w io.Writer) error {
		return RenderHistogram(w, title+" for all models", xLabel, series, r.cfg.Bins, lo, hi)
	}); err != nil {
		return err
	}
	for _, s := range series {
		if err := write(perModelFile(s.Model), func(w io.Writer) error {
			return RenderHistogram(w, title+" for "+s.Model.Name(), xLabel, []HistogramSeries{s}, r.cfg.Bins, lo, hi)
		}); err != nil {
			return err
		}
	}
	return nil
}

// modelValues runs q once per model and returns the present values.
func (r *Reporter) modelValues(q model.ValueQuery) ([]HistogramSeries, error) {
	out := make([]HistogramSeries, 0, model.Count)
	for _, m := range model.Models() {
		q.Model = m
		scores, err := r.q.Values(q)
		if err != nil {
			return nil, fmt.Errorf("%s values for %s: %w", q.ValueType, m.Slug(), err)
		}
		values := make([]float64, 0, len(scores))
		for _, s := range scores {
			if s.Valid {
				values = append(values, s.Value)
			}
		}
		out = append(out, HistogramSeries{Model: m, Values: values})
	}
	return out, nil
}
