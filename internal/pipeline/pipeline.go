package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/tinytelemetry/sadcompare/internal/export"
	"github.com/tinytelemetry/sadcompare/internal/importer"
	"github.com/tinytelemetry/sadcompare/internal/metrics"
	"github.com/tinytelemetry/sadcompare/internal/model"
	"github.com/tinytelemetry/sadcompare/internal/reducer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const metricsPushTimeout = 10 * time.Second

// Store is the write side the pipeline needs.
type Store interface {
	model.ResultWriter
}

// Snapshotter keeps a copy of the store after a successful batch.
type Snapshotter interface {
	Take(ctx context.Context, runID string) (string, error)
}

// Config controls a batch run.
type Config struct {
	DataDir        string
	Datasets       []string
	Workers        int
	WriteProcessed bool
	WriteSummary   bool
	MetricsPushURL string // Pushgateway base URL; empty disables the push
}

// Runner drives the import, reduce and store steps for every dataset.
type Runner struct {
	store  Store
	snap   Snapshotter
	fs     afero.Fs
	cfg    Config
	logger *zap.Logger
}

// NewRunner creates a batch runner. A nil fs uses the OS filesystem and a
// nil logger discards output.
func NewRunner(st Store, fsys afero.Fs, cfg Config, logger *zap.Logger) *Runner {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = model.DefaultWorkers
	}
	if len(cfg.Datasets) == 0 {
		cfg.Datasets = model.DefaultDatasets
	}
	return &Runner{store: st, fs: fsys, cfg: cfg, logger: logger}
}

// SetSnapshotter enables the post-batch snapshot.
func (r *Runner) SetSnapshotter(s Snapshotter) {
	r.snap = s
}

// SummaryPath returns where the run summary is written.
func (r *Runner) SummaryPath() string {
	return filepath.Join(r.cfg.DataDir, SummaryFileName)
}

// Run resets the store and processes every configured dataset. A dataset
// that fails is logged and skipped; the others still complete. When any
// dataset fails the summary is returned together with a *BatchError.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		Datasets:  make([]DatasetSummary, len(r.cfg.Datasets)),
	}
	log := r.logger.With(zap.String("run_id", summary.RunID))

	if err := r.store.Reset(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	log.Info("store reset", zap.Strings("datasets", r.cfg.Datasets), zap.Int("workers", r.cfg.Workers))

	errs := make([]error, len(r.cfg.Datasets))

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, dataset := range r.cfg.Datasets {
		if ctx.Err() != nil {
			summary.Datasets[i] = DatasetSummary{Dataset: dataset, Status: StatusCancelled, Error: ctx.Err().Error()}
			errs[i] = fmt.Errorf("dataset %s: %w", dataset, ctx.Err())
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				summary.Datasets[i] = DatasetSummary{Dataset: dataset, Status: StatusCancelled, Error: err.Error()}
				errs[i] = fmt.Errorf("dataset %s: %w", dataset, err)
				return nil
			}
			summary.Datasets[i], errs[i] = r.runDataset(log, dataset)
			return nil
		})
	}
	_ = g.Wait()

	var batchErr *BatchError
	for i, err := range errs {
		if err == nil {
			continue
		}
		if batchErr == nil {
			batchErr = &BatchError{}
		}
		batchErr.Failed = append(batchErr.Failed, r.cfg.Datasets[i])
		batchErr.Errs = append(batchErr.Errs, err)
	}

	if batchErr == nil && r.snap != nil {
		path, err := r.snap.Take(ctx, summary.RunID)
		if err != nil {
			log.Warn("snapshot failed", zap.Error(err))
		} else {
			summary.Snapshot = path
			log.Info("snapshot written", zap.String("path", path))
		}
	}

	summary.FinishedAt = time.Now().UTC()
	metrics.BatchDuration.Observe(time.Since(start).Seconds())

	if r.cfg.MetricsPushURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
		if err := metrics.PushPipeline(pushCtx, r.cfg.MetricsPushURL); err != nil {
			log.Warn("push pipeline metrics", zap.String("url", r.cfg.MetricsPushURL), zap.Error(err))
		} else {
			log.Debug("pipeline metrics pushed", zap.String("url", r.cfg.MetricsPushURL))
		}
		cancel()
	}

	if r.cfg.WriteSummary {
		if err := WriteSummary(r.fs, r.SummaryPath(), summary); err != nil {
			log.Warn("write run summary", zap.Error(err))
		}
	}

	log.Info("batch finished",
		zap.Int("datasets", len(r.cfg.Datasets)),
		zap.Strings("failed", summary.Failed()),
		zap.Duration("elapsed", time.Since(start)))

	if batchErr != nil {
		return summary, batchErr
	}
	return summary, nil
}

// runDataset imports, reduces and stores one dataset. A dataset that fails
// at any step ends up with neither stored rows nor a processed results file.
func (r *Runner) runDataset(log *zap.Logger, dataset string) (DatasetSummary, error) {
	start := time.Now()
	log = log.With(zap.String("dataset", dataset))
	sum := DatasetSummary{Dataset: dataset}

	res, err := r.process(dataset)
	if err == nil {
		sum.Processed, err = r.persist(res)
	}

	sum.Duration = time.Since(start)
	metrics.DatasetDuration.WithLabelValues(dataset).Observe(sum.Duration.Seconds())

	if err != nil {
		if rerr := export.RemoveProcessedFile(r.fs, r.cfg.DataDir, dataset); rerr != nil {
			log.Warn("remove stale processed results", zap.Error(rerr))
		}
		sum.Status = StatusFailed
		sum.Error = err.Error()
		metrics.DatasetRunsTotal.WithLabelValues(dataset, StatusFailed).Inc()
		log.Error("dataset failed", zap.Error(err))
		return sum, fmt.Errorf("dataset %s: %w", dataset, err)
	}

	sum.Status = StatusOK
	sum.Sites = len(res.Wins)
	sum.Values = len(res.Values)
	sum.Wins = winCounts(res.Wins)
	metrics.DatasetRunsTotal.WithLabelValues(dataset, StatusOK).Inc()
	metrics.SitesProcessedTotal.WithLabelValues(dataset).Add(float64(sum.Sites))
	for _, w := range res.Wins {
		metrics.WinsTotal.WithLabelValues(w.Model.Slug()).Inc()
	}
	log.Info("dataset stored",
		zap.Int("sites", sum.Sites),
		zap.Int("values", sum.Values),
		zap.Duration("elapsed", sum.Duration))
	return sum, nil
}

// process imports both files of a dataset and reduces them.
func (r *Runner) process(dataset string) (model.DatasetResult, error) {
	imp := importer.New(r.fs, r.cfg.DataDir)

	fits, err := imp.Import(dataset, importer.FitStatistics)
	if err != nil {
		return model.DatasetResult{}, err
	}
	likelihoods, err := imp.Import(dataset, importer.Likelihoods)
	if err != nil {
		return model.DatasetResult{}, err
	}
	return reducer.Reduce(dataset, fits, likelihoods)
}

// persist stores res and, when enabled, its processed results file. The
// file is staged before the store write and renamed into place after it;
// if the rename fails the stored rows are deleted again.
func (r *Runner) persist(res model.DatasetResult) (string, error) {
	var staged *export.Staged
	if r.cfg.WriteProcessed {
		var err error
		staged, err = export.StageProcessedFile(r.fs, r.cfg.DataDir, res.Dataset, res.Wins)
		if err != nil {
			return "", fmt.Errorf("write processed results: %w", err)
		}
	}

	if err := r.store.WriteDataset(res); err != nil {
		if staged != nil {
			_ = staged.Discard()
		}
		return "", err
	}
	if staged == nil {
		return "", nil
	}

	if err := staged.Commit(); err != nil {
		_ = staged.Discard()
		err = fmt.Errorf("write processed results: %w", err)
		if derr := r.store.DeleteDataset(res.Dataset); derr != nil {
			return "", errors.Join(err, derr)
		}
		return "", err
	}
	return staged.Path(), nil
}

func winCounts(wins []model.WinRecord) map[string]int64 {
	counts := make(map[string]int64)
	for _, w := range wins {
		counts[w.Model.Name()]++
	}
	return counts
}

// IsCancelled reports whether err stems from a cancelled run.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
