package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/tinytelemetry/sadcompare/internal/backup"
	"github.com/tinytelemetry/sadcompare/internal/logger"
	"github.com/tinytelemetry/sadcompare/internal/pipeline"
	"github.com/tinytelemetry/sadcompare/internal/report"
	"github.com/tinytelemetry/sadcompare/internal/store"
	"go.uber.org/zap"
)

func openStore(cfg appConfig) (*store.Store, error) {
	st, err := store.NewStore(store.Config{
		Driver:       cfg.DBDriver,
		Path:         cfg.DBPath,
		QueryTimeout: cfg.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store %s: %w", cfg.DBDriver, cfg.DBPath, err)
	}
	return st, nil
}

// runBatch optionally reprocesses the dataset files, then reports from the
// store. Dataset failures do not stop reporting; they are returned after it.
func runBatch(ctx context.Context, cfg appConfig, out io.Writer) error {
	return runBatchFS(ctx, cfg, afero.NewOsFs(), out)
}

func runBatchFS(ctx context.Context, cfg appConfig, fsys afero.Fs, out io.Writer) error {
	log := logger.FromContext(ctx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var batchErr error
	if cfg.Reprocess {
		runner := pipeline.NewRunner(st, fsys, pipeline.Config{
			DataDir:        cfg.DataDir,
			Datasets:       cfg.Datasets,
			Workers:        cfg.Workers,
			WriteProcessed: !cfg.NoProcessed,
			WriteSummary:   true,
			MetricsPushURL: cfg.MetricsPushURL,
		}, log)

		keeper, err := backup.NewKeeper(st, backup.Config{
			Dir:      cfg.SnapshotDir,
			KeepLast: cfg.SnapshotKeep,
			S3: backup.S3Config{
				BucketURL: cfg.SnapshotBucket,
				Endpoint:  cfg.S3Endpoint,
				Region:    cfg.S3Region,
				UseSSL:    cfg.S3UseSSL,
			},
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize snapshots: %w", err)
		}
		if keeper != nil {
			runner.SetSnapshotter(keeper)
		}

		summary, err := runner.Run(ctx)
		var be *pipeline.BatchError
		switch {
		case err == nil:
		case errors.As(err, &be):
			if pipeline.IsCancelled(err) {
				return err
			}
			batchErr = err
		default:
			return err
		}
		printRunSummary(out, summary)
	} else {
		log.Info("using existing results; pass --reprocess to rebuild them", zap.String("db", cfg.DBPath))
	}

	counts, err := st.CountWinsByModel("")
	if err != nil {
		return fmt.Errorf("count wins: %w", err)
	}
	fmt.Fprintln(out, report.TerminalSummary("Wins per model", counts, 100))

	if !cfg.NoCharts {
		rep := report.New(st, fsys, report.Config{Dir: cfg.ChartsDir, Datasets: cfg.Datasets}, log)
		paths, err := rep.WriteCharts()
		if err != nil {
			return fmt.Errorf("render charts: %w", err)
		}
		fmt.Fprintf(out, "\n%d charts written to %s\n", len(paths), cfg.ChartsDir)
	}

	return batchErr
}

func printRunSummary(out io.Writer, s *pipeline.RunSummary) {
	if s == nil {
		return
	}
	ok := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	fmt.Fprintf(out, "%s\n", dim.Render("run "+s.RunID))
	for _, d := range s.Datasets {
		if d.Status == pipeline.StatusOK {
			fmt.Fprintf(out, "  %s %-8s %s sites  %s\n",
				ok.Render("●"), d.Dataset, humanize.Comma(int64(d.Sites)), dim.Render(d.Duration.Round(time.Millisecond).String()))
			continue
		}
		fmt.Fprintf(out, "  %s %-8s %s  %s\n", bad.Render("●"), d.Dataset, d.Status, dim.Render(d.Error))
	}
	if s.Snapshot != "" {
		fmt.Fprintf(out, "  snapshot %s\n", s.Snapshot)
	}
	fmt.Fprintln(out)
}
