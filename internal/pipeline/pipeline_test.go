package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/sadcompare/internal/export"
	"github.com/tinytelemetry/sadcompare/internal/importer"
	"github.com/tinytelemetry/sadcompare/internal/metrics"
	"github.com/tinytelemetry/sadcompare/internal/model"
	"github.com/tinytelemetry/sadcompare/internal/reducer"
	"github.com/tinytelemetry/sadcompare/internal/store"
)

const (
	dataDir   = "data"
	header    = "site,S,N,logseries,untruncated_logseries,poisson_lognormal,negative_binomial,geometric_series\n"
	twoSites  = header + "site1, 10, 100, 0.1, 0.2, 0.3, 0.05, 0.35\nsite2, 5, 50, , , , 0.9, 0.1\n"
	twoLikely = header + "site1, 10, 100, -1.5, -2.5, 0.4, 1.2, 0.8\nsite2, 5, 50, 0.3, 0.1, , 2.0, -0.1\n"
)

func writeInputs(t *testing.T, fsys afero.Fs, dataset, fits, likelihoods string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, importer.Path(dataDir, dataset, importer.FitStatistics), []byte(fits), 0o644))
	require.NoError(t, afero.WriteFile(fsys, importer.Path(dataDir, dataset, importer.Likelihoods), []byte(likelihoods), 0o644))
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewStore(store.Config{Driver: store.DriverSQLite})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRun_EndToEnd(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "bbs", twoSites, twoLikely)
	st := newStore(t)

	r := NewRunner(st, fsys, Config{DataDir: dataDir, Datasets: []string{"bbs"}, WriteProcessed: true, WriteSummary: true}, nil)
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Datasets, 1)
	assert.Equal(t, StatusOK, summary.Datasets[0].Status)
	assert.Equal(t, 2, summary.Datasets[0].Sites)
	assert.Equal(t, 20, summary.Datasets[0].Values)
	assert.NotEmpty(t, summary.RunID)

	counts, err := st.CountWinsByModel("")
	require.NoError(t, err)
	assert.Equal(t, map[model.Model]int64{model.GeometricSeries: 1, model.NegativeBinomial: 1}, counts)

	wins, err := st.Wins("bbs")
	require.NoError(t, err)
	require.Len(t, wins, 2)
	assert.Equal(t, model.GeometricSeries, wins[0].Model)
	assert.Equal(t, 0.35, wins[0].Value)
	assert.Equal(t, model.NegativeBinomial, wins[1].Model)
	assert.Equal(t, 0.9, wins[1].Value)

	f, err := fsys.Open(export.ProcessedPath(dataDir, "bbs"))
	require.NoError(t, err)
	defer f.Close()
	processed, err := export.ReadProcessed(f)
	require.NoError(t, err)
	assert.Equal(t, wins, processed)

	saved, err := ReadSummary(fsys, filepath.Join(dataDir, SummaryFileName))
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, saved.RunID)
	assert.Equal(t, int64(1), saved.Datasets[0].Wins["Geometric series"])
}

func TestRun_IsIdempotent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "bbs", twoSites, twoLikely)
	writeInputs(t, fsys, "fia", twoSites, twoLikely)
	st := newStore(t)
	r := NewRunner(st, fsys, Config{DataDir: dataDir, Datasets: []string{"bbs", "fia"}, Workers: 2}, nil)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	firstWins, err := st.Wins("")
	require.NoError(t, err)
	firstRows, err := st.TableRowCounts()
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	secondWins, err := st.Wins("")
	require.NoError(t, err)
	secondRows, err := st.TableRowCounts()
	require.NoError(t, err)

	assert.Equal(t, firstWins, secondWins)
	assert.Equal(t, firstRows, secondRows)
	assert.Equal(t, int64(4), secondRows[store.TableWins])
}

func TestRun_IsolatesFailingDatasets(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "bbs", twoSites, twoLikely)
	writeInputs(t, fsys, "cbc", header+"site1, 10, 100, , , , , \n", twoLikely)
	writeInputs(t, fsys, "fia", header+"site1, ten, 100, 0.1, 0.2, 0.3, 0.4, 0.5\n", twoLikely)
	// gentry has no input files at all
	st := newStore(t)

	r := NewRunner(st, fsys, Config{DataDir: dataDir, Datasets: []string{"bbs", "cbc", "fia", "gentry"}, Workers: 3}, nil)
	summary, err := r.Run(context.Background())
	require.Error(t, err)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, []string{"cbc", "fia", "gentry"}, batchErr.Failed)

	var absent *reducer.AllScoresAbsentError
	assert.ErrorAs(t, err, &absent)
	var parseErr *importer.ParseError
	assert.ErrorAs(t, err, &parseErr)
	var missing *importer.MissingInputFileError
	assert.ErrorAs(t, err, &missing)

	assert.Equal(t, []string{"cbc", "fia", "gentry"}, summary.Failed())

	datasets, err := st.ListDatasets()
	require.NoError(t, err)
	assert.Equal(t, []string{"bbs"}, datasets)
}

func TestRun_LikelihoodFailureKeepsDatasetOut(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "naba", twoSites, header+"site1, 10, 100, 0.1\n")
	st := newStore(t)

	r := NewRunner(st, fsys, Config{DataDir: dataDir, Datasets: []string{"naba"}, WriteProcessed: true}, nil)
	_, err := r.Run(context.Background())
	var parseErr *importer.ParseError
	require.ErrorAs(t, err, &parseErr)

	counts, err := st.TableRowCounts()
	require.NoError(t, err)
	assert.Zero(t, counts[store.TableWins])

	exists, err := afero.Exists(fsys, export.ProcessedPath(dataDir, "naba"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_CancelledContext(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "bbs", twoSites, twoLikely)
	st := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(st, fsys, Config{DataDir: dataDir, Datasets: []string{"bbs"}}, nil)
	summary, err := r.Run(ctx)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, StatusCancelled, summary.Datasets[0].Status)
}

type fakeStore struct {
	mu       sync.Mutex
	resets   int
	written  []string
	deleted  []string
	failOn   string
	resetErr error
}

func (f *fakeStore) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return f.resetErr
}

func (f *fakeStore) WriteDataset(r model.DatasetResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Dataset == f.failOn {
		return &store.StoreWriteError{Dataset: r.Dataset, Op: "insert wins", Err: errors.New("disk full")}
	}
	f.written = append(f.written, r.Dataset)
	return nil
}

func (f *fakeStore) DeleteDataset(dataset string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, dataset)
	return nil
}

type fakeSnapshotter struct {
	runs []string
}

func (f *fakeSnapshotter) Take(_ context.Context, runID string) (string, error) {
	f.runs = append(f.runs, runID)
	return "snap/results-" + runID + ".duckdb", nil
}

func TestRun_StoreWriteErrorIsolated(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "bbs", twoSites, twoLikely)
	writeInputs(t, fsys, "mcdb", twoSites, twoLikely)
	fs := &fakeStore{failOn: "mcdb"}
	snap := &fakeSnapshotter{}

	r := NewRunner(fs, fsys, Config{DataDir: dataDir, Datasets: []string{"bbs", "mcdb"}}, nil)
	r.SetSnapshotter(snap)
	_, err := r.Run(context.Background())

	var werr *store.StoreWriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "mcdb", werr.Dataset)
	assert.Equal(t, []string{"bbs"}, fs.written)
	assert.Equal(t, 1, fs.resets)
	assert.Empty(t, snap.runs, "no snapshot after a failed batch")
}

func TestRun_SnapshotAfterSuccess(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "bbs", twoSites, twoLikely)
	snap := &fakeSnapshotter{}

	r := NewRunner(&fakeStore{}, fsys, Config{DataDir: dataDir, Datasets: []string{"bbs"}}, nil)
	r.SetSnapshotter(snap)
	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{summary.RunID}, snap.runs)
	assert.Equal(t, "snap/results-"+summary.RunID+".duckdb", summary.Snapshot)
}

func TestRun_ResetFailureAborts(t *testing.T) {
	fs := &fakeStore{resetErr: errors.New("locked")}
	r := NewRunner(fs, afero.NewMemMapFs(), Config{DataDir: dataDir, Datasets: []string{"bbs"}}, nil)
	summary, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Empty(t, fs.written)
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner(&fakeStore{}, nil, Config{DataDir: dataDir}, nil)
	assert.Equal(t, model.DefaultWorkers, r.cfg.Workers)
	assert.Equal(t, model.DefaultDatasets, r.cfg.Datasets)
	assert.Equal(t, filepath.Join(dataDir, SummaryFileName), r.SummaryPath())
}

func TestRun_ProcessedWriteFailureKeepsDatasetOut(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeInputs(t, mem, "bbs", twoSites, twoLikely)
	st := newStore(t)

	r := NewRunner(st, afero.NewReadOnlyFs(mem), Config{DataDir: dataDir, Datasets: []string{"bbs"}, WriteProcessed: true}, nil)
	summary, err := r.Run(context.Background())

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, StatusFailed, summary.Datasets[0].Status)
	assert.Contains(t, summary.Datasets[0].Error, "write processed results")

	counts, err := st.CountWinsByModel("")
	require.NoError(t, err)
	assert.Empty(t, counts)
	datasets, err := st.ListDatasets()
	require.NoError(t, err)
	assert.Empty(t, datasets)
}

// noRenameFs accepts writes but refuses to rename files into place.
type noRenameFs struct{ afero.Fs }

func (noRenameFs) Rename(string, string) error { return errors.New("rename refused") }

func TestRun_ProcessedCommitFailureRemovesStoredRows(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeInputs(t, mem, "bbs", twoSites, twoLikely)
	st := newStore(t)

	r := NewRunner(st, noRenameFs{mem}, Config{DataDir: dataDir, Datasets: []string{"bbs"}, WriteProcessed: true}, nil)
	summary, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, summary.Datasets[0].Status)

	counts, err := st.TableRowCounts()
	require.NoError(t, err)
	assert.Zero(t, counts[store.TableWins])
	assert.Zero(t, counts[store.TableValues])

	for _, p := range []string{export.ProcessedPath(dataDir, "bbs"), export.ProcessedPath(dataDir, "bbs") + ".tmp"} {
		exists, err := afero.Exists(mem, p)
		require.NoError(t, err)
		assert.False(t, exists, p)
	}
}

func TestRun_FailedRerunRemovesOldProcessedFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "bbs", twoSites, twoLikely)
	st := newStore(t)
	r := NewRunner(st, fsys, Config{DataDir: dataDir, Datasets: []string{"bbs"}, WriteProcessed: true}, nil)

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	exists, err := afero.Exists(fsys, export.ProcessedPath(dataDir, "bbs"))
	require.NoError(t, err)
	require.True(t, exists)

	writeInputs(t, fsys, "bbs", header+"site1, ten, 100, 0.1, 0.2, 0.3, 0.4, 0.5\n", twoLikely)
	_, err = r.Run(context.Background())
	var parseErr *importer.ParseError
	require.ErrorAs(t, err, &parseErr)

	counts, err := st.CountWinsByModel("bbs")
	require.NoError(t, err)
	assert.Empty(t, counts)
	exists, err = afero.Exists(fsys, export.ProcessedPath(dataDir, "bbs"))
	require.NoError(t, err)
	assert.False(t, exists, "processed file must not outlive the stored rows")
}

func TestRun_StoreWriteErrorDiscardsStagedFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "mcdb", twoSites, twoLikely)
	fs := &fakeStore{failOn: "mcdb"}

	r := NewRunner(fs, fsys, Config{DataDir: dataDir, Datasets: []string{"mcdb"}, WriteProcessed: true}, nil)
	_, err := r.Run(context.Background())
	var werr *store.StoreWriteError
	require.ErrorAs(t, err, &werr)

	matches, err := afero.Glob(fsys, filepath.Join(dataDir, "mcdb_processed_results.csv*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRun_PushesMetrics(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  string
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		mu.Lock()
		paths = append(paths, req.URL.Path)
		body = string(b)
		mu.Unlock()
	}))
	defer gw.Close()

	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "bbs", twoSites, twoLikely)
	before := testutil.ToFloat64(metrics.DatasetRunsTotal.WithLabelValues("bbs", StatusOK))

	r := NewRunner(newStore(t), fsys, Config{DataDir: dataDir, Datasets: []string{"bbs"}, MetricsPushURL: gw.URL}, nil)
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DatasetRunsTotal.WithLabelValues("bbs", StatusOK)))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/metrics/job/" + metrics.PushJob}, paths)
	assert.True(t, strings.Contains(body, "sadcompare_sites_processed_total"), "pushed body lacks pipeline metrics")
}

func TestRun_PushFailureDoesNotFailBatch(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer gw.Close()

	fsys := afero.NewMemMapFs()
	writeInputs(t, fsys, "bbs", twoSites, twoLikely)
	r := NewRunner(newStore(t), fsys, Config{DataDir: dataDir, Datasets: []string{"bbs"}, MetricsPushURL: gw.URL}, nil)
	_, err := r.Run(context.Background())
	assert.NoError(t, err)
}
