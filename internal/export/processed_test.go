package export

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/sadcompare/internal/importer"
	"github.com/tinytelemetry/sadcompare/internal/model"
	"github.com/tinytelemetry/sadcompare/internal/reducer"
)

func TestWriteProcessed_Layout(t *testing.T) {
	var buf bytes.Buffer
	err := WriteProcessed(&buf, []model.WinRecord{
		{Dataset: "bbs", Site: "site1", S: 10, N: 100, Model: model.GeometricSeries, Value: 0.35},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "# 0 = Logseries, 1 = Untruncated logseries, 2 = Poisson lognormal, 3 = Negative binomial, 4 = Geometric series", lines[0])
	assert.Equal(t, "dataset,site,S,N,model_code,model_name,AICc_weight_model", lines[1])
	assert.Equal(t, "bbs,site1,10,100,4,Geometric series,0.35", lines[2])
}

func TestProcessed_RoundTripFromImport(t *testing.T) {
	input := "site,S,N,a,b,c,d,e\n" +
		"site1, 10, 100, 0.1, 0.2, 0.3, 0.05, 0.35\n" +
		"site2, 5, 50, , , , 0.9, 0.1\n" +
		"site3, 7, 70, 0.123456789012345, 0.1, 0.1, 0.1, 0.1\n"

	fits, err := importer.Parse("bbs", "bbs_dist_test.csv", strings.NewReader(input))
	require.NoError(t, err)
	res, err := reducer.Reduce("bbs", fits, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteProcessed(&buf, res.Wins))

	got, err := ReadProcessed(&buf)
	require.NoError(t, err)
	require.Len(t, got, len(res.Wins))

	type triple struct {
		site  string
		code  int
		value float64
	}
	for i := range got {
		want := triple{res.Wins[i].Site, res.Wins[i].Model.Code(), res.Wins[i].Value}
		have := triple{got[i].Site, got[i].Model.Code(), got[i].Value}
		assert.Equal(t, want, have)
	}
	assert.Equal(t, res.Wins, got)
}

func TestReadProcessed_RejectsUnknownHeader(t *testing.T) {
	_, err := ReadProcessed(strings.NewReader("a,b,c,d,e,f,g\n"))
	assert.Error(t, err)
}

func TestWriteProcessedFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	path, err := WriteProcessedFile(fsys, "out", "naba", []model.WinRecord{
		{Dataset: "naba", Site: "x", S: 1, N: 2, Model: model.Logseries, Value: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "out/naba_processed_results.csv", path)

	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "naba,x,1,2,0,Logseries,1")

	exists, err := afero.Exists(fsys, path+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStageProcessedFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	wins := []model.WinRecord{{Dataset: "bbs", Site: "s", S: 3, N: 9, Model: model.GeometricSeries, Value: 0.5}}

	st, err := StageProcessedFile(fsys, "data", "bbs", wins)
	require.NoError(t, err)
	assert.Equal(t, ProcessedPath("data", "bbs"), st.Path())

	exists, err := afero.Exists(fsys, st.Path())
	require.NoError(t, err)
	assert.False(t, exists, "nothing visible before commit")

	require.NoError(t, st.Commit())
	data, err := afero.ReadFile(fsys, st.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "bbs,s,3,9,4,Geometric series,0.5")
	assert.NoError(t, st.Discard())
}

func TestStage_DiscardLeavesDestination(t *testing.T) {
	fsys := afero.NewMemMapFs()
	path := ProcessedPath("data", "fia")
	require.NoError(t, afero.WriteFile(fsys, path, []byte("old"), 0o644))

	st, err := StageProcessedFile(fsys, "data", "fia", nil)
	require.NoError(t, err)
	require.NoError(t, st.Discard())

	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	exists, err := afero.Exists(fsys, path+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStage_WriteErrorLeavesNothing(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_, err := Stage(fsys, "out/x.csv", func(io.Writer) error { return errors.New("boom") })
	require.Error(t, err)

	exists, err := afero.Exists(fsys, "out/x.csv.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRemoveProcessedFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, ProcessedPath("data", "cbc"), []byte("x"), 0o644))

	require.NoError(t, RemoveProcessedFile(fsys, "data", "cbc"))
	exists, err := afero.Exists(fsys, ProcessedPath("data", "cbc"))
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, RemoveProcessedFile(fsys, "data", "cbc"), "missing file is not an error")
}
