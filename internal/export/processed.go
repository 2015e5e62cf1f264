package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/tinytelemetry/sadcompare/internal/model"
)

// Header is the column header of a processed results file.
var Header = []string{"dataset", "site", "S", "N", "model_code", "model_name", "AICc_weight_model"}

// ProcessedPath returns the processed results location for a dataset.
func ProcessedPath(dataDir, dataset string) string {
	return filepath.Join(dataDir, dataset+"_processed_results.csv")
}

// WriteProcessed writes the model legend comment, the header and one row per
// winner, in the order given.
func WriteProcessed(w io.Writer, wins []model.WinRecord) error {
	if _, err := fmt.Fprintf(w, "# %s\n", model.ModelLegend()); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	row := make([]string, len(Header))
	for _, win := range wins {
		row[0] = win.Dataset
		row[1] = win.Site
		row[2] = strconv.FormatInt(win.S, 10)
		row[3] = strconv.FormatInt(win.N, 10)
		row[4] = strconv.Itoa(win.Model.Code())
		row[5] = win.Model.Name()
		row[6] = strconv.FormatFloat(win.Value, 'g', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadProcessed parses a file produced by WriteProcessed.
func ReadProcessed(r io.Reader) ([]model.WinRecord, error) {
	br := bufio.NewReader(r)
	cr := csv.NewReader(br)
	cr.Comment = '#'
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(Header, ",") {
		return nil, fmt.Errorf("unexpected header %q", strings.Join(header, ","))
	}

	var wins []model.WinRecord
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		win, err := parseWin(fields)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		wins = append(wins, win)
	}
	return wins, nil
}

func parseWin(fields []string) (model.WinRecord, error) {
	s, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return model.WinRecord{}, fmt.Errorf("S: %w", err)
	}
	n, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return model.WinRecord{}, fmt.Errorf("N: %w", err)
	}
	m, err := model.ParseModel(fields[4])
	if err != nil {
		return model.WinRecord{}, err
	}
	v, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return model.WinRecord{}, fmt.Errorf("AICc_weight_model: %w", err)
	}
	return model.WinRecord{Dataset: fields[0], Site: fields[1], S: s, N: n, Model: m, Value: v}, nil
}

// WriteProcessedFile writes the processed results for one dataset atomically.
func WriteProcessedFile(fsys afero.Fs, dataDir, dataset string, wins []model.WinRecord) (string, error) {
	path := ProcessedPath(dataDir, dataset)
	return path, WriteAtomic(fsys, path, func(w io.Writer) error {
		return WriteProcessed(w, wins)
	})
}

// StageProcessedFile writes the processed results for one dataset next to
// their final location. Nothing is visible at ProcessedPath until Commit.
func StageProcessedFile(fsys afero.Fs, dataDir, dataset string, wins []model.WinRecord) (*Staged, error) {
	return Stage(fsys, ProcessedPath(dataDir, dataset), func(w io.Writer) error {
		return WriteProcessed(w, wins)
	})
}

// RemoveProcessedFile deletes a dataset's processed results, if any.
func RemoveProcessedFile(fsys afero.Fs, dataDir, dataset string) error {
	err := fsys.Remove(ProcessedPath(dataDir, dataset))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Staged is a fully written and synced temporary file waiting to be renamed
// over its destination.
type Staged struct {
	fs   afero.Fs
	tmp  string
	path string
}

// Path returns the destination the file is renamed to on Commit.
func (s *Staged) Path() string { return s.path }

// Commit renames the staged file into place.
func (s *Staged) Commit() error {
	return s.fs.Rename(s.tmp, s.path)
}

// Discard removes the staged file. It is safe to call after Commit.
func (s *Staged) Discard() error {
	err := s.fs.Remove(s.tmp)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Stage writes path's future content to path+".tmp" and syncs it.
func Stage(fsys afero.Fs, path string, write func(io.Writer) error) (*Staged, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", path, err)
	}
	st := &Staged{fs: fsys, tmp: path + ".tmp", path: path}
	f, err := fsys.Create(st.tmp)
	if err != nil {
		return nil, err
	}

	bw := bufio.NewWriter(f)
	err = write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = st.Discard()
		return nil, err
	}
	return st, nil
}

// WriteAtomic writes through a temporary file and renames it into place so a
// failed write never leaves a truncated file behind.
func WriteAtomic(fsys afero.Fs, path string, write func(io.Writer) error) error {
	st, err := Stage(fsys, path, write)
	if err != nil {
		return err
	}
	if err := st.Commit(); err != nil {
		_ = st.Discard()
		return err
	}
	return nil
}
