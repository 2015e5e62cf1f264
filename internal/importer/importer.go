package importer

import (
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

// FileKind selects which per-dataset result file to read.
type FileKind int

const (
	// FitStatistics holds per-model AICc weights.
	FitStatistics FileKind = iota
	// Likelihoods holds per-model log-likelihoods.
	Likelihoods
)

// Suffix returns the file name suffix appended to the dataset code.
func (k FileKind) Suffix() string {
	if k == Likelihoods {
		return "_likelihoods.csv"
	}
	return "_dist_test.csv"
}

func (k FileKind) String() string {
	if k == Likelihoods {
		return "likelihoods"
	}
	return "fit statistics"
}

// ValueType maps the file kind onto the value type of its scores.
func (k FileKind) ValueType() model.ValueType {
	if k == Likelihoods {
		return model.Likelihood
	}
	return model.AICcWeight
}

// Path returns the location of a dataset's result file.
func Path(dataDir, dataset string, kind FileKind) string {
	return filepath.Join(dataDir, dataset+kind.Suffix())
}

// FieldCount is the number of fields in every data row.
const FieldCount = 3 + model.Count

// ParseError reports a malformed input row. It invalidates the whole file.
type ParseError struct {
	Dataset string
	Path    string
	Line    int
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s (dataset %s) line %d: %s", e.Path, e.Dataset, e.Line, e.Reason)
}

// MissingInputFileError reports an expected input file that does not exist.
type MissingInputFileError struct {
	Dataset string
	Kind    FileKind
	Path    string
}

func (e *MissingInputFileError) Error() string {
	return fmt.Sprintf("dataset %s: %s file not found: %s", e.Dataset, e.Kind, e.Path)
}

// Importer reads per-site fit results from a data directory.
type Importer struct {
	fs      afero.Fs
	dataDir string
}

// New creates an importer rooted at dataDir. A nil fs uses the OS filesystem.
func New(fsys afero.Fs, dataDir string) *Importer {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Importer{fs: fsys, dataDir: dataDir}
}

// Import locates and parses one dataset file.
func (im *Importer) Import(dataset string, kind FileKind) ([]model.SiteFitRecord, error) {
	path := Path(im.dataDir, dataset, kind)
	f, err := im.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingInputFileError{Dataset: dataset, Kind: kind, Path: path}
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(dataset, path, f)
}

// Parse reads a header line followed by one row per site:
// site, S, N, then one score per model in model order.
// Rows are returned in input order. Any malformed row fails the whole parse.
func Parse(dataset, path string, r io.Reader) ([]model.SiteFitRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	// site IDs may carry stray quotes
	cr.LazyQuotes = true

	var records []model.SiteFitRecord
	headerSeen := false
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &ParseError{Dataset: dataset, Path: path, Line: pe.Line, Reason: pe.Err.Error()}
			}
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		line, _ := cr.FieldPos(0)
		if !headerSeen {
			headerSeen = true
			continue
		}
		if isBlank(fields) {
			continue
		}

		rec, reason := parseRow(dataset, fields)
		if reason != "" {
			return nil, &ParseError{Dataset: dataset, Path: path, Line: line, Reason: reason}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(dataset string, fields []string) (model.SiteFitRecord, string) {
	var rec model.SiteFitRecord
	if len(fields) != FieldCount {
		return rec, fmt.Sprintf("expected %d fields, got %d", FieldCount, len(fields))
	}

	rec.Dataset = dataset
	rec.Site = strings.TrimSpace(fields[0])
	if rec.Site == "" {
		return rec, "empty site id"
	}

	var reason string
	if rec.S, reason = parseCount("S", fields[1]); reason != "" {
		return rec, reason
	}
	if rec.N, reason = parseCount("N", fields[2]); reason != "" {
		return rec, reason
	}

	for i := 0; i < model.Count; i++ {
		raw := fields[3+i]
		score, ok := parseScore(raw)
		if !ok {
			return rec, fmt.Sprintf("%s score %q is not numeric", model.Model(i).Name(), strings.TrimSpace(raw))
		}
		rec.Scores[i] = score
	}
	return rec, ""
}

func parseCount(name, raw string) (int64, string) {
	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Sprintf("%s %q is not an integer", name, raw)
	}
	if v < 0 {
		return 0, fmt.Sprintf("%s %d is negative", name, v)
	}
	return v, ""
}

// parseScore maps empty, NA and NaN fields to the absent sentinel.
func parseScore(raw string) (model.Score, bool) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "na", "nan":
		return model.Absent, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return model.Absent, false
	}
	return model.Some(v), true
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
