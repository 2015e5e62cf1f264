package pipeline

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/tinytelemetry/sadcompare/internal/export"
	"gopkg.in/yaml.v3"
)

// SummaryFileName is the run summary written into the data directory.
const SummaryFileName = "run_summary.yaml"

// Dataset outcomes recorded in a DatasetSummary.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunSummary describes one batch run.
type RunSummary struct {
	RunID      string           `yaml:"run_id"`
	StartedAt  time.Time        `yaml:"started_at"`
	FinishedAt time.Time        `yaml:"finished_at"`
	Snapshot   string           `yaml:"snapshot,omitempty"`
	Datasets   []DatasetSummary `yaml:"datasets"`
}

// DatasetSummary is the outcome of one dataset pipeline.
type DatasetSummary struct {
	Dataset   string           `yaml:"dataset"`
	Status    string           `yaml:"status"`
	Sites     int              `yaml:"sites"`
	Values    int              `yaml:"values"`
	Wins      map[string]int64 `yaml:"wins,omitempty"`
	Processed string           `yaml:"processed,omitempty"`
	Duration  time.Duration    `yaml:"duration"`
	Error     string           `yaml:"error,omitempty"`
}

// Failed returns the datasets that did not complete.
func (s *RunSummary) Failed() []string {
	var out []string
	for _, d := range s.Datasets {
		if d.Status != StatusOK {
			out = append(out, d.Dataset)
		}
	}
	return out
}

// WriteSummary encodes the summary as YAML to path.
func WriteSummary(fsys afero.Fs, path string, s *RunSummary) error {
	return export.WriteAtomic(fsys, path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	})
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(fsys afero.Fs, path string) (*RunSummary, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	var s RunSummary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &s, nil
}

// BatchError reports the datasets that failed during a run. The remaining
// datasets were processed and stored normally.
type BatchError struct {
	Failed []string
	Errs   []error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d dataset(s) failed (%s): %v",
		len(e.Failed), strings.Join(e.Failed, ", "), errors.Join(e.Errs...))
}

func (e *BatchError) Unwrap() []error { return e.Errs }
