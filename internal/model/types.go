package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Model identifies one of the competing species abundance distribution models.
// The numeric value is the model's position in every score row, so the order
// below must never change.
type Model int

const (
	Logseries Model = iota
	UntruncatedLogseries
	PoissonLognormal
	NegativeBinomial
	GeometricSeries
)

// Count is the number of models scored per site.
const Count = 5

var modelNames = [Count]string{
	"Logseries",
	"Untruncated logseries",
	"Poisson lognormal",
	"Negative binomial",
	"Geometric series",
}

var modelSlugs = [Count]string{
	"logseries",
	"untruncated_logseries",
	"poisson_lognormal",
	"negative_binomial",
	"geometric_series",
}

var modelAbbrevs = [Count]string{"LS", "ULS", "PLN", "NB", "GS"}

// Models returns every model in score order.
func Models() []Model {
	return []Model{Logseries, UntruncatedLogseries, PoissonLognormal, NegativeBinomial, GeometricSeries}
}

// Valid reports whether m is one of the known models.
func (m Model) Valid() bool { return m >= 0 && int(m) < Count }

// Code returns the integer model code used in output files and the store.
func (m Model) Code() int { return int(m) }

// Name returns the human-readable model name.
func (m Model) Name() string {
	if !m.Valid() {
		return fmt.Sprintf("Model(%d)", int(m))
	}
	return modelNames[m]
}

func (m Model) String() string { return m.Name() }

// Slug returns a lowercase, file-name friendly identifier.
func (m Model) Slug() string {
	if !m.Valid() {
		return "model_" + strconv.Itoa(int(m))
	}
	return modelSlugs[m]
}

// Abbrev returns a short label for narrow chart axes.
func (m Model) Abbrev() string {
	if !m.Valid() {
		return "?"
	}
	return modelAbbrevs[m]
}

// ParseModel resolves a model from its code, name or slug.
func ParseModel(s string) (Model, error) {
	s = strings.TrimSpace(s)
	if code, err := strconv.Atoi(s); err == nil {
		if m := Model(code); m.Valid() {
			return m, nil
		}
		return 0, fmt.Errorf("unknown model code %d", code)
	}
	for _, m := range Models() {
		if strings.EqualFold(s, m.Name()) || strings.EqualFold(s, m.Slug()) || strings.EqualFold(s, m.Abbrev()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown model %q", s)
}

// ModelLegend documents the model codes in output files.
func ModelLegend() string {
	parts := make([]string, 0, Count)
	for _, m := range Models() {
		parts = append(parts, fmt.Sprintf("%d = %s", m.Code(), m.Name()))
	}
	return strings.Join(parts, ", ")
}

// ValueType tags exploded per-model values.
type ValueType int

const (
	AICcWeight ValueType = iota
	Likelihood
)

// String returns the label stored in the value_type column.
func (t ValueType) String() string {
	switch t {
	case AICcWeight:
		return "AICc weight"
	case Likelihood:
		return "likelihood"
	default:
		return fmt.Sprintf("ValueType(%d)", int(t))
	}
}

// ParseValueType accepts the stored label or a short alias ("weight", "aicc").
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aicc weight", "aicc_weight", "aicc", "weight", "weights":
		return AICcWeight, nil
	case "likelihood", "likelihoods", "ll":
		return Likelihood, nil
	}
	return 0, fmt.Errorf("unknown value type %q", s)
}

// Score is a fit statistic that may be absent. The zero value is absent.
type Score struct {
	Value float64
	Valid bool
}

// Absent is the missing-value sentinel.
var Absent = Score{}

// Some wraps a present value. NaN is treated as absent.
func Some(v float64) Score {
	if math.IsNaN(v) {
		return Absent
	}
	return Score{Value: v, Valid: true}
}

// Or returns the value, or fallback when absent.
func (s Score) Or(fallback float64) float64 {
	if !s.Valid {
		return fallback
	}
	return s.Value
}

func (s Score) String() string {
	if !s.Valid {
		return ""
	}
	return strconv.FormatFloat(s.Value, 'g', -1, 64)
}

// SiteFitRecord is one imported row: per-model scores for a single site.
type SiteFitRecord struct {
	Dataset string
	Site    string
	S       int64 // species richness
	N       int64 // total abundance
	Scores  [Count]Score
}

// WinRecord is the winning model for one site.
type WinRecord struct {
	Dataset string
	Site    string
	S       int64
	N       int64
	Model   Model
	Value   float64
}

// ValueRecord is one model's value for one site, in narrow form.
type ValueRecord struct {
	Dataset   string
	Site      string
	S         int64
	N         int64
	Model     Model
	ValueType ValueType
	Value     Score
}

// DatasetResult is the full reducer output for one dataset. It is written to
// the store as a single unit.
type DatasetResult struct {
	Dataset string
	Wins    []WinRecord
	Values  []ValueRecord
}

// ValueQuery filters the narrow value relation.
type ValueQuery struct {
	Model         Model
	ValueType     ValueType
	Dataset       string // empty = all datasets
	ExcludeAbsent bool
	PositiveOnly  bool // implies ExcludeAbsent
}
