// Package reducer turns imported per-site score rows into winner records and
// narrow per-model value records.
package reducer

import (
	"fmt"
	"math"

	"github.com/tinytelemetry/sadcompare/internal/model"
)

// AllScoresAbsentError is returned when a site has no present score, so no
// winner can be chosen.
type AllScoresAbsentError struct {
	Dataset string
	Site    string
}

func (e *AllScoresAbsentError) Error() string {
	return fmt.Sprintf("dataset %s site %s: every model score is absent", e.Dataset, e.Site)
}

// SelectWinner returns the model with the highest score. Absent scores rank
// below every present score. Ties go to the lowest model index.
func SelectWinner(rec model.SiteFitRecord) (model.WinRecord, error) {
	best := -1
	bestValue := math.Inf(-1)
	for i, s := range rec.Scores {
		if !s.Valid {
			continue
		}
		// Strict comparison keeps the first occurrence of the max.
		if best < 0 || s.Value > bestValue {
			best = i
			bestValue = s.Value
		}
	}
	if best < 0 {
		return model.WinRecord{}, &AllScoresAbsentError{Dataset: rec.Dataset, Site: rec.Site}
	}

	return model.WinRecord{
		Dataset: rec.Dataset,
		Site:    rec.Site,
		S:       rec.S,
		N:       rec.N,
		Model:   model.Model(best),
		Value:   bestValue,
	}, nil
}

// ExplodeValues reshapes one wide row into one record per model, in model
// order. Absent scores stay absent.
func ExplodeValues(rec model.SiteFitRecord, vt model.ValueType) []model.ValueRecord {
	out := make([]model.ValueRecord, model.Count)
	for i, s := range rec.Scores {
		out[i] = model.ValueRecord{
			Dataset:   rec.Dataset,
			Site:      rec.Site,
			S:         rec.S,
			N:         rec.N,
			Model:     model.Model(i),
			ValueType: vt,
			Value:     s,
		}
	}
	return out
}

// Reduce builds the full result for one dataset. Winners come from the fit
// statistics only; values are exploded from both inputs, weights first.
func Reduce(dataset string, fits, likelihoods []model.SiteFitRecord) (model.DatasetResult, error) {
	result := model.DatasetResult{
		Dataset: dataset,
		Wins:    make([]model.WinRecord, 0, len(fits)),
		Values:  make([]model.ValueRecord, 0, (len(fits)+len(likelihoods))*model.Count),
	}

	for _, rec := range fits {
		win, err := SelectWinner(rec)
		if err != nil {
			return model.DatasetResult{}, err
		}
		result.Wins = append(result.Wins, win)
		result.Values = append(result.Values, ExplodeValues(rec, model.AICcWeight)...)
	}
	for _, rec := range likelihoods {
		result.Values = append(result.Values, ExplodeValues(rec, model.Likelihood)...)
	}
	return result, nil
}
