package store

import (
	"database/sql"
	"fmt"

	"github.com/tinytelemetry/sadcompare/internal/model"
	"github.com/tinytelemetry/sadcompare/internal/store/migrate"
)

// StoreWriteError reports a failed dataset write. The transaction has been
// rolled back, so the store holds none of the dataset's new rows.
type StoreWriteError struct {
	Dataset string
	Op      string
	Err     error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store: write dataset %s: %s: %v", e.Dataset, e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

const insertWinSQL = `INSERT INTO wins
	(dataset_code, site, S, N, model_code, model_name, AICc_weight_model)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

const insertValueSQL = `INSERT INTO "values"
	(dataset_code, site, S, N, model_code, model_name, value_type, value)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Reset drops and recreates the wins and values tables, leaving them empty.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := migrate.NewRunner(s.db).Recreate(TableWins, TableValues); err != nil {
		return fmt.Errorf("store: reset: %w", err)
	}
	return nil
}

// WriteDataset replaces every row of result.Dataset with the given wins and
// values in a single transaction. Writing the same result twice leaves the
// store unchanged.
func (s *Store) WriteDataset(result model.DatasetResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fail := func(op string, err error) error {
		return &StoreWriteError{Dataset: result.Dataset, Op: op, Err: err}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fail("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.Exec(`DELETE FROM wins WHERE dataset_code = ?`, result.Dataset); err != nil {
		return fail("delete wins", err)
	}
	if _, err := tx.Exec(`DELETE FROM "values" WHERE dataset_code = ?`, result.Dataset); err != nil {
		return fail("delete values", err)
	}

	if err := insertWins(tx, result.Wins); err != nil {
		return fail("insert wins", err)
	}
	if err := insertValues(tx, result.Values); err != nil {
		return fail("insert values", err)
	}

	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}
	committed = true
	return nil
}

// DeleteDataset removes every row of one dataset.
func (s *Store) DeleteDataset(dataset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return &StoreWriteError{Dataset: dataset, Op: "begin", Err: err}
	}
	defer tx.Rollback()

	for _, table := range resultTables {
		if _, err := tx.Exec(`DELETE FROM `+migrate.QuoteIdent(table)+` WHERE dataset_code = ?`, dataset); err != nil {
			return &StoreWriteError{Dataset: dataset, Op: "delete " + table, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreWriteError{Dataset: dataset, Op: "commit", Err: err}
	}
	return nil
}

func insertWins(tx *sql.Tx, wins []model.WinRecord) error {
	if len(wins) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(insertWinSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, w := range wins {
		if _, err := stmt.Exec(w.Dataset, w.Site, w.S, w.N, w.Model.Code(), w.Model.Name(), w.Value); err != nil {
			return fmt.Errorf("site %s: %w", w.Site, err)
		}
	}
	return nil
}

func insertValues(tx *sql.Tx, values []model.ValueRecord) error {
	if len(values) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(insertValueSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range values {
		val := sql.NullFloat64{Float64: v.Value.Value, Valid: v.Value.Valid}
		if _, err := stmt.Exec(v.Dataset, v.Site, v.S, v.N, v.Model.Code(), v.Model.Name(), v.ValueType.String(), val); err != nil {
			return fmt.Errorf("site %s %s: %w", v.Site, v.Model.Slug(), err)
		}
	}
	return nil
}
