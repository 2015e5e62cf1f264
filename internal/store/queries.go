package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tinytelemetry/sadcompare/internal/model"
	"github.com/tinytelemetry/sadcompare/internal/store/migrate"
)

var resultTables = []string{TableWins, TableValues}

// read holds the read lock and a query-timeout context for the duration of fn.
func (s *Store) read(fn func(ctx context.Context) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()
	return fn(ctx)
}

// selectRows runs query and collects one T per row. Rows for which scan
// reports keep=false are dropped.
func selectRows[T any](s *Store, what, query string, args []any, scan func(*sql.Rows) (v T, keep bool, err error)) ([]T, error) {
	var out []T
	err := s.read(func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			v, keep, err := scan(rows)
			if err != nil {
				return fmt.Errorf("scan %s: %w", what, err)
			}
			if keep {
				out = append(out, v)
			}
		}
		return rows.Err()
	})
	return out, err
}

// byDataset narrows base to one dataset unless dataset is empty.
func byDataset(base, dataset, tail string) (string, []any) {
	if dataset == "" {
		return base + " " + tail, nil
	}
	return base + " WHERE dataset_code = ? " + tail, []any{dataset}
}

type modelCount struct {
	m model.Model
	n int64
}

// CountWinsByModel returns the number of sites each model won. An empty
// dataset counts across all datasets. Models without wins are omitted.
func (s *Store) CountWinsByModel(dataset string) (map[model.Model]int64, error) {
	query, args := byDataset(`SELECT model_code, COUNT(*) FROM wins`, dataset, `GROUP BY model_code`)
	rows, err := selectRows(s, "win count", query, args, func(r *sql.Rows) (modelCount, bool, error) {
		var code int
		var c modelCount
		if err := r.Scan(&code, &c.n); err != nil {
			return c, false, err
		}
		c.m = model.Model(code)
		return c, c.m.Valid(), nil
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[model.Model]int64, model.Count)
	for _, c := range rows {
		counts[c.m] = c.n
	}
	return counts, nil
}

// ValuesForModelAndType returns every stored value for one model and value
// type in ascending order. Absent values sort first unless excluded.
func (s *Store) ValuesForModelAndType(m model.Model, vt model.ValueType, excludeAbsent bool) ([]model.Score, error) {
	return s.Values(model.ValueQuery{Model: m, ValueType: vt, ExcludeAbsent: excludeAbsent})
}

// Values returns the values matching q in ascending order, absent first.
func (s *Store) Values(q model.ValueQuery) ([]model.Score, error) {
	var where strings.Builder
	where.WriteString("model_code = ? AND value_type = ?")
	args := []any{q.Model.Code(), q.ValueType.String()}

	if q.Dataset != "" {
		where.WriteString(" AND dataset_code = ?")
		args = append(args, q.Dataset)
	}
	switch {
	case q.PositiveOnly:
		where.WriteString(" AND value IS NOT NULL AND value > 0")
	case q.ExcludeAbsent:
		where.WriteString(" AND value IS NOT NULL")
	}

	query := `SELECT value FROM "values" WHERE ` + where.String() +
		` ORDER BY value ASC NULLS FIRST, dataset_code, site`

	return selectRows(s, "value", query, args, func(r *sql.Rows) (model.Score, bool, error) {
		var v sql.NullFloat64
		if err := r.Scan(&v); err != nil {
			return model.Absent, false, err
		}
		if !v.Valid {
			return model.Absent, true, nil
		}
		return model.Some(v.Float64), true, nil
	})
}

// Wins returns the stored winners ordered by dataset and site. An empty
// dataset returns every dataset.
func (s *Store) Wins(dataset string) ([]model.WinRecord, error) {
	query, args := byDataset(
		`SELECT dataset_code, site, S, N, model_code, AICc_weight_model FROM wins`,
		dataset, `ORDER BY dataset_code, site`)

	return selectRows(s, "win", query, args, func(r *sql.Rows) (model.WinRecord, bool, error) {
		var w model.WinRecord
		var code int
		err := r.Scan(&w.Dataset, &w.Site, &w.S, &w.N, &code, &w.Value)
		w.Model = model.Model(code)
		return w, true, err
	})
}

// ListDatasets returns the dataset codes that have stored winners.
func (s *Store) ListDatasets() ([]string, error) {
	return selectRows(s, "dataset", `SELECT DISTINCT dataset_code FROM wins ORDER BY dataset_code`, nil,
		func(r *sql.Rows) (string, bool, error) {
			var d string
			err := r.Scan(&d)
			return d, true, err
		})
}

// ExecuteQuery runs an ad-hoc read-only query and returns at most
// maxQueryRows rows keyed by column name. Statements that could modify the
// database are rejected before reaching the driver.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	query, err := readOnly(query)
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	err = s.read(func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		cells := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range cells {
			dest[i] = &cells[i]
		}

		for len(results) < maxQueryRows && rows.Next() {
			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("scan row %d: %w", len(results), err)
			}
			row := make(map[string]interface{}, len(cols))
			for i, col := range cols {
				if b, ok := cells[i].([]byte); ok {
					row[col] = string(b)
				} else {
					row[col] = cells[i]
				}
			}
			results = append(results, row)
		}
		return rows.Err()
	})
	return results, err
}

// GetSchemaDescription returns a human-readable schema description.
func (s *Store) GetSchemaDescription() string {
	return `Table 'wins': dataset_code (TEXT), site (TEXT), S (BIGINT: species richness), ` +
		`N (BIGINT: total abundance), model_code (INTEGER: ` + model.ModelLegend() + `), ` +
		`model_name (TEXT), AICc_weight_model (DOUBLE: AICc weight of the winning model). ` +
		`Table "values": dataset_code, site, S, N, model_code, model_name as in wins, ` +
		`value_type (TEXT: 'AICc weight' or 'likelihood'), value (DOUBLE, NULL when absent).`
}

// TableRowCounts returns the row count of each result table. Tables that
// cannot be counted are left out.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	counts := make(map[string]int64, len(resultTables))
	err := s.read(func(ctx context.Context) error {
		for _, table := range resultTables {
			var n int64
			if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+migrate.QuoteIdent(table)).Scan(&n); err == nil {
				counts[table] = n
			}
		}
		return nil
	})
	return counts, err
}

// TableColumns returns the column names and declared types of each result table.
func (s *Store) TableColumns() (map[string][]model.ColumnInfo, error) {
	query := `SELECT column_name, data_type FROM information_schema.columns
		WHERE table_name = ? ORDER BY ordinal_position`
	if s.driver == DriverSQLite {
		query = `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`
	}

	result := make(map[string][]model.ColumnInfo, len(resultTables))
	for _, table := range resultTables {
		cols, err := selectRows(s, "column", query, []any{table}, func(r *sql.Rows) (model.ColumnInfo, bool, error) {
			var c model.ColumnInfo
			err := r.Scan(&c.Column, &c.Type)
			return c, true, err
		})
		if err != nil {
			return nil, fmt.Errorf("columns of %s: %w", table, err)
		}
		result[table] = cols
	}
	return result, nil
}
