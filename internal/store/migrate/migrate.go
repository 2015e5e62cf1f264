package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
)

//go:embed migrations/*.sql
var files embed.FS

// Migration is one embedded schema step. Files are named <version>_<name>.sql
// and must be replayable (IF NOT EXISTS) because Recreate runs all of them
// again after dropping the result tables.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

const historyDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       VARCHAR NOT NULL,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

var embedded = sync.OnceValues(func() ([]Migration, error) {
	names, err := files.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}

	var out []Migration
	for _, e := range names {
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if e.IsDir() || !ok || path.Ext(e.Name()) != ".sql" {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version prefix: %w", e.Name(), err)
		}
		body, err := files.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: e.Name(), SQL: string(body)})
	}
	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
})

// Migrations returns the embedded migrations in version order.
func Migrations() ([]Migration, error) {
	return embedded()
}

// Runner applies the embedded migrations to one database.
type Runner struct{ db *sql.DB }

// NewRunner creates a migration runner for the given database connection.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

func (r *Runner) inTx(what string, fn func(*sql.Tx) error) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("%s: begin: %w", what, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s: %w", what, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", what, err)
	}
	return nil
}

// current returns the highest applied version, 0 on a fresh database.
func (r *Runner) current() (int, error) {
	if _, err := r.db.Exec(historyDDL); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	var v sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading applied version: %w", err)
	}
	return int(v.Int64), nil
}

// Run applies every migration newer than the recorded version, each in its
// own transaction together with its schema_migrations row.
func (r *Runner) Run() error {
	migs, err := embedded()
	if err != nil {
		return err
	}
	current, err := r.current()
	if err != nil {
		return err
	}

	for _, m := range migs {
		if m.Version <= current {
			continue
		}
		err := r.inTx(m.Name, func(tx *sql.Tx) error {
			if _, err := tx.Exec(m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Recreate drops tables and replays every migration in one transaction,
// leaving them empty with their indexes in place.
func (r *Runner) Recreate(tables ...string) error {
	migs, err := embedded()
	if err != nil {
		return err
	}
	return r.inTx("recreate", func(tx *sql.Tx) error {
		for _, t := range tables {
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + QuoteIdent(t)); err != nil {
				return fmt.Errorf("drop %s: %w", t, err)
			}
		}
		for _, m := range migs {
			if _, err := tx.Exec(m.SQL); err != nil {
				return fmt.Errorf("replay %s: %w", m.Name, err)
			}
		}
		return nil
	})
}

// Status returns the applied version and how many embedded migrations are
// newer than it.
func (r *Runner) Status() (current int, pending int, err error) {
	migs, err := embedded()
	if err != nil {
		return 0, 0, err
	}
	if current, err = r.current(); err != nil {
		return 0, 0, err
	}
	for _, m := range migs {
		if m.Version > current {
			pending++
		}
	}
	return current, pending, nil
}

// QuoteIdent quotes a table or column name for use in SQL text.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
