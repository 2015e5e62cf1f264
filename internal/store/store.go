package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tinytelemetry/sadcompare/internal/store/migrate"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// Table names of the two result relations.
const (
	TableWins   = "wins"
	TableValues = "values"
)

// Config selects the backing database.
type Config struct {
	Driver       string        // duckdb (default) or sqlite
	Path         string        // empty = in-memory
	QueryTimeout time.Duration // defaults to 30s
}

// Store owns the result database connection and provides the write path and
// the reporting queries. Writers take the write lock for a whole dataset
// transaction, so concurrent datasets never interleave.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	driver       string
	dbPath       string
	QueryTimeout time.Duration
}

// NewStore opens or creates the result database and applies migrations.
func NewStore(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverDuckDB
	}
	if driver != DriverDuckDB && driver != DriverSQLite {
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	dsn := ""
	if cfg.Path != "" {
		// Ensure parent directory exists
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, err
		}
		dsn = cfg.Path
	} else if driver == DriverSQLite {
		dsn = ":memory:"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	qt := 30 * time.Second
	if cfg.QueryTimeout > 0 {
		qt = cfg.QueryTimeout
	}

	if driver == DriverSQLite {
		// One connection keeps in-memory databases shared and serializes writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", qt.Milliseconds())); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: set busy_timeout: %w", err)
		}
	}

	if err := migrate.NewRunner(db).Run(); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:           db,
		driver:       driver,
		dbPath:       cfg.Path,
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct query access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database driver name.
func (s *Store) Driver() string {
	return s.driver
}

// SchemaVersion returns the applied migration version and pending count.
func (s *Store) SchemaVersion() (current int, pending int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return migrate.NewRunner(s.db).Status()
}
