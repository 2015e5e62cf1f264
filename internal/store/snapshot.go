package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrInMemoryStore is returned when snapshotting a store that has no file.
var ErrInMemoryStore = errors.New("store: in-memory store cannot be snapshotted")

// DBPath returns the database file, "" for an in-memory store.
func (s *Store) DBPath() string { return s.dbPath }

// checkpoint flushes the write-ahead log into the main database file so a
// plain file copy is consistent. Writers wait only for this step.
func (s *Store) checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt := "CHECKPOINT"
	if s.driver == DriverSQLite {
		stmt = "PRAGMA wal_checkpoint(TRUNCATE)"
	}
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("checkpoint %s: %w", s.driver, err)
	}
	return nil
}

// SnapshotTo copies the on-disk database to dst. The copy lands under a
// temporary name first, so dst is either absent or complete.
func (s *Store) SnapshotTo(dst string) error {
	if s.dbPath == "" {
		return ErrInMemoryStore
	}
	if err := s.checkpoint(); err != nil {
		return err
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dst)+".*.partial")
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := fillFrom(tmp, s.dbPath); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("copy %s file: %w", s.driver, err)
	}
	return os.Rename(tmp.Name(), dst)
}

// fillFrom copies src into dst, syncs and closes dst.
func fillFrom(dst *os.File, src string) error {
	in, err := os.Open(src)
	if err != nil {
		dst.Close()
		return err
	}
	defer in.Close()

	_, err = io.Copy(dst, in)
	if err == nil {
		err = dst.Sync()
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return err
}
