// Package store is the relational layer behind casewatch: loosely typed
// source tables (every column TEXT), per-record persistence keyed by an
// opaque row id, and the audit log. SQLite and Postgres are supported through
// database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Driver names accepted by Open.
const (
	DriverSQLiteCgo = "sqlite3"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "pgx"
)

var (
	// ErrRowNotFound is returned when no row matches an id or case number.
	ErrRowNotFound = errors.New("row not found")
	// ErrInvalidIdentifier is returned for table or column names outside [A-Za-z_][A-Za-z0-9_]*.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Store wraps a database connection and its SQL dialect.
type Store struct {
	db      *sql.DB
	driver  string
	dialect dialect
}

// NewStore opens a SQLite database at path with the default SQLite driver
// for this build.
func NewStore(path string) (*Store, error) {
	return Open("", path)
}

// Open connects to dsn with the named driver ("" picks the SQLite driver
// compiled into this build) and runs migrations.
func Open(driver, dsn string) (*Store, error) {
	driver = normalizeDriver(driver)
	d := dialectFor(driver)

	if d == dialectSQLite {
		if dsn == "" {
			dsn = "data/casewatch.db"
		}
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if dir := filepath.Dir(dsn); dir != "" && dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
				}
			}
		}
	}

	db, err := sql.Open(driver, sqliteDSN(driver, dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d == dialectSQLite {
		// One connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver, dialect: d}
	if err := s.Ping(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "":
		return sqliteDriver
	case "postgres", "postgresql", "pgx":
		return DriverPostgres
	case "sqlite3":
		return DriverSQLiteCgo
	case "sqlite":
		return DriverSQLite
	default:
		return driver
	}
}

func sqliteDSN(driver, dsn string) string {
	switch driver {
	case DriverSQLiteCgo:
		if strings.Contains(dsn, "?") {
			return dsn
		}
		return dsn + "?_journal_mode=WAL&_foreign_keys=off"
	default:
		return dsn
	}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate performs database migrations
func (s *Store) migrate() error {
	for _, migration := range s.dialect.auditMigrations() {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}
