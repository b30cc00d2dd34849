package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookups of a missing row.
var ErrNotFound = errors.New("not found")

// Dialect selects the SQL flavour a Store speaks.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// Store is the relational store behind the knowledge base, conversation
// history, user profiles and analytics. It implements the domain store
// interfaces for both SQLite and MySQL.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// NewSQLiteStore opens (creating if needed) a SQLite database file and
// applies pending migrations.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite; writers serialize on it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return newStore(db, DialectSQLite, logger)
}

func newStore(db *sql.DB, dialect Dialect, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, dialect: dialect, logger: logger}
	if err := RunMigrations(db, dialect, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle for maintenance commands.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the SQL flavour of the store.
func (s *Store) Dialect() Dialect { return s.dialect }

// Status describes database connectivity for the admin API.
type Status struct {
	Connected     bool   `json:"connected"`
	Driver        string `json:"driver"`
	SchemaVersion int    `json:"schema_version"`
	OpenConns     int    `json:"open_connections"`
	InUse         int    `json:"in_use"`
	Idle          int    `json:"idle"`
	Error         string `json:"error,omitempty"`
}

// Status pings the database and reports pool statistics.
func (s *Store) Status(ctx context.Context) Status {
	st := Status{Driver: string(s.dialect)}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Connected = true
	st.SchemaVersion, _ = GetSchemaVersion(s.db)
	stats := s.db.Stats()
	st.OpenConns, st.InUse, st.Idle = stats.OpenConnections, stats.InUse, stats.Idle
	return st
}

func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the timestamp stored with new rows. UTC keeps SQLite's textual
// timestamps comparable.
func now() time.Time {
	return time.Now().UTC()
}
