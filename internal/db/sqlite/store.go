// Package sqlite provides read-mostly access to the databases the
// coding assistant maintains for a project. The watchdog opens them,
// queries file and function records, and performs exactly one kind of
// write: fast-forwarding a file's modification marker.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "modernc.org/sqlite"
)

// StoreConfig holds database connection configuration.
type StoreConfig struct {
	Path     string
	MaxConns int
	ReadOnly bool
}

// Store wraps a SQLite connection with a prepared statement cache.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	stmts map[string]*sql.Stmt
}

// NewStore opens the database at cfg.Path. The file must already exist:
// the assistant owns schema creation and the watchdog never initializes
// a database on its behalf.
func NewStore(cfg StoreConfig) (*Store, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("database %s: %w", cfg.Path, err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", cfg.Path)
	if cfg.ReadOnly {
		dsn += "&mode=ro"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Path, err)
	}

	return newStoreFromDB(db), nil
}

// newStoreFromDB wraps an existing connection. Used by tests.
func newStoreFromDB(db *sql.DB) *Store {
	return &Store{
		db:    db,
		stmts: make(map[string]*sql.Stmt),
	}
}

// GetStmt returns a cached prepared statement for the query, preparing
// it on first use.
func (s *Store) GetStmt(query string) (*sql.Stmt, error) {
	s.mu.RLock()
	stmt, ok := s.stmts[query]
	s.mu.RUnlock()
	if ok {
		return stmt, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have prepared it while we waited
	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	s.stmts[query] = stmt
	return stmt, nil
}

// ExecContext executes a query without returning rows.
func (s *Store) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (s *Store) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query expected to return at most one row.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Ping verifies the database connection is alive.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes all cached statements and the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	for _, stmt := range s.stmts {
		_ = stmt.Close()
	}
	s.stmts = make(map[string]*sql.Stmt)
	s.mu.Unlock()

	return s.db.Close()
}
