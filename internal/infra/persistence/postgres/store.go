// Package postgres provides a Postgres-backed document medium.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"inventario/internal/infra/persistence"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/inventario?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store keeps each document as one row of the documents table.
type Store struct {
	db    *sql.DB
	quota int64
	mu    sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithQuota caps the total bytes (keys plus payloads) held by the table.
func WithQuota(limit int64) Option {
	return func(s *Store) { s.quota = limit }
}

// New opens a Postgres-backed medium using dsn (falls back to defaultDSN) and
// ensures the documents table exists.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureDocumentsTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func ensureDocumentsTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS documents (
		doc_key TEXT PRIMARY KEY,
		payload BYTEA NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure documents table: %w", err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM documents WHERE doc_key=$1`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", key, err)
	}
	return payload, true, nil
}

func (s *Store) Write(ctx context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if s.quota > 0 {
		used, err := usage(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := persistence.CheckQuota(s.quota, used, key, payload); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents(doc_key,payload) VALUES($1,$2) ON CONFLICT(doc_key) DO UPDATE SET payload=EXCLUDED.payload`, key, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// usage sums the bytes held under every key other than key.
func usage(ctx context.Context, tx *sql.Tx, key string) (int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT doc_key, payload FROM documents`)
	if err != nil {
		return 0, fmt.Errorf("measure usage: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var used int64
	for rows.Next() {
		var k string
		var payload []byte
		if err := rows.Scan(&k, &payload); err != nil {
			return 0, fmt.Errorf("scan usage: %w", err)
		}
		if k != key {
			used += int64(len(k) + len(payload))
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate usage: %w", err)
	}
	return used, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_key=$1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
