// Package sqlite provides the default durable document medium on an embedded
// SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"inventario/internal/infra/persistence"
)

const defaultPath = "inventario.db"

// Store keeps each document as one row of the documents table.
type Store struct {
	db    *sql.DB
	path  string
	quota int64
	mu    sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithQuota caps the total bytes (keys plus payloads) held by the table.
func WithQuota(limit int64) Option {
	return func(s *Store) { s.quota = limit }
}

// New opens (creating when needed) the SQLite file at path.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		doc_key TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	s := &Store{db: db, path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM documents WHERE doc_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select %s: %w", key, err)
	}
	return payload, true, nil
}

func (s *Store) Write(ctx context.Context, key string, payload []byte) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if s.quota > 0 {
		var used int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(length(CAST(doc_key AS BLOB)) + length(payload)), 0) FROM documents WHERE doc_key <> ?`,
			key).Scan(&used); err != nil {
			return fmt.Errorf("measure usage: %w", err)
		}
		if err := persistence.CheckQuota(s.quota, used, key, payload); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents(doc_key,payload) VALUES(?,?) ON CONFLICT(doc_key) DO UPDATE SET payload=excluded.payload`,
		key, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
