// Package memory provides an in-memory document medium for tests and
// ephemeral sessions.
package memory

import (
	"context"
	"sync"

	"inventario/internal/infra/persistence"
)

// Store keeps documents in a map guarded by a mutex. Contents survive Close.
type Store struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	quota int64
	// FailWrites, when set, is returned by every Write.
	FailWrites error
}

// Option configures a Store.
type Option func(*Store)

// WithQuota caps the total bytes (keys plus payloads) the store accepts.
func WithQuota(limit int64) Option {
	return func(s *Store) { s.quota = limit }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{docs: make(map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.docs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *Store) Write(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	if err := persistence.CheckQuota(s.quota, s.usedExcept(key), key, payload); err != nil {
		return err
	}
	s.docs[key] = append([]byte(nil), payload...)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.docs, key)
	s.mu.Unlock()
	return nil
}

// Close is a no-op; documents stay available to later readers.
func (s *Store) Close() error { return nil }

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) usedExcept(key string) int64 {
	var n int64
	for k, v := range s.docs {
		if k == key {
			continue
		}
		n += int64(len(k) + len(v))
	}
	return n
}
