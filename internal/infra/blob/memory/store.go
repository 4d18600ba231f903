// Package memory implements an in-memory blob Store for tests and ephemeral
// sessions.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"inventario/internal/blob/core"
)

// Store implements core.Store backed by process memory.
type Store struct {
	mu     sync.RWMutex
	parts  map[string]map[string][]byte
	schema core.Schema
	// handles counts Init calls not yet matched by Close, so a store shared by
	// successive managers stays open until the last one closes it.
	handles int
	quota   int64
	used    int64
}

// Option configures a Store.
type Option func(*Store)

// WithQuota makes Put fail once the total stored payload would exceed n bytes.
func WithQuota(n int64) Option {
	return func(s *Store) { s.quota = n }
}

// New returns an in-memory blob store. Call Init before use.
func New(opts ...Option) *Store {
	s := &Store{parts: make(map[string]map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Init creates missing partitions and opens a handle.
func (s *Store) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = s.schema.Upgrade()
	for _, p := range s.schema.Partitions {
		if s.parts[p] == nil {
			s.parts[p] = make(map[string][]byte)
		}
	}
	s.handles++
	return nil
}

func (s *Store) partition(name string) (map[string][]byte, error) {
	if err := core.CheckPartition(name); err != nil {
		return nil, err
	}
	if s.handles == 0 {
		return nil, core.ErrNotInitialized
	}
	return s.parts[name], nil
}

// Put upserts a copy of payload.
func (s *Store) Put(_ context.Context, partition, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return err
	}
	delta := int64(len(payload) - len(p[key]))
	if s.quota > 0 && s.used+delta > s.quota {
		return core.WriteFailed(partition, key, fmt.Errorf("quota of %d bytes exceeded", s.quota))
	}
	p[key] = append([]byte(nil), payload...)
	s.used += delta
	return nil
}

// Get returns a copy of the stored payload.
func (s *Store) Get(_ context.Context, partition, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.partition(partition)
	if err != nil {
		return nil, false, err
	}
	b, ok := p[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

// Delete removes the key if present.
func (s *Store) Delete(_ context.Context, partition, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return err
	}
	s.used -= int64(len(p[key]))
	delete(p, key)
	return nil
}

// List returns all entries of a partition ordered by key.
func (s *Store) List(_ context.Context, partition string) ([]core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.partition(partition)
	if err != nil {
		return nil, err
	}
	out := make([]core.Entry, 0, len(p))
	for k, v := range p {
		out = append(out, core.Entry{Key: k, Payload: append([]byte(nil), v...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Destroy drops every partition and closes the caller's handle.
func (s *Store) Destroy(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts = make(map[string]map[string][]byte)
	s.schema = core.Schema{}
	s.used = 0
	s.release()
	return nil
}

// Close releases one handle; contents survive until Destroy.
func (s *Store) Close() error {
	s.mu.Lock()
	s.release()
	s.mu.Unlock()
	return nil
}

func (s *Store) release() {
	if s.handles > 0 {
		s.handles--
	}
}
