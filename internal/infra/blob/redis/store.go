// Package redis implements the blob store on Redis, one hash per partition.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"inventario/internal/blob/core"
)

// Store implements core.Store on Redis. Partition p lives in the hash
// "<namespace>:<p>" with one field per key; the schema marker is the string
// key "<namespace>:schema".
type Store struct {
	opts      *redis.Options
	namespace string

	mu     sync.RWMutex
	rdb    *redis.Client
	schema core.Schema
}

// New returns a Redis-backed store. The connection is opened by Init.
func New(opts *redis.Options, namespace string) (*Store, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis options required")
	}
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &Store{opts: opts, namespace: namespace}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverRedis }

func (s *Store) hashKey(partition string) string { return s.namespace + ":" + partition }

func (s *Store) schemaKey() string { return s.namespace + ":schema" }

func (s *Store) client(partition string) (*redis.Client, error) {
	if err := core.CheckPartition(partition); err != nil {
		return nil, err
	}
	if s.rdb == nil {
		return nil, core.ErrNotInitialized
	}
	return s.rdb, nil
}

// Init connects, verifies connectivity and upgrades the schema marker.
// Hashes need no creation, so partitions exist implicitly.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rdb == nil {
		s.rdb = redis.NewClient(s.opts)
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return core.Unavailable(s.Driver(), err)
	}
	var current core.Schema
	raw, err := s.rdb.Get(ctx, s.schemaKey()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return core.Unavailable(s.Driver(), err)
	default:
		if err := json.Unmarshal(raw, &current); err != nil {
			return core.Unavailable(s.Driver(), fmt.Errorf("schema marker: %w", err))
		}
	}
	next := current.Upgrade()
	b, err := json.Marshal(next)
	if err != nil {
		return core.Unavailable(s.Driver(), err)
	}
	if err := s.rdb.Set(ctx, s.schemaKey(), b, 0).Err(); err != nil {
		return core.Unavailable(s.Driver(), err)
	}
	s.schema = next
	return nil
}

// Put sets the hash field.
func (s *Store) Put(ctx context.Context, partition, key string, payload []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rdb, err := s.client(partition)
	if err != nil {
		return err
	}
	if err := rdb.HSet(ctx, s.hashKey(partition), key, payload).Err(); err != nil {
		return core.WriteFailed(partition, key, err)
	}
	return nil
}

// Get reads the hash field; a missing field reports found=false.
func (s *Store) Get(ctx context.Context, partition, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rdb, err := s.client(partition)
	if err != nil {
		return nil, false, err
	}
	b, err := rdb.HGet(ctx, s.hashKey(partition), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Delete removes the hash field.
func (s *Store) Delete(ctx context.Context, partition, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rdb, err := s.client(partition)
	if err != nil {
		return err
	}
	return rdb.HDel(ctx, s.hashKey(partition), key).Err()
}

// List reads the whole partition hash.
func (s *Store) List(ctx context.Context, partition string) ([]core.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rdb, err := s.client(partition)
	if err != nil {
		return nil, err
	}
	all, err := rdb.HGetAll(ctx, s.hashKey(partition)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]core.Entry, 0, len(all))
	for k, v := range all {
		out = append(out, core.Entry{Key: k, Payload: []byte(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Destroy deletes every partition hash and the schema marker, then closes
// the connection. Redis has no exclusive handles, so it is never blocked.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rdb == nil {
		s.rdb = redis.NewClient(s.opts)
	}
	keys := []string{s.schemaKey()}
	for _, p := range s.schema.Upgrade().Partitions {
		keys = append(keys, s.hashKey(p))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	s.schema = core.Schema{}
	return s.closeLocked()
}

// Close closes the connection; Init reconnects.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Store) closeLocked() error {
	if s.rdb == nil {
		return nil
	}
	err := s.rdb.Close()
	s.rdb = nil
	return err
}
