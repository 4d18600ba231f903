// Package statestore persists the single session document through a key/value
// medium, migrating and default-merging it on the way back in.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"inventario/pkg/domain"
)

// Medium is a durable key to document store. Implementations reject writes
// that would exceed their byte quota with domain.ErrQuotaExceeded.
type Medium interface {
	Read(ctx context.Context, key string) (payload []byte, found bool, err error)
	Write(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// QuarantineFunc receives the bytes of an undecodable document before it is
// removed from the medium.
type QuarantineFunc func(ctx context.Context, key string, raw []byte) error

// Store reads and writes the session document under a fixed key.
type Store struct {
	medium     Medium
	key        string
	logger     *slog.Logger
	quarantine QuarantineFunc
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the document key (default domain.StateKey).
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used for migration and quarantine messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQuarantine keeps undecodable documents through fn instead of dropping
// them. fn must not write into the quota-limited medium.
func WithQuarantine(fn QuarantineFunc) Option {
	return func(s *Store) { s.quarantine = fn }
}

// QuarantineToDir writes each undecodable document to
// dir/<key>-<timestamp>.corrupt.json.
func QuarantineToDir(dir string, now func() time.Time) QuarantineFunc {
	if now == nil {
		now = time.Now
	}
	return func(_ context.Context, key string, raw []byte) error {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
		name := fmt.Sprintf("%s-%s.corrupt.json", key, now().UTC().Format("20060102T150405.000"))
		return os.WriteFile(filepath.Join(dir, name), raw, 0o600)
	}
}

// New wraps a medium.
func New(m Medium, opts ...Option) *Store {
	s := &Store{medium: m, key: domain.StateKey, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the document key.
func (s *Store) Key() string { return s.key }

// Encode serialises state through the allow-list codec. Runtime-only fields
// never appear in the output.
func Encode(state *domain.ApplicationState) ([]byte, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return b, nil
}

// Save writes the full document. A quota rejection is returned unchanged so
// callers can match domain.ErrQuotaExceeded; it is never retried.
func (s *Store) Save(ctx context.Context, state *domain.ApplicationState) error {
	payload, err := Encode(state)
	if err != nil {
		return err
	}
	if err := s.medium.Write(ctx, s.key, payload); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			return err
		}
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Load reads, migrates and default-merges the stored document. found is false
// when nothing has been saved yet. An undecodable document yields
// domain.ErrCorruptDocument.
func (s *Store) Load(ctx context.Context) (*domain.ApplicationState, bool, error) {
	raw, found, err := s.medium.Read(ctx, s.key)
	if err != nil {
		return nil, false, fmt.Errorf("read state: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	state, from, err := decode(raw)
	if err != nil {
		return nil, true, err
	}
	if from < domain.SchemaVersion {
		s.logger.Info("state document migrated", "from", from, "to", domain.SchemaVersion)
	}
	return state, true, nil
}

// Clear deletes the stored document.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.medium.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Quarantine removes an undecodable document from the medium so a fresh
// session can start. The bytes go to the quarantine sink when one is set; a
// failing sink is logged and does not keep the document in place.
func (s *Store) Quarantine(ctx context.Context) error {
	raw, found, err := s.medium.Read(ctx, s.key)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	if !found {
		return nil
	}
	switch {
	case s.quarantine == nil:
		s.logger.Warn("corrupt state document discarded", "key", s.key, "bytes", len(raw))
	default:
		if err := s.quarantine(ctx, s.key, raw); err != nil {
			s.logger.Warn("quarantining corrupt state failed, document discarded", "key", s.key, "bytes", len(raw), "error", err)
		} else {
			s.logger.Warn("corrupt state document quarantined", "key", s.key, "bytes", len(raw))
		}
	}
	return s.Clear(ctx)
}

// Import validates a raw document, as found in a session archive, and writes
// it as the active document without re-encoding. Excluded runtime fields are
// stripped first.
func (s *Store) Import(ctx context.Context, raw []byte) error {
	if _, err := Decode(raw); err != nil {
		return err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Wrap(domain.CodeCorruptDocument, "decode state", err)
	}
	domain.StripExcluded(doc)
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.medium.Write(ctx, s.key, payload); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			return err
		}
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Decode runs the full load pipeline on raw bytes: strip runtime fields,
// migrate, merge defaults, decode and normalise.
func Decode(raw []byte) (*domain.ApplicationState, error) {
	state, _, err := decode(raw)
	return state, err
}

func decode(raw []byte) (*domain.ApplicationState, int, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, 0, domain.Wrap(domain.CodeCorruptDocument, "decode state", err)
	}
	if doc == nil {
		return nil, 0, domain.NewError(domain.CodeCorruptDocument, "decode state: document is null")
	}
	domain.StripExcluded(doc)
	from, err := domain.Migrate(doc)
	if err != nil {
		return nil, 0, domain.Wrap(domain.CodeCorruptDocument, "migrate state", err)
	}
	domain.MergeDefaults(doc)
	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, 0, fmt.Errorf("encode merged state: %w", err)
	}
	var state domain.ApplicationState
	if err := json.Unmarshal(merged, &state); err != nil {
		return nil, 0, domain.Wrap(domain.CodeCorruptDocument, "decode state", err)
	}
	domain.Normalize(&state)
	return &state, from, nil
}

// Close releases the medium.
func (s *Store) Close() error { return s.medium.Close() }
