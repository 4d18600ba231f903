package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// OpenFunc builds fresh Options, including newly opened stores, for each
// (re)load of the session.
type OpenFunc func(ctx context.Context) (Options, error)

// Session owns the live Manager. Reload swaps in a new one opened through the
// normal load path, which is how a restored document becomes active.
type Session struct {
	mu   sync.Mutex
	open OpenFunc
	m    *Manager
}

// NewSession opens the first Manager.
func NewSession(ctx context.Context, open OpenFunc) (*Session, error) {
	if open == nil {
		return nil, errors.New("core: open func required")
	}
	s := &Session{open: open}
	m, err := s.openManager(ctx)
	if err != nil {
		return nil, err
	}
	s.m = m
	return s, nil
}

func (s *Session) openManager(ctx context.Context) (*Manager, error) {
	opts, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	m, err := Open(ctx, opts)
	if err != nil {
		// Open fails before Blobs.Init, so the blob store holds no handle; a
		// shared in-memory store must not lose one that belongs to the live
		// Manager.
		if opts.State != nil {
			_ = opts.State.Close()
		}
		return nil, err
	}
	return m, nil
}

// Manager returns the live Manager.
func (s *Session) Manager() *Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m
}

// Reload replaces the live Manager with a freshly loaded one. The new Manager
// is opened before the old one is closed; when opening fails the old Manager
// stays live with its autosave resumed.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var resume func(context.Context)
	if s.m != nil {
		resume = s.m.SuspendAutosave()
	}
	m, err := s.openManager(ctx)
	if err != nil {
		if resume != nil {
			resume(ctx)
		}
		return fmt.Errorf("reload session: %w", err)
	}
	old := s.m
	s.m = m
	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.Warn("closing replaced session failed", "error", err)
		}
	}
	return nil
}

// Close closes the live Manager.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		return nil
	}
	err := s.m.Close()
	s.m = nil
	return err
}
