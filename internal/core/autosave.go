package core

import (
	"context"
	"sync"
	"time"
)

// autosave tracks the background save goroutine. Its mutex is independent of
// the manager lock so read-only entry can signal a stop while holding it.
type autosave struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// StartAutosave saves every interval until StopAutosave, read-only entry or
// ctx cancellation. It does nothing in read-only mode.
func (m *Manager) StartAutosave(ctx context.Context, interval time.Duration) {
	m.StopAutosave()
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval <= 0 || m.state.ReadOnlyMode {
		return
	}
	m.autosaveInterval = interval
	m.startAutosaveLocked(ctx, interval)
}

func (m *Manager) startAutosaveLocked(ctx context.Context, interval time.Duration) {
	m.auto.mu.Lock()
	defer m.auto.mu.Unlock()
	if m.auto.stop != nil {
		close(m.auto.stop)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.auto.stop, m.auto.done = stop, done
	go m.runAutosave(ctx, interval, stop, done)
}

func (m *Manager) runAutosave(ctx context.Context, interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.auto.mu.Lock()
			if m.auto.stop == stop {
				m.auto.stop, m.auto.done = nil, nil
			}
			m.auto.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			m.autosaveTick(ctx)
		}
	}
}

// autosaveTick performs one autosave unless the session is read-only.
func (m *Manager) autosaveTick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.ReadOnlyMode {
		return
	}
	now := m.isoNow()
	m.state.LastAutosave = &now
	m.logLocked("Autoguardado", "El progreso de la sesión se guardó automáticamente.")
	if err := m.saveLocked(ctx, "autosave"); err != nil {
		m.logger.Warn("autosave failed", "error", err)
	}
}

// signalAutosaveStop asks the goroutine to exit without waiting for it.
func (m *Manager) signalAutosaveStop() {
	m.auto.mu.Lock()
	defer m.auto.mu.Unlock()
	if m.auto.stop != nil {
		close(m.auto.stop)
		m.auto.stop = nil
	}
}

// StopAutosave stops the goroutine and waits for it to exit. It must not be
// called while holding the manager lock.
func (m *Manager) StopAutosave() {
	m.auto.mu.Lock()
	stop, done := m.auto.stop, m.auto.done
	m.auto.stop, m.auto.done = nil, nil
	m.auto.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}

// AutosaveRunning reports whether an autosave goroutine is active.
func (m *Manager) AutosaveRunning() bool {
	m.auto.mu.Lock()
	defer m.auto.mu.Unlock()
	return m.auto.stop != nil
}

// SuspendAutosave stops autosave and returns a function that restarts it when
// it was running. The archiver uses it around a direct document overwrite.
func (m *Manager) SuspendAutosave() (resume func(ctx context.Context)) {
	running := m.AutosaveRunning()
	m.StopAutosave()
	return func(ctx context.Context) {
		if !running {
			return
		}
		m.mu.Lock()
		interval := m.autosaveInterval
		m.mu.Unlock()
		m.StartAutosave(context.WithoutCancel(ctx), interval)
	}
}
