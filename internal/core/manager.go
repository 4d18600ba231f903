// Package core owns the live session document: loading, saving with the
// read-only fallback, autosave, the serial index and every state mutation.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"inventario/internal/blob"
	"inventario/internal/logging"
	"inventario/internal/statestore"
	"inventario/pkg/domain"
)

// Options configures Open.
type Options struct {
	// State is the document store. Required.
	State *statestore.Store
	// Blobs is the photo and layout image store. Nil disables photos.
	Blobs blob.Store
	// Logger receives degradation messages. Nil discards.
	Logger *slog.Logger
	// Notifier receives operator notices. Nil logs them.
	Notifier Notifier
	// Now overrides the clock.
	Now func() time.Time
	// NewID overrides identifier generation for custodians and additional items.
	NewID func() string
	// MaxPhotoBytes caps AttachPhoto payloads (default domain.MaxPhotoBytes).
	MaxPhotoBytes int64
	// AutosaveInterval starts autosave on open when positive.
	AutosaveInterval time.Duration
}

// Manager is the sole owner of the session document. Every read returns a
// copy and every write goes through a mutator that holds the manager lock
// until the change is persisted.
type Manager struct {
	mu            sync.Mutex
	state         *domain.ApplicationState
	store         *statestore.Store
	blobs         blob.Store
	photosEnabled bool
	index         *SerialIndex

	logger           *slog.Logger
	notifier         Notifier
	now              func() time.Time
	newID            func() string
	maxPhotoBytes    int64
	autosaveInterval time.Duration
	auto             autosave
}

// Open loads the stored document (or starts a fresh one), opens the blob
// store and rebuilds the serial index. An unavailable blob store disables
// photos but does not fail Open. A corrupt document is quarantined and a
// fresh session starts.
func Open(ctx context.Context, opts Options) (*Manager, error) {
	if opts.State == nil {
		return nil, errors.New("core: state store required")
	}
	m := &Manager{
		store:            opts.State,
		blobs:            opts.Blobs,
		index:            NewSerialIndex(),
		logger:           logging.Component(opts.Logger, "state"),
		notifier:         opts.Notifier,
		now:              opts.Now,
		newID:            opts.NewID,
		maxPhotoBytes:    opts.MaxPhotoBytes,
		autosaveInterval: opts.AutosaveInterval,
	}
	if m.notifier == nil {
		m.notifier = LogNotifier{Logger: m.logger}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.maxPhotoBytes <= 0 {
		m.maxPhotoBytes = domain.MaxPhotoBytes
	}

	state, found, err := opts.State.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrCorruptDocument):
		if qErr := opts.State.Quarantine(ctx); qErr != nil {
			m.logger.Warn("removing corrupt state failed", "error", qErr)
		}
		m.notify(Notice{Kind: NoticeCorruptDocument, Message: "El estado guardado estaba dañado; se inició una sesión nueva.", Err: err})
		state = domain.NewState()
	case err != nil:
		return nil, err
	case !found:
		state = domain.NewState()
	}
	m.state = state
	m.index.Rebuild(state)
	m.initBlobsLocked(ctx)
	if m.autosaveInterval > 0 && !state.ReadOnlyMode {
		m.startAutosaveLocked(context.WithoutCancel(ctx), m.autosaveInterval)
	}
	return m, nil
}

func (m *Manager) initBlobsLocked(ctx context.Context) {
	m.photosEnabled = false
	if m.blobs == nil {
		return
	}
	if err := m.blobs.Init(ctx); err != nil {
		m.logger.Warn("blob store unavailable, photos disabled", "driver", string(m.blobs.Driver()), "error", err)
		m.notify(Notice{Kind: NoticeStorageUnavailable, Message: "No se pudo abrir el almacenamiento de fotos; las fotos están deshabilitadas.", Err: err})
		return
	}
	m.photosEnabled = true
}

func (m *Manager) notify(n Notice) {
	m.notifier.Notify(n)
}

// Close stops autosave and releases both stores.
func (m *Manager) Close() error {
	m.StopAutosave()
	var errs []error
	if m.blobs != nil {
		errs = append(errs, m.blobs.Close())
	}
	errs = append(errs, m.store.Close())
	return errors.Join(errs...)
}

// Snapshot returns a deep copy of the document.
func (m *Manager) Snapshot() (*domain.ApplicationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// ReadOnly reports whether the session has entered read-only mode.
func (m *Manager) ReadOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ReadOnlyMode
}

// PhotosEnabled reports whether the blob store opened successfully.
func (m *Manager) PhotosEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.photosEnabled
}

// Blobs returns the blob store, or nil when photos are disabled.
func (m *Manager) Blobs() blob.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.photosEnabled {
		return nil
	}
	return m.blobs
}

// StateStore returns the document store.
func (m *Manager) StateStore() *statestore.Store { return m.store }

// CheckDuplicate reports whether v matches an indexed serial number or
// business key. A match is a warning only.
func (m *Manager) CheckDuplicate(v string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index.Contains(v)
}

// Save persists the document. It is a no-op in read-only mode. A quota
// rejection switches the session to read-only permanently, stops autosave and
// raises a notice that requires acknowledgement.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(ctx, "explicit")
}

func (m *Manager) saveLocked(ctx context.Context, trigger string) error {
	if m.state.ReadOnlyMode {
		return nil
	}
	err := m.store.Save(ctx, m.state)
	switch {
	case err == nil:
		saveTotal.WithLabelValues(trigger, saveOK).Inc()
		return nil
	case errors.Is(err, domain.ErrQuotaExceeded):
		saveTotal.WithLabelValues(trigger, saveQuota).Inc()
		m.enterReadOnlyLocked(err)
		return err
	default:
		saveTotal.WithLabelValues(trigger, saveError).Inc()
		m.notify(Notice{Kind: NoticeSaveFailed, Message: "No se pudo guardar el progreso.", Err: err})
		return err
	}
}

func (m *Manager) enterReadOnlyLocked(cause error) {
	m.state.ReadOnlyMode = true
	readOnlyTransitions.Inc()
	m.signalAutosaveStop()
	m.logger.Warn("state quota exceeded, session is read-only", "error", cause)
	m.notify(Notice{
		Kind:        NoticeQuotaExceeded,
		RequiresAck: true,
		Err:         cause,
		Message: "No se puede guardar más progreso porque el almacenamiento está lleno. " +
			"La sesión está en modo de sólo lectura. Exporte la sesión y comience una nueva.",
	})
}

// ResetSession replaces the document with defaults, keeping the current user
// and theme, and erases the blob store. It is permitted in read-only mode and
// clears it. A failure to persist the fresh document is reported as a notice
// and does not re-enter read-only mode.
func (m *Manager) ResetSession(ctx context.Context) error {
	m.StopAutosave()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blobs != nil {
		if err := m.blobs.Destroy(ctx); err != nil {
			m.initBlobsLocked(ctx)
			m.resumeAutosaveLocked(ctx)
			return fmt.Errorf("reset blob store: %w", err)
		}
		m.initBlobsLocked(ctx)
	}

	prev := m.state
	next := domain.NewState()
	next.CurrentUser = prev.CurrentUser
	if prev.Theme != "" {
		next.Theme = prev.Theme
	}
	next.LoggedIn = true
	start := m.isoNow()
	next.SessionStartTime = &start
	m.state = next
	m.index.Rebuild(next)

	operator := "operador"
	if next.CurrentUser != nil && next.CurrentUser.Name != "" {
		operator = next.CurrentUser.Name
	}
	m.logLocked("Sesión reiniciada", fmt.Sprintf("Nuevo inventario iniciado por %s.", operator))

	if err := m.store.Save(ctx, next); err != nil {
		saveTotal.WithLabelValues("reset", saveError).Inc()
		m.logger.Warn("save after reset failed", "error", err)
		m.notify(Notice{Kind: NoticeSaveFailed, Message: "La sesión se reinició pero no se pudo guardar.", Err: err})
	} else {
		saveTotal.WithLabelValues("reset", saveOK).Inc()
	}
	m.resumeAutosaveLocked(ctx)
	return nil
}

// resumeAutosaveLocked restarts autosave at the configured interval unless the
// session is read-only. The goroutine outlives ctx.
func (m *Manager) resumeAutosaveLocked(ctx context.Context) {
	if m.autosaveInterval > 0 && !m.state.ReadOnlyMode {
		m.startAutosaveLocked(context.WithoutCancel(ctx), m.autosaveInterval)
	}
}

// mutate applies fn under the lock, rebuilds the serial index and saves. It
// is rejected in read-only mode. fn must validate before changing anything.
func (m *Manager) mutate(ctx context.Context, fn func(s *domain.ApplicationState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.ReadOnlyMode {
		return domain.ErrReadOnly
	}
	if err := fn(m.state); err != nil {
		return err
	}
	m.index.Rebuild(m.state)
	return m.saveLocked(ctx, "mutation")
}

// isoNow formats the clock the way timestamps are stored in the document.
func (m *Manager) isoNow() string {
	return m.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// logLocked appends "[timestamp] action: details" to the activity log.
func (m *Manager) logLocked(action, details string) {
	entry := fmt.Sprintf("[%s] %s: %s", m.now().Format("2/1/2006, 15:04:05"), action, details)
	m.state.ActivityLog = append(m.state.ActivityLog, entry)
}

// LogActivity appends an activity log entry and saves. Logging is allowed in
// read-only mode; the save is then skipped.
func (m *Manager) LogActivity(ctx context.Context, action, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logLocked(action, details)
	return m.saveLocked(ctx, "mutation")
}

// Login records the operator and starts the session clock when unset.
func (m *Manager) Login(ctx context.Context, user domain.User) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		if user.Name == "" {
			return invalid("login", "user name required")
		}
		if user.ID == "" {
			user.ID = m.newID()
		}
		s.LoggedIn = true
		s.CurrentUser = &user
		if s.SessionStartTime == nil {
			start := m.isoNow()
			s.SessionStartTime = &start
		}
		m.logLocked("Inicio de sesión", "Usuario: "+user.Name)
		return nil
	})
}

// SetTheme records the UI theme.
func (m *Manager) SetTheme(ctx context.Context, theme string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		if theme == "" {
			return invalid("set theme", "theme required")
		}
		s.Theme = theme
		return nil
	})
}

// Finalize sets the terminal inventoryFinished flag. It bypasses the
// read-only gate so a read-only session can still produce a final archive.
func (m *Manager) Finalize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.InventoryFinished {
		m.state.InventoryFinished = true
		m.logLocked("Inventario finalizado", "Se generó el respaldo final de la sesión.")
	}
	return m.saveLocked(ctx, "mutation")
}

// SetNote stores a note for a business key; empty text removes it.
func (m *Manager) SetNote(ctx context.Context, clave, text string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		if s.FindInventoryItem(clave) < 0 {
			return notFound("inventory item", clave)
		}
		if text == "" {
			delete(s.Notes, clave)
		} else {
			s.Notes[clave] = text
		}
		m.logLocked("Nota actualizada", "Clave: "+clave)
		return nil
	})
}

func notFound(kind, id string) error {
	return domain.NewError(domain.CodeNotFound, fmt.Sprintf("%s %q not found", kind, id))
}

func invalid(op, reason string) error {
	return domain.NewError(domain.CodeInvalidInput, op+": "+reason)
}
