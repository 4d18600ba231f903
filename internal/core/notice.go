package core

import "log/slog"

// NoticeKind classifies an operator-facing notice.
type NoticeKind string

const (
	// NoticeQuotaExceeded announces the one-way switch to read-only mode.
	NoticeQuotaExceeded NoticeKind = "quota_exceeded"
	// NoticeSaveFailed reports a save error other than quota exhaustion.
	NoticeSaveFailed NoticeKind = "save_failed"
	// NoticeStorageUnavailable reports that photo storage is disabled.
	NoticeStorageUnavailable NoticeKind = "storage_unavailable"
	// NoticeCorruptDocument reports a quarantined document and a fresh start.
	NoticeCorruptDocument NoticeKind = "corrupt_document"
	// NoticeInfo carries routine confirmations.
	NoticeInfo NoticeKind = "info"
)

// Notice is a message for the operator. RequiresAck notices block further
// interaction until acknowledged.
type Notice struct {
	Kind        NoticeKind
	Message     string
	RequiresAck bool
	Err         error
}

// Notifier receives operator notices. Implementations must not call back into
// the Manager.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to a logger. It is the default Notifier.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs n at warn level when it requires acknowledgement or carries an
// error, info otherwise.
func (l LogNotifier) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		return
	}
	attrs := []any{"kind", string(n.Kind)}
	if n.Err != nil {
		attrs = append(attrs, "error", n.Err)
	}
	if n.RequiresAck || n.Err != nil {
		logger.Warn(n.Message, attrs...)
		return
	}
	logger.Info(n.Message, attrs...)
}
