package domain

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"
	CodeInvalidArchive     Code = "INVALID_ARCHIVE"
	CodeWriteFailed        Code = "WRITE_FAILED"
	CodeBlockedDeletion    Code = "BLOCKED_DELETION"
	CodePhotoTooLarge      Code = "PHOTO_TOO_LARGE"
	CodeReadOnly           Code = "READ_ONLY"
	CodeLastLayoutPage     Code = "LAST_LAYOUT_PAGE"
	CodeCorruptDocument    Code = "CORRUPT_DOCUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeNoActiveCustodian  Code = "NO_ACTIVE_CUSTODIAN"
	CodeInvalidInput       Code = "INVALID_INPUT"
)

// Error is the domain error type. Two errors match under errors.Is when their
// codes are equal, so wrapped causes never hide the classification.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a domain error with a code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}

// Sentinels for errors.Is checks. Each matches any *Error with the same code.
var (
	// ErrStorageUnavailable means the blob engine could not be opened. The
	// application continues without photo capability.
	ErrStorageUnavailable = NewError(CodeStorageUnavailable, "blob storage unavailable")
	// ErrQuotaExceeded means the document medium rejected a write for size.
	// It is fatal-degraded: never retried, forces read-only mode.
	ErrQuotaExceeded = NewError(CodeQuotaExceeded, "storage quota exceeded")
	// ErrInvalidArchive means the archive lacks session.json or is unreadable.
	ErrInvalidArchive = NewError(CodeInvalidArchive, "invalid session archive")
	// ErrWriteFailed means a blob write was rejected by the engine.
	ErrWriteFailed = NewError(CodeWriteFailed, "blob write failed")
	// ErrBlockedDeletion is logged when destroy is blocked by another handle.
	ErrBlockedDeletion = NewError(CodeBlockedDeletion, "blob store deletion blocked")

	ErrPhotoTooLarge     = NewError(CodePhotoTooLarge, "photo too large")
	ErrReadOnly          = NewError(CodeReadOnly, "session is read-only")
	ErrLastLayoutPage    = NewError(CodeLastLayoutPage, "cannot remove the last layout page")
	ErrCorruptDocument   = NewError(CodeCorruptDocument, "corrupt state document")
	ErrNotFound          = NewError(CodeNotFound, "not found")
	ErrNoActiveCustodian = NewError(CodeNoActiveCustodian, "no active custodian")
	ErrInvalidInput      = NewError(CodeInvalidInput, "invalid input")
)
