// Package session exposes session export, import and photo reconciliation
// over HTTP.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"inventario/internal/archive"
	"inventario/internal/logging"
	"inventario/pkg/domain"
)

// DefaultMaxUploadBytes caps an uploaded archive.
const DefaultMaxUploadBytes = 512 << 20

// Handler serves /api/v1/session endpoints. Requests are serialised because a
// restore replaces the live session.
type Handler struct {
	Host           archive.Host
	Archiver       *archive.Archiver
	Logger         *slog.Logger
	MaxUploadBytes int64

	mu sync.Mutex
}

// NewHandler constructs a session HTTP handler.
func NewHandler(host archive.Host, archiver *archive.Archiver, logger *slog.Logger) *Handler {
	return &Handler{
		Host:           host,
		Archiver:       archiver,
		Logger:         logging.Component(logger, "http"),
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Host == nil || h.Archiver == nil {
		writeError(w, http.StatusInternalServerError, "session not configured")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch path {
	case "/api/v1/session":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleSummary(w)
	case "/api/v1/session/export":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.handleExport(w, r)
	case "/api/v1/session/import":
		if !allow(w, r, http.MethodPost) {
			return
		}
		h.handleImport(w, r)
	case "/api/v1/session/photos":
		if !allow(w, r, http.MethodPost) {
			return
		}
		h.handlePhotos(w, r)
	default:
		http.NotFound(w, r)
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// Summary is the session overview served by GET /api/v1/session.
type Summary struct {
	LoggedIn          bool   `json:"loggedIn"`
	User              string `json:"user,omitempty"`
	ReadOnly          bool   `json:"readOnly"`
	InventoryFinished bool   `json:"inventoryFinished"`
	PhotosEnabled     bool   `json:"photosEnabled"`
	Inventory         int    `json:"inventory"`
	Located           int    `json:"located"`
	AdditionalItems   int    `json:"additionalItems"`
	Custodians        int    `json:"custodians"`
	Photos            int    `json:"photos"`
	LayoutPages       int    `json:"layoutPages"`
}

// Summarize reports the counters shown by the session endpoint and the CLI.
func Summarize(s *domain.ApplicationState, photosEnabled bool) Summary {
	out := Summary{
		LoggedIn:          s.LoggedIn,
		ReadOnly:          s.ReadOnlyMode,
		InventoryFinished: s.InventoryFinished,
		PhotosEnabled:     photosEnabled,
		Inventory:         len(s.Inventory),
		AdditionalItems:   len(s.AdditionalItems),
		Custodians:        len(s.Custodians),
		Photos:            len(s.Photos) + len(s.AdditionalPhotos) + len(s.LocationPhotos),
		LayoutPages:       len(s.MapLayout),
	}
	if s.CurrentUser != nil {
		out.User = s.CurrentUser.Name
	}
	for _, item := range s.Inventory {
		if item.Ubicado == domain.Located {
			out.Located++
		}
	}
	return out
}

func (h *Handler) handleSummary(w http.ResponseWriter) {
	m := h.Host.Manager()
	snap, err := m.Snapshot()
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": Summarize(snap, m.PhotosEnabled())})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	finalize := false
	if v := r.URL.Query().Get("finalize"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "finalize must be a boolean")
			return
		}
		finalize = b
	}
	var buf bytes.Buffer
	manifest, err := h.Archiver.BuildArchive(r.Context(), finalize, &buf)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", manifest.Name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (*bytes.Reader, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "archive too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read archive: "+err.Error())
		return nil, false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty archive")
		return nil, false
	}
	return bytes.NewReader(body), true
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	report, err := h.Archiver.RestoreArchive(r.Context(), body, body.Size(), func(done, total int) {
		h.Logger.Debug("restoring photos", "processed", done, "total", total)
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": map[string]int{
		"photos":       report.Photos,
		"layoutImages": report.LayoutImages,
	}})
}

func (h *Handler) handlePhotos(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	files, err := archive.PhotoFilesFromArchive(body, body.Size())
	if err != nil {
		h.fail(w, err)
		return
	}
	report, err := h.Archiver.RestorePhotosOnly(r.Context(), files, archive.MatchPrefixedKey, nil)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"restored": report.Restored, "skipped": report.Skipped})
}

func statusFor(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeInvalidArchive, domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeReadOnly:
		return http.StatusConflict
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case domain.CodeQuotaExceeded:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("session request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
