package session_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"inventario/internal/adapters/session"
	"inventario/internal/archive"
	"inventario/internal/core"
	blobmem "inventario/internal/infra/blob/memory"
	"inventario/internal/infra/persistence/memory"
	"inventario/internal/statestore"
	"inventario/pkg/domain"
)

var exportTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type fixture struct {
	host    *core.Session
	handler *session.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	medium := memory.New()
	blobs := blobmem.New()
	host, err := core.NewSession(context.Background(), func(context.Context) (core.Options, error) {
		return core.Options{State: statestore.New(medium), Blobs: blobs, Now: func() time.Time { return exportTime }}, nil
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = host.Close() })
	archiver := archive.New(host, archive.WithClock(func() time.Time { return exportTime }))
	return &fixture{host: host, handler: session.NewHandler(host, archiver, nil)}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	m := f.host.Manager()
	if _, err := m.AddInventoryItems(ctx, core.ListSource{FileName: "listado.xlsx", Area: "101"}, []domain.InventoryItem{
		{ClaveUnica: "12345", Descripcion: "ESCRITORIO"},
		{ClaveUnica: "67890", Descripcion: "SILLA"},
	}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	if err := m.AttachPhoto(ctx, domain.PhotoRef{Domain: domain.PhotoInventory, ID: "12345"}, []byte("jpeg")); err != nil {
		t.Fatalf("attach photo: %v", err)
	}
}

func (f *fixture) do(method, target string, body []byte) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	rec := f.do(http.MethodGet, "/api/v1/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Session session.Summary `json:"session"`
	}
	decode(t, rec, &payload)
	want := session.Summary{PhotosEnabled: true, Inventory: 2, Photos: 1, LayoutPages: 1}
	if payload.Session != want {
		t.Fatalf("unexpected summary %+v", payload.Session)
	}
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	rec := f.do(http.MethodGet, "/api/v1/session/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "inventario_2025-03-14.zip") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	names := map[string]bool{}
	for _, file := range zr.File {
		names[file.Name] = true
	}
	if !names[archive.DocumentFile] || !names[archive.PhotosFolder+"inventory-12345"] {
		t.Fatalf("unexpected entries %v", names)
	}
}

func TestExportFinalize(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodGet, "/api/v1/session/export?finalize=maybe", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad finalize, got %d", rec.Code)
	}
	rec := f.do(http.MethodGet, "/api/v1/session/export?finalize=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "inventario_final_2025-03-14.zip") {
		t.Fatalf("unexpected disposition %q", cd)
	}
	snap, err := f.host.Manager().Snapshot()
	if err != nil || !snap.InventoryFinished {
		t.Fatalf("finalized export did not mark the inventory finished: %v", err)
	}
}

func TestImportRoundTrip(t *testing.T) {
	src := newFixture(t)
	src.seed(t)
	exported := src.do(http.MethodGet, "/api/v1/session/export", nil)
	if exported.Code != http.StatusOK {
		t.Fatalf("export failed: %d", exported.Code)
	}

	dst := newFixture(t)
	before := dst.host.Manager()
	rec := dst.do(http.MethodPost, "/api/v1/session/import", exported.Body.Bytes())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Restored map[string]int `json:"restored"`
	}
	decode(t, rec, &payload)
	if payload.Restored["photos"] != 1 || payload.Restored["layoutImages"] != 0 {
		t.Fatalf("unexpected report %v", payload.Restored)
	}
	if dst.host.Manager() == before {
		t.Fatalf("import did not reload the session")
	}
	snap, err := dst.host.Manager().Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Inventory) != 2 || !snap.Photos["12345"] {
		t.Fatalf("restored session incomplete: %d items, photos %v", len(snap.Inventory), snap.Photos)
	}
}

func TestImportRejectsInvalidArchives(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodPost, "/api/v1/session/import", []byte("not a zip")); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for garbage, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/v1/session/import", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", rec.Code)
	}
	f.handler.MaxUploadBytes = 4
	if rec := f.do(http.MethodPost, "/api/v1/session/import", []byte("0123456789")); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestRestorePhotos(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, payload := range map[string]string{
		"photos/inventory-67890": "jpeg-b",
		"photos/inventory-99999": "jpeg-c",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		_, _ = w.Write([]byte(payload))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	rec := f.do(http.MethodPost, "/api/v1/session/photos", buf.Bytes())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report map[string]int
	decode(t, rec, &report)
	if report["restored"] != 1 || report["skipped"] != 1 {
		t.Fatalf("unexpected report %v", report)
	}
}

func TestRouting(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/session/export", nil)
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("expected 405 with Allow, got %d %q", rec.Code, rec.Header().Get("Allow"))
	}
	if rec := f.do(http.MethodGet, "/api/v1/session/unknown", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	empty := &session.Handler{}
	rec = httptest.NewRecorder()
	empty.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unconfigured handler, got %d", rec.Code)
	}
}
