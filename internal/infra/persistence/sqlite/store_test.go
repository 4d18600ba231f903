package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"inventario/internal/statestore"
	"inventario/internal/statestore/mediumtest"
)

var _ statestore.Medium = (*Store)(nil)

func openTemp(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "state.db"), opts...)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	mediumtest.Run(t, func(t *testing.T, quota int64) statestore.Medium {
		return openTemp(t, WithQuota(quota))
	})
}

func TestDocumentsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := New(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := s.Write(ctx, "inventarioProState", []byte(`{"schemaVersion":2}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	b, found, err := reopened.Read(ctx, "inventarioProState")
	if err != nil || !found || string(b) != `{"schemaVersion":2}` {
		t.Fatalf("unexpected document after reopen: %q %v %v", b, found, err)
	}
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
}

func TestDefaultPath(t *testing.T) {
	t.Chdir(t.TempDir())
	s, err := New("")
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer s.Close()
	if s.Path() != defaultPath {
		t.Fatalf("expected default path, got %s", s.Path())
	}
}
