package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"inventario/internal/infra/persistence/postgres/testutil"
	"inventario/internal/statestore"
	"inventario/internal/statestore/mediumtest"
	"inventario/pkg/domain"
)

var _ statestore.Medium = (*Store)(nil)

func openStub(t *testing.T, opts ...Option) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	s, err := New(context.Background(), "", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, conn
}

func TestStoreContract(t *testing.T) {
	mediumtest.Run(t, func(t *testing.T, quota int64) statestore.Medium {
		s, _ := openStub(t, WithQuota(quota))
		return s
	})
}

func TestNewEnsuresDocumentsTable(t *testing.T) {
	s, conn := openStub(t)
	defer s.Close()
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS DOCUMENTS") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected documents DDL, got execs: %v", conn.Execs)
	}
}

func TestNewPingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := New(context.Background(), "postgres://example"); err == nil {
		t.Fatalf("expected ping error")
	}
}

func TestNewOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("no driver") })
	defer restore()
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestWriteCommitFailureKeepsPreviousDocument(t *testing.T) {
	ctx := context.Background()
	s, conn := openStub(t)
	defer s.Close()
	if err := s.Write(ctx, domain.StateKey, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.FailCommit = true
	if err := s.Write(ctx, domain.StateKey, []byte(`{"v":2}`)); err == nil {
		t.Fatalf("expected commit failure")
	}
	conn.FailCommit = false
	b, _, err := s.Read(ctx, domain.StateKey)
	if err != nil || string(b) != `{"v":1}` {
		t.Fatalf("previous document lost: %q %v", b, err)
	}
}

func TestWriteBeginFailure(t *testing.T) {
	s, conn := openStub(t)
	defer s.Close()
	conn.FailBegin = true
	if err := s.Write(context.Background(), "k", []byte("v")); err == nil {
		t.Fatalf("expected begin failure")
	}
}
