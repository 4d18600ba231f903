package memory

import (
	"context"
	"errors"
	"testing"

	"inventario/internal/statestore"
	"inventario/internal/statestore/mediumtest"
)

var _ statestore.Medium = (*Store)(nil)

func TestStoreContract(t *testing.T) {
	mediumtest.Run(t, func(_ *testing.T, quota int64) statestore.Medium {
		return New(WithQuota(quota))
	})
}

func TestFailWrites(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.FailWrites = boom
	if err := s.Write(context.Background(), "k", []byte("v")); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("failed write stored data")
	}
}

func TestReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Write(ctx, "k", []byte("abc"))
	b, _, _ := s.Read(ctx, "k")
	b[0] = 'z'
	again, _, _ := s.Read(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("read exposed internal buffer: %q", again)
	}
}
