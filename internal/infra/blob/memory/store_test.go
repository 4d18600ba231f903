package memory

import (
	"context"
	"errors"
	"testing"

	"inventario/internal/blob/blobtest"
	"inventario/internal/blob/core"
	"inventario/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) core.Store { return New() })
}

func TestStoreRequiresInit(t *testing.T) {
	s := New()
	_, _, err := s.Get(context.Background(), domain.PartitionPhotos, "k")
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected unavailable before init, got %v", err)
	}
}

func TestStoreQuota(t *testing.T) {
	ctx := context.Background()
	s := New(WithQuota(4))
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := s.Put(ctx, domain.PartitionPhotos, "a", []byte("123")); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := s.Put(ctx, domain.PartitionPhotos, "b", []byte("45"))
	if !errors.Is(err, domain.ErrWriteFailed) {
		t.Fatalf("expected write failed, got %v", err)
	}
	// overwriting shrinks usage
	if err := s.Put(ctx, domain.PartitionPhotos, "a", []byte("1")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.Put(ctx, domain.PartitionPhotos, "b", []byte("45")); err != nil {
		t.Fatalf("put after shrink: %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Init(ctx)
	_ = s.Put(ctx, domain.PartitionPhotos, "k", []byte("abc"))
	got, _, _ := s.Get(ctx, domain.PartitionPhotos, "k")
	got[0] = 'z'
	again, _, _ := s.Get(ctx, domain.PartitionPhotos, "k")
	if string(again) != "abc" {
		t.Fatalf("store mutated through returned slice: %q", again)
	}
}

func TestSharedStoreStaysOpenUntilLastClose(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if err := s.Put(ctx, domain.PartitionPhotos, "inventory-1", []byte("a")); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = s.Close()
	if _, found, err := s.Get(ctx, domain.PartitionPhotos, "inventory-1"); err != nil || !found {
		t.Fatalf("store closed while a handle remained: %v %v", found, err)
	}
	_ = s.Close()
	if _, _, err := s.Get(ctx, domain.PartitionPhotos, "inventory-1"); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected unavailable after last close, got %v", err)
	}
}
