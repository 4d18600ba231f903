// Package blobtest holds the behavioural contract every blob backend must
// satisfy, run from each driver's tests.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"inventario/internal/blob/core"
	"inventario/pkg/domain"
)

// Factory returns a fresh, empty and uninitialised store.
type Factory func(t *testing.T) core.Store

// Run exercises Init/Put/Get/Delete/List/Destroy against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("PutGetUpsert", func(t *testing.T) { testPutGetUpsert(t, newStore) })
	t.Run("MissingIsNotError", func(t *testing.T) { testMissing(t, newStore) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDelete(t, newStore) })
	t.Run("ListSortedPerPartition", func(t *testing.T) { testList(t, newStore) })
	t.Run("SidecarLikeKeys", func(t *testing.T) { testSidecarLikeKeys(t, newStore) })
	t.Run("UnknownPartition", func(t *testing.T) { testUnknownPartition(t, newStore) })
	t.Run("ReopenKeepsData", func(t *testing.T) { testReopen(t, newStore) })
	t.Run("DestroyThenInit", func(t *testing.T) { testDestroy(t, newStore) })
}

func open(t *testing.T, newStore Factory) core.Store {
	t.Helper()
	s := newStore(t)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func testPutGetUpsert(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	defer s.Close()
	key := domain.PhotoKey(domain.PhotoInventory, "A1")
	if err := s.Put(ctx, domain.PartitionPhotos, key, []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, domain.PartitionPhotos, key, []byte("v2\r\n\x00binary")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, found, err := s.Get(ctx, domain.PartitionPhotos, key)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if !bytes.Equal(got, []byte("v2\r\n\x00binary")) {
		t.Fatalf("unexpected payload %q", got)
	}
	if _, found, _ := s.Get(ctx, domain.PartitionLayoutImages, key); found {
		t.Fatalf("partitions must not share keys")
	}
}

func testMissing(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	defer s.Close()
	got, found, err := s.Get(context.Background(), domain.PartitionPhotos, "inventory-none")
	if err != nil || found || got != nil {
		t.Fatalf("expected clean miss, got %q %v %v", got, found, err)
	}
}

func testDelete(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	defer s.Close()
	if err := s.Put(ctx, domain.PartitionPhotos, "additional-1", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, domain.PartitionPhotos, "additional-1"); err != nil {
			t.Fatalf("delete #%d: %v", i, err)
		}
	}
	if _, found, _ := s.Get(ctx, domain.PartitionPhotos, "additional-1"); found {
		t.Fatalf("expected deleted")
	}
}

func testList(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	defer s.Close()
	for _, k := range []string{"location-b", "inventory-a", "inventory-c"} {
		if err := s.Put(ctx, domain.PartitionPhotos, k, []byte(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	if err := s.Put(ctx, domain.PartitionLayoutImages, "img_1", []byte("png")); err != nil {
		t.Fatalf("put image: %v", err)
	}
	entries, err := s.List(ctx, domain.PartitionPhotos)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"inventory-a", "inventory-c", "location-b"}
	if len(entries) != len(want) {
		t.Fatalf("unexpected entries %+v", entries)
	}
	for i, e := range entries {
		if e.Key != want[i] || string(e.Payload) != want[i] {
			t.Fatalf("entry %d: %+v", i, e)
		}
	}
	images, err := s.List(ctx, domain.PartitionLayoutImages)
	if err != nil || len(images) != 1 || images[0].Key != "img_1" {
		t.Fatalf("unexpected images %+v %v", images, err)
	}
}

func testSidecarLikeKeys(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	defer s.Close()
	keys := []string{"inventory-lote.meta", "inventory-x.meta.meta", "inventory-plain"}
	for _, k := range keys {
		if err := s.Put(ctx, domain.PartitionPhotos, k, []byte(k)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	entries, err := s.List(ctx, domain.PartitionPhotos)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"inventory-lote.meta", "inventory-plain", "inventory-x.meta.meta"}
	if len(entries) != len(want) {
		t.Fatalf("unexpected entries %+v", entries)
	}
	for i, e := range entries {
		if e.Key != want[i] || string(e.Payload) != want[i] {
			t.Fatalf("entry %d: %+v", i, e)
		}
	}
	if err := s.Delete(ctx, domain.PartitionPhotos, "inventory-lote.meta"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := s.Get(ctx, domain.PartitionPhotos, "inventory-lote.meta"); found {
		t.Fatalf("expected deleted")
	}
}

func testUnknownPartition(t *testing.T, newStore Factory) {
	s := open(t, newStore)
	defer s.Close()
	err := s.Put(context.Background(), "videos", "k", []byte("x"))
	if !errors.Is(err, core.ErrUnknownPartition) {
		t.Fatalf("expected unknown partition, got %v", err)
	}
}

func testReopen(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	if err := s.Put(ctx, domain.PartitionPhotos, "inventory-keep", []byte("kept")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("reinit: %v", err)
	}
	defer s.Close()
	got, found, err := s.Get(ctx, domain.PartitionPhotos, "inventory-keep")
	if err != nil || !found || string(got) != "kept" {
		t.Fatalf("data lost across reopen: %q %v %v", got, found, err)
	}
}

func testDestroy(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore)
	if err := s.Put(ctx, domain.PartitionPhotos, "inventory-gone", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, domain.PartitionLayoutImages, "img_gone", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Destroy(ctx); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init after destroy: %v", err)
	}
	defer s.Close()
	for _, p := range domain.Partitions {
		entries, err := s.List(ctx, p)
		if err != nil || len(entries) != 0 {
			t.Fatalf("partition %s not empty after destroy: %+v %v", p, entries, err)
		}
	}
}
