package archive

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"inventario/internal/core"
	"inventario/pkg/domain"
)

func seedClaves(t *testing.T, h *testHost, claves ...string) {
	t.Helper()
	items := make([]domain.InventoryItem, len(claves))
	for i, c := range claves {
		items[i] = domain.InventoryItem{ClaveUnica: domain.Text(c)}
	}
	if _, err := h.m.AddInventoryItems(context.Background(), core.ListSource{Area: "101"}, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestRestorePhotosBareKeys(t *testing.T) {
	ctx := context.Background()
	h := newHost(t, nil)
	seedClaves(t, h, "100", "200")
	files := []PhotoFile{
		{Name: "100.jpg", Payload: []byte("a")},
		{Name: "fotos/200.jpeg", Payload: []byte("b")},
		{Name: "300.jpg", Payload: []byte("c")},
		{Name: "100.png", Payload: bytes.Repeat([]byte("x"), 16)},
	}
	var calls int
	report, err := New(h, WithMaxPhotoBytes(8)).RestorePhotosOnly(ctx, files, MatchBareKey, func(done, total int) {
		calls++
		if total != len(files) {
			t.Fatalf("unexpected total %d", total)
		}
	})
	if err != nil {
		t.Fatalf("restore photos: %v", err)
	}
	if report != (PhotoReport{Restored: 2, Skipped: 2}) {
		t.Fatalf("unexpected report %+v", report)
	}
	if calls != len(files) {
		t.Fatalf("progress called %d times", calls)
	}
	s := h.snapshot()
	if !s.Photos["100"] || !s.Photos["200"] || s.Photos["300"] {
		t.Fatalf("unexpected flags %v", s.Photos)
	}
	got, found, _ := h.m.Photo(ctx, domain.PhotoRef{Domain: domain.PhotoInventory, ID: "100"})
	if !found || string(got) != "a" {
		t.Fatalf("oversized duplicate replaced the stored photo: %q", got)
	}
}

func TestRestorePhotosFromPriorArchive(t *testing.T) {
	ctx := context.Background()
	data := zipOf(t, map[string]string{
		"photos/inventory-100":  "inv",
		"photos/additional-100": "add",
		"photos/location-100":   "loc",
		"photos/inventory-999":  "gone",
		"photos/thumbnail-100":  "bad",
		"layoutImages/img_1":    "plan",
		"photos/":               "",
	})
	files, err := PhotoFilesFromArchive(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(files) != 5 {
		t.Fatalf("expected 5 photo files, got %d", len(files))
	}

	h := newHost(t, nil)
	seedClaves(t, h, "100")
	report, err := New(h).RestorePhotosOnly(ctx, files, MatchPrefixedKey, nil)
	if err != nil {
		t.Fatalf("restore photos: %v", err)
	}
	if report != (PhotoReport{Restored: 3, Skipped: 2}) {
		t.Fatalf("unexpected report %+v", report)
	}
	s := h.snapshot()
	if !s.Photos["100"] || !s.AdditionalPhotos["100"] || !s.LocationPhotos["100"] {
		t.Fatalf("flags not set per domain: %v %v %v", s.Photos, s.AdditionalPhotos, s.LocationPhotos)
	}
	if len(h.list(domain.PartitionLayoutImages)) != 0 {
		t.Fatalf("photo restore must not touch layout images")
	}
}

func TestPhotoFilesFromArchiveRequiresPhotosFolder(t *testing.T) {
	data := zipOf(t, map[string]string{DocumentFile: "{}"})
	if _, err := PhotoFilesFromArchive(bytes.NewReader(data), int64(len(data))); !errors.Is(err, domain.ErrInvalidArchive) {
		t.Fatalf("expected invalid archive, got %v", err)
	}
}

func TestRestorePhotosRejectedWhenReadOnly(t *testing.T) {
	ctx := context.Background()
	h := newHost(t, nil)
	seedClaves(t, h, "100")
	h.medium.FailWrites = domain.NewError(domain.CodeQuotaExceeded, "quota")
	_ = h.m.Save(ctx)
	_, err := New(h).RestorePhotosOnly(ctx, []PhotoFile{{Name: "100.jpg", Payload: []byte("a")}}, MatchBareKey, nil)
	if !errors.Is(err, domain.ErrReadOnly) {
		t.Fatalf("expected read-only rejection, got %v", err)
	}
	if len(h.list(domain.PartitionPhotos)) != 0 {
		t.Fatalf("read-only session received a photo")
	}
}
