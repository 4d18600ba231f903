package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"inventario/internal/blob"
	"inventario/internal/core"
	blobmem "inventario/internal/infra/blob/memory"
	"inventario/internal/infra/persistence/memory"
	"inventario/internal/statestore"
	"inventario/pkg/domain"
)

var buildTime = time.Date(2025, time.March, 14, 18, 0, 0, 0, time.UTC)

// testHost reopens its manager over the same media on Reload.
type testHost struct {
	t       *testing.T
	medium  *memory.Store
	blobs   blob.Store
	m       *core.Manager
	reloads int
}

func newHost(t *testing.T, blobs blob.Store) *testHost {
	t.Helper()
	if blobs == nil {
		blobs = blobmem.New()
	}
	h := &testHost{t: t, medium: memory.New(), blobs: blobs}
	h.open()
	t.Cleanup(func() { _ = h.m.Close() })
	return h
}

func (h *testHost) open() {
	h.t.Helper()
	m, err := core.Open(context.Background(), core.Options{
		State: statestore.New(h.medium),
		Blobs: h.blobs,
		Now:   func() time.Time { return buildTime },
	})
	if err != nil {
		h.t.Fatalf("open manager: %v", err)
	}
	h.m = m
}

func (h *testHost) Manager() *core.Manager { return h.m }

func (h *testHost) Reload(context.Context) error {
	if err := h.m.Close(); err != nil {
		return err
	}
	h.reloads++
	h.open()
	return nil
}

func (h *testHost) snapshot() *domain.ApplicationState {
	h.t.Helper()
	s, err := h.m.Snapshot()
	if err != nil {
		h.t.Fatalf("snapshot: %v", err)
	}
	return s
}

func (h *testHost) list(partition string) []blob.Entry {
	h.t.Helper()
	entries, err := h.m.Blobs().List(context.Background(), partition)
	if err != nil {
		h.t.Fatalf("list %s: %v", partition, err)
	}
	return entries
}

// failingPuts fails the n-th Put.
type failingPuts struct {
	*blobmem.Store
	puts   int
	failAt int
}

func (f *failingPuts) Put(ctx context.Context, partition, key string, payload []byte) error {
	f.puts++
	if f.puts == f.failAt {
		return domain.Wrap(domain.CodeWriteFailed, "put "+key, errors.New("injected"))
	}
	return f.Store.Put(ctx, partition, key, payload)
}

// populate builds a session with three photos and one layout image.
func populate(t *testing.T, h *testHost) {
	t.Helper()
	ctx := context.Background()
	m := h.m
	if err := m.Login(ctx, domain.User{ID: "u1", Name: "Ana"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := m.AddInventoryItems(ctx, core.ListSource{FileName: "listado.xlsx", Area: "101"}, []domain.InventoryItem{
		{ClaveUnica: "12345", Serie: "SN-001", Descripcion: "ESCRITORIO"},
		{ClaveUnica: "67890", Descripcion: "SILLA"},
	}); err != nil {
		t.Fatalf("add items: %v", err)
	}
	if _, err := m.AddCustodian(ctx, core.CustodianInput{Name: "Luis", Area: "101", Location: "OFICINA"}); err != nil {
		t.Fatalf("add custodian: %v", err)
	}
	if err := m.LocateItem(ctx, "12345", false); err != nil {
		t.Fatalf("locate: %v", err)
	}
	for _, p := range []struct {
		ref     domain.PhotoRef
		payload string
	}{
		{domain.PhotoRef{Domain: domain.PhotoInventory, ID: "12345"}, "jpeg-12345"},
		{domain.PhotoRef{Domain: domain.PhotoInventory, ID: "67890"}, "jpeg-67890"},
		{domain.PhotoRef{Domain: domain.PhotoLocation, ID: "OFICINA 01"}, "jpeg-oficina"},
	} {
		if err := m.AttachPhoto(ctx, p.ref, []byte(p.payload)); err != nil {
			t.Fatalf("attach %s: %v", p.ref.Key(), err)
		}
	}
	if _, err := m.AddLayoutImage(ctx, domain.DefaultLayoutPage, []byte("png-plan")); err != nil {
		t.Fatalf("layout image: %v", err)
	}
}

func build(t *testing.T, h *testHost, finalize bool) ([]byte, Manifest) {
	t.Helper()
	var buf bytes.Buffer
	manifest, err := New(h, WithClock(func() time.Time { return buildTime })).BuildArchive(context.Background(), finalize, &buf)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return buf.Bytes(), manifest
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestArchiveName(t *testing.T) {
	if got := ArchiveName(buildTime, false); got != "inventario_2025-03-14.zip" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := ArchiveName(buildTime, true); got != "inventario_final_2025-03-14.zip" {
		t.Fatalf("unexpected final name %q", got)
	}
}

func TestBuildArchiveLayout(t *testing.T) {
	src := newHost(t, nil)
	populate(t, src)
	data, manifest := build(t, src, false)
	if manifest.Photos != 3 || manifest.LayoutImages != 1 || !manifest.PhotosIncluded || manifest.Finalized {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.Method != zip.Deflate {
			t.Fatalf("entry %s not deflated", f.Name)
		}
	}
	want := []string{DocumentFile, "photos/inventory-12345", "photos/inventory-67890", "photos/location-OFICINA 01"}
	if diff := cmp.Diff(want, names[:4]); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	if len(names) != 5 || !strings.HasPrefix(names[4], "layoutImages/img_") {
		t.Fatalf("layout image entry missing: %v", names)
	}
}

func TestBuildArchiveFinalize(t *testing.T) {
	src := newHost(t, nil)
	populate(t, src)
	_, manifest := build(t, src, true)
	if !manifest.Finalized || manifest.Name != "inventario_final_2025-03-14.zip" {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	if !src.snapshot().InventoryFinished {
		t.Fatalf("finalize must mark the live session")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newHost(t, nil)
	populate(t, src)
	data, _ := build(t, src, false)
	want := src.snapshot()
	wantPhotos := src.list(domain.PartitionPhotos)
	wantImages := src.list(domain.PartitionLayoutImages)

	dst := newHost(t, nil)
	var progress [][2]int
	report, err := New(dst).RestoreArchive(ctx, bytes.NewReader(data), int64(len(data)), func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if report != (RestoreReport{Photos: 3, LayoutImages: 1}) {
		t.Fatalf("unexpected report %+v", report)
	}
	if diff := cmp.Diff([][2]int{{1, 3}, {2, 3}, {3, 3}}, progress); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}
	if dst.reloads != 1 {
		t.Fatalf("expected one reload, got %d", dst.reloads)
	}
	if diff := cmp.Diff(want, dst.snapshot()); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantPhotos, dst.list(domain.PartitionPhotos)); diff != "" {
		t.Fatalf("photos mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantImages, dst.list(domain.PartitionLayoutImages)); diff != "" {
		t.Fatalf("layout images mismatch (-want +got):\n%s", diff)
	}
	if !dst.m.CheckDuplicate("sn-001") {
		t.Fatalf("restored session must rebuild the serial index")
	}
}

func TestRestoreFailureMidLoopKeepsPreviousSession(t *testing.T) {
	ctx := context.Background()
	src := newHost(t, nil)
	populate(t, src)
	data, _ := build(t, src, false)

	store := &failingPuts{Store: blobmem.New()}
	dst := newHost(t, store)
	if err := dst.m.Login(ctx, domain.User{Name: "Previa"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := dst.m.AddInventoryItems(ctx, core.ListSource{Area: "9"}, []domain.InventoryItem{{ClaveUnica: "12345"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := dst.m.AttachPhoto(ctx, domain.PhotoRef{Domain: domain.PhotoInventory, ID: "12345"}, []byte("previous")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	docBefore, _, _ := dst.medium.Read(ctx, domain.StateKey)
	photosBefore := dst.list(domain.PartitionPhotos)
	store.failAt = store.puts + 3

	_, err := New(dst).RestoreArchive(ctx, bytes.NewReader(data), int64(len(data)), nil)
	if !errors.Is(err, domain.ErrWriteFailed) {
		t.Fatalf("expected write failure, got %v", err)
	}
	docAfter, _, _ := dst.medium.Read(ctx, domain.StateKey)
	if !bytes.Equal(docBefore, docAfter) {
		t.Fatalf("document changed by a failed restore")
	}
	if diff := cmp.Diff(photosBefore, dst.list(domain.PartitionPhotos)); diff != "" {
		t.Fatalf("photos changed by a failed restore (-want +got):\n%s", diff)
	}
	if len(dst.list(domain.PartitionLayoutImages)) != 0 {
		t.Fatalf("layout images staged by a failed restore")
	}
	if dst.reloads != 0 {
		t.Fatalf("failed restore must not reload")
	}
}

func TestRestoreCancelledRollsBack(t *testing.T) {
	src := newHost(t, nil)
	populate(t, src)
	data, _ := build(t, src, false)

	dst := newHost(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := New(dst).RestoreArchive(ctx, bytes.NewReader(data), int64(len(data)), func(done, _ int) {
		if done == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if n := len(dst.list(domain.PartitionPhotos)); n != 0 {
		t.Fatalf("cancelled restore left %d photos", n)
	}
	if _, found, _ := dst.medium.Read(context.Background(), domain.StateKey); found {
		t.Fatalf("cancelled restore wrote the document")
	}
}

func TestRestoreRejectsInvalidArchives(t *testing.T) {
	ctx := context.Background()
	cases := map[string][]byte{
		"not a zip":    []byte("plain text"),
		"no document":  zipOf(t, map[string]string{"photos/inventory-1": "x"}),
		"bad document": zipOf(t, map[string]string{DocumentFile: "[1,2"}),
		"null":         zipOf(t, map[string]string{DocumentFile: "null"}),
	}
	for name, data := range cases {
		dst := newHost(t, nil)
		_, err := New(dst).RestoreArchive(ctx, bytes.NewReader(data), int64(len(data)), nil)
		if !errors.Is(err, domain.ErrInvalidArchive) {
			t.Fatalf("%s: expected invalid archive, got %v", name, err)
		}
		if len(dst.list(domain.PartitionPhotos)) != 0 {
			t.Fatalf("%s: invalid archive staged blobs", name)
		}
	}
}

func TestRestoreLegacyDocumentMigrates(t *testing.T) {
	ctx := context.Background()
	legacy := `{"inventory":[{"CLAVE UNICA":555,"UBICADO":"NO","NOMBRE DE USUARIO":""}],` +
		`"mapLayout":{"OFICINA 01":{"x":10,"y":20,"width":180,"height":60,"rotation":0,"type":"location"}},` +
		`"serialNumberCache":["x"]}`
	data := zipOf(t, map[string]string{DocumentFile: legacy})
	dst := newHost(t, nil)
	if _, err := New(dst).RestoreArchive(ctx, bytes.NewReader(data), int64(len(data)), nil); err != nil {
		t.Fatalf("restore: %v", err)
	}
	s := dst.snapshot()
	if s.CurrentLayoutPage != domain.DefaultLayoutPage || s.MapLayout[domain.DefaultLayoutPage]["OFICINA 01"].X != 10 {
		t.Fatalf("legacy layout not migrated: %+v", s.MapLayout)
	}
	if s.Inventory[0].ClaveUnica != "555" {
		t.Fatalf("numeric key not decoded: %q", s.Inventory[0].ClaveUnica)
	}
	raw, _, _ := dst.medium.Read(ctx, domain.StateKey)
	if bytes.Contains(raw, []byte("serialNumberCache")) {
		t.Fatalf("excluded field persisted")
	}
}
