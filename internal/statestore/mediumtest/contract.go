// Package mediumtest holds the behavioural contract every document medium
// must satisfy.
package mediumtest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"inventario/internal/statestore"
	"inventario/pkg/domain"
)

// Factory returns a fresh, empty medium. quota is the byte budget the medium
// must enforce.
type Factory func(t *testing.T, quota int64) statestore.Medium

// Run exercises the medium contract against newMedium.
func Run(t *testing.T, newMedium Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("MissingIsNotError", func(t *testing.T) {
		m := newMedium(t, 0)
		defer m.Close()
		b, found, err := m.Read(ctx, domain.StateKey)
		if err != nil || found || b != nil {
			t.Fatalf("unexpected read of missing key: %q %v %v", b, found, err)
		}
	})

	t.Run("WriteReadUpsert", func(t *testing.T) {
		m := newMedium(t, 0)
		defer m.Close()
		if err := m.Write(ctx, domain.StateKey, []byte(`{"a":1}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := m.Write(ctx, domain.StateKey, []byte(`{"a":2}`)); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		b, found, err := m.Read(ctx, domain.StateKey)
		if err != nil || !found {
			t.Fatalf("read: %v %v", found, err)
		}
		if !bytes.Equal(b, []byte(`{"a":2}`)) {
			t.Fatalf("unexpected payload %q", b)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		m := newMedium(t, 0)
		defer m.Close()
		if err := m.Write(ctx, "k", []byte(`{}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := m.Delete(ctx, "k"); err != nil {
				t.Fatalf("delete %d: %v", i, err)
			}
		}
		if _, found, _ := m.Read(ctx, "k"); found {
			t.Fatalf("key survived delete")
		}
	})

	t.Run("QuotaRejectsOversizedWrite", func(t *testing.T) {
		m := newMedium(t, 64)
		defer m.Close()
		if err := m.Write(ctx, "k", bytes.Repeat([]byte("x"), 32)); err != nil {
			t.Fatalf("small write: %v", err)
		}
		err := m.Write(ctx, "k", bytes.Repeat([]byte("x"), 128))
		if !errors.Is(err, domain.ErrQuotaExceeded) {
			t.Fatalf("expected quota error, got %v", err)
		}
		b, _, _ := m.Read(ctx, "k")
		if len(b) != 32 {
			t.Fatalf("rejected write changed stored document (%d bytes)", len(b))
		}
		if err := m.Write(ctx, "k", bytes.Repeat([]byte("y"), 40)); err != nil {
			t.Fatalf("replacing own bytes should fit: %v", err)
		}
	})
}
