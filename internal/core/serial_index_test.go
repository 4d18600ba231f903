package core

import (
	"testing"

	"inventario/pkg/domain"
)

func TestSerialIndexRebuild(t *testing.T) {
	s := domain.NewState()
	s.Inventory = []domain.InventoryItem{
		{ClaveUnica: "12345", Serie: " SN-001 "},
		{ClaveUnica: "67890"},
	}
	s.AdditionalItems = []domain.AdditionalItem{{ID: "a", Clave: "CL-9", Serie: "Straße"}}
	x := NewSerialIndex()
	x.Rebuild(s)
	for _, v := range []string{"sn-001", "SN-001", "12345", "67890", "cl-9", "STRASSE", " strasse"} {
		if !x.Contains(v) {
			t.Fatalf("expected %q indexed", v)
		}
	}
	if x.Contains("") || x.Contains("   ") {
		t.Fatalf("empty values must never match")
	}

	s.Inventory = nil
	s.AdditionalItems = nil
	x.Rebuild(s)
	if x.Contains("sn-001") || x.Len() != 0 {
		t.Fatalf("stale entries survived rebuild")
	}
}
