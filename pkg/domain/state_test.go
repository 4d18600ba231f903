package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTextAcceptsNumbersAndNull(t *testing.T) {
	var item InventoryItem
	if err := json.Unmarshal([]byte(`{"CLAVE UNICA": 12345, "SERIE": null, "MARCA": "HP"}`), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if item.ClaveUnica != "12345" {
		t.Fatalf("expected numeric clave as text, got %q", item.ClaveUnica)
	}
	if item.Serie != "" || item.Marca != "HP" {
		t.Fatalf("unexpected fields: %+v", item)
	}
}

func TestNumericTextWrittenBackAsNumber(t *testing.T) {
	in := `{"CLAVE UNICA":12345,"SERIE":987.5,"MARCA":"HP","NOMBRE DE USUARIO":"","UBICADO":"NO"}`
	var item InventoryItem
	if err := json.Unmarshal([]byte(in), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"CLAVE UNICA":12345`, `"SERIE":987.5`, `"MARCA":"HP"`} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}

	item.Serie = "SN-1"
	out, err = json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal edited: %v", err)
	}
	if !strings.Contains(string(out), `"SERIE":"SN-1"`) || !strings.Contains(string(out), `"CLAVE UNICA":12345`) {
		t.Fatalf("unexpected edited encoding %s", out)
	}

	var c Custodian
	if err := json.Unmarshal([]byte(`{"id":"u1","name":"ANA","area":12}`), &c); err != nil {
		t.Fatalf("unmarshal custodian: %v", err)
	}
	out, err = json.Marshal(c)
	if err != nil || !strings.Contains(string(out), `"area":12`) {
		t.Fatalf("custodian area not kept numeric: %s %v", out, err)
	}

	var a AdditionalItem
	if err := json.Unmarshal([]byte(`{"id":"b1","descripcion":"SILLA","clave":"007","serie":7}`), &a); err != nil {
		t.Fatalf("unmarshal additional: %v", err)
	}
	out, err = json.Marshal(a)
	if err != nil || !strings.Contains(string(out), `"clave":"007"`) || !strings.Contains(string(out), `"serie":7`) {
		t.Fatalf("additional item encoding changed: %s %v", out, err)
	}
}

func TestNumericTextSurvivesClone(t *testing.T) {
	s := NewState()
	if err := json.Unmarshal([]byte(`[{"CLAVE UNICA":555,"NOMBRE DE USUARIO":"","UBICADO":"NO"}]`), &s.Inventory); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	clone, err := s.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	out, err := json.Marshal(clone)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"CLAVE UNICA":555`) {
		t.Fatalf("numeric key turned into a string: %s", out)
	}
}

func TestInventoryItemPreservesUnknownColumns(t *testing.T) {
	in := `{"CLAVE UNICA":"A1","NOMBRE DE USUARIO":"","UBICADO":"NO","listId":7,"fileName":"area.xlsx"}`
	var item InventoryItem
	if err := json.Unmarshal([]byte(in), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(item.Extra["listId"]) != "7" {
		t.Fatalf("expected listId extra, got %v", item.Extra)
	}
	out, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got, want map[string]any
	_ = json.Unmarshal(out, &got)
	_ = json.Unmarshal([]byte(in), &want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestApplicationStateDropsExcludedFields(t *testing.T) {
	in := `{"schemaVersion":2,"serialNumberCache":{},"cameraStream":null,"futureField":{"a":1}}`
	var s ApplicationState
	if err := json.Unmarshal([]byte(in), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := s.Extensions["futureField"]; !ok {
		t.Fatalf("expected unknown field preserved, got %v", s.Extensions)
	}
	s.Extensions["cameraStream"] = json.RawMessage(`{}`)
	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, f := range ExcludedFields {
		if strings.Contains(string(out), `"`+f+`"`) {
			t.Fatalf("excluded field %s written: %s", f, out)
		}
	}
	if !strings.Contains(string(out), `"futureField":{"a":1}`) {
		t.Fatalf("expected future field in output: %s", out)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewState()
	s.Inventory = append(s.Inventory, InventoryItem{ClaveUnica: "A1", Ubicado: NotLocated})
	s.Photos["A1"] = true
	c, err := s.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	c.Inventory[0].Ubicado = Located
	c.Photos["B2"] = true
	if s.Inventory[0].Ubicado != NotLocated || s.Photos["B2"] {
		t.Fatalf("clone shares storage with original")
	}
}

func TestFinders(t *testing.T) {
	s := NewState()
	s.Custodians = []Custodian{{ID: "u1", Name: "Ana"}}
	s.Inventory = []InventoryItem{{ClaveUnica: "A1"}}
	s.AdditionalItems = []AdditionalItem{{ID: "x1"}}
	if s.FindCustodian("u1") != 0 || s.FindCustodian("nope") != -1 {
		t.Fatalf("FindCustodian mismatch")
	}
	if s.FindInventoryItem("A1") != 0 || s.FindInventoryItem("B") != -1 {
		t.Fatalf("FindInventoryItem mismatch")
	}
	if s.FindAdditionalItem("x1") != 0 {
		t.Fatalf("FindAdditionalItem mismatch")
	}
	if _, ok := s.InventoryKeys()["A1"]; !ok {
		t.Fatalf("InventoryKeys missing A1")
	}
}

func TestErrorMatchesByCode(t *testing.T) {
	err := fmt.Errorf("save: %w", Wrap(CodeQuotaExceeded, "sqlite", errors.New("too big")))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota match")
	}
	if errors.Is(err, ErrWriteFailed) {
		t.Fatalf("unexpected write-failed match")
	}
	if CodeOf(err) != CodeQuotaExceeded {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Fatalf("expected unknown code")
	}
	if got := err.Error(); got != "save: sqlite: too big" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestPhotoKeys(t *testing.T) {
	key := PhotoKey(PhotoAdditional, "42")
	if key != "additional-42" {
		t.Fatalf("unexpected key %s", key)
	}
	d, id, ok := ParsePhotoKey(key)
	if !ok || d != PhotoAdditional || id != "42" {
		t.Fatalf("parse mismatch: %s %s %v", d, id, ok)
	}
	if _, _, ok := ParsePhotoKey("other-1"); ok {
		t.Fatalf("expected unknown prefix rejected")
	}
	if !strings.HasPrefix(NewLayoutImageKey(), "img_") {
		t.Fatalf("layout image key prefix")
	}
	if StripExtension("photos/ABC.1.jpg") != "ABC.1" {
		t.Fatalf("unexpected stripped name %q", StripExtension("photos/ABC.1.jpg"))
	}
}
