package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLayoutPage is the page every fresh or migrated layout starts with.
	DefaultLayoutPage = "page1"
	// DefaultTheme is the UI theme of a fresh session.
	DefaultTheme = "light"
	// DefaultPageColor is the background recorded for new layout pages.
	DefaultPageColor = "#ffffff"
)

// LayoutPageName returns the display name of the n-th layout page.
func LayoutPageName(n int) string {
	return "Página " + strconv.Itoa(n)
}

// NewState returns the default document of a fresh session.
func NewState() *ApplicationState {
	return &ApplicationState{
		SchemaVersion:    SchemaVersion,
		Theme:            DefaultTheme,
		Inventory:        []InventoryItem{},
		AdditionalItems:  []AdditionalItem{},
		Custodians:       []Custodian{},
		Locations:        map[string]int{},
		Areas:            []string{},
		PersistentAreas:  []string{},
		AreaNames:        map[string]string{},
		AreaDirectory:    map[string]AreaResponsible{},
		ClosedAreas:      map[string]AreaClosure{},
		CompletedAreas:   map[string]bool{},
		Notes:            map[string]string{},
		Photos:           map[string]bool{},
		AdditionalPhotos: map[string]bool{},
		LocationPhotos:   map[string]bool{},

		MapLayout:         map[string]LayoutPage{DefaultLayoutPage: {}},
		CurrentLayoutPage: DefaultLayoutPage,
		LayoutPageNames:   map[string]string{DefaultLayoutPage: LayoutPageName(1)},
		LayoutPageColors:  map[string]string{DefaultLayoutPage: DefaultPageColor},
		LayoutItemColors:  map[string]string{},
		LayoutImages:      map[string]string{},

		InstitutionalReportCheckboxes: map[string]bool{},
		ActionCheckboxes: map[string]map[string]json.RawMessage{
			"labels":     {},
			"notes":      {},
			"additional": {},
			"mismatched": {},
			"personal":   {},
		},
		ReportCheckboxes: map[string]map[string]json.RawMessage{
			"notes":      {},
			"mismatched": {},
		},
		ActivityLog: []string{},
	}
}

var defaultDocument = func() map[string]json.RawMessage {
	b, err := json.Marshal(NewState())
	if err != nil {
		panic(fmt.Sprintf("encode default state: %v", err))
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		panic(fmt.Sprintf("decode default state: %v", err))
	}
	return raw
}()

// MergeDefaults fills raw with default values field by field. Loaded values
// win; a field that is absent or null takes the default. Keys unknown to the
// defaults are kept untouched.
func MergeDefaults(raw map[string]json.RawMessage) {
	for k, def := range defaultDocument {
		if k == "schemaVersion" {
			continue
		}
		v, ok := raw[k]
		if !ok || isNull(v) {
			raw[k] = def
		}
	}
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || strings.TrimSpace(string(v)) == "null"
}
