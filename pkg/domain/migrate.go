package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// migration upgrades a raw document by exactly one schema version.
type migration func(raw map[string]json.RawMessage) error

// migrations[v] upgrades a document from version v to v+1.
var migrations = []migration{
	migrateLegacyLayout,
	migrateActiveCustodianRef,
}

// DocumentVersion reports the schemaVersion of a raw document. Documents
// written before versioning report 0.
func DocumentVersion(raw map[string]json.RawMessage) (int, error) {
	v, ok := raw["schemaVersion"]
	if !ok || isNull(v) {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, fmt.Errorf("schemaVersion: %w", err)
	}
	return n, nil
}

// Migrate upgrades raw in place to SchemaVersion, one step per version. A
// document from a newer build is left at its version.
func Migrate(raw map[string]json.RawMessage) (from int, err error) {
	from, err = DocumentVersion(raw)
	if err != nil {
		return 0, err
	}
	if from < 0 {
		from = 0
	}
	for v := from; v < SchemaVersion; v++ {
		if err := migrations[v](raw); err != nil {
			return from, fmt.Errorf("migrate v%d to v%d: %w", v, v+1, err)
		}
		raw["schemaVersion"] = json.RawMessage(strconv.Itoa(v + 1))
	}
	return from, nil
}

// migrateLegacyLayout wraps a flat shape map, written before layouts had
// pages, into the first page.
func migrateLegacyLayout(raw map[string]json.RawMessage) error {
	v, ok := raw["mapLayout"]
	if !ok || isNull(v) {
		return nil
	}
	var layout map[string]json.RawMessage
	if err := json.Unmarshal(v, &layout); err != nil {
		return fmt.Errorf("mapLayout: %w", err)
	}
	if !IsLegacyLayout(layout) {
		return nil
	}
	wrapped, err := json.Marshal(map[string]map[string]json.RawMessage{DefaultLayoutPage: layout})
	if err != nil {
		return err
	}
	raw["mapLayout"] = wrapped
	raw["currentLayoutPage"] = json.RawMessage(strconv.Quote(DefaultLayoutPage))
	names, err := json.Marshal(map[string]string{DefaultLayoutPage: LayoutPageName(1)})
	if err != nil {
		return err
	}
	raw["layoutPageNames"] = names
	return nil
}

// IsLegacyLayout reports whether a layout has shapes but no page keys.
func IsLegacyLayout(layout map[string]json.RawMessage) bool {
	if len(layout) == 0 {
		return false
	}
	for k := range layout {
		if strings.HasPrefix(k, "page") {
			return false
		}
	}
	return true
}

// migrateActiveCustodianRef replaces an embedded custodian object with its id.
func migrateActiveCustodianRef(raw map[string]json.RawMessage) error {
	v, ok := raw["activeResguardante"]
	if !ok || isNull(v) {
		return nil
	}
	trimmed := strings.TrimSpace(string(v))
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}
	var embedded struct {
		ID Text `json:"id"`
	}
	if err := json.Unmarshal(v, &embedded); err != nil {
		return fmt.Errorf("activeResguardante: %w", err)
	}
	if embedded.ID == "" {
		raw["activeResguardante"] = json.RawMessage("null")
		return nil
	}
	raw["activeResguardante"] = json.RawMessage(strconv.Quote(string(embedded.ID)))
	return nil
}

// Normalize restores the structural invariants of a decoded document: nil
// collections are allocated, the layout has at least one page, the current
// page exists, every page has a name and the active custodian exists.
func Normalize(s *ApplicationState) {
	allocate(s)

	if len(s.MapLayout) == 0 {
		s.MapLayout[DefaultLayoutPage] = LayoutPage{}
	}
	for k, page := range s.MapLayout {
		if page == nil {
			s.MapLayout[k] = LayoutPage{}
		}
	}
	pages := SortedPages(s.MapLayout)
	if _, ok := s.MapLayout[s.CurrentLayoutPage]; !ok {
		s.CurrentLayoutPage = pages[0]
	}
	for i, k := range pages {
		if s.LayoutPageNames[k] == "" {
			n := PageNumber(k)
			if n <= 0 {
				n = i + 1
			}
			s.LayoutPageNames[k] = LayoutPageName(n)
		}
	}

	if s.ActiveCustodian != nil && s.FindCustodian(*s.ActiveCustodian) < 0 {
		s.ActiveCustodian = nil
	}
	if s.Theme == "" {
		s.Theme = DefaultTheme
	}
	if s.SchemaVersion < SchemaVersion {
		s.SchemaVersion = SchemaVersion
	}
}

func allocate(s *ApplicationState) {
	if s.Inventory == nil {
		s.Inventory = []InventoryItem{}
	}
	if s.AdditionalItems == nil {
		s.AdditionalItems = []AdditionalItem{}
	}
	if s.Custodians == nil {
		s.Custodians = []Custodian{}
	}
	if s.Areas == nil {
		s.Areas = []string{}
	}
	if s.PersistentAreas == nil {
		s.PersistentAreas = []string{}
	}
	if s.ActivityLog == nil {
		s.ActivityLog = []string{}
	}
	if s.Locations == nil {
		s.Locations = map[string]int{}
	}
	if s.AreaNames == nil {
		s.AreaNames = map[string]string{}
	}
	if s.AreaDirectory == nil {
		s.AreaDirectory = map[string]AreaResponsible{}
	}
	if s.ClosedAreas == nil {
		s.ClosedAreas = map[string]AreaClosure{}
	}
	if s.CompletedAreas == nil {
		s.CompletedAreas = map[string]bool{}
	}
	if s.Notes == nil {
		s.Notes = map[string]string{}
	}
	if s.Photos == nil {
		s.Photos = map[string]bool{}
	}
	if s.AdditionalPhotos == nil {
		s.AdditionalPhotos = map[string]bool{}
	}
	if s.LocationPhotos == nil {
		s.LocationPhotos = map[string]bool{}
	}
	if s.MapLayout == nil {
		s.MapLayout = map[string]LayoutPage{}
	}
	if s.LayoutPageNames == nil {
		s.LayoutPageNames = map[string]string{}
	}
	if s.LayoutPageColors == nil {
		s.LayoutPageColors = map[string]string{}
	}
	if s.LayoutItemColors == nil {
		s.LayoutItemColors = map[string]string{}
	}
	if s.LayoutImages == nil {
		s.LayoutImages = map[string]string{}
	}
	if s.InstitutionalReportCheckboxes == nil {
		s.InstitutionalReportCheckboxes = map[string]bool{}
	}
	if s.ActionCheckboxes == nil {
		s.ActionCheckboxes = map[string]map[string]json.RawMessage{}
	}
	if s.ReportCheckboxes == nil {
		s.ReportCheckboxes = map[string]map[string]json.RawMessage{}
	}
}

// PageNumber extracts n from a "pageN" key, or returns 0.
func PageNumber(key string) int {
	rest, ok := strings.CutPrefix(key, "page")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return n
}

// SortedPages returns layout page keys ordered by page number, then name.
func SortedPages(layout map[string]LayoutPage) []string {
	keys := make([]string, 0, len(layout))
	for k := range layout {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, nj := PageNumber(keys[i]), PageNumber(keys[j])
		if ni != nj {
			return ni < nj
		}
		return keys[i] < keys[j]
	})
	return keys
}
