// Package domain defines the persisted inventory session document, its
// defaults and schema migrations, blob key conventions and the error taxonomy
// shared by every storage layer.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SchemaVersion is the document version written by this build.
const SchemaVersion = 2

// StateKey is the fixed document key in the state medium and the basis of the
// archive document file name.
const StateKey = "inventarioProState"

// Values of InventoryItem.Ubicado.
const (
	Located    = "SI"
	NotLocated = "NO"
)

// Text is a string field that also accepts JSON numbers. Spreadsheet imports
// produce numeric asset keys and serials.
type Text string

// UnmarshalJSON accepts strings, numbers and null.
func (t *Text) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("text field: %w", err)
	}
	*t = Text(n.String())
	return nil
}

func (t Text) String() string { return string(t) }

// InventoryItem is one asset row loaded from an institutional listing.
// Columns not modelled here are preserved in Extra.
type InventoryItem struct {
	ClaveUnica       Text   `json:"CLAVE UNICA"`
	Descripcion      Text   `json:"DESCRIPCION,omitempty"`
	Marca            Text   `json:"MARCA,omitempty"`
	Modelo           Text   `json:"MODELO,omitempty"`
	Serie            Text   `json:"SERIE,omitempty"`
	NombreUsuario    string `json:"NOMBRE DE USUARIO"`
	Ubicado          string `json:"UBICADO"`
	ImprimirEtiqueta string `json:"IMPRIMIR ETIQUETA,omitempty"`
	ListadoOriginal  string `json:"listadoOriginal,omitempty"`
	AreaOriginal     string `json:"areaOriginal,omitempty"`
	AreaIncorrecta   bool   `json:"areaIncorrecta,omitempty"`
	FechaUbicado     string `json:"fechaUbicado,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`

	// Numeric names the Text columns that were stored as JSON numbers.
	Numeric map[string]bool `json:"-"`
}

type inventoryItemFields InventoryItem

var (
	inventoryItemKeys     = jsonFieldNames(inventoryItemFields{})
	inventoryItemTextKeys = textFieldNames(inventoryItemFields{})
)

func (i InventoryItem) MarshalJSON() ([]byte, error) {
	b, err := marshalWithExtras(inventoryItemFields(i), i.Extra)
	if err != nil {
		return nil, err
	}
	return withNumbers(b, i.Numeric)
}

func (i *InventoryItem) UnmarshalJSON(b []byte) error {
	var f inventoryItemFields
	extra, err := splitExtras(b, &f, inventoryItemKeys)
	if err != nil {
		return err
	}
	*i = InventoryItem(f)
	i.Extra = extra
	i.Numeric = numericMembers(b, inventoryItemTextKeys)
	return nil
}

// AdditionalItem is an asset found on site that is not on any listing.
type AdditionalItem struct {
	ID                  string `json:"id"`
	Descripcion         string `json:"descripcion"`
	Clave               Text   `json:"clave,omitempty"`
	Marca               Text   `json:"marca,omitempty"`
	Modelo              Text   `json:"modelo,omitempty"`
	Serie               Text   `json:"serie,omitempty"`
	Area                string `json:"area,omitempty"`
	Usuario             string `json:"usuario,omitempty"`
	Personal            string `json:"personal,omitempty"`
	FechaRegistro       string `json:"fechaRegistro,omitempty"`
	TieneFormatoEntrada *bool  `json:"tieneFormatoEntrada,omitempty"`

	Extra   map[string]json.RawMessage `json:"-"`
	Numeric map[string]bool            `json:"-"`
}

type additionalItemFields AdditionalItem

var (
	additionalItemKeys     = jsonFieldNames(additionalItemFields{})
	additionalItemTextKeys = textFieldNames(additionalItemFields{})
)

func (a AdditionalItem) MarshalJSON() ([]byte, error) {
	b, err := marshalWithExtras(additionalItemFields(a), a.Extra)
	if err != nil {
		return nil, err
	}
	return withNumbers(b, a.Numeric)
}

func (a *AdditionalItem) UnmarshalJSON(b []byte) error {
	var f additionalItemFields
	extra, err := splitExtras(b, &f, additionalItemKeys)
	if err != nil {
		return err
	}
	*a = AdditionalItem(f)
	a.Extra = extra
	a.Numeric = numericMembers(b, additionalItemTextKeys)
	return nil
}

// Custodian (resguardante) is a person responsible for located assets.
type Custodian struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Area           Text   `json:"area"`
	Location       string `json:"location,omitempty"`
	LocationWithID string `json:"locationWithId,omitempty"`

	Numeric map[string]bool `json:"-"`
}

type custodianFields Custodian

var custodianTextKeys = textFieldNames(custodianFields{})

func (c Custodian) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(custodianFields(c))
	if err != nil {
		return nil, err
	}
	return withNumbers(b, c.Numeric)
}

func (c *Custodian) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		return nil
	}
	var f custodianFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = Custodian(f)
	c.Numeric = numericMembers(b, custodianTextKeys)
	return nil
}

// User is the operator currently logged in.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AreaResponsible is the responsible party extracted for an area listing.
type AreaResponsible struct {
	FullName string `json:"fullName,omitempty"`
	Name     string `json:"name,omitempty"`
	Title    string `json:"title,omitempty"`
}

// AreaClosure records the data printed on an area closure certificate.
type AreaClosure struct {
	Responsible string `json:"responsible,omitempty"`
	Location    string `json:"location,omitempty"`
	Date        string `json:"date,omitempty"`
}

// Shape is one element placed on a floor-plan page.
type Shape struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	Type     string  `json:"type"`
	Text     string  `json:"text,omitempty"`
	ImageID  string  `json:"imageId,omitempty"`
	AreaID   string  `json:"areaId,omitempty"`
}

// LayoutPage maps shape ids to shapes.
type LayoutPage map[string]Shape

// ApplicationState is the single persisted document. It holds no derived
// caches or runtime handles; those live on the state manager.
type ApplicationState struct {
	SchemaVersion int `json:"schemaVersion"`

	LoggedIn         bool    `json:"loggedIn"`
	CurrentUser      *User   `json:"currentUser"`
	Theme            string  `json:"theme"`
	SessionStartTime *string `json:"sessionStartTime"`
	LastAutosave     *string `json:"lastAutosave"`

	Inventory       []InventoryItem  `json:"inventory"`
	AdditionalItems []AdditionalItem `json:"additionalItems"`
	Custodians      []Custodian      `json:"resguardantes"`
	ActiveCustodian *string          `json:"activeResguardante"`

	Locations       map[string]int             `json:"locations"`
	Areas           []string                   `json:"areas"`
	PersistentAreas []string                   `json:"persistentAreas"`
	AreaNames       map[string]string          `json:"areaNames"`
	AreaDirectory   map[string]AreaResponsible `json:"areaDirectory"`
	ClosedAreas     map[string]AreaClosure     `json:"closedAreas"`
	CompletedAreas  map[string]bool            `json:"completedAreas"`

	Notes            map[string]string `json:"notes"`
	Photos           map[string]bool   `json:"photos"`
	AdditionalPhotos map[string]bool   `json:"additionalPhotos"`
	LocationPhotos   map[string]bool   `json:"locationPhotos"`

	MapLayout         map[string]LayoutPage `json:"mapLayout"`
	CurrentLayoutPage string                `json:"currentLayoutPage"`
	LayoutPageNames   map[string]string     `json:"layoutPageNames"`
	LayoutPageColors  map[string]string     `json:"layoutPageColors"`
	LayoutItemColors  map[string]string     `json:"layoutItemColors"`
	LayoutImages      map[string]string     `json:"layoutImages"`

	InstitutionalReportCheckboxes map[string]bool                       `json:"institutionalReportCheckboxes"`
	ActionCheckboxes              map[string]map[string]json.RawMessage `json:"actionCheckboxes"`
	ReportCheckboxes              map[string]map[string]json.RawMessage `json:"reportCheckboxes"`

	ReadOnlyMode      bool     `json:"readOnlyMode"`
	InventoryFinished bool     `json:"inventoryFinished"`
	ActivityLog       []string `json:"activityLog"`

	// Extensions holds top-level fields written by newer builds so that a
	// save does not drop them.
	Extensions map[string]json.RawMessage `json:"-"`
}

type applicationStateFields ApplicationState

var applicationStateKeys = jsonFieldNames(applicationStateFields{})

// MarshalJSON writes the allow-listed fields plus preserved extensions, never
// any of ExcludedFields.
func (s ApplicationState) MarshalJSON() ([]byte, error) {
	return marshalWithExtras(applicationStateFields(s), withoutExcluded(s.Extensions))
}

func (s *ApplicationState) UnmarshalJSON(b []byte) error {
	var f applicationStateFields
	extra, err := splitExtras(b, &f, applicationStateKeys)
	if err != nil {
		return err
	}
	*s = ApplicationState(f)
	s.Extensions = withoutExcluded(extra)
	return nil
}

// FindCustodian returns the index of the custodian with id, or -1.
func (s *ApplicationState) FindCustodian(id string) int {
	for i := range s.Custodians {
		if s.Custodians[i].ID == id {
			return i
		}
	}
	return -1
}

// FindInventoryItem returns the index of the item with the business key, or -1.
func (s *ApplicationState) FindInventoryItem(clave string) int {
	for i := range s.Inventory {
		if string(s.Inventory[i].ClaveUnica) == clave {
			return i
		}
	}
	return -1
}

// FindAdditionalItem returns the index of the additional item with id, or -1.
func (s *ApplicationState) FindAdditionalItem(id string) int {
	for i := range s.AdditionalItems {
		if s.AdditionalItems[i].ID == id {
			return i
		}
	}
	return -1
}

// InventoryKeys returns the set of business keys currently in inventory.
func (s *ApplicationState) InventoryKeys() map[string]struct{} {
	out := make(map[string]struct{}, len(s.Inventory))
	for _, item := range s.Inventory {
		out[string(item.ClaveUnica)] = struct{}{}
	}
	return out
}

// Clone returns a deep copy through the wire codec, so the copy is exactly
// what would be persisted.
func (s *ApplicationState) Clone() (*ApplicationState, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	var out ApplicationState
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("clone state: %w", err)
	}
	return &out, nil
}
