package core

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"inventario/pkg/domain"
)

// DefaultArea names listings whose area could not be detected.
const DefaultArea = "Sin Área"

// ListSource describes the institutional listing a batch of items came from.
type ListSource struct {
	FileName    string
	ListType    string
	Area        string
	AreaName    string
	Responsible *domain.AreaResponsible
}

// ImportResult counts the outcome of AddInventoryItems.
type ImportResult struct {
	Added      int
	Duplicates int
	Rejected   int
}

// AddInventoryItems appends a listing to the inventory. Items without a
// business key are rejected and keys already in inventory are skipped. Every
// added item starts unlocated and is stamped with the listing metadata.
func (m *Manager) AddInventoryItems(ctx context.Context, src ListSource, items []domain.InventoryItem) (ImportResult, error) {
	var res ImportResult
	err := m.mutate(ctx, func(s *domain.ApplicationState) error {
		res = ImportResult{}
		area := src.Area
		if area == "" {
			area = DefaultArea
		}
		if _, ok := s.AreaNames[area]; !ok {
			name := src.AreaName
			if name == "" {
				name = area
			}
			s.AreaNames[area] = name
		}
		if _, ok := s.AreaDirectory[area]; !ok && src.Responsible != nil {
			s.AreaDirectory[area] = *src.Responsible
		}
		listID := json.RawMessage(strconv.FormatInt(m.now().UnixMilli(), 10))
		fileName, err := json.Marshal(src.FileName)
		if err != nil {
			return err
		}
		seen := s.InventoryKeys()
		for _, item := range items {
			clave := strings.TrimSpace(string(item.ClaveUnica))
			if clave == "" {
				res.Rejected++
				continue
			}
			if _, dup := seen[clave]; dup {
				res.Duplicates++
				continue
			}
			seen[clave] = struct{}{}
			item.ClaveUnica = domain.Text(clave)
			item.NombreUsuario = ""
			item.Ubicado = domain.NotLocated
			item.ImprimirEtiqueta = "NO"
			item.ListadoOriginal = src.ListType
			item.AreaOriginal = area
			item.Extra = cloneExtra(item.Extra)
			item.Extra["listId"] = listID
			item.Extra["fileName"] = fileName
			s.Inventory = append(s.Inventory, item)
			res.Added++
		}
		if !containsString(s.Areas, area) {
			s.Areas = append(s.Areas, area)
		}
		s.InventoryFinished = false
		m.logLocked("Archivo cargado", fmt.Sprintf("Archivo %q con %d bienes para el área %s. Tipo: %s.", src.FileName, res.Added, area, src.ListType))
		return nil
	})
	return res, err
}

func cloneExtra(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// LocateItem assigns an inventory item to the active custodian and marks it
// located. relabel additionally flags the item for a new label; locating a
// flagged item without relabel clears the flag. Area and inventory completion
// are re-evaluated.
func (m *Manager) LocateItem(ctx context.Context, clave string, relabel bool) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		user, err := activeCustodian(s)
		if err != nil {
			return err
		}
		i := s.FindInventoryItem(clave)
		if i < 0 {
			return notFound("inventory item", clave)
		}
		item := &s.Inventory[i]
		if item.Ubicado == domain.Located && item.NombreUsuario != "" && item.NombreUsuario != user.Name {
			m.logLocked("Bien reasignado", fmt.Sprintf("Clave: %s de %s a %s", clave, item.NombreUsuario, user.Name))
		}
		item.Ubicado = domain.Located
		item.NombreUsuario = user.Name
		item.FechaUbicado = m.isoNow()
		item.AreaIncorrecta = item.AreaOriginal != string(user.Area)
		switch {
		case relabel:
			item.ImprimirEtiqueta = "SI"
			m.logLocked("Bien marcado para re-etiquetar", fmt.Sprintf("Clave: %s, Usuario: %s", clave, user.Name))
		case item.ImprimirEtiqueta == "SI":
			item.ImprimirEtiqueta = "NO"
			m.logLocked("Marca de re-etiquetar quitada al ubicar", fmt.Sprintf("Clave: %s, Usuario: %s", clave, user.Name))
		default:
			m.logLocked("Bien ubicado", fmt.Sprintf("Clave: %s, Usuario: %s", clave, user.Name))
		}
		m.checkAreaCompletionLocked(item.AreaOriginal)
		m.checkInventoryCompletionLocked()
		return nil
	})
}

// UnlocateItem reverts an item to unlocated and clears its assignment.
func (m *Manager) UnlocateItem(ctx context.Context, clave string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		i := s.FindInventoryItem(clave)
		if i < 0 {
			return notFound("inventory item", clave)
		}
		item := &s.Inventory[i]
		item.Ubicado = domain.NotLocated
		item.NombreUsuario = ""
		item.ImprimirEtiqueta = "NO"
		item.FechaUbicado = ""
		item.AreaIncorrecta = false
		m.logLocked("Bien des-ubicado", "Clave: "+clave)
		m.checkAreaCompletionLocked(item.AreaOriginal)
		return nil
	})
}

func activeCustodian(s *domain.ApplicationState) (domain.Custodian, error) {
	if s.ActiveCustodian == nil {
		return domain.Custodian{}, domain.ErrNoActiveCustodian
	}
	i := s.FindCustodian(*s.ActiveCustodian)
	if i < 0 {
		return domain.Custodian{}, domain.ErrNoActiveCustodian
	}
	return s.Custodians[i], nil
}

// checkAreaCompletionLocked marks an open area complete once every item is
// located and reverts the mark when an item is unlocated.
func (m *Manager) checkAreaCompletionLocked(area string) {
	s := m.state
	if area == "" {
		return
	}
	if _, closed := s.ClosedAreas[area]; closed {
		return
	}
	total, located := 0, 0
	for _, item := range s.Inventory {
		if item.AreaOriginal != area {
			continue
		}
		total++
		if item.Ubicado == domain.Located {
			located++
		}
	}
	complete := total > 0 && total == located
	was := s.CompletedAreas[area]
	switch {
	case complete && !was:
		s.CompletedAreas[area] = true
		m.logLocked("Área completada", fmt.Sprintf("Todos los bienes del área %s han sido ubicados.", area))
	case !complete && was:
		delete(s.CompletedAreas, area)
		m.logLocked("Área ya no completada", fmt.Sprintf("El área %s ahora tiene bienes pendientes.", area))
	}
}

func (m *Manager) checkInventoryCompletionLocked() {
	s := m.state
	if s.InventoryFinished || len(s.Inventory) == 0 {
		return
	}
	for _, item := range s.Inventory {
		if item.Ubicado != domain.Located {
			return
		}
	}
	s.InventoryFinished = true
	m.logLocked("Inventario completado", "Todos los bienes han sido ubicados.")
}

// AddAdditionalItem registers an item found on site under the active
// custodian. duplicate reports that its serial or key matches an indexed
// value; the item is inserted regardless.
func (m *Manager) AddAdditionalItem(ctx context.Context, item domain.AdditionalItem) (stored domain.AdditionalItem, duplicate bool, err error) {
	err = m.mutate(ctx, func(s *domain.ApplicationState) error {
		user, err := activeCustodian(s)
		if err != nil {
			return err
		}
		item.Descripcion = strings.TrimSpace(item.Descripcion)
		if item.Descripcion == "" {
			return invalid("add additional item", "descripcion required")
		}
		item.Serie = domain.Text(strings.TrimSpace(string(item.Serie)))
		item.Clave = domain.Text(strings.TrimSpace(string(item.Clave)))
		duplicate = m.index.Contains(string(item.Serie)) || m.index.Contains(string(item.Clave))
		item.ID = m.newID()
		item.Usuario = user.Name
		item.FechaRegistro = m.isoNow()
		if item.Area == "" {
			item.Area = string(user.Area)
		}
		s.AdditionalItems = append(s.AdditionalItems, item)
		m.logLocked("Bien adicional registrado", fmt.Sprintf("Descripción: %s, Usuario: %s", item.Descripcion, item.Usuario))
		if duplicate {
			m.logger.Info("additional item duplicates an indexed serial or key", "id", item.ID)
		}
		stored = item
		return nil
	})
	return stored, duplicate, err
}

// UpdateAdditionalItem applies fn to a copy of the item and stores the result.
// The id cannot be changed.
func (m *Manager) UpdateAdditionalItem(ctx context.Context, id string, fn func(*domain.AdditionalItem) error) (domain.AdditionalItem, error) {
	var updated domain.AdditionalItem
	err := m.mutate(ctx, func(s *domain.ApplicationState) error {
		i := s.FindAdditionalItem(id)
		if i < 0 {
			return notFound("additional item", id)
		}
		cp := s.AdditionalItems[i]
		cp.Extra = cloneExtra(cp.Extra)
		if err := fn(&cp); err != nil {
			return err
		}
		cp.ID = id
		if strings.TrimSpace(cp.Descripcion) == "" {
			return invalid("update additional item", "descripcion required")
		}
		s.AdditionalItems[i] = cp
		m.logLocked("Bien adicional editado", "Descripción: "+cp.Descripcion)
		updated = cp
		return nil
	})
	return updated, err
}

// DeleteAdditionalItem removes an item together with its photo.
func (m *Manager) DeleteAdditionalItem(ctx context.Context, id string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		i := s.FindAdditionalItem(id)
		if i < 0 {
			return notFound("additional item", id)
		}
		m.removeAdditionalLocked(ctx, i, true)
		return nil
	})
}

func (m *Manager) removeAdditionalLocked(ctx context.Context, i int, deletePhoto bool) {
	s := m.state
	item := s.AdditionalItems[i]
	s.AdditionalItems = append(s.AdditionalItems[:i], s.AdditionalItems[i+1:]...)
	if deletePhoto && m.photosEnabled {
		key := domain.PhotoKey(domain.PhotoAdditional, item.ID)
		err := m.blobs.Delete(ctx, domain.PartitionPhotos, key)
		observeBlob("delete", err)
		if err != nil {
			m.logger.Warn("delete additional photo failed", "key", key, "error", err)
		}
	}
	delete(s.AdditionalPhotos, item.ID)
	m.logLocked("Bien adicional eliminado", "Descripción: "+item.Descripcion)
}

// CustodianInput carries the fields of a new custodian.
type CustodianInput struct {
	Name     string
	Area     string
	Location string
}

// AddCustodian registers and activates a custodian. Its location label is the
// location base plus a two-digit per-location sequence.
func (m *Manager) AddCustodian(ctx context.Context, in CustodianInput) (domain.Custodian, error) {
	var created domain.Custodian
	err := m.mutate(ctx, func(s *domain.ApplicationState) error {
		name := strings.TrimSpace(in.Name)
		location := strings.TrimSpace(in.Location)
		if name == "" || in.Area == "" || location == "" {
			return invalid("add custodian", "name, area and location required")
		}
		s.Locations[location]++
		created = domain.Custodian{
			ID:             m.newID(),
			Name:           name,
			Area:           domain.Text(in.Area),
			Location:       location,
			LocationWithID: fmt.Sprintf("%s %02d", location, s.Locations[location]),
		}
		s.Custodians = append(s.Custodians, created)
		id := created.ID
		s.ActiveCustodian = &id
		m.logLocked("Usuario creado", fmt.Sprintf("Nombre: %s, Área: %s, Ubicación: %s", name, in.Area, created.LocationWithID))
		return nil
	})
	return created, err
}

var trailingSequence = regexp.MustCompile(`\s\d+$`)

// UpdateCustodian applies fn to a copy of the custodian. A rename is carried
// over to every item assigned under the old name.
func (m *Manager) UpdateCustodian(ctx context.Context, id string, fn func(*domain.Custodian) error) (domain.Custodian, error) {
	var updated domain.Custodian
	err := m.mutate(ctx, func(s *domain.ApplicationState) error {
		i := s.FindCustodian(id)
		if i < 0 {
			return notFound("custodian", id)
		}
		cp := s.Custodians[i]
		oldName := cp.Name
		if err := fn(&cp); err != nil {
			return err
		}
		cp.ID = id
		if strings.TrimSpace(cp.Name) == "" {
			return invalid("update custodian", "name required")
		}
		cp.Location = trailingSequence.ReplaceAllString(cp.LocationWithID, "")
		s.Custodians[i] = cp
		if cp.Name != oldName {
			for j := range s.Inventory {
				if s.Inventory[j].NombreUsuario == oldName {
					s.Inventory[j].NombreUsuario = cp.Name
				}
			}
			for j := range s.AdditionalItems {
				if s.AdditionalItems[j].Usuario == oldName {
					s.AdditionalItems[j].Usuario = cp.Name
				}
			}
		}
		recalculateLocations(s)
		m.logLocked("Usuario editado", fmt.Sprintf("Nombre anterior: %s, Nombre nuevo: %s", oldName, cp.Name))
		updated = cp
		return nil
	})
	return updated, err
}

// RemoveCustodian deletes a custodian and returns how many inventory items
// were assigned to them. An active custodian is deactivated.
func (m *Manager) RemoveCustodian(ctx context.Context, id string) (assigned int, err error) {
	err = m.mutate(ctx, func(s *domain.ApplicationState) error {
		i := s.FindCustodian(id)
		if i < 0 {
			return notFound("custodian", id)
		}
		user := s.Custodians[i]
		assigned = 0
		for _, item := range s.Inventory {
			if item.NombreUsuario == user.Name {
				assigned++
			}
		}
		s.Custodians = append(s.Custodians[:i], s.Custodians[i+1:]...)
		if s.ActiveCustodian != nil && *s.ActiveCustodian == id {
			s.ActiveCustodian = nil
		}
		recalculateLocations(s)
		m.logLocked("Usuario eliminado", fmt.Sprintf("Nombre: %s (tenía %d bienes)", user.Name, assigned))
		return nil
	})
	return assigned, err
}

func recalculateLocations(s *domain.ApplicationState) {
	s.Locations = make(map[string]int, len(s.Custodians))
	for _, c := range s.Custodians {
		if c.Location != "" {
			s.Locations[c.Location]++
		}
	}
}

// ActivateCustodian makes id the custodian new assignments go to.
func (m *Manager) ActivateCustodian(ctx context.Context, id string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		i := s.FindCustodian(id)
		if i < 0 {
			return notFound("custodian", id)
		}
		active := id
		s.ActiveCustodian = &active
		m.logLocked("Usuario activado", "Usuario: "+s.Custodians[i].Name)
		return nil
	})
}

// DeactivateCustodian clears the active custodian.
func (m *Manager) DeactivateCustodian(ctx context.Context) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		if s.ActiveCustodian == nil {
			return nil
		}
		if i := s.FindCustodian(*s.ActiveCustodian); i >= 0 {
			m.logLocked("Usuario desactivado", "Usuario: "+s.Custodians[i].Name)
		}
		s.ActiveCustodian = nil
		return nil
	})
}
