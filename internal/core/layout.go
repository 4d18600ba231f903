package core

import (
	"context"
	"fmt"
	"strings"

	"inventario/pkg/domain"
)

// Placement of a newly added layout image.
const (
	layoutImageX      = 20
	layoutImageY      = 20
	layoutImageWidth  = 300
	layoutImageHeight = 200
)

// AddLayoutPage appends an empty page numbered after the highest existing
// page, makes it current and returns its key.
func (m *Manager) AddLayoutPage(ctx context.Context) (string, error) {
	var key string
	err := m.mutate(ctx, func(s *domain.ApplicationState) error {
		highest := 0
		for k := range s.MapLayout {
			highest = max(highest, domain.PageNumber(k))
		}
		key = fmt.Sprintf("page%d", highest+1)
		s.MapLayout[key] = domain.LayoutPage{}
		s.LayoutPageNames[key] = domain.LayoutPageName(len(s.MapLayout))
		s.LayoutPageColors[key] = domain.DefaultPageColor
		s.CurrentLayoutPage = key
		m.logLocked("Croquis", "Página agregada: "+s.LayoutPageNames[key])
		return nil
	})
	return key, err
}

// RemoveLayoutPage deletes a page and the image references placed on it. The
// last remaining page cannot be removed.
func (m *Manager) RemoveLayoutPage(ctx context.Context, key string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		page, ok := s.MapLayout[key]
		if !ok {
			return notFound("layout page", key)
		}
		if len(s.MapLayout) <= 1 {
			return domain.ErrLastLayoutPage
		}
		for id := range page {
			delete(s.LayoutImages, id)
			delete(s.LayoutItemColors, id)
		}
		name := s.LayoutPageNames[key]
		delete(s.MapLayout, key)
		delete(s.LayoutPageNames, key)
		delete(s.LayoutPageColors, key)
		if s.CurrentLayoutPage == key {
			s.CurrentLayoutPage = domain.SortedPages(s.MapLayout)[0]
		}
		m.logLocked("Croquis", "Página eliminada: "+name)
		return nil
	})
}

// RenameLayoutPage sets the display name of a page.
func (m *Manager) RenameLayoutPage(ctx context.Context, key, name string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		if _, ok := s.MapLayout[key]; !ok {
			return notFound("layout page", key)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return invalid("rename layout page", "name required")
		}
		s.LayoutPageNames[key] = name
		return nil
	})
}

// SetCurrentLayoutPage selects the page shown by the layout editor.
func (m *Manager) SetCurrentLayoutPage(ctx context.Context, key string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		if _, ok := s.MapLayout[key]; !ok {
			return notFound("layout page", key)
		}
		s.CurrentLayoutPage = key
		return nil
	})
}

// ResetLayoutPage removes every shape from a page.
func (m *Manager) ResetLayoutPage(ctx context.Context, key string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		page, ok := s.MapLayout[key]
		if !ok {
			return notFound("layout page", key)
		}
		for id := range page {
			delete(s.LayoutImages, id)
		}
		s.MapLayout[key] = domain.LayoutPage{}
		m.logLocked("Croquis", fmt.Sprintf("Lienzo de la página %s restablecido.", key))
		return nil
	})
}

// PutShape places or moves a shape on a page.
func (m *Manager) PutShape(ctx context.Context, page, id string, shape domain.Shape) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		p, ok := s.MapLayout[page]
		if !ok {
			return notFound("layout page", page)
		}
		if id == "" || shape.Type == "" {
			return invalid("put shape", "id and type required")
		}
		p[id] = shape
		return nil
	})
}

// RemoveShape deletes a shape. An image shape loses its reference; the image
// blob stays in the store.
func (m *Manager) RemoveShape(ctx context.Context, page, id string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		p, ok := s.MapLayout[page]
		if !ok {
			return notFound("layout page", page)
		}
		if _, ok := p[id]; !ok {
			return notFound("shape", id)
		}
		delete(p, id)
		delete(s.LayoutImages, id)
		delete(s.LayoutItemColors, id)
		return nil
	})
}

// AddLayoutImage stores an image under a fresh key and places it on a page.
// It returns the new shape id.
func (m *Manager) AddLayoutImage(ctx context.Context, page string, payload []byte) (string, error) {
	var shapeID string
	err := m.mutate(ctx, func(s *domain.ApplicationState) error {
		p, ok := s.MapLayout[page]
		if !ok {
			return notFound("layout page", page)
		}
		if err := m.requirePhotosLocked(); err != nil {
			return err
		}
		if len(payload) == 0 {
			return invalid("add layout image", "empty image")
		}
		imageKey := domain.NewLayoutImageKey()
		err := m.blobs.Put(ctx, domain.PartitionLayoutImages, imageKey, payload)
		observeBlob("put", err)
		if err != nil {
			return err
		}
		shapeID = domain.LayoutImageShapeID(imageKey)
		p[shapeID] = domain.Shape{
			X: layoutImageX, Y: layoutImageY,
			Width: layoutImageWidth, Height: layoutImageHeight,
			Type: "image", ImageID: imageKey,
		}
		s.LayoutImages[shapeID] = imageKey
		return nil
	})
	return shapeID, err
}
