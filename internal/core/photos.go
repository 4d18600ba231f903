package core

import (
	"context"
	"fmt"

	"inventario/pkg/domain"
)

func (m *Manager) requirePhotosLocked() error {
	if !m.photosEnabled || m.blobs == nil {
		return domain.ErrStorageUnavailable
	}
	return nil
}

func flagsFor(s *domain.ApplicationState, d domain.PhotoDomain) (map[string]bool, error) {
	flags, err := s.PresenceFlags(d)
	if err != nil {
		return nil, invalid("photo", err.Error())
	}
	return flags, nil
}

// AttachPhoto stores a photo blob and then sets its presence flag. Payloads
// larger than the configured cap are rejected before anything is written. A
// failed save leaves the blob in place with no flag.
func (m *Manager) AttachPhoto(ctx context.Context, ref domain.PhotoRef, payload []byte) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		if int64(len(payload)) > m.maxPhotoBytes {
			return domain.NewError(domain.CodePhotoTooLarge, fmt.Sprintf("photo %s is %d bytes", ref.Key(), len(payload)))
		}
		if err := m.requirePhotosLocked(); err != nil {
			return err
		}
		flags, err := flagsFor(s, ref.Domain)
		if err != nil {
			return err
		}
		if ref.ID == "" {
			return invalid("attach photo", "id required")
		}
		err = m.blobs.Put(ctx, domain.PartitionPhotos, ref.Key(), payload)
		observeBlob("put", err)
		if err != nil {
			return err
		}
		flags[ref.ID] = true
		m.logLocked("Foto agregada", "Clave: "+ref.ID)
		return nil
	})
}

// DeletePhoto removes a photo blob and its presence flag.
func (m *Manager) DeletePhoto(ctx context.Context, ref domain.PhotoRef) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		if err := m.requirePhotosLocked(); err != nil {
			return err
		}
		flags, err := flagsFor(s, ref.Domain)
		if err != nil {
			return err
		}
		err = m.blobs.Delete(ctx, domain.PartitionPhotos, ref.Key())
		observeBlob("delete", err)
		if err != nil {
			return err
		}
		delete(flags, ref.ID)
		m.logLocked("Foto eliminada", "Clave: "+ref.ID)
		return nil
	})
}

// Photo returns the stored photo payload.
func (m *Manager) Photo(ctx context.Context, ref domain.PhotoRef) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requirePhotosLocked(); err != nil {
		return nil, false, err
	}
	b, found, err := m.blobs.Get(ctx, domain.PartitionPhotos, ref.Key())
	observeBlob("get", err)
	return b, found, err
}

// PhotoAvailable reports whether the flag is set and the blob exists. A flag
// without a blob reports false.
func (m *Manager) PhotoAvailable(ctx context.Context, ref domain.PhotoRef) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	flags, err := m.state.PresenceFlags(ref.Domain)
	if err != nil || !flags[ref.ID] || m.requirePhotosLocked() != nil {
		return false
	}
	_, found, err := m.blobs.Get(ctx, domain.PartitionPhotos, ref.Key())
	observeBlob("get", err)
	return err == nil && found
}

// MarkPhotos sets the presence flags of blobs already written, persisting
// once. Unknown domains are ignored.
func (m *Manager) MarkPhotos(ctx context.Context, refs []domain.PhotoRef) error {
	if len(refs) == 0 {
		return nil
	}
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		for _, ref := range refs {
			flags, err := s.PresenceFlags(ref.Domain)
			if err != nil {
				continue
			}
			flags[ref.ID] = true
		}
		return nil
	})
}

// TransferAdditionalPhoto moves the photo of an additional item to an
// inventory item. The source blob and flag are removed.
func (m *Manager) TransferAdditionalPhoto(ctx context.Context, id, clave string) error {
	return m.mutate(ctx, func(s *domain.ApplicationState) error {
		if err := m.requirePhotosLocked(); err != nil {
			return err
		}
		if s.FindAdditionalItem(id) < 0 {
			return notFound("additional item", id)
		}
		if s.FindInventoryItem(clave) < 0 {
			return notFound("inventory item", clave)
		}
		src := domain.PhotoKey(domain.PhotoAdditional, id)
		payload, found, err := m.blobs.Get(ctx, domain.PartitionPhotos, src)
		observeBlob("get", err)
		if err != nil {
			return err
		}
		if !found {
			return notFound("photo", src)
		}
		err = m.blobs.Put(ctx, domain.PartitionPhotos, domain.PhotoKey(domain.PhotoInventory, clave), payload)
		observeBlob("put", err)
		if err != nil {
			return err
		}
		if err := m.blobs.Delete(ctx, domain.PartitionPhotos, src); err != nil {
			observeBlob("delete", err)
			m.logger.Warn("remove transferred photo failed", "key", src, "error", err)
		} else {
			observeBlob("delete", nil)
		}
		s.Photos[clave] = true
		delete(s.AdditionalPhotos, id)
		m.logLocked("Foto transferida", fmt.Sprintf("De bien adicional %s a clave %s", id, clave))
		return nil
	})
}
