package domain

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Blob partitions.
const (
	PartitionPhotos       = "photos"
	PartitionLayoutImages = "layoutImages"
)

// Partitions lists every blob partition in creation order.
var Partitions = []string{PartitionPhotos, PartitionLayoutImages}

// PhotoDomain namespaces photo blob keys.
type PhotoDomain string

const (
	PhotoInventory  PhotoDomain = "inventory"
	PhotoAdditional PhotoDomain = "additional"
	PhotoLocation   PhotoDomain = "location"
)

// PhotoDomains lists the photo domains in key-prefix match order.
var PhotoDomains = []PhotoDomain{PhotoInventory, PhotoAdditional, PhotoLocation}

// MaxPhotoBytes is the default size cap for a single photo.
const MaxPhotoBytes = 2 << 20

// Valid reports whether d is a known photo domain.
func (d PhotoDomain) Valid() bool {
	for _, known := range PhotoDomains {
		if d == known {
			return true
		}
	}
	return false
}

// PhotoKey builds the blob key "{domain}-{id}".
func PhotoKey(d PhotoDomain, id string) string {
	return string(d) + "-" + id
}

// ParsePhotoKey splits a photo blob key into its domain and id.
func ParsePhotoKey(key string) (PhotoDomain, string, bool) {
	for _, d := range PhotoDomains {
		if id, ok := strings.CutPrefix(key, string(d)+"-"); ok && id != "" {
			return d, id, true
		}
	}
	return "", "", false
}

// PhotoRef names one photo by domain and id.
type PhotoRef struct {
	Domain PhotoDomain
	ID     string
}

// Key returns the blob key of the photo.
func (r PhotoRef) Key() string { return PhotoKey(r.Domain, r.ID) }

// PresenceFlags returns the flag map of s for a photo domain.
func (s *ApplicationState) PresenceFlags(d PhotoDomain) (map[string]bool, error) {
	switch d {
	case PhotoInventory:
		return s.Photos, nil
	case PhotoAdditional:
		return s.AdditionalPhotos, nil
	case PhotoLocation:
		return s.LocationPhotos, nil
	default:
		return nil, fmt.Errorf("unknown photo domain %q", d)
	}
}

// NewLayoutImageKey returns a fresh opaque key for the layoutImages partition.
func NewLayoutImageKey() string {
	return "img_" + uuid.NewString()
}

// LayoutImageShapeID is the shape id of a placed layout image.
func LayoutImageShapeID(imageKey string) string {
	return "image-" + imageKey
}

// StripExtension returns a file name without directory or extension.
func StripExtension(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}
