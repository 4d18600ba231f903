package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"

	"inventario/pkg/domain"
)

// MatchMode selects how a photo file name maps to an inventory key.
type MatchMode int

const (
	// MatchBareKey treats the file name without extension as the business key.
	// Files over the photo size cap are skipped.
	MatchBareKey MatchMode = iota
	// MatchPrefixedKey treats the file name as a full blob key
	// ("inventory-<key>", "additional-<key>", "location-<key>").
	MatchPrefixedKey
)

// PhotoFile is one candidate photo.
type PhotoFile struct {
	Name    string
	Payload []byte
}

// PhotoReport counts the outcome of RestorePhotosOnly.
type PhotoReport struct {
	Restored int
	Skipped  int
}

// Skip reasons.
const (
	skipNoMatch  = "no_match"
	skipTooLarge = "too_large"
	skipBadName  = "bad_name"
	skipWrite    = "write_failed"
)

// RestorePhotosOnly writes every file whose key matches a current inventory
// business key and sets its presence flag. Mismatches are counted, never
// fatal. Flags are persisted once, after all blobs are written.
func (a *Archiver) RestorePhotosOnly(ctx context.Context, files []PhotoFile, mode MatchMode, progress Progress) (PhotoReport, error) {
	m := a.host.Manager()
	if m.ReadOnly() {
		return PhotoReport{}, domain.ErrReadOnly
	}
	blobs := m.Blobs()
	if blobs == nil {
		return PhotoReport{}, domain.ErrStorageUnavailable
	}
	snap, err := m.Snapshot()
	if err != nil {
		return PhotoReport{}, err
	}
	claves := snap.InventoryKeys()

	var (
		report PhotoReport
		refs   []domain.PhotoRef
	)
	skip := func(name, reason string) {
		report.Skipped++
		skippedPhotosTotal.WithLabelValues(reason).Inc()
		a.logger.Debug("photo skipped", slog.String("file", name), slog.String("reason", reason))
	}
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if progress != nil {
			progress(i+1, len(files))
		}
		ref, ok := matchPhoto(f.Name, mode)
		if !ok {
			skip(f.Name, skipBadName)
			continue
		}
		if _, known := claves[ref.ID]; !known {
			skip(f.Name, skipNoMatch)
			continue
		}
		if mode == MatchBareKey && int64(len(f.Payload)) > a.maxPhotoBytes {
			skip(f.Name, skipTooLarge)
			continue
		}
		if err := blobs.Put(ctx, domain.PartitionPhotos, ref.Key(), f.Payload); err != nil {
			a.logger.Warn("photo write failed", slog.String("file", f.Name), slog.String("error", err.Error()))
			skip(f.Name, skipWrite)
			continue
		}
		restoredBlobsTotal.WithLabelValues(domain.PartitionPhotos).Inc()
		refs = append(refs, ref)
		report.Restored++
	}
	if len(refs) > 0 {
		if err := m.MarkPhotos(ctx, refs); err != nil {
			return report, err
		}
	}
	a.logger.Info("photo reconciliation finished",
		slog.Int("restored", report.Restored),
		slog.Int("skipped", report.Skipped),
	)
	return report, nil
}

func matchPhoto(name string, mode MatchMode) (domain.PhotoRef, bool) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	switch mode {
	case MatchBareKey:
		clave := domain.StripExtension(base)
		if clave == "" || clave == "." {
			return domain.PhotoRef{}, false
		}
		return domain.PhotoRef{Domain: domain.PhotoInventory, ID: clave}, true
	case MatchPrefixedKey:
		d, id, ok := domain.ParsePhotoKey(strings.TrimPrefix(name, PhotosFolder))
		if !ok {
			return domain.PhotoRef{}, false
		}
		return domain.PhotoRef{Domain: d, ID: id}, true
	default:
		return domain.PhotoRef{}, false
	}
}

// PhotoFilesFromArchive extracts the photos folder of a prior archive. The
// archive need not contain a session document.
func PhotoFilesFromArchive(r io.ReaderAt, size int64) ([]PhotoFile, error) {
	zr, err := openZip(r, size)
	if err != nil {
		return nil, err
	}
	files, keys, present := folderEntries(zr, PhotosFolder)
	if !present {
		return nil, domain.Wrap(domain.CodeInvalidArchive, "photo archive", errors.New("no photos folder"))
	}
	out := make([]PhotoFile, 0, len(files))
	for i, f := range files {
		payload, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		out = append(out, PhotoFile{Name: keys[i], Payload: payload})
	}
	return out, nil
}
