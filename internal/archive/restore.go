package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"inventario/internal/blob"
	"inventario/internal/statestore"
	"inventario/pkg/domain"
)

// RestoreReport summarises a completed restore.
type RestoreReport struct {
	Photos       int
	LayoutImages int
}

type journalEntry struct {
	partition string
	key       string
	previous  []byte
	existed   bool
}

// journal records the prior value of every blob a restore overwrites so a
// failed restore can put the store back as it was.
type journal struct {
	blobs   blob.Store
	entries []journalEntry
}

func (j *journal) put(ctx context.Context, partition, key string, payload []byte) error {
	prev, found, err := j.blobs.Get(ctx, partition, key)
	if err != nil {
		return fmt.Errorf("read %s/%s before restore: %w", partition, key, err)
	}
	j.entries = append(j.entries, journalEntry{partition: partition, key: key, previous: prev, existed: found})
	return j.blobs.Put(ctx, partition, key, payload)
}

func (j *journal) rollback(ctx context.Context) error {
	var errs []error
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if e.existed {
			errs = append(errs, j.blobs.Put(ctx, e.partition, e.key, e.previous))
		} else {
			errs = append(errs, j.blobs.Delete(ctx, e.partition, e.key))
		}
	}
	j.entries = nil
	return errors.Join(errs...)
}

// RestoreArchive replaces the session with the contents of an archive. Blobs
// are staged first with progress reported per photo, then the document is
// written and the host reloads. Any failure up to and including the document
// write, or ctx cancellation, rolls every staged blob back so the previous
// session stays intact.
func (a *Archiver) RestoreArchive(ctx context.Context, r io.ReaderAt, size int64, progress Progress) (report RestoreReport, err error) {
	start := time.Now()
	defer func() {
		restoreDurationHistogram.WithLabelValues(result(err)).Observe(time.Since(start).Seconds())
	}()

	zr, err := openZip(r, size)
	if err != nil {
		return RestoreReport{}, err
	}
	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == DocumentFile {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return RestoreReport{}, domain.Wrap(domain.CodeInvalidArchive, "restore", fmt.Errorf("%s not found", DocumentFile))
	}
	raw, err := readEntry(docFile)
	if err != nil {
		return RestoreReport{}, err
	}
	if _, err := statestore.Decode(raw); err != nil {
		return RestoreReport{}, domain.Wrap(domain.CodeInvalidArchive, "restore", err)
	}

	photoFiles, photoKeys, _ := folderEntries(zr, PhotosFolder)
	imageFiles, imageKeys, _ := folderEntries(zr, LayoutImagesFolder)

	m := a.host.Manager()
	blobs := m.Blobs()
	if blobs == nil && len(photoFiles)+len(imageFiles) > 0 {
		return RestoreReport{}, domain.Wrap(domain.CodeStorageUnavailable, "restore", errors.New("archive holds blobs but photo storage is disabled"))
	}

	resume := m.SuspendAutosave()
	j := &journal{blobs: blobs}
	abort := func(cause error) (RestoreReport, error) {
		rollbacksTotal.Inc()
		if rbErr := j.rollback(context.WithoutCancel(ctx)); rbErr != nil {
			a.logger.Error("restore rollback incomplete", slog.String("error", rbErr.Error()))
			cause = errors.Join(cause, fmt.Errorf("rollback: %w", rbErr))
		} else {
			a.logger.Warn("restore aborted, previous session kept", slog.String("error", cause.Error()))
		}
		resume(ctx)
		return RestoreReport{}, cause
	}

	total := len(photoFiles)
	for i, f := range photoFiles {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		payload, err := readEntry(f)
		if err != nil {
			return abort(err)
		}
		if err := j.put(ctx, domain.PartitionPhotos, photoKeys[i], payload); err != nil {
			return abort(err)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}
	for i, f := range imageFiles {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		payload, err := readEntry(f)
		if err != nil {
			return abort(err)
		}
		if err := j.put(ctx, domain.PartitionLayoutImages, imageKeys[i], payload); err != nil {
			return abort(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	if err := m.StateStore().Import(ctx, raw); err != nil {
		return abort(fmt.Errorf("write restored document: %w", err))
	}

	restoredBlobsTotal.WithLabelValues(domain.PartitionPhotos).Add(float64(len(photoFiles)))
	restoredBlobsTotal.WithLabelValues(domain.PartitionLayoutImages).Add(float64(len(imageFiles)))
	report = RestoreReport{Photos: len(photoFiles), LayoutImages: len(imageFiles)}
	a.logger.Info("session archive restored",
		slog.Int("photos", report.Photos),
		slog.Int("layout_images", report.LayoutImages),
		slog.Duration("duration", time.Since(start)),
	)
	if err := a.host.Reload(ctx); err != nil {
		return report, fmt.Errorf("reload after restore: %w", err)
	}
	return report, nil
}
