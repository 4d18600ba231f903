// Package archive builds and restores portable session archives: a zip
// holding the state document and every blob partition.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"inventario/internal/core"
	"inventario/internal/logging"
	"inventario/internal/statestore"
	"inventario/pkg/domain"
)

// Entry names inside an archive.
const (
	DocumentFile       = "session.json"
	PhotosFolder       = domain.PartitionPhotos + "/"
	LayoutImagesFolder = domain.PartitionLayoutImages + "/"
)

// maxEntryBytes bounds a single decompressed entry.
const maxEntryBytes = 64 << 20

// Host owns the live session. Reload discards the current manager and opens a
// new one through the normal load path.
type Host interface {
	Manager() *core.Manager
	Reload(ctx context.Context) error
}

// Progress receives (processed, total) after every restored photo.
type Progress func(processed, total int)

// Archiver builds and restores archives for the session owned by a Host.
type Archiver struct {
	host          Host
	logger        *slog.Logger
	now           func() time.Time
	maxPhotoBytes int64
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archiver) { a.logger = logging.Component(logger, "archive") }
}

// WithClock overrides the clock used for archive names.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) {
		if now != nil {
			a.now = now
		}
	}
}

// WithMaxPhotoBytes caps loose photo imports (default domain.MaxPhotoBytes).
func WithMaxPhotoBytes(n int64) Option {
	return func(a *Archiver) {
		if n > 0 {
			a.maxPhotoBytes = n
		}
	}
}

// New returns an Archiver for host.
func New(host Host, opts ...Option) *Archiver {
	a := &Archiver{
		host:          host,
		logger:        logging.Discard(),
		now:           time.Now,
		maxPhotoBytes: domain.MaxPhotoBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ArchiveName returns the download name of an archive built at t.
func ArchiveName(t time.Time, finalize bool) string {
	if finalize {
		return "inventario_final_" + t.Format("2006-01-02") + ".zip"
	}
	return "inventario_" + t.Format("2006-01-02") + ".zip"
}

// Manifest describes a built archive.
type Manifest struct {
	Name         string
	Finalized    bool
	Photos       int
	LayoutImages int
	// PhotosIncluded is false when the blob store was unavailable.
	PhotosIncluded bool
}

func newZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return zw
}

func openZip(r io.ReaderAt, size int64) (*zip.Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidArchive, "open archive", err)
	}
	zr.RegisterDecompressor(zip.Deflate, func(in io.Reader) io.ReadCloser {
		return flate.NewReader(in)
	})
	return zr, nil
}

// BuildArchive writes the session archive to w. With finalize the session is
// first marked finished, so the archive carries the terminal flag.
func (a *Archiver) BuildArchive(ctx context.Context, finalize bool, w io.Writer) (manifest Manifest, err error) {
	start := time.Now()
	defer func() {
		buildDurationHistogram.WithLabelValues(result(err)).Observe(time.Since(start).Seconds())
	}()
	m := a.host.Manager()
	if finalize {
		if err := m.Finalize(ctx); err != nil {
			a.logger.Warn("persisting finalized state failed", "error", err)
		}
	}
	snap, err := m.Snapshot()
	if err != nil {
		return Manifest{}, err
	}
	doc, err := statestore.Encode(snap)
	if err != nil {
		return Manifest{}, err
	}
	manifest = Manifest{Name: ArchiveName(a.now(), finalize), Finalized: snap.InventoryFinished}

	zw := newZipWriter(w)
	if err := writeEntry(zw, DocumentFile, doc); err != nil {
		return Manifest{}, err
	}
	if blobs := m.Blobs(); blobs != nil {
		manifest.PhotosIncluded = true
		photos, err := blobs.List(ctx, domain.PartitionPhotos)
		if err != nil {
			return Manifest{}, fmt.Errorf("list photos: %w", err)
		}
		for _, e := range photos {
			if err := writeEntry(zw, PhotosFolder+e.Key, e.Payload); err != nil {
				return Manifest{}, err
			}
		}
		images, err := blobs.List(ctx, domain.PartitionLayoutImages)
		if err != nil {
			return Manifest{}, fmt.Errorf("list layout images: %w", err)
		}
		for _, e := range images {
			if err := writeEntry(zw, LayoutImagesFolder+e.Key, e.Payload); err != nil {
				return Manifest{}, err
			}
		}
		manifest.Photos, manifest.LayoutImages = len(photos), len(images)
	} else {
		a.logger.Warn("blob store unavailable, archive holds the document only")
	}
	if err := zw.Close(); err != nil {
		return Manifest{}, fmt.Errorf("close archive: %w", err)
	}
	a.logger.Info("session archive built",
		slog.String("name", manifest.Name),
		slog.Bool("finalized", manifest.Finalized),
		slog.Int("photos", manifest.Photos),
		slog.Int("layout_images", manifest.LayoutImages),
		slog.Duration("duration", time.Since(start)),
	)
	return manifest, nil
}

func writeEntry(zw *zip.Writer, name string, payload []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("archive entry %s: %w", name, err)
	}
	if _, err := fw.Write(payload); err != nil {
		return fmt.Errorf("archive entry %s: %w", name, err)
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntryBytes {
		return nil, domain.NewError(domain.CodeInvalidArchive, fmt.Sprintf("entry %s exceeds %d bytes", f.Name, maxEntryBytes))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidArchive, "open entry "+f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, domain.Wrap(domain.CodeInvalidArchive, "read entry "+f.Name, err)
	}
	if len(b) > maxEntryBytes {
		return nil, domain.NewError(domain.CodeInvalidArchive, fmt.Sprintf("entry %s exceeds %d bytes", f.Name, maxEntryBytes))
	}
	return b, nil
}

// folderEntries returns the files directly or transitively under folder with
// the folder prefix stripped. Directory entries are skipped.
func folderEntries(zr *zip.Reader, folder string) (files []*zip.File, keys []string, present bool) {
	for _, f := range zr.File {
		rest, ok := strings.CutPrefix(f.Name, folder)
		if !ok {
			continue
		}
		present = true
		if rest == "" || f.FileInfo().IsDir() {
			continue
		}
		files = append(files, f)
		keys = append(keys, rest)
	}
	return files, keys, present
}
