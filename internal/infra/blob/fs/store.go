// Package fs implements the blob store on a local directory.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"inventario/internal/blob/core"
	"inventario/internal/logging"
	"inventario/pkg/domain"
)

const (
	schemaFile = "schema.json"
	metaSuffix = ".meta"
)

// Store implements core.Store using the local filesystem. Each partition is a
// directory under root; each blob is a file plus a `.meta` JSON sidecar
// holding its digest. Writes go to a temp file that is synced and renamed
// into place.
type Store struct {
	root   string
	logger *slog.Logger

	mu     sync.RWMutex
	open   bool
	schema core.Schema
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a filesystem-backed blob store rooted at root. Call Init before use.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		root = "./blobdata"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	s := &Store{root: abs}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "blobstore.fs")
	return s, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// handles counts open Stores per root so Destroy can detect other holders.
var handles = struct {
	sync.Mutex
	open map[string]int
}{open: make(map[string]int)}

func acquire(root string) {
	handles.Lock()
	handles.open[root]++
	handles.Unlock()
}

func release(root string) {
	handles.Lock()
	if handles.open[root] <= 1 {
		delete(handles.open, root)
	} else {
		handles.open[root]--
	}
	handles.Unlock()
}

func holders(root string) int {
	handles.Lock()
	defer handles.Unlock()
	return handles.open[root]
}

// Init creates root, the partition directories and the schema marker.
func (s *Store) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.root, 0o750); err != nil {
		return core.Unavailable(s.Driver(), err)
	}
	var current core.Schema
	b, err := os.ReadFile(filepath.Join(s.root, schemaFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return core.Unavailable(s.Driver(), err)
	default:
		if err := json.Unmarshal(b, &current); err != nil {
			return core.Unavailable(s.Driver(), fmt.Errorf("schema marker: %w", err))
		}
	}
	next := current.Upgrade()
	for _, p := range next.Partitions {
		if err := os.MkdirAll(filepath.Join(s.root, p), 0o750); err != nil {
			return core.Unavailable(s.Driver(), err)
		}
	}
	if err := writeAtomic(filepath.Join(s.root, schemaFile), mustJSON(next)); err != nil {
		return core.Unavailable(s.Driver(), err)
	}
	s.schema = next
	if !s.open {
		acquire(s.root)
		s.open = true
	}
	return nil
}

// sanitizeKey maps a key to a single safe file name inside a partition.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if key == "." || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	name := url.PathEscape(key)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	if base, ok := strings.CutSuffix(name, metaSuffix); ok {
		name = base + "%2Emeta"
	}
	return name, nil
}

func keyFromName(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, metaSuffix) {
		return "", false
	}
	key, err := url.PathUnescape(name)
	if err != nil {
		return "", false
	}
	return key, true
}

func (s *Store) pathFor(partition, key string) (dataPath, metaPath string, err error) {
	if err := core.CheckPartition(partition); err != nil {
		return "", "", err
	}
	if !s.open {
		return "", "", core.ErrNotInitialized
	}
	name, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, partition, name)
	metaPath = dataPath + metaSuffix
	return
}

type metaFile struct {
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Put writes payload through a synced temp file renamed over any previous value.
func (s *Store) Put(_ context.Context, partition, key string, payload []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dataPath, metaPath, err := s.pathFor(partition, key)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(payload)
	mf := metaFile{SHA256: hex.EncodeToString(sum[:]), Size: int64(len(payload)), UpdatedAt: time.Now().UTC()}
	if err := writeAtomic(dataPath, payload); err != nil {
		return core.WriteFailed(partition, key, err)
	}
	if err := writeAtomic(metaPath, mustJSON(mf)); err != nil {
		return core.WriteFailed(partition, key, err)
	}
	return nil
}

// Get reads a blob and verifies it against its sidecar digest when present.
func (s *Store) Get(_ context.Context, partition, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dataPath, metaPath, err := s.pathFor(partition, key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	mf, err := readMeta(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return b, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	sum := sha256.Sum256(b)
	if hex.EncodeToString(sum[:]) != mf.SHA256 {
		return nil, false, fmt.Errorf("blob %s/%s: digest mismatch", partition, key)
	}
	return b, true, nil
}

// Delete removes a blob and its sidecar; a missing blob is not an error.
func (s *Store) Delete(_ context.Context, partition, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dataPath, metaPath, err := s.pathFor(partition, key)
	if err != nil {
		return err
	}
	if err := os.Remove(dataPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List reads every blob in a partition directory.
func (s *Store) List(ctx context.Context, partition string) ([]core.Entry, error) {
	s.mu.RLock()
	if err := core.CheckPartition(partition); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	if !s.open {
		s.mu.RUnlock()
		return nil, core.ErrNotInitialized
	}
	dirEntries, err := os.ReadDir(filepath.Join(s.root, partition))
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, d := range dirEntries {
		if d.IsDir() {
			continue
		}
		if key, ok := keyFromName(d.Name()); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := make([]core.Entry, 0, len(keys))
	for _, k := range keys {
		b, found, err := s.Get(ctx, partition, k)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, core.Entry{Key: k, Payload: b})
		}
	}
	return out, nil
}

// Destroy removes every partition and the schema marker unless another
// Store holds the same root open, in which case it logs and leaves the data.
// The handle is closed either way.
func (s *Store) Destroy(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	others := holders(s.root)
	if s.open {
		others--
	}
	s.closeLocked()
	if others > 0 {
		s.logger.Warn("blob store deletion blocked", "root", s.root, "holders", others, "error", domain.ErrBlockedDeletion)
		return nil
	}
	for _, p := range s.schema.Upgrade().Partitions {
		if err := os.RemoveAll(filepath.Join(s.root, p)); err != nil {
			return err
		}
	}
	if err := os.Remove(filepath.Join(s.root, schemaFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	s.schema = core.Schema{}
	return nil
}

// Close releases the handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Store) closeLocked() {
	if s.open {
		release(s.root)
		s.open = false
	}
}

// --- helpers ---

func writeAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readMeta(path string) (metaFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return metaFile{}, err
	}
	var mf metaFile
	if err := json.Unmarshal(b, &mf); err != nil {
		return metaFile{}, err
	}
	return mf, nil
}

func mustJSON(v any) []byte {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	return b
}
