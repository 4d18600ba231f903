// Package core defines the partitioned blob store contract shared by every
// backend.
package core

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"inventario/pkg/domain"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem represents the local filesystem implementation.
	DriverFilesystem Driver = "fs" // local filesystem (default)
	// DriverS3 represents an S3 / MinIO compatible implementation.
	DriverS3 Driver = "s3" // S3 / MinIO compatible
	// DriverRedis stores each partition as a Redis hash.
	DriverRedis Driver = "redis"
	// DriverMemory represents an in-memory implementation typically used in tests.
	DriverMemory Driver = "memory" // in-memory (tests)
)

// SchemaVersion is the blob schema version opened by Init.
const SchemaVersion = 2

// Entry is one stored blob.
type Entry struct {
	Key     string
	Payload []byte
}

// Store is a partitioned key to binary store. Keys are unique per partition.
type Store interface {
	// Init opens the store at SchemaVersion, creating missing partitions. It
	// never drops a partition that already exists.
	Init(ctx context.Context) error
	// Put upserts payload and returns after the write is durable.
	Put(ctx context.Context, partition, key string, payload []byte) error
	// Get reports found=false for a missing key; absence is not an error.
	Get(ctx context.Context, partition, key string) (payload []byte, found bool, err error)
	// Delete is idempotent.
	Delete(ctx context.Context, partition, key string) error
	// List returns every entry of the partition ordered by key.
	List(ctx context.Context, partition string) ([]Entry, error)
	// Destroy erases all partitions. When another handle holds the engine
	// open the deletion is blocked; this is logged and nil is returned.
	Destroy(ctx context.Context) error
	// Close releases the handle.
	Close() error
	// Driver returns the configured backend driver string.
	Driver() Driver
}

// ErrUnknownPartition is returned for a partition outside domain.Partitions.
var ErrUnknownPartition = errors.New("blobstore: unknown partition")

// ErrNotInitialized is returned when a store is used before Init.
var ErrNotInitialized = domain.NewError(domain.CodeStorageUnavailable, "blobstore: not initialized")

// CheckPartition validates a partition name.
func CheckPartition(partition string) error {
	if slices.Contains(domain.Partitions, partition) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownPartition, partition)
}

// Unavailable classifies an Init failure.
func Unavailable(driver Driver, err error) error {
	return domain.Wrap(domain.CodeStorageUnavailable, fmt.Sprintf("open %s blob store", driver), err)
}

// WriteFailed classifies a rejected Put.
func WriteFailed(partition, key string, err error) error {
	return domain.Wrap(domain.CodeWriteFailed, fmt.Sprintf("put %s/%s", partition, key), err)
}

// Schema is the persisted version marker of a store.
type Schema struct {
	Version    int      `json:"version"`
	Partitions []string `json:"partitions"`
}

// Upgrade returns the marker after opening at SchemaVersion: the version
// never decreases and existing partitions are kept.
func (s Schema) Upgrade() Schema {
	out := Schema{Version: max(s.Version, SchemaVersion)}
	out.Partitions = append(out.Partitions, s.Partitions...)
	for _, p := range domain.Partitions {
		if !slices.Contains(out.Partitions, p) {
			out.Partitions = append(out.Partitions, p)
		}
	}
	return out
}
