// Package blob re-exports core blob abstractions and selects a backend from
// configuration.
package blob

import (
	"inventario/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// Entry is one stored blob.
	Entry = core.Entry
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverRedis is the Redis hash driver.
	DriverRedis = core.DriverRedis
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// SchemaVersion is the blob schema version opened by Init.
const SchemaVersion = core.SchemaVersion
