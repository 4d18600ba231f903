package core

import (
	"context"
	"fmt"
	"log/slog"

	"inventario/internal/config"
	"inventario/internal/infra/persistence/memory"
	"inventario/internal/infra/persistence/postgres"
	"inventario/internal/infra/persistence/sqlite"
	"inventario/internal/statestore"
)

// StorageDriver identifies a document medium implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenDocumentMedium selects the medium named by cfg.Driver (default sqlite)
// with the configured quota.
func OpenDocumentMedium(ctx context.Context, cfg config.StateConfig) (statestore.Medium, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(StorageSQLite)
	}
	quota := int64(cfg.QuotaBytes)
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.New(memory.WithQuota(quota)), nil
	case StorageSQLite:
		s, err := sqlite.New(cfg.SQLitePath, sqlite.WithQuota(quota))
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoragePostgres:
		s, err := postgres.New(ctx, cfg.PostgresDSN, postgres.WithQuota(quota))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenStateStore wraps the configured medium in a statestore.Store.
func OpenStateStore(ctx context.Context, cfg config.StateConfig, logger *slog.Logger, opts ...statestore.Option) (*statestore.Store, error) {
	medium, err := OpenDocumentMedium(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return statestore.New(medium, append([]statestore.Option{statestore.WithLogger(logger)}, opts...)...), nil
}
