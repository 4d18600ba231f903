package blob

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"inventario/internal/config"
	"inventario/internal/infra/blob/fs"
	"inventario/internal/infra/blob/memory"
	"inventario/internal/infra/blob/redis"
	"inventario/internal/infra/blob/s3"
)

// Open constructs the blob.Store selected by cfg.Driver (fs|s3|redis|memory,
// default fs). The store is returned uninitialised; callers run Init so an
// unavailable engine degrades instead of failing startup.
func Open(ctx context.Context, cfg config.BlobConfig, logger *slog.Logger) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot, fs.WithLogger(logger))
	case DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
			Prefix:    cfg.S3.Prefix,
		})
	case DriverRedis:
		return redis.New(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Namespace)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
