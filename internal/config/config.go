// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	Blob  BlobConfig
	State StateConfig
	Log   LogConfig

	// AutosaveInterval is the period of the background save. Zero disables it.
	AutosaveInterval time.Duration `env:"INVENTARIO_AUTOSAVE_INTERVAL" envDefault:"30s"`
	// MaxPhotoBytes caps a single photo accepted from the camera or a loose import.
	MaxPhotoBytes int64  `env:"INVENTARIO_MAX_PHOTO_BYTES" envDefault:"2097152"`
	HTTPAddr      string `env:"INVENTARIO_HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	ArchiveDir    string `env:"INVENTARIO_ARCHIVE_DIR" envDefault:"."`
}

// BlobConfig selects and configures the blob backend.
type BlobConfig struct {
	Driver string `env:"INVENTARIO_BLOB_DRIVER" envDefault:"fs"`
	FSRoot string `env:"INVENTARIO_BLOB_FS_ROOT" envDefault:"./blobdata"`
	S3     S3Config
	Redis  RedisConfig
}

// S3Config configures the S3 / MinIO blob backend.
type S3Config struct {
	Bucket    string `env:"INVENTARIO_BLOB_S3_BUCKET"`
	Region    string `env:"INVENTARIO_BLOB_S3_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"INVENTARIO_BLOB_S3_ENDPOINT"`
	PathStyle bool   `env:"INVENTARIO_BLOB_S3_PATH_STYLE"`
	Prefix    string `env:"INVENTARIO_BLOB_S3_PREFIX" envDefault:"inventario"`
}

// RedisConfig configures the Redis blob backend.
type RedisConfig struct {
	Addr      string `env:"INVENTARIO_BLOB_REDIS_ADDR" envDefault:"localhost:6379"`
	Password  string `env:"INVENTARIO_BLOB_REDIS_PASSWORD"`
	DB        int    `env:"INVENTARIO_BLOB_REDIS_DB"`
	Namespace string `env:"INVENTARIO_BLOB_REDIS_NAMESPACE" envDefault:"inventario"`
}

// StateConfig selects and configures the document medium.
type StateConfig struct {
	Driver      string `env:"INVENTARIO_STATE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"INVENTARIO_STATE_SQLITE_PATH" envDefault:"./inventario.db"`
	PostgresDSN string `env:"INVENTARIO_STATE_POSTGRES_DSN"`
	// QuotaBytes is the largest document the medium accepts.
	QuotaBytes int `env:"INVENTARIO_STATE_QUOTA_BYTES" envDefault:"5242880"`
}

// LogConfig controls slog construction.
type LogConfig struct {
	Level  string `env:"INVENTARIO_LOG_LEVEL" envDefault:"info"`
	Format string `env:"INVENTARIO_LOG_FORMAT" envDefault:"text"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.State.QuotaBytes <= 0 {
		return errors.New("INVENTARIO_STATE_QUOTA_BYTES must be positive")
	}
	if c.MaxPhotoBytes <= 0 {
		return errors.New("INVENTARIO_MAX_PHOTO_BYTES must be positive")
	}
	if c.AutosaveInterval < 0 {
		return errors.New("INVENTARIO_AUTOSAVE_INTERVAL must not be negative")
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return errors.New("INVENTARIO_BLOB_S3_BUCKET required for s3 driver")
	}
	if c.State.Driver == "postgres" && c.State.PostgresDSN == "" {
		return errors.New("INVENTARIO_STATE_POSTGRES_DSN required for postgres driver")
	}
	return nil
}
