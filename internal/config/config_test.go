package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Blob.Driver != "fs" || cfg.State.Driver != "sqlite" {
		t.Fatalf("unexpected drivers %q %q", cfg.Blob.Driver, cfg.State.Driver)
	}
	if cfg.State.QuotaBytes != 5<<20 {
		t.Fatalf("unexpected quota %d", cfg.State.QuotaBytes)
	}
	if cfg.AutosaveInterval != 30*time.Second {
		t.Fatalf("unexpected autosave interval %v", cfg.AutosaveInterval)
	}
	if cfg.MaxPhotoBytes != 2<<20 {
		t.Fatalf("unexpected photo cap %d", cfg.MaxPhotoBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INVENTARIO_BLOB_DRIVER", "redis")
	t.Setenv("INVENTARIO_BLOB_REDIS_NAMESPACE", "tenant-a")
	t.Setenv("INVENTARIO_AUTOSAVE_INTERVAL", "5s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Blob.Driver != "redis" || cfg.Blob.Redis.Namespace != "tenant-a" {
		t.Fatalf("unexpected blob config %+v", cfg.Blob)
	}
	if cfg.AutosaveInterval != 5*time.Second {
		t.Fatalf("unexpected interval %v", cfg.AutosaveInterval)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("INVENTARIO_BLOB_DRIVER", "s3")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	t.Setenv("INVENTARIO_BLOB_S3_BUCKET", "photos")
	t.Setenv("INVENTARIO_STATE_QUOTA_BYTES", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected quota error")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("INVENTARIO_AUTOSAVE_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
