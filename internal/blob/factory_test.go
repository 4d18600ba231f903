package blob

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"inventario/internal/config"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cases := []struct {
		cfg  config.BlobConfig
		want Driver
	}{
		{config.BlobConfig{}, DriverFilesystem},
		{config.BlobConfig{Driver: "fs", FSRoot: t.TempDir()}, DriverFilesystem},
		{config.BlobConfig{Driver: "memory"}, DriverMemory},
		{config.BlobConfig{Driver: "redis", Redis: config.RedisConfig{Addr: mr.Addr(), Namespace: "t"}}, DriverRedis},
		{config.BlobConfig{Driver: "s3", S3: config.S3Config{Bucket: "b", Region: "us-east-1"}}, DriverS3},
	}
	for _, tc := range cases {
		s, err := Open(ctx, tc.cfg, nil)
		if err != nil {
			t.Fatalf("open %q: %v", tc.cfg.Driver, err)
		}
		if s.Driver() != tc.want {
			t.Fatalf("driver %q: got %s", tc.cfg.Driver, s.Driver())
		}
	}
	if _, err := Open(ctx, config.BlobConfig{Driver: "tape"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOpenedStoreInitialises(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.BlobConfig{Driver: "fs", FSRoot: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer s.Close()
	if _, found, err := s.Get(ctx, "photos", "inventory-1"); err != nil || found {
		t.Fatalf("unexpected get result %v %v", found, err)
	}
}
