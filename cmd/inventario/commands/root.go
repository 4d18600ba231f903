// Package commands implements the inventario CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"inventario/internal/archive"
	"inventario/internal/blob"
	"inventario/internal/config"
	"inventario/internal/core"
	"inventario/internal/logging"
	"inventario/internal/statestore"
)

var rootCmd = &cobra.Command{
	Use:   "inventario",
	Short: "Inventario - field inventory session tooling",
	Long: `Inventario manages a field inventory session: the session document,
item and location photos, and floor-plan images.

Storage is selected through INVENTARIO_* environment variables. The document
lives in sqlite (default), postgres or memory; blobs live on the filesystem
(default), S3, Redis or memory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version string shown by --version.
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.AddCommand(showCmd, exportCmd, finalizeCmd, restoreCmd, importPhotosCmd, restorePhotosCmd, resetCmd, serveCmd)
}

// app is the session opened for one command invocation.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	session  *core.Session
	archiver *archive.Archiver
}

// openApp loads configuration and opens the session. Autosave runs only when
// requested.
func openApp(ctx context.Context, logOut io.Writer, autosave bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	var interval time.Duration
	if autosave {
		interval = cfg.AutosaveInterval
	}
	open, err := sessionOpener(ctx, cfg, logger, interval)
	if err != nil {
		return nil, err
	}
	session, err := core.NewSession(ctx, open)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		session:  session,
		archiver: archive.New(session, archive.WithLogger(logger), archive.WithMaxPhotoBytes(cfg.MaxPhotoBytes)),
	}, nil
}

// sessionOpener returns the OpenFunc used for the first load and every reload.
// Durable drivers are reopened each time. In-memory stores are built once and
// shared, otherwise a reload would start from an empty session.
func sessionOpener(ctx context.Context, cfg config.Config, logger *slog.Logger, interval time.Duration) (core.OpenFunc, error) {
	stateOpts := []statestore.Option{
		statestore.WithLogger(logger),
		statestore.WithQuarantine(statestore.QuarantineToDir(cfg.ArchiveDir, nil)),
	}
	var medium statestore.Medium
	if core.StorageDriver(cfg.State.Driver) == core.StorageMemory {
		m, err := core.OpenDocumentMedium(ctx, cfg.State)
		if err != nil {
			return nil, err
		}
		medium = m
	}
	var sharedBlobs blob.Store
	if blob.Driver(cfg.Blob.Driver) == blob.DriverMemory {
		b, err := blob.Open(ctx, cfg.Blob, logger)
		if err != nil {
			return nil, err
		}
		sharedBlobs = b
	}
	return func(ctx context.Context) (core.Options, error) {
		var store *statestore.Store
		if medium != nil {
			store = statestore.New(medium, stateOpts...)
		} else {
			s, err := core.OpenStateStore(ctx, cfg.State, logger, stateOpts...)
			if err != nil {
				return core.Options{}, fmt.Errorf("open state store: %w", err)
			}
			store = s
		}
		blobs := sharedBlobs
		if blobs == nil {
			b, err := blob.Open(ctx, cfg.Blob, logger)
			if err != nil {
				_ = store.Close()
				return core.Options{}, fmt.Errorf("open blob store: %w", err)
			}
			blobs = b
		}
		return core.Options{
			State:            store,
			Blobs:            blobs,
			Logger:           logger,
			MaxPhotoBytes:    cfg.MaxPhotoBytes,
			AutosaveInterval: interval,
		}, nil
	}, nil
}

func (a *app) Close() error { return a.session.Close() }

// withApp opens the session for cmd, runs fn and closes the session.
func withApp(cmd *cobra.Command, autosave bool, fn func(*app) error) error {
	a, err := openApp(cmd.Context(), cmd.ErrOrStderr(), autosave)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
