package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"inventario/internal/adapters/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API and Prometheus metrics over HTTP",
	Long: `Serve the session API with autosave enabled:

  GET  /api/v1/session                 session summary
  GET  /api/v1/session/export          download an archive (?finalize=true)
  POST /api/v1/session/import          restore an uploaded archive
  POST /api/v1/session/photos          restore photos from an uploaded archive
  GET  /metrics                        Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return withApp(cmd, true, func(a *app) error {
			addr := serveAddr
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           newMux(a),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.logger.Info("serving", "addr", addr)
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			a.logger.Info("server stopped")
			return nil
		})
	},
}

func newMux(a *app) *http.ServeMux {
	api := session.NewHandler(a.session, a.archiver, a.logger)
	mux := http.NewServeMux()
	mux.Handle("/api/v1/session", api)
	mux.Handle("/api/v1/session/", api)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default INVENTARIO_HTTP_ADDR)")
}
