package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"bilancio/internal/cli"
	apphttp "bilancio/internal/http"
	"bilancio/internal/log"
)

const shutdownTimeout = 30 * time.Second

// readinessKey is read by the readiness probe; it need not exist.
const readinessKey = "__readyz__"

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer func() {
				if err := l.Close(); err != nil {
					a.logger.Error("Failed to close ledger", log.FieldError, err)
				}
			}()

			srv := apphttp.NewServer(":"+a.cfg.Port, l.Service,
				apphttp.WithLogger(a.logger),
				apphttp.WithRateLimit(a.cfg.RateLimitPerMinute),
				apphttp.WithActiveSessions(l.Registry.Active),
				apphttp.WithReadiness(func(ctx context.Context) error {
					_, _, err := l.Store.Get(ctx, readinessKey)
					return err
				}))
			srv.ReadTimeout = 10 * time.Second
			srv.WriteTimeout = 10 * time.Second
			srv.IdleTimeout = 60 * time.Second
			srv.MaxHeaderBytes = 1 << 16

			runCtx, stop := context.WithCancel(cmd.Context())
			defer stop()
			_, done := cli.GracefulShutdown(runCtx, a.logger, shutdownTimeout, srv.Shutdown)

			a.logger.Info("Starting bilancio server", "port", a.cfg.Port, log.FieldBackend, a.cfg.DataBackend,
				"events", a.cfg.EventsEnabled())
			err = srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			} else {
				stop()
			}
			<-done
			if err == nil {
				a.logger.Info("Server stopped gracefully")
			}
			return err
		},
	}
}
