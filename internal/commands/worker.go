package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bilancio/internal/amqp"
	"bilancio/internal/cli"
	"bilancio/internal/config"
	"bilancio/internal/kv"
	"bilancio/internal/log"
	"bilancio/internal/sheets"
	"bilancio/internal/sheets/google"
	"bilancio/internal/worker"
)

var errEventsDisabled = errors.New("the worker needs AMQP_URL to consume ledger events")

func (a *app) workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Mirror ledger events into Google Sheets",
		Long: `Consumes transaction events from AMQP and appends or deletes the matching
rows in the configured spreadsheet. Without GOOGLE_SPREADSHEET_ID the events are
only logged. On startup every persisted transaction is re-appended, so events
lost while the worker was down are recovered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.EventsEnabled() {
				return errEventsDisabled
			}
			logger := a.logger.WithComponent(log.ComponentWorker)

			runCtx, stop := context.WithCancel(cmd.Context())
			ctx, done := cli.GracefulShutdown(runCtx, logger, shutdownTimeout, nil)
			defer func() {
				stop()
				<-done
			}()

			mirror, err := newMirror(ctx, a.cfg, logger)
			if err != nil {
				return err
			}
			sw := worker.NewSyncWorker(mirror, a.cfg.SyncConcurrency, logger)

			l, err := a.open(ctx, false)
			if err != nil {
				return err
			}
			defer l.Close()

			if a.cfg.SyncOnStartup {
				logger.Info("Performing startup sync check...")
				users, err := l.Users(ctx)
				switch {
				case errors.Is(err, kv.ErrNotListable):
					logger.Warn("Backend cannot list users, skipping startup sync", log.FieldBackend, a.cfg.DataBackend)
				case err != nil:
					logger.Error("Failed to list users for startup sync", log.FieldError, err)
				default:
					if err := sw.StartupSync(ctx, l.Service, users); err != nil {
						logger.Error("Startup sync failed", log.FieldError, err)
					}
				}
			}

			client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, logger)
			if err != nil {
				return fmt.Errorf("connect to AMQP: %w", err)
			}
			defer client.Close()

			logger.Info("Consuming ledger events", "queue", a.cfg.AMQPQueue, "mirror", a.cfg.MirrorEnabled())
			if err := client.ConsumeEvents(ctx, sw.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// newMirror returns the Google Sheets mirror when a spreadsheet is
// configured, and a logging stand-in otherwise.
func newMirror(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.Mirror, error) {
	if !cfg.MirrorEnabled() {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, events are only logged")
		return worker.NewLogMirror(logger), nil
	}
	client, err := google.New(ctx, google.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
