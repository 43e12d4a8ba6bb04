// Package commands implements the bilancio command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"bilancio/internal/backend"
	"bilancio/internal/cli"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/log"
)

// app carries what every subcommand needs once the root has initialised.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	user   string
	now    func() time.Time

	logLevel string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:   "bilancio",
		Short: "Personal income and expense ledger",
		Long: `bilancio records income and expense transactions per user, filters them,
computes spending statistics and exports them as CSV. It can run as a JSON API
server, as a worker mirroring ledger changes into Google Sheets, or one command
at a time from the shell.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.init,
	}

	root.PersistentFlags().StringVarP(&a.user, "user", "u", os.Getenv("BILANCIO_USER"), "user whose ledger to operate on (env BILANCIO_USER)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	root.AddCommand(
		a.serveCmd(),
		a.workerCmd(),
		a.addCmd(),
		a.listCmd(),
		a.rmCmd(),
		a.statsCmd(),
		a.exportCmd(),
		a.categoriesCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		cli.Fail(root.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	if a.logLevel != "" {
		os.Setenv("LOG_LEVEL", a.logLevel)
	}
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cli.SetupLogger(cfg, cmd.ErrOrStderr()).WithComponent(log.ComponentCLI)
	return nil
}

// open wires the ledger. publish enables AMQP events when configured.
func (a *app) open(ctx context.Context, publish bool) (*backend.Ledger, error) {
	return backend.OpenLedger(ctx, a.cfg, backend.NewFactory(a.logger), publish, a.logger)
}

// userErr rewrites a missing identity into a hint about the flag.
func userErr(err error) error {
	if errors.Is(err, ledger.ErrNoUser) {
		return fmt.Errorf("%w: pass --user or set BILANCIO_USER", err)
	}
	return err
}

func (a *app) today() core.Date {
	return core.DateOf(a.now())
}
