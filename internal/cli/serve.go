package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/ringtrail/internal/api"
)

// DefaultServeAddr is the listen address of the audit API.
const DefaultServeAddr = "127.0.0.1:7509"

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Addr     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the journal over the local HTTP audit API",
		Long: `Serve transaction state, contract event history and metrics over
HTTP. The API only binds loopback addresses.

Endpoints:
  GET /health
  GET /metrics
  GET /transactions/pending
  GET /transactions/{tx}
  GET /contracts/{key}/events

Examples:
  ringtrail serve --db ./journal.db
  ringtrail serve --db ./journal.db --addr localhost:9000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Addr, "addr", DefaultServeAddr, "listen address (loopback only)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := opts.Logger(cmd.ErrOrStderr())

	if err := api.CheckLoopback(opts.Addr); err != nil {
		return WrapExitError(ExitCommandError, "refusing to listen", err)
	}

	j, err := openJournal(ctx, opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := j.Close(); err != nil {
			logger.Error("error closing journal", "error", err)
		}
	}()

	if err := api.Serve(ctx, opts.Addr, api.NewServer(j, logger), logger); err != nil {
		return WrapExitError(ExitCommandError, "server failed", err)
	}
	return nil
}
