package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ringtrail/internal/journal"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions
	Database string
}

// PendingResult lists transactions still awaiting a terminal event.
type PendingResult struct {
	Transactions []journal.TransactionState `json:"transactions"`
	Total        int                        `json:"total"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List transactions without a terminal event",
		Long: `List requested transactions for which no success, failure or
subscription has been journaled yet, oldest first.

Examples:
  ringtrail pending --db ./journal.db
  ringtrail pending --db ./journal.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPending(opts *PendingOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := &Output{Format: opts.Format, Writer: cmd.OutOrStdout()}

	j, err := openJournal(ctx, opts.Database)
	if err != nil {
		return err
	}
	defer j.Close()

	states, err := j.PendingTransactions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list pending transactions", err)
	}
	if states == nil {
		states = []journal.TransactionState{}
	}

	result := PendingResult{Transactions: states, Total: len(states)}
	return out.Success(result, func(w io.Writer) error {
		if result.Total == 0 {
			_, err := fmt.Fprintln(w, "No pending transactions.")
			return err
		}
		fmt.Fprintf(w, "%d pending transaction(s):\n", result.Total)
		for _, s := range result.Transactions {
			fmt.Fprintf(w, "  %s  %-16s %s  (seq %d)\n", s.Transaction, s.Request, s.Contract, s.FirstSeq)
		}
		return nil
	})
}
