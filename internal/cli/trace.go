package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/journal"
	"github.com/roach88/ringtrail/internal/txn"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database    string
	Transaction string
}

// TimelineEvent is one journal entry of a traced transaction.
type TimelineEvent struct {
	Seq     int64           `json:"seq"`
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Variant string          `json:"variant"`
	Event   json.RawMessage `json:"event"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	State    journal.TransactionState `json:"state"`
	Timeline []TimelineEvent          `json:"timeline"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the lifecycle of one transaction",
		Long: `Show every journaled event of a transaction in order, together with
the state reconstructed from them: request, outcome, broadcast fan-out
and receivers.

Examples:
  ringtrail trace --db ./journal.db --tx 0192f7a4-...
  ringtrail trace --db ./journal.db --tx 0192f7a4-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Transaction, "tx", "", "transaction to trace (required)")
	_ = cmd.MarkFlagRequired("tx")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := &Output{Format: opts.Format, Writer: cmd.OutOrStdout()}

	j, err := openJournal(ctx, opts.Database)
	if err != nil {
		return err
	}
	defer j.Close()

	tx := txn.Transaction(opts.Transaction)
	state, err := j.TransactionState(ctx, tx)
	if errors.Is(err, journal.ErrNotFound) {
		msg := fmt.Sprintf("no events found for transaction %s", tx)
		if err := out.Failure(CodeNotFound, msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to reconstruct transaction", err)
	}

	entries, err := j.ReadTransaction(ctx, tx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read transaction", err)
	}
	timeline, err := buildTimeline(entries)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render events", err)
	}

	result := TraceResult{State: state, Timeline: timeline}
	return out.Success(result, func(w io.Writer) error {
		return writeTraceText(w, result, opts.Verbose)
	})
}

func buildTimeline(entries []journal.Entry) ([]TimelineEvent, error) {
	timeline := make([]TimelineEvent, 0, len(entries))
	for _, e := range entries {
		body, err := catalog.MarshalCanonical(e.Event)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		timeline = append(timeline, TimelineEvent{
			Seq:     e.Seq,
			ID:      e.ID,
			Kind:    e.Kind,
			Variant: e.Variant,
			Event:   body,
		})
	}
	return timeline, nil
}

func writeTraceText(w io.Writer, r TraceResult, verbose bool) error {
	var b strings.Builder
	s := r.State
	fmt.Fprintf(&b, "Transaction: %s\n", s.Transaction)
	if s.Contract != "" {
		fmt.Fprintf(&b, "Contract:    %s\n", s.Contract)
	}
	fmt.Fprintf(&b, "Status:      %s\n", s.Status)
	if s.Request != "" {
		fmt.Fprintf(&b, "Request:     %s\n", s.Request)
	}
	if s.Outcome != "" {
		fmt.Fprintf(&b, "Outcome:     %s\n", s.Outcome)
	}
	if len(s.BroadcastTargets) > 0 {
		fmt.Fprintf(&b, "Broadcast:   %d targets, %d reached\n", len(s.BroadcastTargets), s.BroadcastReached)
	}
	if len(s.Receivers) > 0 {
		fmt.Fprintf(&b, "Receivers:   %s\n", strings.Join(s.Receivers, ", "))
	}

	b.WriteString("\nTimeline:\n")
	for _, ev := range r.Timeline {
		fmt.Fprintf(&b, "  [%d] %-24s %s\n", ev.Seq, ev.Variant, shortID(ev.ID))
		if verbose {
			fmt.Fprintf(&b, "      %s\n", ev.Event)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
