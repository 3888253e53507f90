package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/journal"
	"github.com/roach88/ringtrail/internal/telemetry"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayFailure describes one journal row that did not verify.
type ReplayFailure struct {
	Seq    int64  `json:"seq"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Total    int             `json:"total"`
	Verified int             `json:"verified"`
	Failures []ReplayFailure `json:"failures"`
}

// OK reports whether every row verified.
func (r ReplayResult) OK() bool {
	return len(r.Failures) == 0
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Decode every journaled event and verify the round trip",
		Long: `Read the journal in order, decode every stored payload, re-encode it
and verify that the result is byte-identical, that the stored id matches
the content hash and that the indexed kind and variant match the event.

Exit codes:
  0 - Every event verified
  1 - At least one event failed to decode or round trip
  2 - Command error (journal not readable, etc.)

Examples:
  ringtrail replay --db ./journal.db
  ringtrail replay --db ./journal.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := &Output{Format: opts.Format, Writer: cmd.OutOrStdout()}
	logger := opts.Logger(cmd.ErrOrStderr())

	j, err := openJournal(ctx, opts.Database)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.ReadAllRaw(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := ReplayResult{Total: len(entries), Failures: []ReplayFailure{}}
	for _, e := range entries {
		if f, ok := verifyEntry(e); !ok {
			logger.Debug("event failed verification", "seq", e.Seq, "id", e.ID, "reason", f.Reason)
			result.Failures = append(result.Failures, f)
			continue
		}
		result.Verified++
	}

	if !result.OK() {
		if out.JSON() {
			if err := out.encode(Response{
				Status: "error",
				Data:   result,
				Error: &ResponseError{
					Code:    CodeReplayMismatch,
					Message: fmt.Sprintf("%d of %d events failed verification", len(result.Failures), result.Total),
				},
			}); err != nil {
				return err
			}
		} else if err := writeReplayText(out.Writer, result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "replay verification failed")
	}

	return out.Success(result, func(w io.Writer) error {
		return writeReplayText(w, result)
	})
}

// verifyEntry checks that the stored payload decodes, re-encodes to the
// same bytes and agrees with the indexed columns.
func verifyEntry(e journal.Entry) (ReplayFailure, bool) {
	fail := func(reason, detail string) (ReplayFailure, bool) {
		return ReplayFailure{Seq: e.Seq, ID: e.ID, Reason: reason, Detail: detail}, false
	}

	ev, err := journal.Decode(e)
	if err != nil {
		return fail(telemetry.DecodeReason(err), err.Error())
	}
	again, err := catalog.EncodeEvent(ev)
	if err != nil {
		return fail("reencode", err.Error())
	}
	if !bytes.Equal(again, e.Payload) {
		return fail("mismatch", fmt.Sprintf("re-encoded %d bytes differ from stored %d bytes", len(again), len(e.Payload)))
	}
	if id := catalog.RecordID(ev, e.Payload, e.Seq); id != e.ID {
		return fail("id", fmt.Sprintf("expected id %s", id))
	}
	if kind, variant := ev.EventKind(), catalog.Variant(ev); kind != e.Kind || variant != e.Variant {
		return fail("index", fmt.Sprintf("event is %s/%s, indexed as %s/%s", kind, variant, e.Kind, e.Variant))
	}
	return ReplayFailure{}, true
}

func writeReplayText(w io.Writer, r ReplayResult) error {
	if r.Total == 0 {
		_, err := fmt.Fprintln(w, "Journal is empty.")
		return err
	}
	fmt.Fprintf(w, "Verified %d/%d events\n", r.Verified, r.Total)
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  FAIL seq %d %s: %s (%s)\n", f.Seq, shortID(f.ID), f.Reason, f.Detail)
	}
	if r.OK() {
		_, err := fmt.Fprintln(w, "✓ All events round trip")
		return err
	}
	return nil
}
