package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/telemetry"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	File string
}

// DecodeResult is the decoded form of one wire event.
type DecodeResult struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Variant string          `json:"variant"`
	Event   json.RawMessage `json:"event"`
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a wire-encoded event",
		Long: `Decode one wire-encoded event envelope and print its canonical JSON
form and content id. Use "-" to read from standard input.

Exit codes:
  0 - Event decoded
  1 - The bytes are not a valid event
  2 - Command error (file not readable)

Examples:
  ringtrail decode --file ./event.bin
  cat event.bin | ringtrail decode --file - --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "encoded event file, or - for stdin (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runDecode(opts *DecodeOptions, cmd *cobra.Command) error {
	out := &Output{Format: opts.Format, Writer: cmd.OutOrStdout()}

	data, err := readInput(cmd, opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event", err)
	}

	ev, err := catalog.DecodeEvent(data)
	if err != nil {
		telemetry.ObserveDecodeError(err)
		reason := telemetry.DecodeReason(err)
		if ferr := out.Failure(CodeDecode, err.Error(), map[string]string{"reason": reason}); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "invalid event ("+reason+")", err)
	}

	body, err := catalog.MarshalCanonical(ev)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render event", err)
	}
	result := DecodeResult{
		ID:      catalog.IDOf(data),
		Kind:    ev.EventKind(),
		Variant: catalog.Variant(ev),
		Event:   body,
	}
	return out.Success(result, func(w io.Writer) error {
		if opts.Verbose {
			fmt.Fprintf(w, "# %s %s/%s\n", result.ID, result.Kind, result.Variant)
		}
		_, err := fmt.Fprintf(w, "%s\n", result.Event)
		return err
	})
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
