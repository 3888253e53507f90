package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for ringtrail commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Verification failure (replay mismatch, undecodable event)
	ExitCommandError = 2 // Command error (bad flags, unreadable database or file)
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err.
// Errors that are not an ExitError map to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the envelope written in json format.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failure in json format.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error codes used in ResponseError.Code.
const (
	CodeNotFound       = "not_found"
	CodeReplayMismatch = "replay_mismatch"
	CodeDecode         = "decode_failed"
)

// Output writes command results in the selected format.
type Output struct {
	Format string
	Writer io.Writer
}

// JSON reports whether results are written as json envelopes.
func (o *Output) JSON() bool {
	return o.Format == "json"
}

// Success writes data in an ok envelope. In text format text is called
// instead to render it.
func (o *Output) Success(data any, text func(w io.Writer) error) error {
	if o.JSON() {
		return o.encode(Response{Status: "ok", Data: data})
	}
	return text(o.Writer)
}

// Failure writes an error envelope in json format or a one-line message
// in text format.
func (o *Output) Failure(code, message string, details any) error {
	if o.JSON() {
		return o.encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: message, Details: details},
		})
	}
	_, err := fmt.Fprintf(o.Writer, "Error [%s]: %s\n", code, message)
	return err
}

func (o *Output) encode(r Response) error {
	enc := json.NewEncoder(o.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
