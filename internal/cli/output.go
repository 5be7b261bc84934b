package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stategraph/internal/fault"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected by state: missing entity, resolved proposal, capability, failed verify
	ExitCommandError = 2 // Command error: malformed input, unreadable policy, storage failure
)

// Stable error codes carried by CLIResponse envelopes.
const (
	CodeNotFound     = "E_NOT_FOUND"
	CodeInvalidState = "E_INVALID_STATE"
	CodeInvalidInput = "E_INVALID_INPUT"
	CodePersistence  = "E_PERSISTENCE"
	CodeInternal     = "E_INTERNAL"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code     int    // Exit code (use ExitFailure or ExitCommandError)
	Message  string // Error message
	Err      error  // Underlying error (optional)
	Reported bool   // already written to the output, main must not print it again
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// IsReported reports whether err was already written by an OutputFormatter.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// ErrorCode maps a fault kind to its stable envelope code.
func ErrorCode(err error) string {
	switch fault.KindOf(err) {
	case fault.NotFound:
		return CodeNotFound
	case fault.InvalidState:
		return CodeInvalidState
	case fault.InvalidInput:
		return CodeInvalidInput
	case fault.Persistence:
		return CodePersistence
	}
	return CodeInternal
}

func exitCodeFor(err error) int {
	switch fault.KindOf(err) {
	case fault.NotFound, fault.InvalidState:
		return ExitFailure
	}
	return ExitCommandError
}

// OutputFormatter handles text, JSON and YAML output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON and YAML response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status" yaml:"status"`                     // "ok" or "error"
	Data   any       `json:"data,omitempty" yaml:"data,omitempty"`     // success payload
	Error  *CLIError `json:"error,omitempty" yaml:"error,omitempty"`   // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code" yaml:"code"`                           // E_NOT_FOUND, E_INVALID_STATE, ...
	Message string `json:"message" yaml:"message"`                     // human-readable message
	Details any    `json:"details,omitempty" yaml:"details,omitempty"` // additional context
}

// textView is implemented by results that render themselves for text output.
type textView interface {
	writeText(w io.Writer)
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	switch f.Format {
	case "json":
		return f.encodeJSON(CLIResponse{Status: "ok", Data: data})
	case "yaml":
		return f.encodeYAML(CLIResponse{Status: "ok", Data: data})
	}

	if v, ok := data.(textView); ok {
		v.writeText(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	resp := CLIResponse{
		Status: "error",
		Error: &CLIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	switch f.Format {
	case "json":
		return f.encodeJSON(resp)
	case "yaml":
		return f.encodeYAML(resp)
	}

	// Human-readable error
	fmt.Fprintf(f.GetErrWriter(), "%s [%s]: %s\n", errorLabel.Sprint("Error"), code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.GetErrWriter(), "Details: %v\n", details)
	}
	return nil
}

// Fail writes err as an error response and returns the ExitError the
// command should return. Structured formats write the envelope to Writer
// so scripts always get one document on stdout.
func (f *OutputFormatter) Fail(err error) error {
	code := ErrorCode(err)
	if writeErr := f.Error(code, err.Error(), nil); writeErr != nil {
		return WrapExitError(ExitCommandError, "write error response", writeErr)
	}
	return &ExitError{Code: exitCodeFor(err), Message: code, Err: err, Reported: true}
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encodeJSON(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (f *OutputFormatter) encodeYAML(v any) error {
	enc := yaml.NewEncoder(f.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
