package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/roach88/feedstore/internal/account"
	"github.com/roach88/feedstore/internal/feed"
	"github.com/roach88/feedstore/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected operation (validation, constraint, not found, integrity check)
	ExitCommandError = 2 // Command error (bad config, unreadable files, storage unavailable)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
	Backend   string // reported in JSON responses when set
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string      `json:"status"`            // "ok" or "error"
	Data    interface{} `json:"data,omitempty"`    // success payload
	Error   *CLIError   `json:"error,omitempty"`   // error details
	Backend string      `json:"backend,omitempty"` // backend that served the command
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "CONSTRAINT_VIOLATION", "VALIDATION", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status:  "ok",
			Data:    data,
			Backend: f.Backend,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// Error codes reported for failures that are not storage errors.
const (
	CodeValidation         = "VALIDATION"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNotLoggedIn        = "NOT_LOGGED_IN"
	CodeNotFound           = "NOT_FOUND"
	CodeUnavailable        = "UNAVAILABLE"
	CodeInternal           = "INTERNAL"
)

// classify maps an operation error to a response code and exit code.
func classify(err error) (string, int) {
	var verr *account.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, feed.ErrEmptyComment),
		errors.Is(err, feed.ErrMissingFields):
		return CodeValidation, ExitFailure
	case errors.Is(err, account.ErrInvalidCredentials):
		return CodeInvalidCredentials, ExitFailure
	case errors.Is(err, account.ErrEmailTaken):
		return string(store.ErrCodeConstraintViolation), ExitFailure
	case errors.Is(err, account.ErrNotLoggedIn):
		return CodeNotLoggedIn, ExitFailure
	case errors.Is(err, feed.ErrPostNotFound):
		return CodeNotFound, ExitFailure
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CodeUnavailable, ExitCommandError
	}

	switch code := store.CodeOf(err); code {
	case store.ErrCodeConstraintViolation:
		return string(code), ExitFailure
	case "":
		return CodeInternal, ExitCommandError
	default:
		return string(code), ExitCommandError
	}
}

// Fail reports err in the configured format and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(exit, message, err)
}

// Table writes rows under header as a text table.
func (f *OutputFormatter) Table(header []string, rows [][]string) error {
	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}

	table := tablewriter.NewWriter(f.Writer)
	table.Header(cells...)
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("table rows: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}
