package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"storekeeper/internal/app"
)

// Exit codes for schemactl.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Procedure failed (verification, sync errors, ...)
	ExitCommandError = 2 // Invalid arguments or configuration
)

// ExitError carries a specific exit code.
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

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors without an
// explicit code are mapped by kind (unrecoverable, validation, ...).
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if err == nil {
		return ExitSuccess
	}
	if code := app.ExitCode(err); code != 0 {
		return code
	}
	return ExitFailure
}

// Response is the JSON envelope of every command.
type Response struct {
	Status string `json:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OutputFormatter handles JSON vs text output.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Success writes data as JSON or through the text renderer.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return f.encode(Response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Failure writes the result of a failed procedure and returns err wrapped
// with ExitFailure, so partial results still reach the operator.
func (f *OutputFormatter) Failure(data any, text func(w io.Writer), err error) error {
	if f.Format == "json" {
		if encErr := f.encode(Response{Status: "error", Data: data, Error: err.Error()}); encErr != nil {
			return encErr
		}
	} else if text != nil {
		text(f.Writer)
	}
	return err
}

func (f *OutputFormatter) encode(r Response) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
