// Package errors provides the coded error type used across sheetdex.
// File-level and transport-level failures carry a Code so callers can tell
// an unreadable spreadsheet from an unreachable document store.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies a class of failure.
type Code string

const (
	// Input errors (1xx)
	CodeSourceUnavailable Code = "E101"
	CodeInvalidTarget     Code = "E102"
	CodeHeaderCollision   Code = "E103"

	// Store errors (2xx)
	CodeTransportFailure Code = "E201"
	CodeStoreResponse    Code = "E202"

	// Configuration errors (3xx)
	CodeConfigInvalid Code = "E301"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"

	CodeUnknown Code = "E999"
)

// SheetdexError is the base error type for all sheetdex errors.
type SheetdexError struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *SheetdexError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *SheetdexError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a SheetdexError with the same code.
func (e *SheetdexError) Is(target error) bool {
	if t, ok := target.(*SheetdexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *SheetdexError) WithContext(key string, value interface{}) *SheetdexError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new SheetdexError.
func New(code Code, message string) *SheetdexError {
	return &SheetdexError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message. Wrap(nil, ...) is nil.
func Wrap(err error, code Code, message string) *SheetdexError {
	if err == nil {
		return nil
	}

	return &SheetdexError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *SheetdexError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Sentinels for errors.Is matching on code alone.
var (
	ErrSourceUnavailable = New(CodeSourceUnavailable, "source unavailable")
	ErrInvalidTarget     = New(CodeInvalidTarget, "invalid index target")
	ErrHeaderCollision   = New(CodeHeaderCollision, "header collision")
	ErrTransportFailure  = New(CodeTransportFailure, "transport failure")
	ErrStoreResponse     = New(CodeStoreResponse, "store response error")
	ErrConfigInvalid     = New(CodeConfigInvalid, "invalid configuration")
)

// --- Convenience constructors ---

// SourceUnavailable reports a spreadsheet that could not be opened or parsed.
func SourceUnavailable(path string, cause error) *SheetdexError {
	err := &SheetdexError{
		Code:    CodeSourceUnavailable,
		Message: "cannot read tabular source",
		Cause:   cause,
	}
	return err.WithContext("path", path)
}

// InvalidTarget reports an unusable index name.
func InvalidTarget(target string) *SheetdexError {
	return New(CodeInvalidTarget, "index name must not be empty").
		WithContext("target", target)
}

// HeaderCollision reports two headers that sanitize to the same identifier.
func HeaderCollision(field string, first, second int) *SheetdexError {
	return New(CodeHeaderCollision, "headers map to the same field").
		WithContext("field", field).
		WithContext("columns", fmt.Sprintf("%d,%d", first, second))
}

// TransportFailure reports a store call that could not complete.
func TransportFailure(op string, cause error) *SheetdexError {
	err := &SheetdexError{
		Code:    CodeTransportFailure,
		Message: "document store call failed",
		Cause:   cause,
	}
	return err.WithContext("operation", op)
}

// StoreResponse reports a store call that completed with an error status.
func StoreResponse(op string, status int, body string) *SheetdexError {
	return New(CodeStoreResponse, "document store returned an error").
		WithContext("operation", op).
		WithContext("status", status).
		WithContext("body", body)
}

// ConfigInvalid reports a bad configuration value.
func ConfigInvalid(field string, reason string) *SheetdexError {
	return New(CodeConfigInvalid, reason).WithContext("field", field)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string, cause error) *SheetdexError {
	err := &SheetdexError{
		Code:    CodeContextCanceled,
		Message: "operation canceled",
		Cause:   cause,
	}
	return err.WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var sdErr *SheetdexError
	if errors.As(err, &sdErr) {
		return sdErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var sdErr *SheetdexError
	if errors.As(err, &sdErr) {
		return sdErr.Code
	}
	return CodeUnknown
}

// IsRetryable returns true if repeating the whole call may succeed.
// Nothing in sheetdex retries on its own; this is for callers.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTransportFailure:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
