package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"strings"
)

// PlatformError is an error annotated with an ErrorCode, a human readable
// message and optional structured context.
type PlatformError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	Err     error          `json:"-"`
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

// Unwrap returns the underlying error for error chaining support.
func (e *PlatformError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a PlatformError carrying the same code.
// This lets callers match on codes with errors.Is(err, errors.New(code, "")).
func (e *PlatformError) Is(target error) bool {
	var t *PlatformError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// New creates a PlatformError with the given code and message.
func New(code ErrorCode, message string) *PlatformError {
	return &PlatformError{Code: code, Message: message}
}

// Newf creates a PlatformError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *PlatformError {
	return &PlatformError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. It returns nil if err is nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &PlatformError{Code: code, Message: message, Err: err}
}

// WrapWithContext annotates err with a code, message and structured context.
// It returns nil if err is nil.
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]any) error {
	if err == nil {
		return nil
	}
	return &PlatformError{Code: code, Message: message, Context: maps.Clone(ctx), Err: err}
}

// GetCode returns the code of the outermost PlatformError in err's chain,
// or CodeUnknown when there is none.
func GetCode(err error) ErrorCode {
	var pe *PlatformError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// HasCode reports whether any PlatformError in err's tree carries code.
// Joined and multi-wrapped errors are searched depth first.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*PlatformError); ok && pe.Code == code {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return HasCode(u.Unwrap(), code)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if HasCode(e, code) {
				return true
			}
		}
	}
	return false
}

// RollbackError is returned when an operation failed and the attempt to
// restore the previous state failed as well. It carries both causes and is
// never a success.
type RollbackError struct {
	// Cause is the error that triggered the rollback.
	Cause error
	// RollbackErr is the error the restoration itself produced.
	RollbackErr error
}

// Error implements the error interface.
func (e *RollbackError) Error() string {
	var b strings.Builder
	b.WriteString("rollback failed")
	if e.RollbackErr != nil {
		b.WriteString(": ")
		b.WriteString(e.RollbackErr.Error())
	}
	if e.Cause != nil {
		b.WriteString(" (original error: ")
		b.WriteString(e.Cause.Error())
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes both the original cause and the rollback failure.
func (e *RollbackError) Unwrap() []error {
	return []error{e.Cause, e.RollbackErr}
}

// Is, As and Join re-export the standard library helpers so callers need a
// single errors import.
var (
	Is   = stderrors.Is
	As   = stderrors.As
	Join = stderrors.Join
)
