// Package core provides the value types and uniform error taxonomy shared by
// every layer of the backtesting engine.
package core

import "fmt"

// Code identifies the broad category of a Status error, per the engine's
// surface error taxonomy.
type Code string

const (
	// NotFound indicates the requested entity does not exist.
	NotFound Code = "not_found"
	// InvalidArgument indicates a caller-supplied value violates a precondition.
	InvalidArgument Code = "invalid_argument"
	// AlreadyExists indicates an attempt to create an entity that already exists.
	AlreadyExists Code = "already_exists"
	// FailedPrecondition indicates the system is not in a state that permits the operation.
	FailedPrecondition Code = "failed_precondition"
	// Internal indicates a bug-like failure or an I/O error from an external collaborator.
	Internal Code = "internal"
)

// Status is the uniform error type returned by every fallible operation in
// the engine. It carries a Code and a human-readable message, and optionally
// wraps an underlying cause.
type Status struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (s *Status) Error() string {
	if s.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", s.Code, s.Message, s.Cause)
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (s *Status) Unwrap() error {
	return s.Cause
}

// NewStatus builds a Status error with the given code and formatted message.
func NewStatus(code Code, format string, args ...interface{}) *Status {
	return &Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a Status error that wraps an underlying cause.
func Wrap(code Code, cause error, format string, args ...interface{}) *Status {
	return &Status{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the Code of a Status error, or Internal if err is not a Status.
func CodeOf(err error) Code {
	var s *Status
	if err == nil {
		return ""
	}
	if se, ok := err.(*Status); ok {
		s = se
		return s.Code
	}
	return Internal
}

// Is reports whether err is a Status with the given code, so callers can
// write errors.Is(err, core.NotFound) style checks via a small helper.
func Is(err error, code Code) bool {
	se, ok := err.(*Status)
	return ok && se.Code == code
}
