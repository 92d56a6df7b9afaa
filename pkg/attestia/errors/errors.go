// Copyright 2025 Certen Protocol

// Package errors defines the error code taxonomy shared by every Attestia
// component, so that a caller (or the out-of-scope HTTP surface) can switch
// on a stable Code instead of matching error strings.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies the class of failure, independent of the component that
// raised it.
type Code string

const (
	// InvalidInput marks malformed or semantically invalid request data.
	InvalidInput Code = "INVALID_INPUT"
	// ConcurrencyConflict marks an optimistic-concurrency check failure
	// (expected stream version did not match).
	ConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	// StateTransition marks an operation that is not valid from the
	// current state (e.g. appending to a finalized stream).
	StateTransition Code = "STATE_TRANSITION"
	// IntegrityViolation marks a detected hash-chain, Merkle, or
	// balanced-entry invariant violation.
	IntegrityViolation Code = "INTEGRITY_VIOLATION"
	// NotConnected marks an operation attempted on a chain observer that
	// has not been connected, or has been disconnected.
	NotConnected Code = "NOT_CONNECTED"
	// NotFound marks a lookup that found nothing.
	NotFound Code = "NOT_FOUND"
	// Conflict marks a uniqueness or duplicate-registration violation.
	Conflict Code = "CONFLICT"
	// QuorumNotMet marks a signature set that failed to reach the
	// required governance quorum weight.
	QuorumNotMet Code = "QUORUM_NOT_MET"
	// SchemaMigration marks a failure while upcasting or migrating a
	// stored event to its current schema version.
	SchemaMigration Code = "SCHEMA_MIGRATION"
	// Timeout marks a deadline exceeded while waiting on an external
	// resource (a chain RPC endpoint, a database).
	Timeout Code = "TIMEOUT"
	// NetworkError marks a transport-level failure talking to an
	// external resource.
	NetworkError Code = "NETWORK_ERROR"
)

// Error wraps an underlying cause with a Code, a human-readable message,
// and optional structured details for the out-of-scope HTTP surface to
// render without re-deriving the code from the message text.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error carrying cause as its Unwrap target.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error; otherwise it returns the empty Code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
