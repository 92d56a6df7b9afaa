// Copyright 2025 Certen Protocol

package eventstore

import "errors"

var (
	// ErrInvalidInput is returned for malformed Append arguments.
	ErrInvalidInput = errors.New("eventstore: invalid input")

	// ErrConcurrencyConflict is returned when an Append's expected
	// version does not match the stream's actual version.
	ErrConcurrencyConflict = errors.New("eventstore: concurrency conflict")

	// ErrNotFound is returned when a referenced stream does not exist.
	ErrNotFound = errors.New("eventstore: stream not found")

	// ErrIntegrityViolation is returned when the hash chain fails to
	// verify.
	ErrIntegrityViolation = errors.New("eventstore: hash chain integrity violation")
)
