// Copyright 2025 Certen Protocol

package registrar

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for a malformed Register call.
	ErrInvalidInput = errors.New("registrar: invalid input")

	// ErrStateTransition is returned when a state's declared parent does
	// not exist, or would break the append-only ordering invariant.
	ErrStateTransition = errors.New("registrar: invalid state transition")

	// ErrNotFound is returned when a referenced state id does not exist.
	ErrNotFound = errors.New("registrar: not found")
)

func newErr(sentinel error, msg string) error {
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func newErrf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
