// Copyright 2025 Certen Protocol

package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for malformed accounts, entries, or batches.
	ErrInvalidInput = errors.New("ledger: invalid input")

	// ErrConflict is returned when an account or entry id collides with one
	// already registered or posted.
	ErrConflict = errors.New("ledger: conflict")

	// ErrNotFound is returned when a referenced account or transaction does
	// not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrUnbalanced is returned when a batch's debits and credits do not net
	// to zero for some currency it touches.
	ErrUnbalanced = errors.New("ledger: unbalanced transaction")
)

func newErr(sentinel error, msg string) error {
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func newErrf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
