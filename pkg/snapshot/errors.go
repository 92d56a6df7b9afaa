// Copyright 2025 Certen Protocol

package snapshot

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("snapshot: invalid input")
	ErrNotFound     = errors.New("snapshot: not found")
)

func newErr(sentinel error, msg string) error {
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func newErrf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
