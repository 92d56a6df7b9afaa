// Copyright 2025 Certen Protocol

package governance

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput   = errors.New("governance: invalid input")
	ErrStateTransition = errors.New("governance: illegal state transition")
	ErrQuorumNotMet   = errors.New("governance: quorum not met")
)

func newErr(sentinel error, msg string) error {
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func newErrf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
