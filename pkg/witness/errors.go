// Copyright 2025 Certen Protocol

package witness

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks an error a Submitter implementation classifies as
	// retryable (load-shed responses, timeouts). Submit retries only
	// errors wrapping this sentinel; anything else is permanent.
	ErrTransient = errors.New("witness: transient submit error")

	ErrInvalidMemo  = errors.New("witness: memo is not an Attestia witness memo")
	ErrQuorumNotMet = errors.New("witness: signature set does not meet policy quorum")
)

func newErr(sentinel error, msg string) error {
	return fmt.Errorf("%w: %s", sentinel, msg)
}

func newErrf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
