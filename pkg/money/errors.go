// Copyright 2025 Certen Protocol

package money

import "errors"

var (
	// ErrCurrencyMismatch is returned when an operation combines Amounts of
	// different currencies or scales.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")

	// ErrInvalidAmount is returned when a decimal string cannot be parsed.
	ErrInvalidAmount = errors.New("money: invalid amount")
)
