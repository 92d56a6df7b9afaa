// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors for storage operations.

package database

import "errors"

var (
	// ErrNotFound is returned when a requested row is not found.
	ErrNotFound = errors.New("entity not found")
)
