// Copyright 2025 Certen Protocol

package schema

import "errors"

var (
	// ErrInvalidSchema is returned for a malformed RegisterSchema call.
	ErrInvalidSchema = errors.New("schema: invalid schema declaration")

	// ErrUnknownType is returned when a migration is registered for a
	// type that has not itself been registered.
	ErrUnknownType = errors.New("schema: unknown event type")

	// ErrMigrationFailed is returned when a registered migration
	// function itself returns an error.
	ErrMigrationFailed = errors.New("schema: migration failed")

	// ErrMissingMigration is returned when Migrate needs to step a
	// payload forward from a version that has no registered migration,
	// and the gap falls strictly between a known past version and the
	// catalog's current version (not the forward-compatible case of a
	// future or up-to-date version, which passes through unchanged).
	ErrMissingMigration = errors.New("schema: missing migration step")

	// ErrValidationFailed is returned when a payload fails the
	// Validator attached to its declared schema version.
	ErrValidationFailed = errors.New("schema: payload failed validation")
)
