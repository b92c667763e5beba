package storage

import "errors"

var (
	// ErrNotFound is returned when a journal entry or checkpoint does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an event id is already journaled.
	// The journal is append-only.
	ErrDuplicateKey = errors.New("duplicate key: journal is append-only")

	// ErrInvalidInput is returned for nil records or missing keys.
	ErrInvalidInput = errors.New("invalid input")
)
