package errors

import "errors"

// Common application errors shared across layers.
var (
	// ErrNotFound is returned when a record or resource does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is returned for authorization failures (bad token, no rights).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation is returned for invalid input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned for state conflicts (e.g. duplicate email).
	ErrConflict = errors.New("resource state conflict")

	// ErrExpiredToken is returned when a bearer token is past its expiry.
	ErrExpiredToken = errors.New("token is expired")
)
