package common

import "errors"

// Callers should use errors.Is to match these values.
var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors (missing or malformed input).
	ErrValidation = errors.New("validation error")

	// Session lookup errors.
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("invalid session")
)
