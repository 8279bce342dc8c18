package dbx

import "errors"

var (
	// ErrMissingDSN is a configuration error: no connection string was set.
	ErrMissingDSN = errors.New("database connection string is not configured")

	// ErrTransient marks a query that kept failing with connectivity errors
	// until the retry budget ran out.
	ErrTransient = errors.New("transient database error")

	// ErrAcquireTimeout is returned when no pooled connection became
	// available within Options.AcquireTimeout. It is retried.
	ErrAcquireTimeout = errors.New("timed out acquiring database connection")

	// Transaction-state errors. These are programming errors.
	ErrTransactionInProgress = errors.New("transaction already in progress")
	ErrNoTransaction         = errors.New("no transaction in progress")

	// ErrClosed is returned by operations on a closed adapter.
	ErrClosed = errors.New("database adapter is closed")
)
