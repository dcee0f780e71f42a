package skiff

import (
	"errors"
	"fmt"
)

// Common errors returned by the skiff client.
var (
	// ErrNotInitialized is returned when a public call arrives before Open
	// has completed or after Close.
	ErrNotInitialized = errors.New("database not initialized")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database is closed")

	// ErrInvalidOpType is returned when an operation carries an unknown type.
	ErrInvalidOpType = errors.New("invalid operation type")

	// ErrEmptyTable is returned when a mutation names no table.
	ErrEmptyTable = errors.New("table name cannot be empty")

	// ErrEmptyData is returned when an INSERT or UPDATE carries no columns.
	ErrEmptyData = errors.New("operation data cannot be empty")

	// ErrEmptyWhere is returned when an UPDATE or DELETE carries no predicate.
	ErrEmptyWhere = errors.New("operation where clause cannot be empty")

	// ErrNoTransport is returned when Connect is called without a transport
	// configured.
	ErrNoTransport = errors.New("no transport configured")

	// ErrBlobNotFound is returned by blob stores when a key has no value.
	ErrBlobNotFound = errors.New("blob not found")

	// errNoCheckpoint is returned by rollback when no checkpoint is live.
	// Swallowed by the reconciler; the next establish replaces it.
	errNoCheckpoint = errors.New("no live checkpoint")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ApplyError is returned when translating an operation into SQL fails.
// The reconciler logs and swallows it; public mutation calls surface it.
// Extractable via errors.As(). Supports Unwrap().
type ApplyError struct {
	Op  string
	Err error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply: operation %s failed: %v", e.Op, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }
