// Package sentinel holds the storage-level errors that stores wrap with %w
// and services map onto domain error codes.
package sentinel

import "errors"

var (
	// ErrNotFound means no record exists under the requested key.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the write would break an append-only invariant,
	// such as reusing an audit record ID.
	ErrInvalidState = errors.New("invalid state")
)
