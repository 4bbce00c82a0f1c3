// Package errs defines the error taxonomy shared across Lattice components.
//
// Callers distinguish error classes with errors.Is against the exported
// sentinels; the HTTP layer maps them to status codes. Validation-class
// errors are rejected before any work starts and are never partially applied.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuery is returned when a search query is empty after trimming.
	// Callers typically treat it as "no results" but it is a distinct error
	// value so each caller can choose its own handling.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrContentTooShort is returned when latent-link content is below the
	// minimum length for a reliable embedding.
	ErrContentTooShort = errors.New("content too short")

	// ErrAlreadyRunning is returned when a bulk reindex is requested while
	// another is in progress. The second request is rejected, not queued.
	ErrAlreadyRunning = errors.New("reindex already running")

	// ErrNotFound is the sentinel wrapped by NotFound.
	ErrNotFound = errors.New("not found")

	// ErrValidation is the sentinel wrapped by Validation.
	ErrValidation = errors.New("validation error")

	// ErrEmbedding is the sentinel wrapped by Embedding. Embedding failures
	// are recoverable by retry and degrade hybrid search to lexical-only.
	ErrEmbedding = errors.New("embedding error")

	// ErrInternal is the sentinel wrapped by Internal.
	ErrInternal = errors.New("internal error")
)

// NotFound returns an error reporting that the identified entity does not exist.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// Validation returns a validation error with the given message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Embedding wraps err as an embedding failure.
func Embedding(err error) error {
	return fmt.Errorf("%w: %v", ErrEmbedding, err)
}

// Internal wraps err as an internal failure.
func Internal(err error) error {
	return fmt.Errorf("%w: %v", ErrInternal, err)
}
