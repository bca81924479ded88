// Package core provides the charmem client facade: configuration plus the
// wiring between storage, embedding, the scoring core, and the context
// assembler.
package core

import (
	"errors"
	"fmt"

	"github.com/personaforge/charmem-go/pkg/storage"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested memory was not found. It is
	// the storage sentinel re-exported so callers need not import the
	// storage package to match it.
	ErrNotFound = storage.ErrNotFound

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStorageDisabled indicates a store-backed operation on a client
	// constructed without persistence.
	ErrStorageDisabled = errors.New("storage not configured")

	// ErrEmbeddingFailed indicates that embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// MemoryError wraps errors with operation context, making failures
// attributable to the client call that produced them.
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns "charmem: <Op>: <Err>".
func (e *MemoryError) Error() string {
	return fmt.Sprintf("charmem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error so errors.Is and errors.As work
// through the wrapper.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError wraps err with the operation name. A nil err returns nil,
// so it can wrap return values unconditionally.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{Op: op, Err: err}
}
