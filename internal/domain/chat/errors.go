// Package chat holds the conversation-memory domain: scope resolution,
// context retrieval, and the turn orchestrator invoked around each
// completion call.
package chat

import (
	"errors"
	"fmt"
)

// Store error kinds. Callers decide per kind whether to swallow or
// propagate; the store itself never makes that call.
const (
	ErrKindSchemaCreate = "SCHEMA_CREATE"
	ErrKindQuery        = "STORE_QUERY"
	ErrKindWrite        = "STORE_WRITE"
)

// StoreError classifies a failed message-store operation.
type StoreError struct {
	Kind string
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a classified store error.
func NewStoreError(kind, op string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}

// IsStoreErrorKind reports whether err is a StoreError of the given kind.
func IsStoreErrorKind(err error, kind string) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == kind
}
