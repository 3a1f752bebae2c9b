package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document or constraint lookup by id fails
	// against the merged view.
	ErrNotFound = errors.New("lattice: not found")

	// ErrAlreadyExists is returned when creating a collection whose name is taken.
	ErrAlreadyExists = errors.New("lattice: collection already exists")

	// ErrUnresolvedTransaction is returned when finalizing a transaction that was
	// never marked for commit or rollback, when opening a second transaction while
	// one is open, or when snapshotting a store with an open transaction.
	ErrUnresolvedTransaction = errors.New("lattice: unresolved transaction")

	// ErrTransactionRequired is returned by mutating calls when the collection
	// requires an open transaction and none exists.
	ErrTransactionRequired = errors.New("lattice: operation requires an open transaction")

	// ErrTransactionClosed is returned when finalizing a transaction a second time.
	ErrTransactionClosed = errors.New("lattice: transaction already finalized")

	// ErrConstraintViolation is the sentinel all constraint failures unwrap to.
	// Use errors.As with *ConstraintError to recover the kind and field key.
	ErrConstraintViolation = errors.New("lattice: constraint violation")

	// ErrInvalidSnapshot is returned when a loaded snapshot cannot be
	// reconstructed into valid collections and records.
	ErrInvalidSnapshot = errors.New("lattice: invalid snapshot state")
)

// ConstraintError reports which constraint kind rejected which field.
type ConstraintError struct {
	// Kind is the constraint kind, e.g. KindRequired or KindUnique.
	Kind string

	// Key is the governed field key.
	Key string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("lattice: %s constraint violated on field %q", e.Kind, e.Key)
}

// Unwrap lets errors.Is(err, ErrConstraintViolation) match any constraint failure.
func (e *ConstraintError) Unwrap() error {
	return ErrConstraintViolation
}
