// Package store implements an embedded, single-process document store:
// named collections of schemaless records with staged, transactional
// mutations and constraint enforcement.
//
// Lattice is designed for applications that want document semantics without a
// server: all state lives in process, and the persistence backends under
// persist/ serialize it as a whole.
//
// # Key Features
//
//   - Staged transactions: document and field mutations buffer in a [Txn] and
//     apply atomically on commit, or vanish on rollback
//   - Merged reads: every read and every constraint check sees committed state
//     with the open transaction's changes already applied
//   - Last-write-wins field staging within one transaction
//   - Built-in constraints: [Required], [Unique], [Default], [From], plus
//     custom kinds through the [Constraint] interface
//   - Optional transactions-required policy for all mutating calls
//
// # Transactions
//
// A collection has at most one open transaction. A transaction must be
// resolved before it is finalized:
//
//	txn, err := coll.Begin()
//	if err != nil { ... }
//	rec, err := coll.Create(store.Fields{"name": store.StringValue("ada")})
//	if err != nil {
//		txn.Rollback()
//	} else {
//		txn.Commit()
//	}
//	if err := txn.Close(); err != nil { ... }
//
// Commit and Rollback only mark the pending resolution (the last mark wins);
// Close performs the apply-or-discard and detaches the transaction. Closing an
// unresolved transaction fails with [ErrUnresolvedTransaction].
//
// # Constraints
//
// Constraints validate against the merged view, so staging a delete of a
// document and then creating another with the same unique value inside one
// transaction succeeds. Constraints run in registration order and each sees
// the candidate fields as left by the previous one, which is how [Default]
// satisfies a later [Required] on the same key.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - document or constraint lookup failed against the merged view
//   - [ErrUnresolvedTransaction] - finalize without resolution, second open
//     transaction, or snapshot with an open transaction
//   - [ErrTransactionRequired] - mutating call without the required transaction
//   - [ErrConstraintViolation] - any constraint failure; errors.As with
//     [*ConstraintError] recovers the kind and field key
//   - [ErrInvalidSnapshot] - loaded state cannot be reconstructed
//
// Collections are not safe for concurrent use: the store assumes a single
// logical writer, and callers needing shared access must serialize externally.
package store
