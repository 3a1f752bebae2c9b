package store

import (
	"github.com/jacentio/lattice/internal/docid"
)

// Action discriminates staged changes.
type Action int

const (
	// ActionWrite stages a document addition or a field write.
	ActionWrite Action = iota
	// ActionDelete stages a document removal or a field delete.
	ActionDelete
)

func (a Action) String() string {
	if a == ActionDelete {
		return "delete"
	}
	return "write"
}

// Resolution is the declared fate of a transaction.
type Resolution int

const (
	// Unresolved means neither Commit nor Rollback has been called yet.
	Unresolved Resolution = iota
	// Commit means Close will apply the staged changes.
	Commit
	// Rollback means Close will discard the staged changes.
	Rollback
)

func (r Resolution) String() string {
	switch r {
	case Commit:
		return "commit"
	case Rollback:
		return "rollback"
	}
	return "unresolved"
}

// FieldChange is one staged field-level mutation.
type FieldChange struct {
	// RecordID identifies the record the change applies to.
	RecordID string

	// Key is the field key being written or deleted.
	Key string

	// Value is the staged value for ActionWrite; null for ActionDelete.
	Value Value

	// Action is ActionWrite or ActionDelete.
	Action Action
}

type docChange struct {
	rec    *Record
	action Action
}

// Txn buffers intended mutations against a single Collection and exposes them
// for merged-view reads. Nothing touches committed storage until the
// transaction is marked with Commit and finalized with Close.
//
// A Txn must be resolved (Commit or Rollback, whichever was called last wins)
// before Close; closing an unresolved transaction fails with
// ErrUnresolvedTransaction and closing twice fails with ErrTransactionClosed.
// There are no savepoints: re-marking simply overwrites the pending resolution.
type Txn struct {
	id         string
	coll       *Collection
	resolution Resolution
	closed     bool
	docs       []docChange
	fields     []FieldChange
}

func newTxn(c *Collection) *Txn {
	return &Txn{
		id:   docid.New(),
		coll: c,
	}
}

// ID returns the transaction's identifier, for logs and diagnostics.
func (t *Txn) ID() string { return t.id }

// Resolution returns the currently pending resolution.
func (t *Txn) Resolution() Resolution { return t.resolution }

// Commit marks the transaction to apply its staged changes on Close.
// It overwrites any earlier Rollback mark.
func (t *Txn) Commit() { t.resolution = Commit }

// Rollback marks the transaction to discard its staged changes on Close.
// It overwrites any earlier Commit mark.
func (t *Txn) Rollback() { t.resolution = Rollback }

// Close finalizes the transaction: applies the staged changes when marked
// Commit, discards them when marked Rollback, and either way detaches from the
// collection so a new transaction can be opened.
func (t *Txn) Close() error {
	if t.closed {
		return ErrTransactionClosed
	}
	if t.resolution == Unresolved {
		return ErrUnresolvedTransaction
	}
	t.closed = true
	if t.resolution == Commit {
		t.coll.apply(t)
	}
	t.coll.cfg.Logger.Debug("transaction finalized",
		"txn", t.id,
		"collection", t.coll.name,
		"resolution", t.resolution.String(),
		"documents", len(t.docs),
		"fields", len(t.fields),
	)
	t.coll.txn = nil
	return nil
}

func (t *Txn) stageDoc(rec *Record, action Action) {
	t.docs = append(t.docs, docChange{rec: rec, action: action})
}

func (t *Txn) stageField(recordID, key string, value Value, action Action) {
	t.fields = append(t.fields, FieldChange{
		RecordID: recordID,
		Key:      key,
		Value:    value,
		Action:   action,
	})
}

// StagedDocuments returns, in append order, the records staged for the given
// action: ActionWrite lists additions, ActionDelete lists removals.
func (t *Txn) StagedDocuments(action Action) []*Record {
	var out []*Record
	for _, dc := range t.docs {
		if dc.action == action {
			out = append(out, dc.rec)
		}
	}
	return out
}

// StagedFieldChanges returns, in append order, the staged field changes for
// the given action, reduced to the last write per (record, key): if a field is
// staged more than once in one transaction only the most recent change counts,
// so a delete followed by a write leaves the field visible with the new value
// and a write followed by a delete removes it.
func (t *Txn) StagedFieldChanges(action Action) []FieldChange {
	var out []FieldChange
	for _, fc := range t.lastWrites() {
		if fc.Action == action {
			out = append(out, fc)
		}
	}
	return out
}

type fieldRef struct {
	recordID string
	key      string
}

// lastWrites reduces the staged field changes to the final change per
// (record, key), preserving append order of the surviving entries.
func (t *Txn) lastWrites() []FieldChange {
	last := make(map[fieldRef]int, len(t.fields))
	for i, fc := range t.fields {
		last[fieldRef{fc.RecordID, fc.Key}] = i
	}
	var out []FieldChange
	for i, fc := range t.fields {
		if last[fieldRef{fc.RecordID, fc.Key}] == i {
			out = append(out, fc)
		}
	}
	return out
}

// stagedFieldView indexes the surviving staged changes for one record:
// writes by key and the set of deleted keys.
func (t *Txn) stagedFieldView(recordID string) (writes map[string]Value, deletes map[string]bool) {
	writes = make(map[string]Value)
	deletes = make(map[string]bool)
	for _, fc := range t.lastWrites() {
		if fc.RecordID != recordID {
			continue
		}
		if fc.Action == ActionWrite {
			writes[fc.Key] = fc.Value
		} else {
			deletes[fc.Key] = true
		}
	}
	return writes, deletes
}
