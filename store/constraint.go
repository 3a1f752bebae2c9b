package store

import (
	"github.com/jacentio/lattice/internal/docid"
)

// Built-in constraint kinds. Custom kinds may use any other string.
const (
	KindRequired = "required"
	KindUnique   = "unique"
	KindDefault  = "default"
	KindFrom     = "from"
)

// Constraint is a validation rule attached to a collection, governing a single
// field key. All hooks validate against the collection's merged view, so an
// open transaction cannot stage changes that would only pass against stale
// committed data.
//
// ValidateCreate may mutate the candidate fields in place (the Default kind
// injects its value this way); hooks for field changes must treat keys other
// than the governed one as no-ops. Implementations outside this package
// register a decoder with RegisterConstraintKind if their collections are
// snapshotted and restored.
type Constraint interface {
	// ID returns the constraint's unique identifier.
	ID() string

	// Kind returns the constraint kind, e.g. KindUnique.
	Kind() string

	// Key returns the governed field key.
	Key() string

	// Bind attaches the non-owning back-reference to the owning collection.
	// Called when the constraint is added to a collection and again after a
	// snapshot restore.
	Bind(c *Collection)

	// ValidateCreate validates (and may amend) the fields of a document about
	// to be created.
	ValidateCreate(fields Fields) error

	// ValidateFieldWrite validates writing value to key on the given record.
	ValidateFieldWrite(recordID, key string, value Value) error

	// ValidateFieldDelete validates deleting key from the given record.
	ValidateFieldDelete(recordID, key string) error
}

// ConstraintDecoder rebuilds a constraint of a custom kind from its snapshot.
type ConstraintDecoder func(snap ConstraintSnapshot) (Constraint, error)

var constraintDecoders = map[string]ConstraintDecoder{}

// RegisterConstraintKind registers a decoder for a custom constraint kind so
// Restore can rebuild it. Packages providing custom constraints should call
// this during init(). The built-in kinds need no registration.
func RegisterConstraintKind(kind string, dec ConstraintDecoder) {
	constraintDecoders[kind] = dec
}

// base carries the identity and collection back-reference shared by the
// built-in kinds.
type base struct {
	id   string
	key  string
	coll *Collection
}

func (b *base) ID() string         { return b.id }
func (b *base) Key() string        { return b.key }
func (b *base) Bind(c *Collection) { b.coll = c }

// requiredConstraint rejects documents missing its key and any delete of it.
type requiredConstraint struct {
	base
}

// Required returns a constraint that makes key mandatory: documents cannot be
// created without it and the field can never be deleted.
func Required(key string) Constraint {
	return &requiredConstraint{base{id: docid.New(), key: key}}
}

func (r *requiredConstraint) Kind() string { return KindRequired }

func (r *requiredConstraint) ValidateCreate(fields Fields) error {
	if _, ok := fields[r.key]; !ok {
		return &ConstraintError{Kind: KindRequired, Key: r.key}
	}
	return nil
}

func (r *requiredConstraint) ValidateFieldWrite(recordID, key string, value Value) error {
	return nil
}

func (r *requiredConstraint) ValidateFieldDelete(recordID, key string) error {
	if key != r.key {
		return nil
	}
	return &ConstraintError{Kind: KindRequired, Key: r.key}
}

// uniqueConstraint rejects a value already held by another document in the
// merged view.
type uniqueConstraint struct {
	base
}

// Unique returns a constraint that forbids two documents in the collection
// from holding the same value for key.
func Unique(key string) Constraint {
	return &uniqueConstraint{base{id: docid.New(), key: key}}
}

func (u *uniqueConstraint) Kind() string { return KindUnique }

func (u *uniqueConstraint) ValidateCreate(fields Fields) error {
	candidate, ok := fields[u.key]
	if !ok {
		return nil
	}
	return u.checkTaken(candidate, "")
}

func (u *uniqueConstraint) ValidateFieldWrite(recordID, key string, value Value) error {
	if key != u.key {
		return nil
	}
	return u.checkTaken(value, recordID)
}

func (u *uniqueConstraint) ValidateFieldDelete(recordID, key string) error {
	return nil
}

// checkTaken scans the merged view for another document holding value.
// excludeID skips the record being modified; empty for document creation.
func (u *uniqueConstraint) checkTaken(value Value, excludeID string) error {
	if u.coll == nil {
		return nil
	}
	for _, rec := range u.coll.Documents() {
		if rec.ID() == excludeID {
			continue
		}
		if held, ok := rec.Field(u.key); ok && held.Equal(value) {
			return &ConstraintError{Kind: KindUnique, Key: u.key}
		}
	}
	return nil
}

// defaultConstraint injects a value for its key when absent. It never fails.
type defaultConstraint struct {
	base
	value Value
}

// Default returns a constraint that fills in value for key on documents
// created without it. Constraints run in registration order, so a Default
// registered before a Required or From on the same key satisfies them.
func Default(key string, value Value) Constraint {
	return &defaultConstraint{base: base{id: docid.New(), key: key}, value: value}
}

func (d *defaultConstraint) Kind() string { return KindDefault }

func (d *defaultConstraint) ValidateCreate(fields Fields) error {
	if _, ok := fields[d.key]; !ok {
		fields[d.key] = d.value
	}
	return nil
}

func (d *defaultConstraint) ValidateFieldWrite(recordID, key string, value Value) error {
	return nil
}

func (d *defaultConstraint) ValidateFieldDelete(recordID, key string) error {
	return nil
}

// fromConstraint restricts its key to a fixed set of allowed values.
type fromConstraint struct {
	base
	allowed []Value
}

// From returns a constraint that only admits the given values for key.
// An absent key passes; combine with Required to also forbid absence.
func From(key string, allowed ...Value) Constraint {
	return &fromConstraint{base: base{id: docid.New(), key: key}, allowed: allowed}
}

func (f *fromConstraint) Kind() string { return KindFrom }

func (f *fromConstraint) ValidateCreate(fields Fields) error {
	candidate, ok := fields[f.key]
	if !ok {
		return nil
	}
	return f.checkMember(candidate)
}

func (f *fromConstraint) ValidateFieldWrite(recordID, key string, value Value) error {
	if key != f.key {
		return nil
	}
	return f.checkMember(value)
}

func (f *fromConstraint) ValidateFieldDelete(recordID, key string) error {
	return nil
}

func (f *fromConstraint) checkMember(value Value) error {
	for _, a := range f.allowed {
		if a.Equal(value) {
			return nil
		}
	}
	return &ConstraintError{Kind: KindFrom, Key: f.key}
}
