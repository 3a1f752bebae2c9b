package store

import (
	"github.com/jacentio/lattice/internal/docid"
)

// Collection is a named set of committed records plus the constraints that
// govern them. It is the sole entry point for document operations: each
// mutating call is either applied to committed storage directly or deflected
// into the collection's open transaction, and every read goes through the
// merged view.
//
// A collection has at most one open transaction at a time. Collections are not
// safe for concurrent use; the design assumes a single logical writer.
type Collection struct {
	name        string
	cfg         Config
	records     map[string]*Record
	order       []string
	constraints []Constraint
	txn         *Txn
}

func newCollection(name string, cfg Config) *Collection {
	return &Collection{
		name:    name,
		cfg:     cfg,
		records: make(map[string]*Record),
	}
}

// Name returns the collection's name, unique within its Store.
func (c *Collection) Name() string { return c.name }

// Begin opens a new transaction. It fails with ErrUnresolvedTransaction while
// another transaction is open on this collection.
func (c *Collection) Begin() (*Txn, error) {
	if c.txn != nil {
		return nil, ErrUnresolvedTransaction
	}
	c.txn = newTxn(c)
	c.cfg.Logger.Debug("transaction opened", "txn", c.txn.id, "collection", c.name)
	return c.txn, nil
}

// InTxn reports whether a transaction is currently open.
func (c *Collection) InTxn() bool { return c.txn != nil }

// requireTxn enforces the transactions-required policy for mutating calls.
func (c *Collection) requireTxn() error {
	if c.cfg.TransactionsRequired && c.txn == nil {
		return ErrTransactionRequired
	}
	return nil
}

// Create validates fields against every constraint (in registration order,
// each seeing the fields as left by the previous, so defaults injected early
// are visible to later rules), assigns a fresh id, and either stages the new
// document in the open transaction or inserts it directly. The given fields
// map may be amended in place by Default constraints; the stored document owns
// its own copy.
func (c *Collection) Create(fields Fields) (*Record, error) {
	if err := c.requireTxn(); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = Fields{}
	}
	for _, con := range c.constraints {
		if err := con.ValidateCreate(fields); err != nil {
			return nil, err
		}
	}
	rec := &Record{
		id:     docid.New(),
		fields: fields.Clone(),
		coll:   c,
	}
	if c.txn != nil {
		c.txn.stageDoc(rec, ActionWrite)
	} else {
		c.insert(rec)
	}
	return rec, nil
}

// Delete removes the document with the given id, looked up through the merged
// view so a document staged for addition in the open transaction can itself be
// deleted. The removal is staged when a transaction is open and applied
// directly otherwise.
func (c *Collection) Delete(id string) error {
	if err := c.requireTxn(); err != nil {
		return err
	}
	rec, ok := c.lookup(id)
	if !ok {
		return ErrNotFound
	}
	if c.txn != nil {
		c.txn.stageDoc(rec, ActionDelete)
	} else {
		c.remove(id)
	}
	return nil
}

// Get returns the document with the given id as seen through the merged view.
func (c *Collection) Get(id string) (*Record, error) {
	rec, ok := c.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Documents returns the merged document view: committed records minus those
// staged for deletion, plus those staged for addition, in that order.
func (c *Collection) Documents() []*Record {
	committed := make([]*Record, 0, len(c.order))
	for _, id := range c.order {
		committed = append(committed, c.records[id])
	}
	if c.txn == nil {
		return committed
	}
	deleted := make(map[string]bool)
	for _, rec := range c.txn.StagedDocuments(ActionDelete) {
		deleted[rec.ID()] = true
	}
	var out []*Record
	for _, rec := range committed {
		if !deleted[rec.ID()] {
			out = append(out, rec)
		}
	}
	for _, rec := range c.txn.StagedDocuments(ActionWrite) {
		if !deleted[rec.ID()] {
			out = append(out, rec)
		}
	}
	return out
}

// SetField writes value to key on the identified document. The write is
// validated by every constraint against the merged view, then staged in the
// open transaction or applied directly to the committed record.
func (c *Collection) SetField(id, key string, value Value) error {
	if err := c.requireTxn(); err != nil {
		return err
	}
	rec, ok := c.lookup(id)
	if !ok {
		return ErrNotFound
	}
	for _, con := range c.constraints {
		if err := con.ValidateFieldWrite(id, key, value); err != nil {
			return err
		}
	}
	if c.txn != nil {
		c.txn.stageField(id, key, value, ActionWrite)
	} else {
		rec.fields[key] = value
	}
	return nil
}

// DeleteField removes key from the identified document, subject to the same
// routing and validation as SetField.
func (c *Collection) DeleteField(id, key string) error {
	if err := c.requireTxn(); err != nil {
		return err
	}
	rec, ok := c.lookup(id)
	if !ok {
		return ErrNotFound
	}
	for _, con := range c.constraints {
		if err := con.ValidateFieldDelete(id, key); err != nil {
			return err
		}
	}
	if c.txn != nil {
		c.txn.stageField(id, key, NullValue(), ActionDelete)
	} else {
		delete(rec.fields, key)
	}
	return nil
}

// Truncate removes every document in the current merged view: staged as
// deletions when a transaction is open, or by clearing committed storage.
func (c *Collection) Truncate() error {
	if err := c.requireTxn(); err != nil {
		return err
	}
	if c.txn != nil {
		for _, rec := range c.Documents() {
			c.txn.stageDoc(rec, ActionDelete)
		}
		return nil
	}
	c.records = make(map[string]*Record)
	c.order = nil
	return nil
}

// AddConstraints attaches the given constraints to the collection, binding
// each back to it for merged-view lookups during validation.
func (c *Collection) AddConstraints(cons ...Constraint) {
	for _, con := range cons {
		con.Bind(c)
		c.constraints = append(c.constraints, con)
	}
}

// DropConstraint detaches the constraint with the given id.
func (c *Collection) DropConstraint(id string) error {
	for i, con := range c.constraints {
		if con.ID() == id {
			c.constraints = append(c.constraints[:i], c.constraints[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Constraints returns the attached constraints in registration order.
func (c *Collection) Constraints() []Constraint {
	out := make([]Constraint, len(c.constraints))
	copy(out, c.constraints)
	return out
}

// lookup finds a document by id through the merged view.
func (c *Collection) lookup(id string) (*Record, bool) {
	if c.txn != nil {
		for _, rec := range c.txn.StagedDocuments(ActionDelete) {
			if rec.ID() == id {
				return nil, false
			}
		}
	}
	if rec, ok := c.records[id]; ok {
		return rec, true
	}
	if c.txn != nil {
		for _, rec := range c.txn.StagedDocuments(ActionWrite) {
			if rec.ID() == id {
				return rec, true
			}
		}
	}
	return nil, false
}

// mergedFields computes a record's field view: committed fields not touched by
// the open transaction pass through, fields staged for deletion are absent,
// and fields staged for writing show their newest staged value.
func (c *Collection) mergedFields(r *Record) Fields {
	if c.txn == nil {
		return r.fields.Clone()
	}
	writes, deletes := c.txn.stagedFieldView(r.id)
	out := make(Fields, len(r.fields)+len(writes))
	for k, v := range r.fields {
		// A field is carried over only when this transaction neither deleted
		// nor rewrote it; staged writes re-add their key below.
		if deletes[k] {
			continue
		}
		if _, staged := writes[k]; staged {
			continue
		}
		out[k] = v
	}
	for k, v := range writes {
		out[k] = v
	}
	return out
}

// insert adds a record to committed storage, keeping insertion order.
func (c *Collection) insert(rec *Record) {
	rec.coll = c
	c.records[rec.id] = rec
	c.order = append(c.order, rec.id)
}

// remove drops a record from committed storage.
func (c *Collection) remove(id string) {
	if _, ok := c.records[id]; !ok {
		return
	}
	delete(c.records, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// apply folds a committed transaction into committed storage: staged document
// removals first, then staged additions, then the surviving records' staged
// field changes, looked up by id against the updated committed set.
func (c *Collection) apply(t *Txn) {
	deleted := make(map[string]bool)
	for _, rec := range t.StagedDocuments(ActionDelete) {
		deleted[rec.ID()] = true
		c.remove(rec.ID())
	}
	for _, rec := range t.StagedDocuments(ActionWrite) {
		// A document staged for addition and later deleted in the same
		// transaction never reaches committed storage.
		if !deleted[rec.ID()] {
			c.insert(rec)
		}
	}
	for _, fc := range t.StagedFieldChanges(ActionWrite) {
		if rec, ok := c.records[fc.RecordID]; ok {
			rec.fields[fc.Key] = fc.Value
		}
	}
	for _, fc := range t.StagedFieldChanges(ActionDelete) {
		if rec, ok := c.records[fc.RecordID]; ok {
			delete(rec.fields, fc.Key)
		}
	}
}
