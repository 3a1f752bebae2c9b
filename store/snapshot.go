package store

import "fmt"

// Snapshot is a read-only capture of a store's committed state, consumed by
// the persistence backends under persist/. Snapshots cannot be taken while any
// collection has an open transaction: the caller must resolve it first.
type Snapshot struct {
	Collections []CollectionSnapshot `json:"collections"`
}

// CollectionSnapshot captures one collection's committed records and
// constraints.
type CollectionSnapshot struct {
	Name        string               `json:"name"`
	Records     []RecordSnapshot     `json:"records"`
	Constraints []ConstraintSnapshot `json:"constraints,omitempty"`
}

// RecordSnapshot captures one committed record.
type RecordSnapshot struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// ConstraintSnapshot captures one constraint in a kind-tagged form. Default,
// Allowed and Expr are kind-specific; unused parameters stay empty.
type ConstraintSnapshot struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	Key     string  `json:"key"`
	Default *Value  `json:"default,omitempty"`
	Allowed []Value `json:"allowed,omitempty"`
	Expr    string  `json:"expr,omitempty"`
}

// ConstraintSnapshotter is implemented by constraints that can be captured in
// a snapshot. The built-in kinds all implement it; custom kinds must implement
// it (and register a decoder) to survive a snapshot/restore cycle.
type ConstraintSnapshotter interface {
	Snapshot() ConstraintSnapshot
}

// Snapshot captures the store's committed records and constraints. It fails
// with ErrUnresolvedTransaction if any collection has an open transaction, and
// with a plain error if a constraint cannot be captured.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{}
	for _, coll := range s.Collections() {
		cs, err := coll.snapshot()
		if err != nil {
			return nil, err
		}
		snap.Collections = append(snap.Collections, cs)
	}
	return snap, nil
}

func (c *Collection) snapshot() (CollectionSnapshot, error) {
	if c.txn != nil {
		return CollectionSnapshot{}, ErrUnresolvedTransaction
	}
	cs := CollectionSnapshot{Name: c.name}
	for _, id := range c.order {
		rec := c.records[id]
		cs.Records = append(cs.Records, RecordSnapshot{
			ID:     rec.id,
			Fields: rec.fields.Clone(),
		})
	}
	for _, con := range c.constraints {
		snapper, ok := con.(ConstraintSnapshotter)
		if !ok {
			return CollectionSnapshot{}, fmt.Errorf(
				"lattice: constraint kind %q on collection %q is not snapshottable", con.Kind(), c.name)
		}
		cs.Constraints = append(cs.Constraints, snapper.Snapshot())
	}
	return cs, nil
}

// Snapshot captures the constraint's kind, key and identity.
func (r *requiredConstraint) Snapshot() ConstraintSnapshot {
	return ConstraintSnapshot{ID: r.id, Kind: KindRequired, Key: r.key}
}

func (u *uniqueConstraint) Snapshot() ConstraintSnapshot {
	return ConstraintSnapshot{ID: u.id, Kind: KindUnique, Key: u.key}
}

func (d *defaultConstraint) Snapshot() ConstraintSnapshot {
	v := d.value
	return ConstraintSnapshot{ID: d.id, Kind: KindDefault, Key: d.key, Default: &v}
}

func (f *fromConstraint) Snapshot() ConstraintSnapshot {
	return ConstraintSnapshot{ID: f.id, Kind: KindFrom, Key: f.key, Allowed: f.allowed}
}

// Restore rebuilds a Store from a snapshot, re-binding every record's and
// constraint's back-reference to its owning collection. Collections declared
// in cfg are ignored; the snapshot is authoritative. Malformed state fails
// with ErrInvalidSnapshot.
func Restore(cfg Config, snap *Snapshot) (*Store, error) {
	cfg.validate()
	s := &Store{
		cfg:         cfg,
		collections: make(map[string]*Collection),
	}
	for _, cs := range snap.Collections {
		if cs.Name == "" {
			return nil, fmt.Errorf("%w: collection with empty name", ErrInvalidSnapshot)
		}
		if _, ok := s.collections[cs.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate collection %q", ErrInvalidSnapshot, cs.Name)
		}
		coll := newCollection(cs.Name, cfg)
		for _, rs := range cs.Records {
			if rs.ID == "" {
				return nil, fmt.Errorf("%w: record with empty id in %q", ErrInvalidSnapshot, cs.Name)
			}
			if _, ok := coll.records[rs.ID]; ok {
				return nil, fmt.Errorf("%w: duplicate record id %q in %q", ErrInvalidSnapshot, rs.ID, cs.Name)
			}
			fields := rs.Fields
			if fields == nil {
				fields = Fields{}
			}
			coll.insert(&Record{id: rs.ID, fields: fields})
		}
		for _, conSnap := range cs.Constraints {
			con, err := restoreConstraint(conSnap)
			if err != nil {
				return nil, fmt.Errorf("%w: collection %q: %v", ErrInvalidSnapshot, cs.Name, err)
			}
			coll.AddConstraints(con)
		}
		s.collections[cs.Name] = coll
		s.order = append(s.order, cs.Name)
	}
	return s, nil
}

func restoreConstraint(cs ConstraintSnapshot) (Constraint, error) {
	if cs.ID == "" || cs.Key == "" {
		return nil, fmt.Errorf("constraint %q missing id or key", cs.Kind)
	}
	switch cs.Kind {
	case KindRequired:
		return &requiredConstraint{base{id: cs.ID, key: cs.Key}}, nil
	case KindUnique:
		return &uniqueConstraint{base{id: cs.ID, key: cs.Key}}, nil
	case KindDefault:
		if cs.Default == nil {
			return nil, fmt.Errorf("default constraint on %q has no value", cs.Key)
		}
		return &defaultConstraint{base: base{id: cs.ID, key: cs.Key}, value: *cs.Default}, nil
	case KindFrom:
		return &fromConstraint{base: base{id: cs.ID, key: cs.Key}, allowed: cs.Allowed}, nil
	}
	if dec, ok := constraintDecoders[cs.Kind]; ok {
		return dec(cs)
	}
	return nil, fmt.Errorf("unknown constraint kind %q", cs.Kind)
}
