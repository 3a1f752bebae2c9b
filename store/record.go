package store

// Record is an identity-bearing mapping of fields owned by a Collection.
//
// A Record holds a non-owning back-reference to its Collection so that field
// reads can honor the collection's open transaction. The back-reference is
// re-established by Restore after a snapshot load.
type Record struct {
	id     string
	fields Fields
	coll   *Collection
}

// ID returns the record's opaque unique identifier.
func (r *Record) ID() string { return r.id }

// Fields returns the record's fields as seen through the merged view: the
// committed fields with the owning collection's staged changes applied.
// The returned map is a copy; mutating it does not stage anything.
func (r *Record) Fields() Fields {
	if r.coll == nil {
		return r.fields.Clone()
	}
	return r.coll.mergedFields(r)
}

// Field returns the merged value for key and whether it is present.
func (r *Record) Field(key string) (Value, bool) {
	v, ok := r.Fields()[key]
	return v, ok
}

// Collection returns the owning collection, or nil for an unbound record.
func (r *Record) Collection() *Collection { return r.coll }

func (r *Record) bind(c *Collection) { r.coll = c }
