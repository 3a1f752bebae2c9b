// Package expr provides a CEL-backed document constraint.
//
// A Check constraint compiles a Common Expression Language predicate over a
// document's fields and rejects any create or field change whose resulting
// merged document does not satisfy it:
//
//	con, err := expr.NewCheck("age", "doc.age >= 18.0")
//	coll.AddConstraints(con)
//
// The expression sees the candidate document as a map named "doc" and must
// evaluate to a boolean.
package expr

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"

	"github.com/jacentio/lattice/internal/docid"
	"github.com/jacentio/lattice/store"
)

// KindCheck is the snapshot kind tag for Check constraints.
const KindCheck = "check"

func init() {
	store.RegisterConstraintKind(KindCheck, func(snap store.ConstraintSnapshot) (store.Constraint, error) {
		c, err := NewCheck(snap.Key, snap.Expr)
		if err != nil {
			return nil, err
		}
		c.id = snap.ID
		return c, nil
	})
}

// Check is a custom constraint validating documents against a CEL predicate.
// It implements store.Constraint and survives snapshot/restore cycles.
type Check struct {
	id         string
	key        string
	expression string
	program    cel.Program
	coll       *store.Collection
}

// NewCheck compiles expression into a constraint governing key. The
// expression is evaluated against a "doc" map variable and must yield a bool.
func NewCheck(key, expression string) (*Check, error) {
	if key == "" {
		return nil, fmt.Errorf("expr: key can't be empty")
	}
	if expression == "" {
		return nil, fmt.Errorf("expr: expression can't be empty")
	}

	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.AnyType)),
	)
	if err != nil {
		return nil, fmt.Errorf("expr: creating CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("expr: compiling %q: %w", expression, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("expr: building program: %w", err)
	}

	return &Check{
		id:         docid.New(),
		key:        key,
		expression: expression,
		program:    program,
	}, nil
}

// ID returns the constraint's identifier.
func (c *Check) ID() string { return c.id }

// Kind returns KindCheck.
func (c *Check) Kind() string { return KindCheck }

// Key returns the governed field key.
func (c *Check) Key() string { return c.key }

// Expression returns the CEL source the constraint was compiled from.
func (c *Check) Expression() string { return c.expression }

// Bind attaches the owning collection for merged-view lookups.
func (c *Check) Bind(coll *store.Collection) { c.coll = coll }

// ValidateCreate evaluates the predicate against the candidate fields.
func (c *Check) ValidateCreate(fields store.Fields) error {
	return c.eval(fields.Interface())
}

// ValidateFieldWrite evaluates the predicate against the record's merged
// fields with the staged write applied. Keys other than the governed one pass.
func (c *Check) ValidateFieldWrite(recordID, key string, value store.Value) error {
	if key != c.key || c.coll == nil {
		return nil
	}
	rec, err := c.coll.Get(recordID)
	if err != nil {
		return err
	}
	doc := rec.Fields().Interface()
	doc[key] = value.Interface()
	return c.eval(doc)
}

// ValidateFieldDelete evaluates the predicate against the record's merged
// fields with the governed key removed.
func (c *Check) ValidateFieldDelete(recordID, key string) error {
	if key != c.key || c.coll == nil {
		return nil
	}
	rec, err := c.coll.Get(recordID)
	if err != nil {
		return err
	}
	doc := rec.Fields().Interface()
	delete(doc, key)
	return c.eval(doc)
}

// Snapshot captures the constraint for persistence.
func (c *Check) Snapshot() store.ConstraintSnapshot {
	return store.ConstraintSnapshot{
		ID:   c.id,
		Kind: KindCheck,
		Key:  c.key,
		Expr: c.expression,
	}
}

func (c *Check) eval(doc map[string]any) error {
	out, _, err := c.program.Eval(map[string]any{"doc": doc})
	if err != nil {
		return fmt.Errorf("expr: evaluating %q: %w", c.expression, err)
	}
	nv, err := out.ConvertToNative(reflect.TypeOf(true))
	if err != nil {
		return fmt.Errorf("expr: %q did not yield a bool: %w", c.expression, err)
	}
	if ok, _ := nv.(bool); !ok {
		return &store.ConstraintError{Kind: KindCheck, Key: c.key}
	}
	return nil
}
