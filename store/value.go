package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ValueKind discriminates the variants of a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// Value is a dynamically-typed field value: a tagged variant over
// string, number, bool, null, list and object. Comparisons are
// well-defined without reflection.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []Value
	obj  map[string]Value
}

// NullValue returns the null Value. The zero Value is also null.
func NullValue() Value { return Value{kind: KindNull} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue returns a numeric Value.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// ListValue returns a list Value holding the given items.
func ListValue(items ...Value) Value { return Value{kind: KindList, list: items} }

// ObjectValue returns an object Value holding the given entries.
func ObjectValue(entries map[string]Value) Value { return Value{kind: KindObject, obj: entries} }

// ValueOf converts a native Go value to a Value. Supported inputs are nil,
// string, bool, the common numeric types, Value itself, []any and
// map[string]any (recursively).
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return x, nil
	case string:
		return StringValue(x), nil
	case bool:
		return BoolValue(x), nil
	case float64:
		return NumberValue(x), nil
	case float32:
		return NumberValue(float64(x)), nil
	case int:
		return NumberValue(float64(x)), nil
	case int32:
		return NumberValue(float64(x)), nil
	case int64:
		return NumberValue(float64(x)), nil
	case uint:
		return NumberValue(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("lattice: convert number %q: %w", x, err)
		}
		return NumberValue(f), nil
	case []any:
		items := make([]Value, 0, len(x))
		for _, e := range x {
			ev, err := ValueOf(e)
			if err != nil {
				return Value{}, err
			}
			items = append(items, ev)
		}
		return ListValue(items...), nil
	case map[string]any:
		entries := make(map[string]Value, len(x))
		for k, e := range x {
			ev, err := ValueOf(e)
			if err != nil {
				return Value{}, err
			}
			entries[k] = ev
		}
		return ObjectValue(entries), nil
	}
	return Value{}, fmt.Errorf("lattice: unsupported value type %T", v)
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload; zero value for other kinds.
func (v Value) Str() string { return v.str }

// Num returns the numeric payload; zero value for other kinds.
func (v Value) Num() float64 { return v.num }

// Bool returns the boolean payload; zero value for other kinds.
func (v Value) Bool() bool { return v.b }

// Items returns the list payload; nil for other kinds.
func (v Value) Items() []Value { return v.list }

// Entries returns the object payload; nil for other kinds.
func (v Value) Entries() map[string]Value { return v.obj }

// Equal reports deep equality of two values. Values of different kinds are
// never equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, e := range v.obj {
			oe, ok := o.obj[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface returns the value as a native Go value (nil, string, float64,
// bool, []any or map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		items := make([]any, len(v.list))
		for i, e := range v.list {
			items[i] = e.Interface()
		}
		return items
	case KindObject:
		entries := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			entries[k] = e.Interface()
		}
		return entries
	}
	return nil
}

// String renders the value for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList, KindObject:
		raw, err := v.MarshalJSON()
		if err != nil {
			return "<invalid>"
		}
		return string(raw)
	}
	return "null"
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON value into the matching variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Fields is a document's mapping of string keys to values.
type Fields map[string]Value

// Clone returns a shallow copy of the mapping. Value payloads are immutable
// by convention, so sharing them is safe.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Interface returns the fields as a map of native Go values.
func (f Fields) Interface() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = v.Interface()
	}
	return out
}

// Keys returns the field keys in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
