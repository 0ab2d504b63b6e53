// Package renderer renders campaign and automation email templates:
// Liquid variable substitution, tracked-link rewriting, open-pixel
// injection, and plain-text fallback derivation.
package renderer

import (
	"strconv"
	"strings"
)

// Kind identifies which alternative of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindObject
)

// Value is a sum type over the JSON-ish shapes a template rendering
// context can hold. Both pkg/renderer and the automation condition
// evaluator walk it through LookupPath, so a contact field and an
// automation trigger payload are addressed the same way.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	Str    string
	List   []Value
	Object map[string]Value
}

// Null is the zero Value.
var Null = Value{Kind: KindNull}

// FromAny converts an arbitrary Go value (as produced by encoding/json or
// domain.MapOfAny) into a Value.
func FromAny(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case Value:
		return x
	case bool:
		return Value{Kind: KindBool, Bool: x}
	case int:
		return Value{Kind: KindInt, Int: int64(x)}
	case int64:
		return Value{Kind: KindInt, Int: x}
	case float64:
		if x == float64(int64(x)) {
			return Value{Kind: KindInt, Int: int64(x)}
		}
		return Value{Kind: KindFloat, Float: x}
	case float32:
		return FromAny(float64(x))
	case string:
		return Value{Kind: KindString, Str: x}
	case []interface{}:
		list := make([]Value, len(x))
		for i, item := range x {
			list[i] = FromAny(item)
		}
		return Value{Kind: KindList, List: list}
	case []string:
		list := make([]Value, len(x))
		for i, item := range x {
			list[i] = Value{Kind: KindString, Str: item}
		}
		return Value{Kind: KindList, List: list}
	case map[string]interface{}:
		obj := make(map[string]Value, len(x))
		for k, item := range x {
			obj[k] = FromAny(item)
		}
		return Value{Kind: KindObject, Object: obj}
	default:
		return Null
	}
}

// LookupPath walks a dotted path ("contact.custom_fields.plan") through
// nested objects, returning (Null, false) as soon as a segment is absent
// or the current value isn't an object.
func LookupPath(root Value, path string) (Value, bool) {
	if path == "" {
		return root, true
	}
	cur := root
	for _, segment := range strings.Split(path, ".") {
		if cur.Kind != KindObject {
			return Null, false
		}
		next, ok := cur.Object[segment]
		if !ok {
			return Null, false
		}
		cur = next
	}
	return cur, true
}

// IsSet reports whether the value is present and not an empty/zero value
// of its kind — the semantics the automation engine's is_set/is_not_set
// operators rely on.
func (v Value) IsSet() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindString:
		return v.Str != ""
	case KindList:
		return len(v.List) > 0
	case KindObject:
		return len(v.Object) > 0
	default:
		return true
	}
}

// String renders the value the way it would appear substituted into a
// template: a best-effort scalar text form, empty for Null/List/Object.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindInt:
		return itoa(v.Int)
	case KindFloat:
		return ftoa(v.Float)
	case KindString:
		return v.Str
	default:
		return ""
	}
}

// Interface converts a Value back to a plain Go value suitable as a
// Liquid template binding.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindList:
		out := make([]interface{}, len(v.List))
		for i, item := range v.List {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.Object))
		for k, item := range v.Object {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
