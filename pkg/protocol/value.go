package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind identifies which member of the Value variant is set.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUint
	KindFloat
	KindBool
	KindString
	KindJSON
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindJSON:
		return "json"
	default:
		return "invalid"
	}
}

// Value is a closed tagged variant holding one field value.
// The zero Value is invalid and is rejected by every serializer.
type Value struct {
	kind Kind
	u    uint64
	f    float64
	s    string // also holds the raw JSON text for KindJSON
}

// UintValue returns an unsigned integer value.
func UintValue(v uint64) Value { return Value{kind: KindUint, u: v} }

// FloatValue returns a floating point value.
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// BoolValue returns a boolean value.
func BoolValue(v bool) Value {
	if v {
		return Value{kind: KindBool, u: 1}
	}
	return Value{kind: KindBool}
}

// StringValue returns a string value.
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

// JSONValue returns a value holding already encoded JSON text.
func JSONValue(raw json.RawMessage) Value { return Value{kind: KindJSON, s: string(raw)} }

// MarshalJSON encodes v with encoding/json and wraps the result as a JSON value.
func MarshalJSON(v any) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return JSONValue(raw), nil
}

// Kind reports the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a value.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Uint64 returns the unsigned integer held by v.
func (v Value) Uint64() uint64 { return v.u }

// Float64 returns the float held by v.
func (v Value) Float64() float64 { return v.f }

// Bool returns the boolean held by v.
func (v Value) Bool() bool { return v.u != 0 }

// Str returns the string held by v, or the raw JSON text for JSON values.
func (v Value) Str() string { return v.s }

// RawJSON returns the JSON text held by v.
func (v Value) RawJSON() json.RawMessage { return json.RawMessage(v.s) }

// UnmarshalJSONTo decodes a JSON value into dst.
func (v Value) UnmarshalJSONTo(dst any) error {
	if v.kind != KindJSON {
		return ErrKindMismatch
	}
	if err := json.Unmarshal([]byte(v.s), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

// Any returns v as a plain Go value (uint64, float64, bool, string or
// json.RawMessage). Used when rendering decoded units as JSON.
func (v Value) Any() any {
	switch v.kind {
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindBool:
		return v.Bool()
	case KindString:
		return v.s
	case KindJSON:
		return json.RawMessage(v.s)
	default:
		return nil
	}
}

// Equal reports whether v and o hold the same kind and value.
// NaN floats compare equal to each other.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat:
		if math.IsNaN(v.f) && math.IsNaN(o.f) {
			return true
		}
		return v.f == o.f
	case KindString, KindJSON:
		return v.s == o.s
	default:
		return v.u == o.u
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case KindUint:
		return fmt.Sprintf("%d", v.u)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindJSON:
		return v.s
	default:
		return "<invalid>"
	}
}

// Record is one packet's field values keyed by field name.
type Record map[string]Value

// Uint64 returns the named field as an unsigned integer.
func (r Record) Uint64(name string) uint64 { return r[name].Uint64() }

// Float64 returns the named field as a float.
func (r Record) Float64(name string) float64 { return r[name].Float64() }

// Bool returns the named field as a boolean.
func (r Record) Bool(name string) bool { return r[name].Bool() }

// Str returns the named field as a string.
func (r Record) Str(name string) string { return r[name].Str() }

// Equal reports whether r and o hold the same fields with equal values.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Plain converts the record to a map of plain Go values.
func (r Record) Plain() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Any()
	}
	return out
}
