package record

import (
	"strconv"

	"github.com/mrzor/atop-lifetimes/internal/schema"
)

// Value is one decoded field. The zero Value is an absent field.
type Value struct {
	typ   schema.ValueType
	num   int64
	str   string
	valid bool
}

// Int builds an integer value.
func Int(n int64) Value { return Value{typ: schema.TypeInt, num: n, valid: true} }

// String builds a free-form string value.
func String(s string) Value { return Value{typ: schema.TypeString, str: s, valid: true} }

// Category builds a category value (state flags and similar enumerations).
func Category(s string) Value { return Value{typ: schema.TypeCategory, str: s, valid: true} }

// Type returns the value's declared type.
func (v Value) Type() schema.ValueType { return v.typ }

// Valid reports whether the value was set.
func (v Value) Valid() bool { return v.valid }

// Int64 returns the integer payload; ok is false for non-integer or absent values.
func (v Value) Int64() (n int64, ok bool) {
	if !v.valid || v.typ != schema.TypeInt {
		return 0, false
	}
	return v.num, true
}

// Str returns the string payload of a string or category value.
func (v Value) Str() (s string, ok bool) {
	if !v.valid || v.typ == schema.TypeInt {
		return "", false
	}
	return v.str, true
}

func (v Value) String() string {
	if !v.valid {
		return ""
	}
	if v.typ == schema.TypeInt {
		return strconv.FormatInt(v.num, 10)
	}
	return v.str
}
