// Package record holds the in-memory form of stored records: a sealed
// variant type for JSON values, its canonical encoding, the content
// fingerprint derived from it, and the identity-aware merge used by partial
// updates.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Value is sealed: only Null, Bool, Number, String, Array and Object
// implement it.
type Value interface {
	value()
}

type Null struct{}

type Bool bool

// Number keeps the decimal text it was decoded from. Canonical encoding
// normalises it, so 1, 1.0 and 1e0 fingerprint identically.
type Number string

type String string

type Array []Value

type Object map[string]Value

func (Null) value()   {}
func (Bool) value()   {}
func (Number) value() {}
func (String) value() {}
func (Array) value()  {}
func (Object) value() {}

// IDField is the identity key shared by records and their sub-entities.
const IDField = "objectId"

func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

func Float(f float64) Number {
	return Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// ID returns the objectId of an Object, or "" when v is not an Object or the
// field is missing or not a non-empty string.
func ID(v Value) string {
	obj, ok := v.(Object)
	if !ok {
		return ""
	}
	s, ok := obj[IDField].(String)
	if !ok {
		return ""
	}
	return string(s)
}

func (o Object) String(key string) string {
	s, _ := o[key].(String)
	return string(s)
}

// Clone returns a deep copy, so callers can hand values across goroutines
// without sharing maps or slices.
func Clone(v Value) Value {
	switch t := v.(type) {
	case Array:
		out := make(Array, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case Object:
		out := make(Object, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case nil:
		return Null{}
	default:
		return t
	}
}

var ErrTrailingData = errors.New("record: trailing data after JSON value")

// Parse decodes a single JSON document. Numbers keep their source text.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("record: decode: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	return FromAny(raw)
}

// ParseObject is Parse restricted to JSON objects.
func ParseObject(data []byte) (Object, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("record: expected a JSON object, got %s", KindOf(v))
	}
	return obj, nil
}

// FromAny converts the output of encoding/json (decoded with or without
// UseNumber) into a Value.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t.String()), nil
	case float64:
		return Float(t), nil
	case int:
		return Number(strconv.Itoa(t)), nil
	case int64:
		return Number(strconv.FormatInt(t, 10)), nil
	case []any:
		out := make(Array, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	default:
		return nil, fmt.Errorf("record: unsupported type %T", v)
	}
}

// Decode copies v into a typed destination through its canonical JSON.
func Decode(v Value, dst any) error {
	raw, err := MarshalCanonical(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func KindOf(v Value) string {
	switch v.(type) {
	case Null, nil:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func (Null) MarshalJSON() ([]byte, error)     { return []byte("null"), nil }
func (b Bool) MarshalJSON() ([]byte, error)   { return MarshalCanonical(b) }
func (n Number) MarshalJSON() ([]byte, error) { return MarshalCanonical(n) }
func (s String) MarshalJSON() ([]byte, error) { return MarshalCanonical(s) }
func (a Array) MarshalJSON() ([]byte, error)  { return MarshalCanonical(a) }
func (o Object) MarshalJSON() ([]byte, error) { return MarshalCanonical(o) }

func (o *Object) UnmarshalJSON(data []byte) error {
	obj, err := ParseObject(data)
	if err != nil {
		return err
	}
	*o = obj
	return nil
}
