package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the structured payload tree carried by
// node content, node metadata and proposal payloads.
// Only Null, Bool, Int, Float, String, Array and Object implement it.
type Value interface {
	value()
}

// Null is the JSON null value.
type Null struct{}

func (Null) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Int is an integral number. Integers decoded from JSON stay Int so that
// ids and counters above 2^53 survive a round trip.
type Int int64

func (Int) value() {}

// Float is a non-integral number. NaN and infinities are rejected at
// every encoding boundary.
type Float float64

func (Float) value() {}

// String is a string value.
type String string

func (String) value() {}

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

// Object is a keyed map of values. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns keys in UTF-16 code unit order, the ordering used by
// the canonical encoding.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// Get returns the value stored under key, or nil.
func (o Object) Get(key string) Value {
	if o == nil {
		return nil
	}
	return o[key]
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Parse decodes JSON text into a Value. Numbers without a fraction or
// exponent that fit in int64 become Int; all others become Float.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("parse value: trailing data after JSON value")
	}
	return FromAny(raw)
}

// ParseObject decodes JSON text that must be an object.
func ParseObject(data []byte) (Object, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("parse value: expected JSON object, got %s", KindOf(v))
	}
	return obj, nil
}

// FromAny converts decoded JSON or YAML data (maps, slices, scalars) into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return Float(val), nil
		}
		return Int(val), nil
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case json.Number:
		s := string(val)
		if !strings.ContainsAny(s, ".eE") {
			if n, err := val.Int64(); err == nil {
				return Int(n), nil
			}
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", s)
		}
		return fromFloat(f)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			item, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = item
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			item, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = item
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v: keys must be strings", k)
			}
			item, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", key, err)
			}
			obj[key] = item
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return Float(f), nil
}

// ToAny converts a Value into plain Go data suitable for json, yaml or
// text rendering.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// KindOf names the dynamic type of v for error messages.
func KindOf(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case Bool:
		return "bool"
	case Int, Float:
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

// Equal reports whether a and b encode to the same canonical JSON.
// Int(1) and Float(1) are equal.
func Equal(a, b Value) bool {
	ab, errA := MarshalCanonical(a)
	bb, errB := MarshalCanonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// MarshalJSON encodes the object canonically.
func (o Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(o)
}

// UnmarshalJSON decodes a JSON object, keeping integers exact.
func (o *Object) UnmarshalJSON(data []byte) error {
	obj, err := ParseObject(data)
	if err != nil {
		return err
	}
	*o = obj
	return nil
}

// MarshalJSON encodes the array canonically.
func (a Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(a)
}

// MarshalJSON encodes null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON encodes the float canonically.
func (f Float) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(f)
}

// MarshalYAML renders the object as plain maps so yaml.v3 emits a mapping.
func (o Object) MarshalYAML() (any, error) {
	return ToAny(o), nil
}

// MarshalYAML renders the array as plain data.
func (a Array) MarshalYAML() (any, error) {
	return ToAny(a), nil
}

// MarshalYAML renders null.
func (Null) MarshalYAML() (any, error) {
	return nil, nil
}
