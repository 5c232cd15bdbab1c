package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a sealed interface over the data types a token may carry.
// Only Int, Float, Bool and Text implement it. A nil Value means "no token".
type Value interface {
	value() // Sealed - only these types implement it
	String() string
}

// Int is a 64-bit signed integer token.
type Int int64

func (Int) value() {}

func (v Int) String() string { return strconv.FormatInt(int64(v), 10) }

// Float is a 64-bit floating point token.
type Float float64

func (Float) value() {}

func (v Float) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

// Bool is a boolean token. Arithmetic treats it as 1 or 0.
type Bool bool

func (Bool) value() {}

func (v Bool) String() string { return strconv.FormatBool(bool(v)) }

// Text is a string token.
type Text string

func (Text) value() {}

func (v Text) String() string { return string(v) }

// Truthy reports how a Value behaves as a decider or validity flag.
// Bool is itself, numbers are true when non-zero, Text when non-empty.
// A nil Value is false.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case Bool:
		return bool(val)
	case Int:
		return val != 0
	case Float:
		return val != 0
	case Text:
		return val != ""
	default:
		return false
	}
}

// Numeric coerces v for arithmetic. Bool becomes Int; Int and Float pass
// through. Text and nil report false.
func Numeric(v Value) (Value, bool) {
	switch val := v.(type) {
	case Bool:
		if val {
			return Int(1), true
		}
		return Int(0), true
	case Int, Float:
		return val, true
	default:
		return nil, false
	}
}

// AsInt coerces v to an integer for addressing and bitwise operations.
// Floats are truncated toward zero; non-finite floats are rejected.
func AsInt(v Value) (int64, bool) {
	n, ok := Numeric(v)
	if !ok {
		return 0, false
	}
	switch val := n.(type) {
	case Int:
		return int64(val), true
	case Float:
		f := float64(val)
		if !IsFinite(f) {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

// Equal reports whether two Values have the same shape and content.
// Two nil Values are equal.
func Equal(a, b Value) bool {
	return a == b
}

// IsFinite reports whether f can be carried as a Float token. NaN and the
// infinities are rejected everywhere a Float is made.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ParseLiteral interprets s the way command-line bindings are written:
// integer, then float, then true/false, otherwise text.
func ParseLiteral(s string) Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "xXpP_") && IsFinite(f) {
		return Float(f)
	}
	switch s {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	return Text(s)
}

// FromNative converts a decoded YAML/JSON scalar into a Value.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a token value")
	case Value:
		return val, nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return Int(int64(val)), nil
	case float64:
		if !IsFinite(val) {
			return nil, fmt.Errorf("non-finite float %v is not a token value", val)
		}
		return Float(val), nil
	case float32:
		if !IsFinite(float64(val)) {
			return nil, fmt.Errorf("non-finite float %v is not a token value", val)
		}
		return Float(val), nil
	case bool:
		return Bool(val), nil
	case string:
		return Text(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil || !IsFinite(f) {
			return nil, fmt.Errorf("invalid number %q", val)
		}
		return Float(f), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// TypeName returns the tag used for v in JSON and diagnostics.
func TypeName(v Value) string {
	switch v.(type) {
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Text:
		return "text"
	default:
		return "none"
	}
}

// MarshalValue encodes v as a single-key tagged object, e.g. {"int":5}.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Int:
		return json.Marshal(map[string]int64{"int": int64(val)})
	case Float:
		f := float64(val)
		if !IsFinite(f) {
			return nil, fmt.Errorf("non-finite float cannot be encoded: %v", f)
		}
		return json.Marshal(map[string]float64{"float": f})
	case Bool:
		return json.Marshal(map[string]bool{"bool": bool(val)})
	case Text:
		return json.Marshal(map[string]string{"text": string(val)})
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalValue decodes the tagged form written by MarshalValue.
// JSON null decodes to a nil Value.
func UnmarshalValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	if bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("value must be a tagged object: %w", err)
	}
	if len(raw) != 1 {
		return nil, fmt.Errorf("value must have exactly one tag, got %d", len(raw))
	}

	for tag, body := range raw {
		switch tag {
		case "int":
			var n int64
			if err := json.Unmarshal(body, &n); err != nil {
				return nil, fmt.Errorf("int: %w", err)
			}
			return Int(n), nil
		case "float":
			var f float64
			if err := json.Unmarshal(body, &f); err != nil {
				return nil, fmt.Errorf("float: %w", err)
			}
			return Float(f), nil
		case "bool":
			var b bool
			if err := json.Unmarshal(body, &b); err != nil {
				return nil, fmt.Errorf("bool: %w", err)
			}
			return Bool(b), nil
		case "text":
			var s string
			if err := json.Unmarshal(body, &s); err != nil {
				return nil, fmt.Errorf("text: %w", err)
			}
			return Text(s), nil
		default:
			return nil, fmt.Errorf("unknown value tag %q", tag)
		}
	}
	return nil, nil
}

// valueDoc is the canonical document form of a Value.
func valueDoc(v Value) (map[string]any, error) {
	switch val := v.(type) {
	case Int:
		return map[string]any{"int": int64(val)}, nil
	case Float:
		return map[string]any{"float": float64(val)}, nil
	case Bool:
		return map[string]any{"bool": bool(val)}, nil
	case Text:
		return map[string]any{"text": string(val)}, nil
	default:
		return nil, fmt.Errorf("unsupported Value for canonical form: %T", v)
	}
}
