package property

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the declared type of a property value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindBool
	KindInt
	KindLong
	KindFloat
	KindDouble
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	default:
		return "invalid"
	}
}

// ParseKind maps a kind name (as returned by Kind.String) back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "string":
		return KindString, nil
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer":
		return KindInt, nil
	case "long":
		return KindLong, nil
	case "float":
		return KindFloat, nil
	case "double":
		return KindDouble, nil
	}
	return KindInvalid, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Value is an immutable named scalar. Replacing a property means storing a
// new Value under the same name.
type Value struct {
	name  string
	kind  Kind
	raw   any
	extra []byte
}

// String returns a string-typed value.
func String(name, v string) Value { return Value{name: name, kind: KindString, raw: v} }

// Bool returns a bool-typed value.
func Bool(name string, v bool) Value { return Value{name: name, kind: KindBool, raw: v} }

// Int returns an int-typed value.
func Int(name string, v int) Value { return Value{name: name, kind: KindInt, raw: v} }

// Long returns a long-typed value.
func Long(name string, v int64) Value { return Value{name: name, kind: KindLong, raw: v} }

// Float returns a float-typed value.
func Float(name string, v float32) Value { return Value{name: name, kind: KindFloat, raw: v} }

// Double returns a double-typed value.
func Double(name string, v float64) Value { return Value{name: name, kind: KindDouble, raw: v} }

// New builds a value of the given kind from an arbitrary Go value. The input is
// converted through its string form, so the conversion is lossy (3.7 -> int 0
// fails to parse and yields an error, "1" -> bool true).
func New(name string, kind Kind, v any) (Value, error) {
	src := fmt.Sprint(v)
	switch t := v.(type) {
	case Value:
		src = t.String()
	case float32:
		src = strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		src = strconv.FormatFloat(t, 'f', -1, 64)
	}
	return parse(name, kind, src)
}

func parse(name string, kind Kind, s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch kind {
	case KindString:
		return String(name, s), nil
	case KindBool:
		switch strings.ToLower(s) {
		case "true", "1", "on", "yes":
			return Bool(name, true), nil
		case "false", "0", "off", "no", "":
			return Bool(name, false), nil
		}
	case KindInt:
		if n, err := strconv.ParseInt(s, 0, 32); err == nil {
			return Int(name, int(n)), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
			return Int(name, int(f)), nil
		}
	case KindLong:
		if n, err := strconv.ParseInt(s, 0, 64); err == nil {
			return Long(name, n), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return Long(name, int64(f)), nil
		}
	case KindFloat:
		if f, err := strconv.ParseFloat(s, 32); err == nil {
			return Float(name, float32(f)), nil
		}
	case KindDouble:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Double(name, f), nil
		}
	default:
		return Value{}, fmt.Errorf("%w: %d", ErrInvalidKind, kind)
	}
	return Value{}, fmt.Errorf("%w: %q is not a valid %s", ErrConversion, s, kind)
}

// Name returns the property name.
func (v Value) Name() string { return v.name }

// Kind returns the declared type.
func (v Value) Kind() Kind { return v.kind }

// Raw returns the underlying Go value (string, bool, int, int64, float32 or float64).
func (v Value) Raw() any { return v.raw }

// IsValid reports whether v was constructed with a name and a kind.
func (v Value) IsValid() bool { return v.name != "" && v.kind != KindInvalid }

// Extra returns a copy of the opaque extra data payload.
func (v Value) Extra() []byte {
	if v.extra == nil {
		return nil
	}
	return bytes.Clone(v.extra)
}

// WithExtra returns a copy of v carrying the given extra data.
func (v Value) WithExtra(extra []byte) Value {
	v.extra = bytes.Clone(extra)
	return v
}

// Equal compares name and value. Extra data is not part of equality.
func (v Value) Equal(o Value) bool {
	return v.name == o.name && v.kind == o.kind && v.raw == o.raw
}

// Convert returns v converted to kind through its string form. Values that
// cannot be represented convert to the zero value of the target kind.
func (v Value) Convert(kind Kind) Value {
	if kind == v.kind {
		return v
	}
	out, err := parse(v.name, kind, v.String())
	if err != nil {
		out, _ = parse(v.name, kind, zeroLiteral(kind))
	}
	out.extra = v.extra
	return out
}

func zeroLiteral(kind Kind) string {
	switch kind {
	case KindString:
		return ""
	case KindBool:
		return "false"
	default:
		return "0"
	}
}

// String renders the value.
func (v Value) String() string {
	switch t := v.raw.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// AsBool returns the value as a bool.
func (v Value) AsBool() bool { return v.Convert(KindBool).raw == true }

// AsInt returns the value as an int.
func (v Value) AsInt() int {
	if n, ok := v.Convert(KindInt).raw.(int); ok {
		return n
	}
	return 0
}

// AsLong returns the value as an int64.
func (v Value) AsLong() int64 {
	if n, ok := v.Convert(KindLong).raw.(int64); ok {
		return n
	}
	return 0
}

// AsFloat returns the value as a float32.
func (v Value) AsFloat() float32 {
	if f, ok := v.Convert(KindFloat).raw.(float32); ok {
		return f
	}
	return 0
}

// AsDouble returns the value as a float64.
func (v Value) AsDouble() float64 {
	if f, ok := v.Convert(KindDouble).raw.(float64); ok {
		return f
	}
	return 0
}
