// Package geo models classification features: loosely typed property bags,
// polygonal geometry, normalisation of upstream geometry and feature identity.
package geo

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind is the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	// KindRaw holds a nested object or array passed through untouched.
	KindRaw
)

// Value is a single property value. The zero Value is null.
// Numbers keep their literal text so identifiers such as 42 and 42.0 stay distinct.
type Value struct {
	text string
	raw  json.RawMessage
	kind Kind
	b    bool
}

// Null returns the absent value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Int returns an integral number value.
func Int(n int) Value { return Value{kind: KindNumber, text: strconv.Itoa(n)} }

// Float returns a number value. Non-finite numbers are not representable in JSON and become null.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: KindNumber, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is absent.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsEmpty reports whether v is absent or an empty string.
func (v Value) IsEmpty() bool {
	return v.kind == KindNull || (v.kind == KindString && v.text == "")
}

// Truthy mirrors the usual "has a meaningful value" check: null, "", 0 and false are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindString:
		return v.text != ""
	case KindNumber:
		f, ok := v.Float()
		return ok && f != 0
	case KindBool:
		return v.b
	case KindRaw:
		t := string(bytes.TrimSpace(v.raw))
		return t != "[]" && t != "{}"
	default:
		return false
	}
}

// String renders v as text: the string itself, the number literal, true/false,
// or the raw JSON. Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindRaw:
		return string(v.raw)
	default:
		return ""
	}
}

// Float returns the numeric value of a number.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int returns the value of an integral number, or of a string holding an integer.
func (v Value) Int() (int, bool) {
	switch v.kind {
	case KindNumber:
		if n, err := strconv.Atoi(v.text); err == nil {
			return n, true
		}
		f, ok := v.Float()
		if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, false
		}
		return int(f), true
	case KindString:
		n, err := strconv.Atoi(strings.TrimSpace(v.text))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Equal reports whether both values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindRaw:
		return bytes.Equal(v.raw, o.raw)
	default:
		return v.text == o.text
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.text)
	case KindNumber:
		return []byte(v.text), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindRaw:
		return v.raw, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return err
	}

	switch x := decoded.(type) {
	case nil:
		*v = Value{}
	case string:
		*v = String(x)
	case bool:
		*v = Bool(x)
	case json.Number:
		*v = Value{kind: KindNumber, text: x.String()}
	default:
		*v = Value{kind: KindRaw, raw: append(json.RawMessage(nil), bytes.TrimSpace(data)...)}
	}
	return nil
}
