package store

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// --------------------------------------------------------------------------
// Data Types
// --------------------------------------------------------------------------

// DataType is the advisory type tag carried by every value. It is validated
// when a value is constructed at the boundary, never inferred afterwards.
type DataType string

const (
	TypeString DataType = "string" // UTF-8 text
	TypeNumber DataType = "number" // decimal floating point number
	TypeJSON   DataType = "json"   // arbitrary JSON document
	TypeList   DataType = "list"   // JSON array
)

// Valid reports whether the tag is one of the known data types.
func (t DataType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeJSON, TypeList:
		return true
	}
	return false
}

// --------------------------------------------------------------------------
// Value
// --------------------------------------------------------------------------

// Value is the tagged union stored for every key: a type tag plus the
// canonical byte encoding of the payload (raw text for strings, a decimal
// literal for numbers, the document itself for json and list).
type Value struct {
	Kind DataType
	Raw  []byte
}

// NewStringValue wraps plain text.
func NewStringValue(s string) Value {
	return Value{Kind: TypeString, Raw: []byte(s)}
}

// NewNumberValue wraps a number. The canonical encoding is the shortest
// decimal representation that round-trips.
func NewNumberValue(f float64) Value {
	return Value{Kind: TypeNumber, Raw: []byte(strconv.FormatFloat(f, 'g', -1, 64))}
}

// NewJSONValue wraps a JSON document after validating it.
func NewJSONValue(raw []byte) (Value, error) {
	if !json.Valid(raw) {
		return Value{}, NewError(RetCInvalidKey, "value is not valid JSON")
	}
	return Value{Kind: TypeJSON, Raw: append([]byte(nil), raw...)}, nil
}

// NewListValue wraps a JSON array after validating it.
func NewListValue(raw []byte) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) || len(trimmed) == 0 || trimmed[0] != '[' {
		return Value{}, NewError(RetCInvalidKey, "value is not a JSON array")
	}
	return Value{Kind: TypeList, Raw: append([]byte(nil), trimmed...)}, nil
}

// ParseLiteral builds a value from a textual representation and a type tag,
// e.g. from shell input. The text is validated against the tag.
func ParseLiteral(dataType, text string) (Value, error) {
	switch DataType(dataType) {
	case TypeString:
		return NewStringValue(text), nil
	case TypeNumber:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, Errorf(RetCInvalidKey, "value %q is not a number", text)
		}
		return NewNumberValue(f), nil
	case TypeJSON:
		return NewJSONValue([]byte(text))
	case TypeList:
		return NewListValue([]byte(text))
	default:
		return Value{}, Errorf(RetCInvalidKey, "unknown data type %q", dataType)
	}
}

// FromJSON builds a value from a decoded JSON payload and a type tag, e.g.
// from an API request body. For the string tag the payload must be a JSON
// string, for the number tag a JSON number.
func FromJSON(dataType string, raw json.RawMessage) (Value, error) {
	switch DataType(dataType) {
	case TypeString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, NewError(RetCInvalidKey, "value is not a JSON string")
		}
		return NewStringValue(s), nil
	case TypeNumber:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Value{}, NewError(RetCInvalidKey, "value is not a JSON number")
		}
		return NewNumberValue(f), nil
	case TypeJSON:
		return NewJSONValue(raw)
	case TypeList:
		return NewListValue(raw)
	default:
		return Value{}, Errorf(RetCInvalidKey, "unknown data type %q", dataType)
	}
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Text returns the payload as text. For strings this is the stored text,
// for every other kind the canonical encoding.
func (v Value) Text() string {
	return string(v.Raw)
}

// Number converts the payload to a float64. Only valid for number values.
func (v Value) Number() (float64, error) {
	if v.Kind != TypeNumber {
		return 0, Errorf(RetCInvalidKey, "value is of type %s, not number", v.Kind)
	}
	return strconv.ParseFloat(string(v.Raw), 64)
}

// Size returns the payload size in bytes.
func (v Value) Size() int {
	return len(v.Raw)
}

// IsZero reports whether the value is the uninitialized zero value.
func (v Value) IsZero() bool {
	return v.Kind == "" && v.Raw == nil
}

// Equal compares type tag and payload.
func (v Value) Equal(other Value) bool {
	return v.Kind == other.Kind && bytes.Equal(v.Raw, other.Raw)
}

// Clone returns a copy with its own payload buffer.
func (v Value) Clone() Value {
	if v.Raw == nil {
		return Value{Kind: v.Kind}
	}
	return Value{Kind: v.Kind, Raw: append([]byte(nil), v.Raw...)}
}

// MarshalJSON renders the value as its native JSON form: strings as JSON
// strings, numbers as JSON numbers, json and list payloads verbatim.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case TypeString:
		return json.Marshal(string(v.Raw))
	case TypeNumber, TypeJSON, TypeList:
		if len(v.Raw) == 0 {
			return []byte("null"), nil
		}
		return append([]byte(nil), v.Raw...), nil
	default:
		return []byte("null"), nil
	}
}
