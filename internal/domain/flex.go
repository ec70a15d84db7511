package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexValue holds a JSON scalar that upstream feeds send either as a string
// or as a number (ids, prices, stock counts). Null, objects and arrays decode
// to an unset value instead of failing the whole record.
type FlexValue struct {
	raw string
	set bool
}

// NewFlexValue creates a set FlexValue from its textual form
func NewFlexValue(s string) FlexValue {
	return FlexValue{raw: s, set: true}
}

// FlexNumber creates a set FlexValue from a number
func FlexNumber(f float64) FlexValue {
	return FlexValue{raw: strconv.FormatFloat(f, 'f', -1, 64), set: true}
}

// IsSet reports whether the field was present and non-null
func (v FlexValue) IsSet() bool {
	return v.set
}

// IsZero lets `omitzero` drop unset values when encoding
func (v FlexValue) IsZero() bool {
	return !v.set
}

// String returns the trimmed textual form, "" when unset
func (v FlexValue) String() string {
	if !v.set {
		return ""
	}
	return strings.TrimSpace(v.raw)
}

// UnmarshalJSON accepts strings, numbers and booleans
func (v *FlexValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = FlexValue{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = FlexValue{raw: s, set: true}
	case '{', '[':
		*v = FlexValue{}
	default:
		*v = FlexValue{raw: string(trimmed), set: true}
	}
	return nil
}

// MarshalJSON emits a bare number when the value is numeric, a string otherwise
func (v FlexValue) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	s := v.String()
	if isJSONNumber(s) {
		return []byte(s), nil
	}
	return json.Marshal(v.raw)
}

// ProductID is a stable product identifier. Upstream ids may be numeric or
// textual; numeric ids are encoded as JSON numbers to keep clients that
// compare them numerically working.
type ProductID string

// MarshalJSON encodes digit-only ids as numbers
func (id ProductID) MarshalJSON() ([]byte, error) {
	if isDigits(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts either a JSON number or a string
func (id *ProductID) UnmarshalJSON(data []byte) error {
	var flex FlexValue
	if err := flex.UnmarshalJSON(data); err != nil {
		return err
	}
	*id = ProductID(flex.String())
	return nil
}

// String returns the id as text
func (id ProductID) String() string {
	return string(id)
}

func isDigits(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return false
	}
	return json.Valid([]byte(s))
}
