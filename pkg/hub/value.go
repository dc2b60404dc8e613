package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type valueKind uint8

const (
	kindNone valueKind = iota
	kindString
	kindNumber
)

// Value is an attribute value reported by an agent: either a string or a
// number. Any other JSON kind is rejected when decoding.
type Value struct {
	kind valueKind
	str  string
	num  float64
}

func StringValue(s string) Value  { return Value{kind: kindString, str: s} }
func NumberValue(n float64) Value { return Value{kind: kindNumber, num: n} }

func (v Value) IsZero() bool   { return v.kind == kindNone }
func (v Value) IsString() bool { return v.kind == kindString }
func (v Value) IsNumber() bool { return v.kind == kindNumber }

// Number returns the numeric payload and whether v holds a number.
func (v Value) Number() (float64, bool) {
	return v.num, v.kind == kindNumber
}

// String renders the value for display. Numbers use the shortest exact form,
// so 50 renders as "50" rather than "50.000000".
func (v Value) String() string {
	switch v.kind {
	case kindString:
		return v.str
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindString:
		return json.Marshal(v.str)
	case kindNumber:
		return json.Marshal(v.num)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value", ErrInvalidArgument)
	}
	if bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		*v = StringValue(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		*v = NumberValue(n)
		return nil
	}
	return fmt.Errorf("%w: value must be a string or number, got %s", ErrInvalidArgument, abbreviate(data))
}

// Attributes is the free-form metadata bag of an agent.
type Attributes map[string]Value

// Merge copies every key of src into a, overwriting existing keys.
func (a Attributes) Merge(src Attributes) {
	for k, v := range src {
		a[k] = v
	}
}

// Get returns the rendered value for key, or placeholder when absent.
func (a Attributes) Get(key, placeholder string) string {
	if v, ok := a[key]; ok && !v.IsZero() {
		return v.String()
	}
	return placeholder
}

func (a Attributes) clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func abbreviate(data []byte) string {
	const limit = 32
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
