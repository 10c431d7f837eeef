package bridge

import (
	"encoding/json"
	"fmt"
)

// Value is the result of a script evaluation
type Value struct {
	v       interface{}
	defined bool
}

// NewValue wraps a decoded JSON value
func NewValue(v interface{}) Value {
	return Value{v: v, defined: true}
}

// Undefined is the value of a script that returned nothing
func Undefined() Value {
	return Value{}
}

// ParseValue decodes raw JSON into a Value, treating empty input as undefined
func ParseValue(raw []byte) (Value, error) {
	if len(raw) == 0 {
		return Undefined(), nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return Value{}, fmt.Errorf("decode evaluation result: %w", err)
	}
	return NewValue(v), nil
}

// Defined reports whether the script produced a value
func (v Value) Defined() bool { return v.defined }

// Interface returns the decoded JSON value
func (v Value) Interface() interface{} { return v.v }

// Str returns the value as a string when it is one
func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Bool returns the value as a bool, false for anything else
func (v Value) Bool() bool {
	b, _ := v.v.(bool)
	return b
}

// Text renders the value for recording as a text result
func (v Value) Text() string {
	switch x := v.v.(type) {
	case nil:
		if !v.defined {
			return "undefined"
		}
		return "null"
	case string:
		return x
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(raw)
	}
}
