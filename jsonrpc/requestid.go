package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// RequestID represents a JSON-RPC ID that can be either a string or an integer.
type RequestID struct {
	value any
}

// NewRequestID creates a RequestID from a string or an integer that fits in
// an int64. Any other value panics: an id without a value encodes as null and
// could never be correlated. Use ParseRequestID for values of unknown type.
func NewRequestID(value any) *RequestID {
	id, ok := ParseRequestID(value)
	if !ok {
		panic(fmt.Sprintf("jsonrpc: unsupported request id %v (%T)", value, value))
	}
	return id
}

// ParseRequestID is like NewRequestID but reports unsupported values, such
// as floats, nil or unsigned integers above math.MaxInt64, instead of
// panicking.
func ParseRequestID(value any) (*RequestID, bool) {
	switch v := value.(type) {
	case string:
		return &RequestID{value: v}, true
	case int:
		return &RequestID{value: int64(v)}, true
	case int8:
		return &RequestID{value: int64(v)}, true
	case int16:
		return &RequestID{value: int64(v)}, true
	case int32:
		return &RequestID{value: int64(v)}, true
	case int64:
		return &RequestID{value: v}, true
	case uint8:
		return &RequestID{value: int64(v)}, true
	case uint16:
		return &RequestID{value: int64(v)}, true
	case uint32:
		return &RequestID{value: int64(v)}, true
	case uint:
		return fromUnsigned(uint64(v))
	case uint64:
		return fromUnsigned(v)
	default:
		return nil, false
	}
}

func fromUnsigned(v uint64) (*RequestID, bool) {
	if v > math.MaxInt64 {
		return nil, false
	}
	return &RequestID{value: int64(v)}, true
}

// String returns the string representation of the ID.
func (id *RequestID) String() string {
	if id == nil || id.value == nil {
		return ""
	}

	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		panic("unreachable: RequestID contains unsupported type")
	}
}

// Key returns a correlation key that keeps numeric and string IDs with the
// same text distinct ("n:1" vs "s:1").
func (id *RequestID) Key() string {
	if id == nil || id.value == nil {
		return ""
	}
	if _, ok := id.value.(string); ok {
		return "s:" + id.String()
	}
	return "n:" + id.String()
}

// Value returns the underlying value: a string, an int64 or nil.
func (id *RequestID) Value() any {
	return id.value
}

// IsNil returns true if the ID is nil/empty.
func (id *RequestID) IsNil() bool {
	if id == nil {
		return true
	}

	return id.value == nil
}

// Equal reports whether two IDs carry the same type and value.
func (id *RequestID) Equal(other *RequestID) bool {
	if id.IsNil() || other.IsNil() {
		return id.IsNil() && other.IsNil()
	}
	return id.value == other.value
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler. Integers are kept exact; strings
// are kept verbatim. Fractional numbers and any other JSON type are rejected.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		id.value = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("JSON-RPC ID must be a string or integer, got: %s", string(data))
		}
		id.value = str
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("JSON-RPC ID must be a string or integer, got: %s", string(data))
	}
	id.value = n
	return nil
}
