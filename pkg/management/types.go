// Package management models requests and responses of the WildFly/JBoss
// management protocol: an operation name, an address made of ordered path
// elements and a flat set of typed parameters.
package management

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Operation represents a management operation name.
type Operation string

const (
	// OperationAdd creates a resource
	OperationAdd Operation = "add"
	// OperationRemove removes a resource
	OperationRemove Operation = "remove"
	// OperationEnable enables a resource
	OperationEnable Operation = "enable"
	// OperationDisable disables a resource
	OperationDisable Operation = "disable"
	// OperationReadResource reads a resource and its children names
	OperationReadResource Operation = "read-resource"
	// OperationReadAttribute reads a single attribute
	OperationReadAttribute Operation = "read-attribute"
)

// Validate checks if the operation is one of the supported operations.
func (o Operation) Validate() error {
	switch o {
	case OperationAdd, OperationRemove, OperationEnable, OperationDisable,
		OperationReadResource, OperationReadAttribute:
		return nil
	default:
		return fmt.Errorf("invalid operation: %q", o)
	}
}

// Mutating reports whether the operation changes the server model.
func (o Operation) Mutating() bool {
	switch o {
	case OperationAdd, OperationRemove, OperationEnable, OperationDisable:
		return true
	default:
		return false
	}
}

// Outcome values reported by the management endpoint.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Reserved request keys that cannot be used as parameter names.
const (
	KeyOperation          = "operation"
	KeyAddress            = "address"
	KeyOutcome            = "outcome"
	KeyResult             = "result"
	KeyFailureDescription = "failure-description"
	KeyRolledBack         = "rolled-back"
)

// PathElement is one (key, value) segment of a resource address.
type PathElement struct {
	Key   string
	Value string
}

// MarshalJSON encodes the element as a single-key object, e.g. {"subsystem":"datasources"}.
func (p PathElement) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{p.Key: p.Value})
}

// UnmarshalJSON decodes a single-key object into the element.
func (p *PathElement) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode path element: %w", err)
	}
	if len(m) != 1 {
		return fmt.Errorf("path element must have exactly one key, got %d", len(m))
	}
	for k, v := range m {
		p.Key = k
		p.Value = v
	}
	return nil
}

// Address is an ordered resource path.
type Address []PathElement

// Append returns a copy of the address with one more element.
func (a Address) Append(key, value string) Address {
	out := make(Address, len(a), len(a)+1)
	copy(out, a)
	return append(out, PathElement{Key: key, Value: value})
}

// Get returns the value of the first element with the given key.
func (a Address) Get(key string) (string, bool) {
	for _, p := range a {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// String renders the address in CLI notation, e.g. /profile=full/subsystem=datasources.
func (a Address) String() string {
	if len(a) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, p := range a {
		b.WriteByte('/')
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	return b.String()
}

// Validate checks that every element has a non-empty key and value.
func (a Address) Validate() error {
	for i, p := range a {
		if p.Key == "" {
			return fmt.Errorf("address element %d has an empty key", i)
		}
		if p.Value == "" {
			return fmt.Errorf("address element %d (%s) has an empty value", i, p.Key)
		}
	}
	return nil
}

// ValueType identifies the type carried by a Value.
type ValueType string

const (
	// TypeString is a string value
	TypeString ValueType = "STRING"
	// TypeBoolean is a boolean value
	TypeBoolean ValueType = "BOOLEAN"
	// TypeInt is a 32-bit integer value
	TypeInt ValueType = "INT"
	// TypeLong is a 64-bit integer value
	TypeLong ValueType = "LONG"
)

// Value is a typed request parameter value.
type Value struct {
	typ ValueType
	s   string
	b   bool
	n   int64
}

// StringValue creates a string value.
func StringValue(s string) Value { return Value{typ: TypeString, s: s} }

// BoolValue creates a boolean value.
func BoolValue(b bool) Value { return Value{typ: TypeBoolean, b: b} }

// IntValue creates an int value.
func IntValue(n int32) Value { return Value{typ: TypeInt, n: int64(n)} }

// LongValue creates a long value.
func LongValue(n int64) Value { return Value{typ: TypeLong, n: n} }

// Type returns the value type.
func (v Value) Type() ValueType { return v.typ }

// AsString returns the string form of the value.
func (v Value) AsString() string {
	switch v.typ {
	case TypeString:
		return v.s
	case TypeBoolean:
		if v.b {
			return "true"
		}
		return "false"
	case TypeInt, TypeLong:
		return fmt.Sprintf("%d", v.n)
	default:
		return ""
	}
}

// AsBool returns the boolean payload. It is false for non-boolean values.
func (v Value) AsBool() bool { return v.typ == TypeBoolean && v.b }

// AsInt64 returns the numeric payload. It is zero for non-numeric values.
func (v Value) AsInt64() int64 {
	if v.typ == TypeInt || v.typ == TypeLong {
		return v.n
	}
	return 0
}

// Validate checks that the value has a known type.
func (v Value) Validate() error {
	switch v.typ {
	case TypeString, TypeBoolean, TypeInt, TypeLong:
		return nil
	default:
		return fmt.Errorf("invalid value type: %q", v.typ)
	}
}

// MarshalJSON encodes the value as its JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case TypeString:
		return json.Marshal(v.s)
	case TypeBoolean:
		return json.Marshal(v.b)
	case TypeInt, TypeLong:
		return json.Marshal(v.n)
	default:
		return nil, fmt.Errorf("cannot encode value of type %q", v.typ)
	}
}

// Request is a single management operation addressed to a resource.
type Request struct {
	Operation Operation
	Address   Address
	Params    map[string]Value
}

// NewRequest creates a request for the given operation and address.
func NewRequest(op Operation, addr Address) *Request {
	return &Request{
		Operation: op,
		Address:   addr,
		Params:    make(map[string]Value),
	}
}

// Set adds or replaces a parameter.
func (r *Request) Set(name string, v Value) *Request {
	if r.Params == nil {
		r.Params = make(map[string]Value)
	}
	r.Params[name] = v
	return r
}

// Param returns a parameter by name.
func (r *Request) Param(name string) (Value, bool) {
	v, ok := r.Params[name]
	return v, ok
}

// ParamNames returns the parameter names in sorted order.
func (r *Request) ParamNames() []string {
	names := make([]string, 0, len(r.Params))
	for name := range r.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks if the request is well formed.
func (r *Request) Validate() error {
	if err := r.Operation.Validate(); err != nil {
		return err
	}
	if err := r.Address.Validate(); err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	for name, v := range r.Params {
		if name == "" {
			return fmt.Errorf("parameter name is required")
		}
		if name == KeyOperation || name == KeyAddress {
			return fmt.Errorf("parameter name %q is reserved", name)
		}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}
	}
	return nil
}

// Response is the structured result of a management operation.
type Response struct {
	// Defined is false when the endpoint returned no model node at all.
	Defined            bool
	Outcome            string
	Result             json.RawMessage
	FailureDescription string
	// RolledBack is nil when the response carries no rollback indicator.
	RolledBack *bool
}

// Succeeded reports whether the outcome is success.
func (r *Response) Succeeded() bool {
	return r.Defined && r.Outcome == OutcomeSuccess
}

// HasResult reports whether the response carries a non-null result.
func (r *Response) HasResult() bool {
	trimmed := strings.TrimSpace(string(r.Result))
	return trimmed != "" && trimmed != "null"
}

// BoolResult interprets the result payload as a boolean.
func (r *Response) BoolResult() (bool, error) {
	if !r.HasResult() {
		return false, fmt.Errorf("response has no result")
	}
	var b bool
	if err := json.Unmarshal(r.Result, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		switch strings.ToLower(s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("result is not a boolean: %s", string(r.Result))
}

// ChildNames returns the sorted names of the child resources stored under key
// in the result payload. A missing or null collection yields an empty slice.
func (r *Response) ChildNames(key string) ([]string, error) {
	if !r.HasResult() {
		return []string{}, nil
	}
	var result map[string]json.RawMessage
	if err := json.Unmarshal(r.Result, &result); err != nil {
		return nil, fmt.Errorf("result is not an object: %w", err)
	}
	raw, ok := result[key]
	if !ok || strings.TrimSpace(string(raw)) == "null" {
		return []string{}, nil
	}
	var children map[string]json.RawMessage
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, fmt.Errorf("%s is not an object: %w", key, err)
	}
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
