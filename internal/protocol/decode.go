package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var nullLiteral = []byte("null")

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), nullLiteral)
}

// Object wraps the raw key set of a decoded JSON object. Field accessors
// record failures into the shared Violations list under the object's path, so
// a single pass over a payload enumerates every broken field.
type Object struct {
	path   string
	fields map[string]json.RawMessage
	v      *Violations
}

// DecodeObject parses data as a JSON object rooted at path. A non-object
// payload records a violation and returns ok=false.
func DecodeObject(data []byte, path string, v *Violations) (Object, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		v.Add(path, "must be a JSON object")
		return Object{}, false
	}
	return Object{path: path, fields: fields, v: v}, true
}

// Path returns the object's path prefix.
func (o Object) Path() string {
	return o.path
}

// Violations exposes the shared accumulator for caller-specific checks.
func (o Object) Violations() *Violations {
	return o.v
}

// Key joins the object's path with a field name.
func (o Object) Key(name string) string {
	if o.path == "" {
		return name
	}
	return o.path + "." + name
}

// Has reports whether the key is present, even as an explicit null.
func (o Object) Has(name string) bool {
	_, ok := o.fields[name]
	return ok
}

// Raw returns the raw value for name. Explicit null is treated like an
// absent key, matching how optional protocol fields tolerate null.
func (o Object) Raw(name string) (json.RawMessage, bool) {
	raw, ok := o.fields[name]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

// Nullable returns the raw value keeping explicit null distinct from absent:
// present=true with null=true means the key was serialized as null.
func (o Object) Nullable(name string) (raw json.RawMessage, present, null bool) {
	raw, ok := o.fields[name]
	if !ok {
		return nil, false, false
	}
	return raw, true, isNull(raw)
}

// Rest returns every present field not named in known. These are the
// tolerated unknown fields; they never reach the billing projection.
func (o Object) Rest(known ...string) map[string]json.RawMessage {
	knownSet := make(map[string]struct{}, len(known))
	for _, k := range known {
		knownSet[k] = struct{}{}
	}
	var rest map[string]json.RawMessage
	for k, raw := range o.fields {
		if _, ok := knownSet[k]; ok {
			continue
		}
		if rest == nil {
			rest = make(map[string]json.RawMessage)
		}
		rest[k] = raw
	}
	return rest
}

// String decodes a required string field.
func (o Object) String(name string) (string, bool) {
	raw, ok := o.Raw(name)
	if !ok {
		o.v.Add(o.Key(name), "required")
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		o.v.Add(o.Key(name), "must be a string")
		return "", false
	}
	return s, true
}

// OptString decodes an optional string field, nil when absent or null.
func (o Object) OptString(name string) *string {
	raw, ok := o.Raw(name)
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		o.v.Add(o.Key(name), "must be a string")
		return nil
	}
	return &s
}

// OptBool decodes an optional boolean field.
func (o Object) OptBool(name string) *bool {
	raw, ok := o.Raw(name)
	if !ok {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		o.v.Add(o.Key(name), "must be a boolean")
		return nil
	}
	return &b
}

// Int decodes a required exact-integer field. Strings and fractional numbers
// are rejected, never coerced.
func (o Object) Int(name string) (int, bool) {
	raw, ok := o.Raw(name)
	if !ok {
		o.v.Add(o.Key(name), "required")
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		o.v.Add(o.Key(name), "must be an integer")
		return 0, false
	}
	return n, true
}

// Int64 decodes a required exact 64-bit integer field.
func (o Object) Int64(name string) (int64, bool) {
	raw, ok := o.Raw(name)
	if !ok {
		o.v.Add(o.Key(name), "required")
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		o.v.Add(o.Key(name), "must be an integer")
		return 0, false
	}
	return n, true
}

// OptInt decodes an optional exact-integer field.
func (o Object) OptInt(name string) *int {
	raw, ok := o.Raw(name)
	if !ok {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		o.v.Add(o.Key(name), "must be an integer")
		return nil
	}
	return &n
}

// OptInt64 decodes an optional exact 64-bit integer field.
func (o Object) OptInt64(name string) *int64 {
	raw, ok := o.Raw(name)
	if !ok {
		return nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		o.v.Add(o.Key(name), "must be an integer")
		return nil
	}
	return &n
}

// OptFloat decodes an optional numeric field. Integers are accepted, strings
// are not.
func (o Object) OptFloat(name string) *float64 {
	raw, ok := o.Raw(name)
	if !ok {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		o.v.Add(o.Key(name), "must be a number")
		return nil
	}
	return &f
}

// Literal checks a required fixed-value string tag, e.g. an object type.
func (o Object) Literal(name, want string) bool {
	got, ok := o.String(name)
	if !ok {
		return false
	}
	if got != want {
		o.v.Add(o.Key(name), fmt.Sprintf("must be %q", want))
		return false
	}
	return true
}

// OptEnum decodes an optional string constrained to a closed set.
func (o Object) OptEnum(name string, allowed ...string) *string {
	s := o.OptString(name)
	if s == nil {
		return nil
	}
	for _, a := range allowed {
		if *s == a {
			return s
		}
	}
	o.v.Add(o.Key(name), fmt.Sprintf("must be one of %v", allowed))
	return nil
}

// Array decodes a required array field into its raw elements.
func (o Object) Array(name string) ([]json.RawMessage, bool) {
	raw, ok := o.Raw(name)
	if !ok {
		o.v.Add(o.Key(name), "required")
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		o.v.Add(o.Key(name), "must be an array")
		return nil, false
	}
	return elems, true
}

// OptArray decodes an optional array field into its raw elements.
func (o Object) OptArray(name string) ([]json.RawMessage, bool) {
	raw, ok := o.Raw(name)
	if !ok {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		o.v.Add(o.Key(name), "must be an array")
		return nil, false
	}
	return elems, true
}

// OptObject decodes an optional nested object field.
func (o Object) OptObject(name string) (Object, bool) {
	raw, ok := o.Raw(name)
	if !ok {
		return Object{}, false
	}
	return DecodeObject(raw, o.Key(name), o.v)
}

// OptStringMap decodes an optional string-to-string map field.
func (o Object) OptStringMap(name string) map[string]string {
	raw, ok := o.Raw(name)
	if !ok {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		o.v.Add(o.Key(name), "must be an object of strings")
		return nil
	}
	return m
}

// ElemPath renders the path of an array element, e.g. "messages[2]".
func ElemPath(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}
