// Package protocol defines the wire contract shared by requester and
// provider in a metered OpenAI-style completion exchange: offers and prices,
// token usage, the prologue/epilogue envelope frames, and the cost
// calculation both parties must reproduce bit for bit.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtocolID identifies this revision of the wire contract. The public
// payload allow-lists are frozen under it.
const ProtocolID = "openai:0.1"

// FinishReason is the closed set of reasons generation stopped.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonFunctionCall  FinishReason = "function_call"
)

// Valid reports whether f is one of the known finish reasons.
func (f FinishReason) Valid() bool {
	switch f {
	case FinishReasonStop, FinishReasonLength, FinishReasonContentFilter,
		FinishReasonToolCalls, FinishReasonFunctionCall:
		return true
	}
	return false
}

// DecodeFinishReason decodes a required non-null finish_reason field.
func DecodeFinishReason(o Object, name string) (FinishReason, bool) {
	s, ok := o.String(name)
	if !ok {
		return "", false
	}
	f := FinishReason(s)
	if !f.Valid() {
		o.Violations().Add(o.Key(name), fmt.Sprintf("unknown finish reason %q", s))
		return "", false
	}
	return f, true
}

// DecodeNullableFinishReason decodes a finish_reason field that must be
// present but may be null (the streaming chunk shape).
func DecodeNullableFinishReason(o Object, name string) (*FinishReason, bool) {
	raw, present, null := o.Nullable(name)
	if !present {
		o.Violations().Add(o.Key(name), "required")
		return nil, false
	}
	if null {
		return nil, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		o.Violations().Add(o.Key(name), "must be a string or null")
		return nil, false
	}
	f := FinishReason(s)
	if !f.Valid() {
		o.Violations().Add(o.Key(name), fmt.Sprintf("unknown finish reason %q", s))
		return nil, false
	}
	return &f, true
}

// StreamOptions mirrors the request's stream_options object.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// DecodeStreamOptions decodes an optional stream_options field.
func DecodeStreamOptions(o Object, name string) *StreamOptions {
	nested, ok := o.OptObject(name)
	if !ok {
		return nil
	}
	include, ok := nested.OptBoolRequired("include_usage")
	if !ok {
		return nil
	}
	return &StreamOptions{IncludeUsage: include}
}

// OptBoolRequired decodes a boolean that is required once its parent object
// is present.
func (o Object) OptBoolRequired(name string) (bool, bool) {
	raw, ok := o.Raw(name)
	if !ok {
		o.v.Add(o.Key(name), "required")
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		o.v.Add(o.Key(name), "must be a boolean")
		return false, false
	}
	return b, true
}

// Stop is the stop-sequence union: a single string or a list of strings. The
// original shape is preserved so re-serialization is faithful.
type Stop struct {
	values []string
	single bool
}

// StopString builds a single-string stop value.
func StopString(s string) *Stop {
	return &Stop{values: []string{s}, single: true}
}

// StopList builds a list-shaped stop value.
func StopList(values ...string) *Stop {
	return &Stop{values: values}
}

// Values returns the stop sequences regardless of wire shape.
func (s *Stop) Values() []string {
	if s == nil {
		return nil
	}
	return s.values
}

func (s Stop) MarshalJSON() ([]byte, error) {
	if s.single && len(s.values) == 1 {
		return json.Marshal(s.values[0])
	}
	return json.Marshal(s.values)
}

// DecodeStop decodes an optional stop field of either shape.
func DecodeStop(o Object, name string) *Stop {
	raw, ok := o.Raw(name)
	if !ok {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return StopString(single)
	}
	var multi []string
	if err := json.Unmarshal(raw, &multi); err == nil {
		return StopList(multi...)
	}
	o.Violations().Add(o.Key(name), "must be a string or an array of strings")
	return nil
}
