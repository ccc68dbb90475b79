package chat

import (
	"encoding/json"
	"fmt"

	"meterwire/internal/protocol"
)

var requestFields = []string{
	"messages", "model", "store", "reasoning_effort", "metadata",
	"frequency_penalty", "max_tokens", "max_completion_tokens", "n",
	"presence_penalty", "response_format", "seed", "stop", "stream",
	"stream_options", "temperature", "top_p", "tools", "tool_choice",
	"parallel_tool_calls", "user", "function_call", "functions",
}

// ResponseFormat is the response_format union: {type:"text"} or
// {type:"json_schema", json_schema}.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// ToolFunction describes a callable tool of type "function".
type ToolFunction struct {
	Description *string         `json:"description,omitempty"`
	Name        string          `json:"name"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      *bool           `json:"strict,omitempty"`
}

// Tool is one entry of the request's tools array.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolChoice is the tool_choice union: one of the mode strings
// none/auto/required, or a named function selector.
type ToolChoice struct {
	mode         string
	FunctionName string
}

// ToolChoiceMode builds a string-shaped tool choice.
func ToolChoiceMode(mode string) *ToolChoice {
	return &ToolChoice{mode: mode}
}

// ToolChoiceFunction selects one function by name.
func ToolChoiceFunction(name string) *ToolChoice {
	return &ToolChoice{FunctionName: name}
}

// Mode returns the string-shaped mode, empty for a function selector.
func (t *ToolChoice) Mode() string {
	if t == nil {
		return ""
	}
	return t.mode
}

func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.mode != "" {
		return json.Marshal(t.mode)
	}
	return json.Marshal(map[string]any{
		"type":     "function",
		"function": map[string]string{"name": t.FunctionName},
	})
}

// FunctionCallOption is the legacy function_call union: none/auto or a
// named function.
type FunctionCallOption struct {
	mode string
	Name string
}

// Mode returns the string-shaped mode, empty for a named function.
func (f *FunctionCallOption) Mode() string {
	if f == nil {
		return ""
	}
	return f.mode
}

func (f FunctionCallOption) MarshalJSON() ([]byte, error) {
	if f.mode != "" {
		return json.Marshal(f.mode)
	}
	return json.Marshal(map[string]string{"name": f.Name})
}

// FunctionDef is one entry of the legacy functions array.
type FunctionDef struct {
	Description *string         `json:"description,omitempty"`
	Name        string          `json:"name"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Request is the chat-completions request body.
type Request struct {
	Messages            []Message                  `json:"messages"`
	Model               string                     `json:"model"`
	Store               *bool                      `json:"store,omitempty"`
	ReasoningEffort     *string                    `json:"reasoning_effort,omitempty"`
	Metadata            map[string]string          `json:"metadata,omitempty"`
	FrequencyPenalty    *float64                   `json:"frequency_penalty,omitempty"`
	MaxTokens           *int                       `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                       `json:"max_completion_tokens,omitempty"`
	N                   *int                       `json:"n,omitempty"`
	PresencePenalty     *float64                   `json:"presence_penalty,omitempty"`
	ResponseFormat      *ResponseFormat            `json:"response_format,omitempty"`
	Seed                *int64                     `json:"seed,omitempty"`
	Stop                *protocol.Stop             `json:"stop,omitempty"`
	Stream              *bool                      `json:"stream,omitempty"`
	StreamOptions       *protocol.StreamOptions    `json:"stream_options,omitempty"`
	Temperature         *float64                   `json:"temperature,omitempty"`
	TopP                *float64                   `json:"top_p,omitempty"`
	Tools               []Tool                     `json:"tools,omitempty"`
	ToolChoice          *ToolChoice                `json:"tool_choice,omitempty"`
	ParallelToolCalls   *bool                      `json:"parallel_tool_calls,omitempty"`
	User                *string                    `json:"user,omitempty"`
	FunctionCall        *FunctionCallOption        `json:"function_call,omitempty"`
	Functions           []FunctionDef              `json:"functions,omitempty"`
	Unknown             map[string]json.RawMessage `json:"-"`
}

// WantsStream reports whether the requester asked for the streaming path.
func (r *Request) WantsStream() bool {
	return r.Stream != nil && *r.Stream
}

// ParseRequest decodes and validates a chat-completions request body,
// reporting every violated field.
func ParseRequest(data []byte) (*Request, error) {
	var v protocol.Violations
	o, ok := protocol.DecodeObject(data, "", &v)
	if !ok {
		return nil, v
	}

	var r Request
	r.Model, _ = o.String("model")
	r.Store = o.OptBool("store")
	r.ReasoningEffort = o.OptEnum("reasoning_effort", "low", "medium", "high")
	r.Metadata = o.OptStringMap("metadata")
	r.FrequencyPenalty = o.OptFloat("frequency_penalty")
	r.MaxTokens = o.OptInt("max_tokens")
	r.MaxCompletionTokens = o.OptInt("max_completion_tokens")
	r.N = o.OptInt("n")
	r.PresencePenalty = o.OptFloat("presence_penalty")
	r.ResponseFormat = decodeResponseFormat(o)
	r.Seed = o.OptInt64("seed")
	r.Stop = protocol.DecodeStop(o, "stop")
	r.Stream = o.OptBool("stream")
	r.StreamOptions = protocol.DecodeStreamOptions(o, "stream_options")
	r.Temperature = o.OptFloat("temperature")
	r.TopP = o.OptFloat("top_p")
	r.Tools = decodeTools(o)
	r.ToolChoice = decodeToolChoice(o)
	r.ParallelToolCalls = o.OptBool("parallel_tool_calls")
	r.User = o.OptString("user")
	r.FunctionCall = decodeFunctionCallOption(o)
	r.Functions = decodeFunctions(o)
	r.Unknown = o.Rest(requestFields...)

	if elems, ok := o.Array("messages"); ok {
		r.Messages = make([]Message, 0, len(elems))
		for i, elem := range elems {
			m, _ := DecodeMessage(elem, protocol.ElemPath("messages", i), &v)
			r.Messages = append(r.Messages, m)
		}
	}

	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeResponseFormat(o protocol.Object) *ResponseFormat {
	rf, ok := o.OptObject("response_format")
	if !ok {
		return nil
	}
	typ, ok := rf.String("type")
	if !ok {
		return nil
	}
	switch typ {
	case "text":
		return &ResponseFormat{Type: typ}
	case "json_schema":
		raw, ok := rf.Raw("json_schema")
		if !ok {
			rf.Violations().Add(rf.Key("json_schema"), "required")
			return nil
		}
		return &ResponseFormat{Type: typ, JSONSchema: raw}
	default:
		rf.Violations().Add(rf.Key("type"), fmt.Sprintf("must be %q or %q", "text", "json_schema"))
		return nil
	}
}

func decodeTools(o protocol.Object) []Tool {
	elems, ok := o.OptArray("tools")
	if !ok {
		return nil
	}
	tools := make([]Tool, 0, len(elems))
	for i, elem := range elems {
		to, ok := protocol.DecodeObject(elem, protocol.ElemPath("tools", i), o.Violations())
		if !ok {
			continue
		}
		var t Tool
		if to.Literal("type", "function") {
			t.Type = "function"
		}
		fn, ok := to.OptObject("function")
		if !ok {
			to.Violations().Add(to.Key("function"), "required")
			continue
		}
		t.Function.Name, _ = fn.String("name")
		t.Function.Description = fn.OptString("description")
		t.Function.Strict = fn.OptBool("strict")
		if raw, ok := fn.Raw("parameters"); ok {
			t.Function.Parameters = raw
		}
		tools = append(tools, t)
	}
	return tools
}

func decodeToolChoice(o protocol.Object) *ToolChoice {
	raw, ok := o.Raw("tool_choice")
	if !ok {
		return nil
	}
	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		switch mode {
		case "none", "auto", "required":
			return ToolChoiceMode(mode)
		}
		o.Violations().Add(o.Key("tool_choice"), fmt.Sprintf("unknown mode %q", mode))
		return nil
	}
	tc, ok := protocol.DecodeObject(raw, o.Key("tool_choice"), o.Violations())
	if !ok {
		return nil
	}
	tc.Literal("type", "function")
	fn, ok := tc.OptObject("function")
	if !ok {
		tc.Violations().Add(tc.Key("function"), "required")
		return nil
	}
	name, _ := fn.String("name")
	return ToolChoiceFunction(name)
}

func decodeFunctionCallOption(o protocol.Object) *FunctionCallOption {
	raw, ok := o.Raw("function_call")
	if !ok {
		return nil
	}
	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		switch mode {
		case "none", "auto":
			return &FunctionCallOption{mode: mode}
		}
		o.Violations().Add(o.Key("function_call"), fmt.Sprintf("unknown mode %q", mode))
		return nil
	}
	fc, ok := protocol.DecodeObject(raw, o.Key("function_call"), o.Violations())
	if !ok {
		return nil
	}
	name, _ := fc.String("name")
	return &FunctionCallOption{Name: name}
}

func decodeFunctions(o protocol.Object) []FunctionDef {
	elems, ok := o.OptArray("functions")
	if !ok {
		return nil
	}
	defs := make([]FunctionDef, 0, len(elems))
	for i, elem := range elems {
		fo, ok := protocol.DecodeObject(elem, protocol.ElemPath("functions", i), o.Violations())
		if !ok {
			continue
		}
		var def FunctionDef
		def.Name, _ = fo.String("name")
		def.Description = fo.OptString("description")
		if raw, ok := fo.Raw("parameters"); ok {
			def.Parameters = raw
		}
		defs = append(defs, def)
	}
	return defs
}
