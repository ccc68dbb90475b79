// Package chat validates the chat-completion request kind: role-keyed
// message variants, the request body with its tool and function groups, the
// response and streaming chunk shapes, and the kind's public payload
// projection.
package chat

import (
	"encoding/json"
	"fmt"

	"meterwire/internal/protocol"
)

// Role is the closed set of message roles.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleFunction  Role = "function"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleDeveloper, RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleFunction:
		return true
	}
	return false
}

// Content part types.
const (
	PartText    = "text"
	PartRefusal = "refusal"
)

// ContentPart is one typed element of array-shaped message content.
type ContentPart struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

// Content is the message-content union: a plain string or an ordered
// sequence of typed parts. The original wire shape is preserved so
// re-serialization is faithful.
type Content struct {
	text  *string
	parts []ContentPart
}

// TextContent builds string-shaped content.
func TextContent(s string) Content {
	return Content{text: &s}
}

// PartsContent builds array-shaped content.
func PartsContent(parts ...ContentPart) Content {
	return Content{parts: parts}
}

// IsText reports whether the content came as a plain string.
func (c Content) IsText() bool {
	return c.text != nil
}

// Parts returns the typed parts of array-shaped content.
func (c Content) Parts() []ContentPart {
	return c.parts
}

// Text flattens the content to plain text, concatenating text parts.
func (c Content) Text() string {
	if c.text != nil {
		return *c.text
	}
	var out string
	for _, p := range c.parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.text != nil {
		return json.Marshal(*c.text)
	}
	if c.parts != nil {
		return json.Marshal(c.parts)
	}
	return []byte("null"), nil
}

// FunctionCall is a legacy single-function invocation.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one tool invocation requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is the role-tagged union of conversation messages. The role
// constrains which fields are legal; a field belonging to another role's
// variant is a violation even though unknown fields are otherwise ignored.
type Message struct {
	Role         Role          `json:"role"`
	Content      Content       `json:"content"`
	Name         *string       `json:"name,omitempty"`
	Refusal      *string       `json:"refusal,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
}

// The union of every role variant's fields. Presence of one of these on a
// role that does not allow it is a violation; keys outside this set are
// tolerated unknowns.
var messageFields = []string{
	"role", "content", "name", "refusal", "tool_calls", "function_call", "tool_call_id",
}

var roleFields = map[Role]map[string]bool{
	RoleDeveloper: {"role": true, "content": true, "name": true},
	RoleSystem:    {"role": true, "content": true, "name": true},
	RoleUser:      {"role": true, "content": true, "name": true},
	RoleAssistant: {
		"role": true, "content": true, "name": true,
		"refusal": true, "tool_calls": true, "function_call": true,
	},
	RoleTool:     {"role": true, "content": true, "tool_call_id": true},
	RoleFunction: {"role": true, "content": true, "name": true},
}

// DecodeMessage decodes and validates one message rooted at path.
func DecodeMessage(raw json.RawMessage, path string, v *protocol.Violations) (Message, bool) {
	before := len(*v)
	o, ok := protocol.DecodeObject(raw, path, v)
	if !ok {
		return Message{}, false
	}

	var m Message
	roleStr, ok := o.String("role")
	if !ok {
		return Message{}, false
	}
	m.Role = Role(roleStr)
	if !m.Role.Valid() {
		v.Add(o.Key("role"), fmt.Sprintf("unknown role %q", roleStr))
		return Message{}, false
	}

	allowed := roleFields[m.Role]
	for _, field := range messageFields {
		if o.Has(field) && !allowed[field] {
			v.Add(o.Key(field), fmt.Sprintf("not allowed for role %q", m.Role))
		}
	}

	m.Content = decodeContent(o, m.Role)

	switch m.Role {
	case RoleDeveloper, RoleSystem, RoleUser:
		m.Name = o.OptString("name")
	case RoleAssistant:
		m.Name = o.OptString("name")
		m.Refusal = o.OptString("refusal")
		m.ToolCalls = decodeToolCalls(o)
		m.FunctionCall = decodeFunctionCall(o, "function_call")
	case RoleTool:
		m.ToolCallID, _ = o.String("tool_call_id")
	case RoleFunction:
		name, _ := o.String("name")
		if name != "" {
			m.Name = &name
		}
	}

	return m, len(*v) == before
}

// decodeContent validates the content union against the role's rules: the
// function role takes a plain string only, the assistant may carry refusal
// parts, every other role takes a string or text parts.
func decodeContent(o protocol.Object, role Role) Content {
	raw, ok := o.Raw("content")
	if !ok {
		// An assistant turn that only carries tool or function calls has
		// null content.
		if role != RoleAssistant {
			o.Violations().Add(o.Key("content"), "required")
		}
		return Content{}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return TextContent(text)
	}

	if role == RoleFunction {
		o.Violations().Add(o.Key("content"), "must be a string")
		return Content{}
	}

	var parts []ContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		o.Violations().Add(o.Key("content"), "must be a string or an array of content parts")
		return Content{}
	}
	for i, part := range parts {
		path := protocol.ElemPath(o.Key("content"), i)
		switch part.Type {
		case PartText:
		case PartRefusal:
			if role != RoleAssistant {
				o.Violations().Add(path, fmt.Sprintf("refusal parts are not allowed for role %q", role))
			}
		default:
			o.Violations().Add(path+".type", fmt.Sprintf("unknown content part type %q", part.Type))
		}
	}
	return PartsContent(parts...)
}

func decodeToolCalls(o protocol.Object) []ToolCall {
	elems, ok := o.OptArray("tool_calls")
	if !ok {
		return nil
	}
	calls := make([]ToolCall, 0, len(elems))
	for i, elem := range elems {
		co, ok := protocol.DecodeObject(elem, protocol.ElemPath(o.Key("tool_calls"), i), o.Violations())
		if !ok {
			continue
		}
		var tc ToolCall
		tc.ID, _ = co.String("id")
		if co.Literal("type", "function") {
			tc.Type = "function"
		}
		if fn, ok := co.OptObject("function"); ok {
			tc.Function.Name, _ = fn.String("name")
			tc.Function.Arguments, _ = fn.String("arguments")
		} else {
			co.Violations().Add(co.Key("function"), "required")
		}
		calls = append(calls, tc)
	}
	return calls
}

func decodeFunctionCall(o protocol.Object, name string) *FunctionCall {
	fn, ok := o.OptObject(name)
	if !ok {
		return nil
	}
	var fc FunctionCall
	fc.Name, _ = fn.String("name")
	fc.Arguments, _ = fn.String("arguments")
	return &fc
}
