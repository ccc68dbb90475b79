package chat

import (
	"encoding/json"

	"meterwire/internal/protocol"
)

// Object tags for this request kind.
const (
	ResponseObjectType = "chat.completion"
	ChunkObjectType    = "chat.completion.chunk"
)

// ResponseMessage is the assistant message of a non-streaming choice. Its
// content is nullable on the wire.
type ResponseMessage struct {
	Role    Role    `json:"role"`
	Content *string `json:"content"`
	Refusal *string `json:"refusal,omitempty"`
}

// Choice is one generated alternative in a non-streaming response.
type Choice struct {
	Index        int                   `json:"index"`
	Message      ResponseMessage       `json:"message"`
	Logprobs     json.RawMessage       `json:"logprobs,omitempty"`
	FinishReason protocol.FinishReason `json:"finish_reason"`
}

// Response is the non-streaming chat-completions response.
type Response struct {
	ID                string          `json:"id"`
	Object            string          `json:"object"`
	Created           int64           `json:"created"`
	Model             string          `json:"model"`
	SystemFingerprint *string         `json:"system_fingerprint,omitempty"`
	Choices           []Choice        `json:"choices"`
	Usage             *protocol.Usage `json:"usage,omitempty"`
}

// ParseResponse decodes and validates a non-streaming chat response.
func ParseResponse(data []byte) (*Response, error) {
	var v protocol.Violations
	o, ok := protocol.DecodeObject(data, "", &v)
	if !ok {
		return nil, v
	}

	var r Response
	r.ID, _ = o.String("id")
	o.Literal("object", ResponseObjectType)
	r.Object = ResponseObjectType
	r.Created, _ = o.Int64("created")
	r.Model, _ = o.String("model")
	r.SystemFingerprint = o.OptString("system_fingerprint")
	r.Usage = protocol.DecodeOptUsage(o, "usage")

	if elems, ok := o.Array("choices"); ok {
		r.Choices = make([]Choice, 0, len(elems))
		for i, elem := range elems {
			co, ok := protocol.DecodeObject(elem, protocol.ElemPath("choices", i), &v)
			if !ok {
				continue
			}
			var c Choice
			c.Index, _ = co.Int("index")
			c.FinishReason, _ = protocol.DecodeFinishReason(co, "finish_reason")
			if raw, ok := co.Raw("logprobs"); ok {
				c.Logprobs = raw
			}
			if mo, ok := co.OptObject("message"); ok {
				c.Message = decodeResponseMessage(mo)
			} else {
				v.Add(co.Key("message"), "required")
			}
			r.Choices = append(r.Choices, c)
		}
	}

	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeResponseMessage(o protocol.Object) ResponseMessage {
	var m ResponseMessage
	if o.Literal("role", string(RoleAssistant)) {
		m.Role = RoleAssistant
	}
	raw, present, null := o.Nullable("content")
	switch {
	case !present:
		o.Violations().Add(o.Key("content"), "required (may be null)")
	case null:
		m.Content = nil
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			o.Violations().Add(o.Key("content"), "must be a string or null")
		} else {
			m.Content = &s
		}
	}
	m.Refusal = o.OptString("refusal")
	return m
}

// Delta is the streamed message fragment: a full role-tagged message or an
// empty placeholder. Objects without a role are accepted as empty deltas
// with their fields ignored, mirroring the lenient side of the union.
type Delta struct {
	Message *Message
}

func (d Delta) MarshalJSON() ([]byte, error) {
	if d.Message != nil {
		return json.Marshal(d.Message)
	}
	return []byte("{}"), nil
}

// ChunkChoice is one alternative inside a streaming chunk.
type ChunkChoice struct {
	Index        int                    `json:"index"`
	Delta        Delta                  `json:"delta"`
	Logprobs     json.RawMessage        `json:"logprobs,omitempty"`
	FinishReason *protocol.FinishReason `json:"finish_reason"`
}

// Chunk is one incremental unit of a streamed chat response.
type Chunk struct {
	ID                string          `json:"id"`
	Object            string          `json:"object"`
	Created           int64           `json:"created"`
	Model             string          `json:"model"`
	SystemFingerprint *string         `json:"system_fingerprint,omitempty"`
	Choices           []ChunkChoice   `json:"choices"`
	Usage             *protocol.Usage `json:"usage,omitempty"`
}

// ParseChunk decodes and validates one streaming chat chunk.
func ParseChunk(data []byte) (*Chunk, error) {
	var v protocol.Violations
	o, ok := protocol.DecodeObject(data, "", &v)
	if !ok {
		return nil, v
	}

	var c Chunk
	c.ID, _ = o.String("id")
	o.Literal("object", ChunkObjectType)
	c.Object = ChunkObjectType
	c.Created, _ = o.Int64("created")
	c.Model, _ = o.String("model")
	c.SystemFingerprint = o.OptString("system_fingerprint")
	c.Usage = protocol.DecodeOptUsage(o, "usage")

	if elems, ok := o.Array("choices"); ok {
		c.Choices = make([]ChunkChoice, 0, len(elems))
		for i, elem := range elems {
			co, ok := protocol.DecodeObject(elem, protocol.ElemPath("choices", i), &v)
			if !ok {
				continue
			}
			var cc ChunkChoice
			cc.Index, _ = co.Int("index")
			cc.FinishReason, _ = protocol.DecodeNullableFinishReason(co, "finish_reason")
			if raw, ok := co.Raw("logprobs"); ok {
				cc.Logprobs = raw
			}
			cc.Delta = decodeDelta(co, &v)
			c.Choices = append(c.Choices, cc)
		}
	}

	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return &c, nil
}

func decodeDelta(co protocol.Object, v *protocol.Violations) Delta {
	raw, ok := co.Raw("delta")
	if !ok {
		v.Add(co.Key("delta"), "required")
		return Delta{}
	}
	do, ok := protocol.DecodeObject(raw, co.Key("delta"), v)
	if !ok {
		return Delta{}
	}
	if !do.Has("role") {
		return Delta{}
	}
	m, ok := DecodeMessage(raw, co.Key("delta"), v)
	if !ok {
		return Delta{}
	}
	return Delta{Message: &m}
}
