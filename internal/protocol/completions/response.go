package completions

import (
	"encoding/json"

	"meterwire/internal/protocol"
)

// ObjectType tags both the non-streaming response and streaming chunks of
// this request kind.
const ObjectType = "text_completion"

// Choice is one generated alternative in a non-streaming response.
type Choice struct {
	Index        int                   `json:"index"`
	Text         string                `json:"text"`
	FinishReason protocol.FinishReason `json:"finish_reason"`
	Logprobs     json.RawMessage       `json:"logprobs,omitempty"`
}

// Response is the non-streaming completions response.
type Response struct {
	ID                string          `json:"id"`
	Object            string          `json:"object"`
	Created           int64           `json:"created"`
	Model             string          `json:"model"`
	Choices           []Choice        `json:"choices"`
	SystemFingerprint *string         `json:"system_fingerprint,omitempty"`
	Usage             *protocol.Usage `json:"usage,omitempty"`
}

// ParseResponse decodes and validates a non-streaming completions response.
func ParseResponse(data []byte) (*Response, error) {
	var v protocol.Violations
	o, ok := protocol.DecodeObject(data, "", &v)
	if !ok {
		return nil, v
	}

	var r Response
	r.ID, _ = o.String("id")
	o.Literal("object", ObjectType)
	r.Object = ObjectType
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
			c.Text, _ = co.String("text")
			c.FinishReason, _ = protocol.DecodeFinishReason(co, "finish_reason")
			if raw, ok := co.Raw("logprobs"); ok {
				c.Logprobs = raw
			}
			r.Choices = append(r.Choices, c)
		}
	}

	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ChunkChoice is one alternative inside a streaming chunk; its finish reason
// stays null until generation for that choice stops.
type ChunkChoice struct {
	Index        int                    `json:"index"`
	Text         string                 `json:"text"`
	FinishReason *protocol.FinishReason `json:"finish_reason"`
	Logprobs     json.RawMessage        `json:"logprobs,omitempty"`
}

// Chunk is one incremental unit of a streamed completions response.
type Chunk struct {
	ID                string          `json:"id"`
	Object            string          `json:"object"`
	Created           int64           `json:"created"`
	Model             string          `json:"model"`
	Choices           []ChunkChoice   `json:"choices"`
	SystemFingerprint *string         `json:"system_fingerprint,omitempty"`
	Usage             *protocol.Usage `json:"usage,omitempty"`
}

// ParseChunk decodes and validates one streaming completions chunk.
func ParseChunk(data []byte) (*Chunk, error) {
	var v protocol.Violations
	o, ok := protocol.DecodeObject(data, "", &v)
	if !ok {
		return nil, v
	}

	var c Chunk
	c.ID, _ = o.String("id")
	o.Literal("object", ObjectType)
	c.Object = ObjectType
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
			cc.Text, _ = co.String("text")
			cc.FinishReason, _ = protocol.DecodeNullableFinishReason(co, "finish_reason")
			if raw, ok := co.Raw("logprobs"); ok {
				cc.Logprobs = raw
			}
			c.Choices = append(c.Choices, cc)
		}
	}

	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return &c, nil
}
