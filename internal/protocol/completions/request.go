// Package completions validates the legacy text-completion request kind and
// its response and streaming chunk shapes, and projects the billing-relevant
// public payload for that kind.
package completions

import (
	"encoding/json"

	"meterwire/internal/protocol"
)

// requestFields is the known-field set of the request body. Anything outside
// it is tolerated and kept aside, never billed.
var requestFields = []string{
	"model", "prompt", "echo", "frequency_penalty", "max_tokens", "n",
	"presence_penalty", "seed", "stop", "stream", "stream_options",
	"temperature", "top_p", "user",
}

// Request is the legacy completions request body: a single prompt string
// with flat sampling parameters.
type Request struct {
	Model            string                  `json:"model"`
	Prompt           string                  `json:"prompt"`
	Echo             *bool                   `json:"echo,omitempty"`
	FrequencyPenalty *float64                `json:"frequency_penalty,omitempty"`
	MaxTokens        *int                    `json:"max_tokens,omitempty"`
	N                *int                    `json:"n,omitempty"`
	PresencePenalty  *float64                `json:"presence_penalty,omitempty"`
	Seed             *int64                  `json:"seed,omitempty"`
	Stop             *protocol.Stop          `json:"stop,omitempty"`
	Stream           *bool                   `json:"stream,omitempty"`
	StreamOptions    *protocol.StreamOptions `json:"stream_options,omitempty"`
	Temperature      *float64                `json:"temperature,omitempty"`
	TopP             *float64                `json:"top_p,omitempty"`
	User             *string                 `json:"user,omitempty"`

	// Unknown holds tolerated extra fields, dropped from the public payload.
	Unknown map[string]json.RawMessage `json:"-"`
}

// WantsStream reports whether the requester asked for the streaming path.
func (r *Request) WantsStream() bool {
	return r.Stream != nil && *r.Stream
}

// ParseRequest decodes and validates a completions request body, reporting
// every violated field.
func ParseRequest(data []byte) (*Request, error) {
	var v protocol.Violations
	o, ok := protocol.DecodeObject(data, "", &v)
	if !ok {
		return nil, v
	}

	var r Request
	r.Model, _ = o.String("model")
	r.Prompt, _ = o.String("prompt")
	r.Echo = o.OptBool("echo")
	r.FrequencyPenalty = o.OptFloat("frequency_penalty")
	r.MaxTokens = o.OptInt("max_tokens")
	r.N = o.OptInt("n")
	r.PresencePenalty = o.OptFloat("presence_penalty")
	r.Seed = o.OptInt64("seed")
	r.Stop = protocol.DecodeStop(o, "stop")
	r.Stream = o.OptBool("stream")
	r.StreamOptions = protocol.DecodeStreamOptions(o, "stream_options")
	r.Temperature = o.OptFloat("temperature")
	r.TopP = o.OptFloat("top_p")
	r.User = o.OptString("user")
	r.Unknown = o.Rest(requestFields...)

	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return &r, nil
}
