package completions

import (
	"encoding/json"
	"fmt"

	"meterwire/internal/protocol"
)

// PublicRequest is the allow-listed projection of a completions request:
// only the parameters that affect cost or reproducibility. The prompt never
// appears here. The field set is frozen under protocol.ProtocolID.
type PublicRequest struct {
	Model            string   `json:"model"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	N                *int     `json:"n,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Stream           *bool    `json:"stream,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
}

// PublicResponse carries the final usage verbatim.
type PublicResponse struct {
	Usage protocol.Usage `json:"usage"`
}

// PublicPayload is the disclosable projection of one completions exchange,
// embedded as the epilogue's public_payload and signed out of band.
type PublicPayload struct {
	Request  PublicRequest  `json:"request"`
	Response PublicResponse `json:"response"`
}

// NewPublicPayload projects a validated request and its final usage.
func NewPublicPayload(r *Request, usage protocol.Usage) PublicPayload {
	return PublicPayload{
		Request: PublicRequest{
			Model:            r.Model,
			FrequencyPenalty: r.FrequencyPenalty,
			MaxTokens:        r.MaxTokens,
			N:                r.N,
			PresencePenalty:  r.PresencePenalty,
			Stream:           r.Stream,
			Temperature:      r.Temperature,
			TopP:             r.TopP,
		},
		Response: PublicResponse{Usage: usage},
	}
}

// Encode serializes the payload for embedding in an epilogue frame.
func (p PublicPayload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode public payload: %w", err)
	}
	return string(data), nil
}
