package protocol

import "encoding/json"

// PromptTokensDetails is the informational breakdown of prompt tokens.
type PromptTokensDetails struct {
	CachedTokens *int `json:"cached_tokens,omitempty"`
}

// CompletionTokensDetails is the informational breakdown of completion
// tokens. None of these figures enter the cost formula.
type CompletionTokensDetails struct {
	ReasoningTokens          *int `json:"reasoning_tokens,omitempty"`
	AcceptedPredictionTokens *int `json:"accepted_prediction_tokens,omitempty"`
	RejectedPredictionTokens *int `json:"rejected_prediction_tokens,omitempty"`
}

// Usage records the token counts of a completed exchange. Only PromptTokens
// and CompletionTokens are load-bearing for billing.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

// DecodeUsage decodes and validates a usage object rooted at path.
func DecodeUsage(raw json.RawMessage, path string, v *Violations) (*Usage, bool) {
	o, ok := DecodeObject(raw, path, v)
	if !ok {
		return nil, false
	}

	var u Usage
	u.PromptTokens, _ = o.Int("prompt_tokens")
	u.CompletionTokens, _ = o.Int("completion_tokens")
	u.TotalTokens, _ = o.Int("total_tokens")

	for _, count := range []struct {
		name  string
		value int
	}{
		{"prompt_tokens", u.PromptTokens},
		{"completion_tokens", u.CompletionTokens},
		{"total_tokens", u.TotalTokens},
	} {
		if count.value < 0 {
			v.Add(o.Key(count.name), "must not be negative")
		}
	}

	if details, ok := o.OptObject("prompt_tokens_details"); ok {
		u.PromptTokensDetails = &PromptTokensDetails{
			CachedTokens: details.OptInt("cached_tokens"),
		}
	}
	if details, ok := o.OptObject("completion_tokens_details"); ok {
		u.CompletionTokensDetails = &CompletionTokensDetails{
			ReasoningTokens:          details.OptInt("reasoning_tokens"),
			AcceptedPredictionTokens: details.OptInt("accepted_prediction_tokens"),
			RejectedPredictionTokens: details.OptInt("rejected_prediction_tokens"),
		}
	}

	return &u, true
}

// DecodeOptUsage decodes an optional usage field of a response or chunk.
func DecodeOptUsage(o Object, name string) *Usage {
	raw, ok := o.Raw(name)
	if !ok {
		return nil
	}
	u, _ := DecodeUsage(raw, o.Key(name), o.Violations())
	return u
}
