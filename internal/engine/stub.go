package engine

import (
	"context"
	"fmt"
	"strings"

	"meterwire/internal/protocol"
	"meterwire/internal/protocol/chat"
	"meterwire/internal/protocol/completions"
)

// Stub is a deterministic engine for tests and local runs. It produces a
// fixed-form reply and approximates token counts from byte lengths, so the
// same request always yields the same usage and therefore the same charge.
type Stub struct{}

// NewStub constructs the stub engine.
func NewStub() *Stub {
	return &Stub{}
}

func (s *Stub) Name() string {
	return "stub"
}

func (s *Stub) Complete(ctx context.Context, req *completions.Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("stub completion for %s", req.Model)
	if req.Echo != nil && *req.Echo {
		text = req.Prompt + text
	}
	prompt := approxTokens(req.Prompt)
	completion := approxTokens(text)
	return &Completion{
		Text:         text,
		FinishReason: protocol.FinishReasonStop,
		Usage: protocol.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

func (s *Stub) ChatComplete(ctx context.Context, req *chat.Request) (*ChatCompletion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var promptText strings.Builder
	for _, m := range req.Messages {
		promptText.WriteString(m.Content.Text())
		promptText.WriteByte('\n')
	}
	content := fmt.Sprintf("stub reply from %s", req.Model)
	prompt := approxTokens(promptText.String())
	completion := approxTokens(content)
	return &ChatCompletion{
		Content:      content,
		FinishReason: protocol.FinishReasonStop,
		Usage: protocol.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

// approxTokens estimates a token count at roughly four bytes per token.
func approxTokens(s string) int {
	return (len(s) + 3) / 4
}
