// Package engine abstracts the inference backend behind the gateway and
// maps each offered model to its immutable pricing terms.
package engine

import (
	"context"

	"meterwire/internal/protocol"
	"meterwire/internal/protocol/chat"
	"meterwire/internal/protocol/completions"
)

// Completion is a finished legacy-completion result with its final usage.
// Token counts arrive already computed; the protocol never re-derives them.
type Completion struct {
	Text         string
	FinishReason protocol.FinishReason
	Usage        protocol.Usage
}

// ChatCompletion is a finished chat result with its final usage.
type ChatCompletion struct {
	Content      string
	FinishReason protocol.FinishReason
	Usage        protocol.Usage
}

// Engine runs inference for validated request bodies. Implementations must
// be safe for concurrent use; the gateway shares one engine across requests.
type Engine interface {
	Name() string
	Complete(ctx context.Context, req *completions.Request) (*Completion, error)
	ChatComplete(ctx context.Context, req *chat.Request) (*ChatCompletion, error)
}
