package engine

import (
	"errors"
	"fmt"
	"sync"

	"meterwire/internal/protocol"
)

// ErrUnknownModel indicates the requested model has no standing offer.
var ErrUnknownModel = errors.New("unknown model")

// ErrDuplicateModel indicates an attempt to offer the same model twice.
var ErrDuplicateModel = errors.New("model already offered")

type entry struct {
	offer  protocol.Offer
	engine Engine
}

// Registry maps offered model IDs to their pricing terms and the engine
// that serves them.
type Registry struct {
	mu     sync.RWMutex
	models map[string]entry
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]entry),
	}
}

// Register validates the offer and binds its model to the engine.
func (r *Registry) Register(offer protocol.Offer, eng Engine) error {
	if eng == nil {
		return errors.New("engine must not be nil")
	}
	if err := offer.Validate(); err != nil {
		return fmt.Errorf("offer for model %q: %w", offer.ModelID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[offer.ModelID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModel, offer.ModelID)
	}
	r.models[offer.ModelID] = entry{offer: offer, engine: eng}
	return nil
}

// Lookup returns the offer and engine for a model ID.
func (r *Registry) Lookup(modelID string) (protocol.Offer, Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.models[modelID]
	if !ok {
		return protocol.Offer{}, nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return e.offer, e.engine, nil
}
