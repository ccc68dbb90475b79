// Package envelope enforces the frame ordering of a metered exchange on the
// consumer side: exactly one prologue, then either one response or a run of
// chunks, then exactly one epilogue. Frames outside that order are
// sequencing violations, distinct from schema violations.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"meterwire/internal/protocol"
	"meterwire/internal/protocol/chat"
	"meterwire/internal/protocol/completions"
)

// Kind selects between the two request kinds. There is no envelope-level
// discriminant on the wire; the kind is whichever schema the request body
// satisfies.
type Kind int

const (
	KindCompletions Kind = iota
	KindChatCompletions
)

func (k Kind) String() string {
	switch k {
	case KindCompletions:
		return "completions"
	case KindChatCompletions:
		return "chat.completions"
	}
	return "unknown"
}

// RequestBody is either *completions.Request or *chat.Request.
type RequestBody interface {
	WantsStream() bool
}

// ParseRequestBody validates an untyped request body against whichever
// request kind its shape selects: a "messages" key selects chat completions,
// a "prompt" key the legacy kind.
func ParseRequestBody(data []byte) (RequestBody, Kind, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, 0, protocol.Violations{{Constraint: "request body must be a JSON object"}}
	}

	if _, ok := fields["messages"]; ok {
		req, err := chat.ParseRequest(data)
		if err != nil {
			return nil, KindChatCompletions, err
		}
		return req, KindChatCompletions, nil
	}
	if _, ok := fields["prompt"]; ok {
		req, err := completions.ParseRequest(data)
		if err != nil {
			return nil, KindCompletions, err
		}
		return req, KindCompletions, nil
	}
	return nil, 0, protocol.Violations{{Constraint: "request body matches neither request kind (no messages or prompt field)"}}
}

// State of the exchange as seen by the consumer.
type State int

const (
	StateAwaitingPrologue State = iota
	StateRejected
	StateAwaitingResponse
	StateAwaitingEpilogue
	StateStreaming
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingPrologue:
		return "awaiting prologue"
	case StateRejected:
		return "rejected"
	case StateAwaitingResponse:
		return "awaiting response"
	case StateAwaitingEpilogue:
		return "awaiting epilogue"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// ErrSequencingViolation is the sentinel wrapped by every SequencingError.
var ErrSequencingViolation = errors.New("sequencing violation")

// SequencingError reports a frame arriving outside the legal order.
type SequencingError struct {
	State  State
	Frame  string
	Reason string
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("sequencing violation: %s while %s: %s", e.Frame, e.State, e.Reason)
}

func (e *SequencingError) Unwrap() error {
	return ErrSequencingViolation
}

// Event is the parsed outcome of one accepted frame. Exactly one field is
// set, according to the exchange's kind and path.
type Event struct {
	Prologue           *protocol.ResponsePrologue
	CompletionResponse *completions.Response
	ChatResponse       *chat.Response
	CompletionChunk    *completions.Chunk
	ChatChunk          *chat.Chunk
	Epilogue           *protocol.Epilogue
	EpilogueChunk      *protocol.EpilogueChunk
}

// Exchange tracks one request through its envelope. It is not safe for
// concurrent use; each exchange belongs to a single consumer.
type Exchange struct {
	kind      Kind
	streaming bool
	state     State
}

// New builds the state machine for a validated request body. The expected
// path (streaming or not) is fixed by the request's stream flag; frames of
// the other path are violations.
func New(body RequestBody) (*Exchange, error) {
	var kind Kind
	switch body.(type) {
	case *completions.Request:
		kind = KindCompletions
	case *chat.Request:
		kind = KindChatCompletions
	default:
		return nil, fmt.Errorf("unsupported request body type %T", body)
	}
	return &Exchange{
		kind:      kind,
		streaming: body.WantsStream(),
		state:     StateAwaitingPrologue,
	}, nil
}

// Kind returns the exchange's request kind.
func (x *Exchange) Kind() Kind {
	return x.kind
}

// State returns the current state.
func (x *Exchange) State() State {
	return x.state
}

// Done reports whether the terminal epilogue has been consumed. A stream
// that ends without reaching Done has no verified balance delta.
func (x *Exchange) Done() bool {
	return x.state == StateDone
}

// Feed consumes the next raw frame, advancing the state machine. It returns
// a SequencingError for a frame outside the legal order, or the schema
// violations of a frame that is in order but malformed.
func (x *Exchange) Feed(frame []byte) (Event, error) {
	switch x.state {
	case StateAwaitingPrologue:
		return x.feedPrologue(frame)
	case StateRejected:
		return Event{}, x.violation(frame, "the prologue rejected the exchange; no further frames are legal")
	case StateDone:
		return Event{}, x.violation(frame, "the epilogue completed the exchange; no further frames are legal")
	case StateAwaitingResponse:
		return x.feedResponse(frame)
	case StateAwaitingEpilogue:
		return x.feedEpilogue(frame)
	case StateStreaming:
		return x.feedChunk(frame)
	}
	return Event{}, fmt.Errorf("exchange in unknown state %d", x.state)
}

func (x *Exchange) feedPrologue(frame []byte) (Event, error) {
	p, err := protocol.ParsePrologue(frame)
	if err != nil {
		return Event{}, err
	}
	switch {
	case !p.Ok():
		x.state = StateRejected
	case x.streaming:
		x.state = StateStreaming
	default:
		x.state = StateAwaitingResponse
	}
	return Event{Prologue: p}, nil
}

func (x *Exchange) feedResponse(frame []byte) (Event, error) {
	if frameHasKey(frame, "status") {
		return Event{}, x.violation(frame, "prologue already consumed")
	}
	if frameHasKey(frame, "public_payload") {
		return Event{}, x.violation(frame, "epilogue before the response")
	}
	if frameObjectTag(frame) == chat.ChunkObjectType {
		return Event{}, x.violation(frame, "streaming chunk on a non-streaming exchange")
	}

	switch x.kind {
	case KindChatCompletions:
		resp, err := chat.ParseResponse(frame)
		if err != nil {
			return Event{}, err
		}
		x.state = StateAwaitingEpilogue
		return Event{ChatResponse: resp}, nil
	default:
		resp, err := completions.ParseResponse(frame)
		if err != nil {
			return Event{}, err
		}
		x.state = StateAwaitingEpilogue
		return Event{CompletionResponse: resp}, nil
	}
}

func (x *Exchange) feedEpilogue(frame []byte) (Event, error) {
	if frameHasKey(frame, "status") {
		return Event{}, x.violation(frame, "prologue already consumed")
	}
	if frameHasKey(frame, "choices") {
		return Event{}, x.violation(frame, "response already consumed")
	}
	e, err := protocol.ParseEpilogue(frame)
	if err != nil {
		return Event{}, err
	}
	x.state = StateDone
	return Event{Epilogue: e}, nil
}

func (x *Exchange) feedChunk(frame []byte) (Event, error) {
	if frameObjectTag(frame) == protocol.EpilogueObject {
		e, err := protocol.ParseEpilogueChunk(frame)
		if err != nil {
			return Event{}, err
		}
		x.state = StateDone
		return Event{EpilogueChunk: e}, nil
	}
	if frameHasKey(frame, "status") {
		return Event{}, x.violation(frame, "prologue already consumed")
	}

	switch x.kind {
	case KindChatCompletions:
		if frameObjectTag(frame) == chat.ResponseObjectType {
			return Event{}, x.violation(frame, "non-streaming response on a streaming exchange")
		}
		chunk, err := chat.ParseChunk(frame)
		if err != nil {
			return Event{}, err
		}
		return Event{ChatChunk: chunk}, nil
	default:
		chunk, err := completions.ParseChunk(frame)
		if err != nil {
			return Event{}, err
		}
		return Event{CompletionChunk: chunk}, nil
	}
}

func (x *Exchange) violation(frame []byte, reason string) error {
	return &SequencingError{
		State:  x.state,
		Frame:  describeFrame(frame),
		Reason: reason,
	}
}

func frameHasKey(frame []byte, key string) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return false
	}
	_, ok := fields[key]
	return ok
}

func frameObjectTag(frame []byte) string {
	var probe struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return ""
	}
	return probe.Object
}

func describeFrame(frame []byte) string {
	if tag := frameObjectTag(frame); tag != "" {
		return fmt.Sprintf("%q frame", tag)
	}
	switch {
	case frameHasKey(frame, "status"):
		return "prologue frame"
	case frameHasKey(frame, "public_payload"):
		return "epilogue frame"
	}
	return "frame"
}
