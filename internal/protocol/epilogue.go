package protocol

import "encoding/json"

// EpilogueObject tags the streaming epilogue chunk, distinguishing it from
// ordinary chunks within the same stream. Only this tag terminates a stream;
// a chunk with a non-null finish reason does not.
const EpilogueObject = "derouter.epilogue"

// Epilogue is the final frame of a non-streaming exchange. PublicPayload is
// the serialized billing projection (see the per-kind PublicPayload types);
// BalanceDelta is the charge in smallest currency units, or nil for a
// no-charge exchange such as trial-covered usage. CompletedAtSync is a
// logical timestamp for cross-party ordering, independent of wall clocks.
type Epilogue struct {
	PublicPayload   string  `json:"public_payload"`
	BalanceDelta    *string `json:"balance_delta"`
	CompletedAtSync int64   `json:"completed_at_sync"`
}

// EpilogueChunk is the streaming variant, delivered as the last element of
// the chunk sequence.
type EpilogueChunk struct {
	Object          string  `json:"object"`
	PublicPayload   string  `json:"public_payload"`
	BalanceDelta    *string `json:"balance_delta"`
	CompletedAtSync int64   `json:"completed_at_sync"`
}

// Epilogue strips the object tag.
func (c EpilogueChunk) Epilogue() Epilogue {
	return Epilogue{
		PublicPayload:   c.PublicPayload,
		BalanceDelta:    c.BalanceDelta,
		CompletedAtSync: c.CompletedAtSync,
	}
}

// NewEpilogueChunk tags an epilogue for the streaming path.
func NewEpilogueChunk(e Epilogue) EpilogueChunk {
	return EpilogueChunk{
		Object:          EpilogueObject,
		PublicPayload:   e.PublicPayload,
		BalanceDelta:    e.BalanceDelta,
		CompletedAtSync: e.CompletedAtSync,
	}
}

// ParseEpilogue decodes and validates a non-streaming epilogue frame.
func ParseEpilogue(data []byte) (*Epilogue, error) {
	var v Violations
	o, ok := DecodeObject(data, "", &v)
	if !ok {
		return nil, v
	}
	e := decodeEpilogueFields(o)
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return &e, nil
}

// ParseEpilogueChunk decodes and validates a streaming epilogue chunk,
// including its object tag.
func ParseEpilogueChunk(data []byte) (*EpilogueChunk, error) {
	var v Violations
	o, ok := DecodeObject(data, "", &v)
	if !ok {
		return nil, v
	}
	o.Literal("object", EpilogueObject)
	e := decodeEpilogueFields(o)
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return &EpilogueChunk{
		Object:          EpilogueObject,
		PublicPayload:   e.PublicPayload,
		BalanceDelta:    e.BalanceDelta,
		CompletedAtSync: e.CompletedAtSync,
	}, nil
}

func decodeEpilogueFields(o Object) Epilogue {
	var e Epilogue
	e.PublicPayload, _ = o.String("public_payload")
	e.CompletedAtSync, _ = o.Int64("completed_at_sync")

	raw, present, null := o.Nullable("balance_delta")
	switch {
	case !present:
		o.Violations().Add(o.Key("balance_delta"), "required (may be null)")
	case null:
		e.BalanceDelta = nil
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || !isIntegerString(s, true) {
			o.Violations().Add(o.Key("balance_delta"), "must be a base-10 integer string or null")
		} else {
			e.BalanceDelta = &s
		}
	}
	return e
}
