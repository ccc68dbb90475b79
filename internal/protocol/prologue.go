package protocol

import "fmt"

// PrologueStatus is the tagged outcome of the prologue frame.
type PrologueStatus string

const (
	StatusOk                PrologueStatus = "Ok"
	StatusProtocolViolation PrologueStatus = "ProtocolViolation"
	StatusServiceError      PrologueStatus = "ServiceError"
)

// ResponsePrologue is the first frame of every exchange, sent by the
// provider before any generated output. A non-Ok status terminates the
// exchange; no further frames are legal after it.
type ResponsePrologue struct {
	Status PrologueStatus `json:"status"`

	// ProviderJobID and CreatedAtSync accompany an Ok status.
	ProviderJobID string `json:"provider_job_id,omitempty"`
	CreatedAtSync *int64 `json:"created_at_sync,omitempty"`

	// Message accompanies a rejection: required for ProtocolViolation,
	// optional for ServiceError.
	Message string `json:"message,omitempty"`
}

// Ok reports whether the provider accepted the request.
func (p ResponsePrologue) Ok() bool {
	return p.Status == StatusOk
}

// ParsePrologue decodes and validates a prologue frame. Earlier protocol
// revisions carried the job identifier as "jobId"; that key is still
// accepted on decode and mapped into ProviderJobID.
func ParsePrologue(data []byte) (*ResponsePrologue, error) {
	var v Violations
	o, ok := DecodeObject(data, "", &v)
	if !ok {
		return nil, v
	}

	var p ResponsePrologue
	status, _ := o.String("status")
	p.Status = PrologueStatus(status)

	switch p.Status {
	case StatusOk:
		if id := o.OptString("provider_job_id"); id != nil {
			p.ProviderJobID = *id
		} else if legacy := o.OptString("jobId"); legacy != nil {
			p.ProviderJobID = *legacy
		}
		p.CreatedAtSync = o.OptInt64("created_at_sync")
	case StatusProtocolViolation:
		msg, ok := o.String("message")
		if ok {
			p.Message = msg
		}
	case StatusServiceError:
		if msg := o.OptString("message"); msg != nil {
			p.Message = *msg
		}
	default:
		v.Add("status", fmt.Sprintf("unknown prologue status %q", status))
	}

	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return &p, nil
}
