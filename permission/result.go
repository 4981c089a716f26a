package permission

import (
	"encoding/json"
	"fmt"
)

// ResultFields names every field of a Result. Construct results only
// through NewResult so a field can never land in the wrong slot.
type ResultFields struct {
	Permission Kind
	Status     Status
	Message    string
	Err        error
}

// Result is the outcome of evaluating one kind. It is immutable.
type Result struct {
	permission Kind
	status     Status
	message    string
	err        error
}

// NewResult builds a Result. An invalid status is recorded as StatusError;
// an invalid kind panics since kinds only ever come from checker wiring.
func NewResult(f ResultFields) Result {
	if !f.Permission.Valid() {
		panic(fmt.Sprintf("permission: result for invalid kind %q", f.Permission))
	}
	if !f.Status.Valid() {
		f.Message = fmt.Sprintf("invalid status %q: %s", f.Status, f.Message)
		f.Status = StatusError
	}
	return Result{permission: f.Permission, status: f.Status, message: f.Message, err: f.Err}
}

func (r Result) Success() bool    { return r.status == StatusGranted }
func (r Result) Permission() Kind { return r.permission }
func (r Result) Status() Status   { return r.status }
func (r Result) Message() string  { return r.message }
func (r Result) Err() error       { return r.err }

type resultJSON struct {
	Success    bool   `json:"success"`
	Permission Kind   `json:"permission"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Success:    r.Success(),
		Permission: r.permission,
		Status:     r.status,
		Message:    r.message,
	}
	if r.err != nil {
		out.Error = r.err.Error()
	}
	return json.Marshal(out)
}
