package models

// Status is the coarse outcome of a public operation.
type Status string

// Operation statuses.
const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Outcome is attached to every coordinator result so callers never need to
// inspect raw errors.
type Outcome struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	ErrorType ErrorType `json:"error_type,omitempty"`
}

// Succeeded builds a success outcome.
func Succeeded(msg string) Outcome {
	return Outcome{Status: StatusSuccess, Message: msg}
}

// Degraded builds a degraded-success outcome.
func Degraded(msg string) Outcome {
	return Outcome{Status: StatusDegraded, Message: msg}
}

// Failed builds a failure outcome from err, classifying it when possible.
func Failed(err error) Outcome {
	if err == nil {
		return Outcome{Status: StatusFailed}
	}
	return Outcome{Status: StatusFailed, Message: err.Error(), ErrorType: ClassifyError(err)}
}

// OK reports whether the operation produced a usable result.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess || o.Status == StatusDegraded
}
