package models

import "fmt"

// ValidationResult reports whether a targeted finding disappeared after a fix.
type ValidationResult struct {
	Message        string    `json:"message"`
	ErrorType      ErrorType `json:"error_type,omitempty"`
	OtherFindings  []Finding `json:"other_findings"`
	CompileFailed  bool      `json:"compile_failed,omitempty"`
	Failed         bool      `json:"failed,omitempty"`
	Fixed          bool      `json:"fixed"`
	MatchedAtLine  int       `json:"matched_at_line,omitempty"`
	RemainingCount int       `json:"remaining_count"`
}

// FailedValidation is the fail-closed result for a validation that could not
// run to completion.
func FailedValidation(reason string) ValidationResult {
	return ValidationResult{
		Failed:        true,
		Fixed:         false,
		ErrorType:     ErrorTypeExecution,
		OtherFindings: []Finding{},
		Message:       reason,
	}
}

// Summarize fills Message and RemainingCount from the other fields.
func (r *ValidationResult) Summarize() {
	r.RemainingCount = len(r.OtherFindings)
	msg := "Target bug still exists"
	if r.Fixed {
		msg = "Target bug was successfully fixed"
	}
	if r.RemainingCount > 0 {
		msg = fmt.Sprintf("%s. %d other bugs remain in the file", msg, r.RemainingCount)
	}
	r.Message = msg
}
