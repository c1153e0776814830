package models

// FixCandidate is one proposed fix for one finding.
type FixCandidate struct {
	Metrics     *MetricsSnapshot `json:"metrics,omitempty"`
	Code        string           `json:"code"`
	Explanation string           `json:"explanation"`
	ScratchDir  string           `json:"scratch_dir,omitempty"`
	Error       string           `json:"error,omitempty"`
	SolutionID  int              `json:"solution_id"`
	Rating      int              `json:"rating"`
}

// Failed reports whether isolation or measurement failed for the candidate.
func (c FixCandidate) Failed() bool {
	return c.Error != ""
}

// CandidateBatch is the result of one generation request.
type CandidateBatch struct {
	BatchID    string         `json:"batch_id"`
	Finding    Finding        `json:"finding"`
	Candidates []FixCandidate `json:"candidates"`
}
