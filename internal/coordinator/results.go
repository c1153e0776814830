package coordinator

import (
	"github.com/joshsymonds/fixloop/internal/fix"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/normalize"
	"github.com/joshsymonds/fixloop/internal/repository"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// FetchResult is returned by FetchRepository.
type FetchResult struct {
	Outcome models.Outcome     `json:"outcome"`
	Dir     string             `json:"dir,omitempty"`
	Head    string             `json:"head,omitempty"`
	File    pathutil.PathKey   `json:"file,omitempty"`
	Files   []pathutil.PathKey `json:"files"`
}

// FilesResult is returned by ListFiles.
type FilesResult struct {
	Outcome models.Outcome     `json:"outcome"`
	Files   []pathutil.PathKey `json:"files"`
}

// AnalysisResult is returned by AnalyzeFile. Metrics are the file's initial
// snapshot, stable across edits within a session.
type AnalysisResult struct {
	Metrics      *models.MetricsSnapshot `json:"metrics,omitempty"`
	Outcome      models.Outcome          `json:"outcome"`
	File         pathutil.PathKey        `json:"file"`
	Tool         models.Tool             `json:"tool"`
	Content      string                  `json:"content"`
	ReportStatus normalize.ReportStatus  `json:"report_status,omitempty"`
	Findings     []models.Finding        `json:"findings"`
	Cached       bool                    `json:"cached"`
}

// CandidatesResult is returned by GenerateCandidates.
type CandidatesResult struct {
	Initial *models.MetricsSnapshot `json:"initial_metrics,omitempty"`
	Outcome models.Outcome          `json:"outcome"`
	Batch   models.CandidateBatch   `json:"batch"`
}

// CandidateResult is returned by RefineCandidate.
type CandidateResult struct {
	Outcome   models.Outcome      `json:"outcome"`
	Candidate models.FixCandidate `json:"candidate"`
}

// MetricsResult is returned by CandidateMetrics.
type MetricsResult struct {
	Metrics    *models.MetricsSnapshot       `json:"metrics,omitempty"`
	Initial    *models.MetricsSnapshot       `json:"initial_metrics,omitempty"`
	Deltas     map[string]models.MetricDelta `json:"deltas"`
	Outcome    models.Outcome                `json:"outcome"`
	File       pathutil.PathKey              `json:"file"`
	SolutionID int                           `json:"solution_id"`
}

// ApplyOutcome is returned by ApplyFix.
type ApplyOutcome struct {
	Result  *fix.ApplyResult `json:"result,omitempty"`
	Outcome models.Outcome   `json:"outcome"`
}

// ValidationOutcome is returned by Validate.
type ValidationOutcome struct {
	Outcome models.Outcome          `json:"outcome"`
	Result  models.ValidationResult `json:"result"`
}

// CommitResult is returned by Commit.
type CommitResult struct {
	Commit  *repository.Committed `json:"commit,omitempty"`
	Outcome models.Outcome        `json:"outcome"`
}
