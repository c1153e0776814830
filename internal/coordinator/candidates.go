package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/normalize"
	"github.com/joshsymonds/fixloop/internal/validate"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// CandidatesRequest selects the finding to fix. Finding may be given
// directly; otherwise the file is analyzed with Tool and the finding of Type
// at Line is used. Content defaults to the file on disk.
type CandidatesRequest struct {
	Finding *models.Finding
	File    string
	Content string
	Tool    models.Tool
	Type    string
	Line    int
}

// GenerateCandidates asks the model for fixes to one finding and measures
// each in its own scratch workspace. The canonical file is not modified.
func (c *Coordinator) GenerateCandidates(ctx context.Context, req CandidatesRequest) (res CandidatesResult) {
	defer func() { c.finish("generate", res.Outcome) }()

	finding, content, err := c.targetFinding(ctx, req)
	if err != nil {
		res.Outcome = models.Failed(err)
		return res
	}

	c.session.RLock()
	defer c.session.RUnlock()
	unlock := c.locks.RLock(finding.File)
	defer unlock()

	finding.CodeSnippet = c.statement(ctx, finding, content)

	batch, err := c.deps.Candidates.Generate(ctx, finding, content)
	res.Batch = batch
	if err != nil {
		c.logger.Error("Candidate generation failed", "file", finding.File, "error", err)
		res.Outcome = models.Failed(err)
		return res
	}
	res.Initial, _ = c.deps.Cache.InitialMetrics(finding.File)

	c.batchesMu.Lock()
	c.batches[finding.File] = &batchState{batch: batch, content: content}
	c.batchesMu.Unlock()

	failed := 0
	for _, cand := range batch.Candidates {
		if cand.Failed() {
			failed++
		}
	}
	switch {
	case len(batch.Candidates) == 0:
		res.Outcome = models.Degraded("No solutions generated")
	case failed == len(batch.Candidates):
		res.Outcome = models.Degraded(fmt.Sprintf("Generated %d solutions, none could be isolated", failed))
	case failed > 0:
		res.Outcome = models.Degraded(fmt.Sprintf("Generated %d solutions, %d failed isolation", len(batch.Candidates), failed))
	default:
		res.Outcome = models.Succeeded(fmt.Sprintf("Generated %d solutions", len(batch.Candidates)))
	}
	return res
}

// targetFinding resolves the finding and source content a request refers to.
func (c *Coordinator) targetFinding(ctx context.Context, req CandidatesRequest) (models.Finding, string, error) {
	if req.Finding != nil {
		finding := *req.Finding
		if req.File != "" || finding.File.IsZero() {
			finding.File = pathutil.NewPathKey(req.File, c.deps.RepoRoot)
		}
		content := req.Content
		if content == "" {
			c.session.RLock()
			_, abs, err := c.resolve(finding.File.String())
			if err == nil {
				content, err = c.readFile(abs)
			}
			c.session.RUnlock()
			if err != nil {
				return finding, "", err
			}
		}
		return finding, content, nil
	}

	tool := req.Tool
	if tool == "" {
		tool = models.ToolSpotBugs
	}
	analysis := c.AnalyzeFile(ctx, req.File, tool)
	if !analysis.Outcome.OK() {
		return models.Finding{}, "", fmt.Errorf("analyzing %s: %s", req.File, analysis.Outcome.Message)
	}
	finding, ok := validate.Match(analysis.Findings, req.Line, req.Type, 0)
	if !ok {
		return models.Finding{}, "", models.NewToolError(component, models.ErrorTypeConfig,
			fmt.Errorf("%w: %s at line %d of %s", ErrFindingNotFound, req.Type, req.Line, analysis.File))
	}
	content := req.Content
	if content == "" {
		content = analysis.Content
	}
	return finding, content, nil
}

// statement returns the code the model should rewrite for finding. The
// extractor is consulted when configured; the line window is the fallback.
func (c *Coordinator) statement(ctx context.Context, finding models.Finding, content string) string {
	window := finding.CodeSnippet
	if window == "" {
		window = normalize.ExtractSnippet(content, finding.Line)
	}
	if c.deps.Extractor == nil {
		return window
	}
	stmt, err := c.deps.Extractor.ExtractStatement(ctx, content, finding.Line, finding.Description)
	if err != nil || strings.TrimSpace(stmt) == "" || !strings.Contains(content, strings.TrimSpace(stmt)) {
		c.logger.Debug("Using line window as snippet", "file", finding.File, "line", finding.Line, "error", err)
		return window
	}
	return strings.TrimSpace(stmt)
}

// RefineCandidate regenerates one candidate of the latest batch for file
// from user feedback.
func (c *Coordinator) RefineCandidate(ctx context.Context, file string, solutionID int, feedback string) (res CandidateResult) {
	defer func() { c.finish("refine", res.Outcome) }()

	c.session.RLock()
	defer c.session.RUnlock()

	key := pathutil.NewPathKey(file, c.deps.RepoRoot)
	state, current, err := c.lookup(key, solutionID)
	if err != nil {
		res.Outcome = models.Failed(err)
		return res
	}
	if strings.TrimSpace(feedback) == "" {
		res.Candidate = current
		res.Outcome = models.Failed(models.NewToolErrorf(component, models.ErrorTypeConfig, "feedback is required"))
		return res
	}

	unlock := c.locks.RLock(key)
	defer unlock()

	refined, err := c.deps.Candidates.Refine(ctx, state.batch.Finding, state.content, current, feedback)
	res.Candidate = refined
	if err != nil {
		res.Outcome = models.Failed(err)
		return res
	}

	c.batchesMu.Lock()
	for i := range state.batch.Candidates {
		if state.batch.Candidates[i].SolutionID == solutionID {
			state.batch.Candidates[i] = refined
		}
	}
	c.batchesMu.Unlock()

	if refined.Failed() {
		res.Outcome = models.Degraded("Solution refined but could not be isolated")
		res.Outcome.Detail = refined.Error
		return res
	}
	res.Outcome = models.Succeeded(fmt.Sprintf("Solution %d refined", solutionID))
	return res
}

// CandidateMetrics returns the metrics of one candidate compared with the
// file's initial snapshot.
func (c *Coordinator) CandidateMetrics(ctx context.Context, file string, solutionID int) (res MetricsResult) {
	res.SolutionID = solutionID
	res.Deltas = map[string]models.MetricDelta{}
	defer func() { c.finish("candidate_metrics", res.Outcome) }()

	c.session.RLock()
	defer c.session.RUnlock()

	key := pathutil.NewPathKey(file, c.deps.RepoRoot)
	res.File = key
	if key.IsZero() {
		res.Outcome = models.Failed(models.NewToolErrorf(component, models.ErrorTypeConfig, "file is required"))
		return res
	}

	snap, err := c.deps.Candidates.Metrics(ctx, key, solutionID)
	if err != nil {
		res.Outcome = models.Failed(err)
		return res
	}
	res.Metrics = snap

	initial, ok := c.deps.Cache.InitialMetrics(key)
	if !ok {
		res.Outcome = models.Degraded("Candidate measured")
		res.Outcome.Detail = "no initial metrics to compare against"
		return res
	}
	res.Initial = initial
	res.Deltas = models.CompareMetrics(initial, snap, models.TrackedMetrics...)
	res.Outcome = models.Succeeded("Candidate measured")
	return res
}

// lookup returns the latest batch for file and the candidate solutionID.
func (c *Coordinator) lookup(file pathutil.PathKey, solutionID int) (*batchState, models.FixCandidate, error) {
	c.batchesMu.Lock()
	defer c.batchesMu.Unlock()

	state, ok := c.batches[file]
	if !ok {
		return nil, models.FixCandidate{}, models.NewToolError(component, models.ErrorTypeConfig, fmt.Errorf("%w: %s", ErrNoBatch, file))
	}
	for _, cand := range state.batch.Candidates {
		if cand.SolutionID == solutionID {
			return state, cand, nil
		}
	}
	return nil, models.FixCandidate{}, models.NewToolError(component, models.ErrorTypeConfig,
		fmt.Errorf("%w: %d for %s", ErrUnknownSolution, solutionID, file))
}
