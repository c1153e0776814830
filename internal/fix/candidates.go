package fix

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/fixloop/internal/build"
	"github.com/joshsymonds/fixloop/internal/cache"
	"github.com/joshsymonds/fixloop/internal/codemetrics"
	"github.com/joshsymonds/fixloop/internal/llm"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/normalize"
	"github.com/joshsymonds/fixloop/internal/telemetry"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// Assistant proposes and refines fixes.
type Assistant interface {
	Candidates(ctx context.Context, fc llm.FixContext) ([]models.FixCandidate, error)
	Refine(ctx context.Context, bugType, description, original, current, feedback string) (llm.Refinement, error)
}

// CandidateManager generates candidates for a finding and measures each one
// in its own scratch workspace. The canonical working copy is never touched.
type CandidateManager struct {
	assistant   Assistant
	applier     *Applier
	formatter   build.Formatter
	metrics     codemetrics.Source
	cache       *cache.AnalysisCache
	workspace   *Workspace
	logger      logger.Logger
	perRequest  int
	parallelism int
}

// ManagerOptions tunes candidate generation.
type ManagerOptions struct {
	Formatter   build.Formatter
	PerRequest  int
	Parallelism int
}

// NewCandidateManager creates a manager using the global logger.
func NewCandidateManager(assistant Assistant, applier *Applier, metrics codemetrics.Source,
	analysisCache *cache.AnalysisCache, workspace *Workspace, opts ManagerOptions) *CandidateManager {
	return NewCandidateManagerWithLogger(assistant, applier, metrics, analysisCache, workspace, opts, logger.GetGlobalLogger())
}

// NewCandidateManagerWithLogger creates a manager with a custom logger.
func NewCandidateManagerWithLogger(assistant Assistant, applier *Applier, metrics codemetrics.Source,
	analysisCache *cache.AnalysisCache, workspace *Workspace, opts ManagerOptions, log logger.Logger) *CandidateManager {
	if opts.Formatter == nil {
		opts.Formatter = build.NopFormatter{}
	}
	if opts.PerRequest < 1 {
		opts.PerRequest = 3
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &CandidateManager{
		assistant:   assistant,
		applier:     applier,
		formatter:   opts.Formatter,
		metrics:     metrics,
		cache:       analysisCache,
		workspace:   workspace,
		logger:      log,
		perRequest:  opts.PerRequest,
		parallelism: opts.Parallelism,
	}
}

// Generate asks the assistant for fixes to finding and isolates each one.
// Candidates are ordered by rating, highest first, ties kept in order of
// appearance. A candidate that cannot be isolated or measured carries an
// Error; it is never dropped and never aborts its siblings.
func (m *CandidateManager) Generate(ctx context.Context, finding models.Finding, content string) (models.CandidateBatch, error) {
	batch := models.CandidateBatch{
		BatchID:    uuid.NewString(),
		Finding:    finding,
		Candidates: []models.FixCandidate{},
	}

	snippet := finding.CodeSnippet
	if snippet == "" {
		snippet = normalize.ExtractSnippet(content, finding.Line)
	}

	candidates, err := m.assistant.Candidates(ctx, llm.FixContext{
		BugType:     finding.Type,
		Description: finding.Description,
		Snippet:     snippet,
		FileContent: content,
		Line:        finding.Line,
		Candidates:  m.perRequest,
	})
	if err != nil {
		return batch, fmt.Errorf("generating candidates: %w", err)
	}
	if len(candidates) == 0 {
		m.logger.Info("No candidates generated", "file", finding.File, "type", finding.Type)
		return batch, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Rating > candidates[j].Rating
	})
	for i := range candidates {
		candidates[i].SolutionID = i + 1
	}

	if err := m.workspace.Reset(finding.File); err != nil {
		m.logger.Warn("Failed to clear previous scratch workspaces", "file", finding.File, "error", err)
	}
	m.cache.ForgetCandidates(finding.File)

	var g errgroup.Group
	g.SetLimit(m.parallelism)
	for i := range candidates {
		g.Go(func() error {
			m.isolate(ctx, finding.File, content, snippet, &candidates[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, c := range candidates {
		status := "isolated"
		if c.Failed() {
			status = "failed"
			failed++
		}
		telemetry.CandidatesTotal.WithLabelValues(status).Inc()
	}
	m.logger.Info("Generated candidates", "file", finding.File, "count", len(candidates), "failed", failed, "batch_id", batch.BatchID)

	batch.Candidates = candidates
	return batch, nil
}

// isolate materializes one candidate into its scratch workspace and
// measures it. Failures are recorded on the candidate.
func (m *CandidateManager) isolate(ctx context.Context, file pathutil.PathKey, content, snippet string, c *models.FixCandidate) {
	log := m.logger.With("file", file, "solution_id", c.SolutionID)
	if c.Failed() {
		log.Debug("Skipping candidate that failed to parse", "error", c.Error)
		return
	}

	patched, err := m.applier.Replace(ctx, content, snippet, c.Code)
	if err != nil {
		log.Warn("Failed to apply candidate", "error", err)
		c.Error = err.Error()
		return
	}
	if patched == content {
		c.Error = models.NewNoChangeError(file.String()).Error()
		return
	}

	m.measure(ctx, log, file, patched, c)
}

func (m *CandidateManager) measure(ctx context.Context, log logger.Logger, file pathutil.PathKey, patched string, c *models.FixCandidate) {
	dir, err := m.workspace.CandidateDir(file, c.SolutionID)
	if err != nil {
		c.Error = err.Error()
		return
	}
	target, err := m.workspace.Materialize(dir, file, patched)
	if err != nil {
		c.Error = err.Error()
		return
	}
	c.ScratchDir = dir

	if err := m.formatter.Format(ctx, target); err != nil {
		log.Debug("Formatter failed on candidate", "error", err)
	}

	snap, err := m.metrics.GetMetrics(ctx, file, dir)
	if err != nil {
		log.Warn("Failed to measure candidate", "error", err)
		c.Error = fmt.Sprintf("measuring candidate: %v", err)
		return
	}
	c.Metrics = snap
	m.cache.SetCandidateMetrics(file, c.SolutionID, snap)
}

// Metrics returns the snapshot of one candidate, computing it from the
// candidate's scratch workspace on a cache miss.
func (m *CandidateManager) Metrics(ctx context.Context, file pathutil.PathKey, solutionID int) (*models.MetricsSnapshot, error) {
	if snap, ok := m.cache.CandidateMetrics(file, solutionID); ok {
		return snap, nil
	}

	dir, err := m.workspace.CandidateDir(file, solutionID)
	if err != nil {
		return nil, err
	}
	if _, ok := m.workspace.Variant(dir, file); !ok {
		return nil, fmt.Errorf("no scratch workspace for solution %d of %s", solutionID, file)
	}

	snap, err := m.metrics.GetMetrics(ctx, file, dir)
	if err != nil {
		return nil, fmt.Errorf("measuring solution %d: %w", solutionID, err)
	}
	m.cache.SetCandidateMetrics(file, solutionID, snap)
	return snap, nil
}

// Refine regenerates candidate from user feedback and re-measures it in the
// same scratch workspace. Only assistant failures are returned as errors.
func (m *CandidateManager) Refine(ctx context.Context, finding models.Finding, content string,
	current models.FixCandidate, feedback string) (models.FixCandidate, error) {
	refinement, err := m.assistant.Refine(ctx, finding.Type, finding.Description, content, current.Code, feedback)
	if err != nil {
		return current, fmt.Errorf("refining solution %d: %w", current.SolutionID, err)
	}

	refined := models.FixCandidate{
		SolutionID:  current.SolutionID,
		Rating:      current.Rating,
		Code:        refinement.Snippet,
		Explanation: "Refined from feedback: " + feedback,
	}
	log := m.logger.With("file", finding.File, "solution_id", refined.SolutionID)

	full := refinement.FullFile
	if strings.TrimSpace(full) == "" || full == content || braceBalance(full) != braceBalance(content) {
		log.Debug("Refined file unusable, splicing snippet instead")
		snippet := finding.CodeSnippet
		if snippet == "" {
			snippet = normalize.ExtractSnippet(content, finding.Line)
		}
		m.isolate(ctx, finding.File, content, snippet, &refined)
		return refined, nil
	}

	m.measure(ctx, log, finding.File, full, &refined)
	return refined, nil
}

// Content returns the materialized variant of a candidate.
func (m *CandidateManager) Content(file pathutil.PathKey, solutionID int) (string, error) {
	dir, err := m.workspace.CandidateDir(file, solutionID)
	if err != nil {
		return "", err
	}
	target, ok := m.workspace.Variant(dir, file)
	if !ok {
		return "", fmt.Errorf("no scratch workspace for solution %d of %s", solutionID, file)
	}
	data, err := os.ReadFile(target) //nolint:gosec // inside the scratch root
	if err != nil {
		return "", err
	}
	return string(data), nil
}
