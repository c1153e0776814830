// Package fix turns model-proposed snippets into edited Java sources, both in
// isolated scratch workspaces and in the canonical working copy.
package fix

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joshsymonds/fixloop/internal/build"
	"github.com/joshsymonds/fixloop/internal/cache"
	"github.com/joshsymonds/fixloop/internal/codemetrics"
	"github.com/joshsymonds/fixloop/internal/llm"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/telemetry"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// Rewriter splices a fixed snippet into a file in place of a buggy one.
type Rewriter interface {
	Rewrite(ctx context.Context, content, buggy, fixed string) (string, error)
}

// ApplyResult is the outcome of applying a fix to the working copy.
type ApplyResult struct {
	Before       *models.MetricsSnapshot       `json:"before,omitempty"`
	After        *models.MetricsSnapshot       `json:"after,omitempty"`
	Deltas       map[string]models.MetricDelta `json:"deltas"`
	Content      string                        `json:"content"`
	Message      string                        `json:"message"`
	MetricsError string                        `json:"metrics_error,omitempty"`
	File         pathutil.PathKey              `json:"file"`
}

// Applier edits the canonical working copy.
type Applier struct {
	rewriter  Rewriter
	formatter build.Formatter
	metrics   codemetrics.Source
	cache     *cache.AnalysisCache
	workspace *Workspace
	logger    logger.Logger
	repoRoot  string
}

// NewApplier creates an applier for the working copy at repoRoot.
func NewApplier(repoRoot string, rewriter Rewriter, formatter build.Formatter, metrics codemetrics.Source,
	analysisCache *cache.AnalysisCache, workspace *Workspace) *Applier {
	return NewApplierWithLogger(repoRoot, rewriter, formatter, metrics, analysisCache, workspace, logger.GetGlobalLogger())
}

// NewApplierWithLogger creates an applier with a custom logger.
func NewApplierWithLogger(repoRoot string, rewriter Rewriter, formatter build.Formatter, metrics codemetrics.Source,
	analysisCache *cache.AnalysisCache, workspace *Workspace, log logger.Logger) *Applier {
	if formatter == nil {
		formatter = build.NopFormatter{}
	}
	return &Applier{
		repoRoot:  repoRoot,
		rewriter:  rewriter,
		formatter: formatter,
		metrics:   metrics,
		cache:     analysisCache,
		workspace: workspace,
		logger:    log,
	}
}

// Replace returns content with buggy replaced by fixed. A rewrite whose
// brace balance differs from content is discarded and content is returned
// unchanged, so callers see it as a no-op.
func (a *Applier) Replace(ctx context.Context, content, buggy, fixed string) (string, error) {
	fixed = llm.StripCodeFences(fixed)
	if strings.TrimSpace(fixed) == "" || strings.TrimSpace(buggy) == strings.TrimSpace(fixed) {
		return content, nil
	}

	out, err := a.rewriter.Rewrite(ctx, content, buggy, fixed)
	if err != nil {
		return content, fmt.Errorf("rewriting snippet: %w", err)
	}
	out = llm.StripCodeFences(out)

	if braceBalance(out) != braceBalance(content) {
		a.logger.Warn("Discarding rewrite with unbalanced braces",
			"before", braceBalance(content), "after", braceBalance(out))
		return content, nil
	}
	return preserveTrailingNewline(content, out), nil
}

// Apply replaces buggy with fixed in file, writes the result, formats it and
// reports metric deltas against the initial snapshot. Metric failures are
// reported on the result; the edit itself stands.
func (a *Applier) Apply(ctx context.Context, file pathutil.PathKey, buggy, fixed string) (*ApplyResult, error) {
	target := file.Abs(a.repoRoot)
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("target file not found: %w", err)
	}
	original, err := os.ReadFile(target) //nolint:gosec // inside the working copy
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	content := string(original)

	updated, err := a.Replace(ctx, content, buggy, fixed)
	if err != nil {
		telemetry.AppliesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	if updated == content {
		telemetry.AppliesTotal.WithLabelValues("no_change").Inc()
		return nil, models.NewNoChangeError(file.String())
	}

	// The pre-fix snapshot must be captured before the first write.
	before, beforeErr := a.cache.InitialMetricsOrCompute(ctx, file, func(ctx context.Context) (*models.MetricsSnapshot, error) {
		return a.metrics.GetMetrics(ctx, file, a.repoRoot)
	})

	if err := os.WriteFile(target, []byte(updated), info.Mode().Perm()); err != nil {
		telemetry.AppliesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("writing %s: %w", file, err)
	}
	if err := a.formatter.Format(ctx, target); err != nil {
		a.logger.Warn("Formatter failed, keeping unformatted fix", "file", file, "error", err)
	}
	if formatted, err := os.ReadFile(target); err == nil { //nolint:gosec // inside the working copy
		updated = string(formatted)
	}

	a.cache.Invalidate(file)
	telemetry.AppliesTotal.WithLabelValues("applied").Inc()

	result := &ApplyResult{
		File:    file,
		Content: updated,
		Message: "Fix applied successfully",
		Before:  before,
		Deltas:  map[string]models.MetricDelta{},
	}
	if beforeErr != nil {
		a.logger.Warn("No initial metrics for comparison", "file", file, "error", beforeErr)
		result.MetricsError = beforeErr.Error()
		return result, nil
	}

	after, err := a.measureApplied(ctx, file, updated)
	if err != nil {
		a.logger.Warn("Failed to measure applied fix", "file", file, "error", err)
		result.MetricsError = err.Error()
		return result, nil
	}
	result.After = after
	result.Deltas = models.CompareMetrics(before, after, models.TrackedMetrics...)

	a.logger.Info("Applied fix", "file", file, "deltas", len(result.Deltas))
	return result, nil
}

func (a *Applier) measureApplied(ctx context.Context, file pathutil.PathKey, content string) (*models.MetricsSnapshot, error) {
	dir, err := a.workspace.AppliedDir(file)
	if err != nil {
		return nil, err
	}
	if _, err := a.workspace.Materialize(dir, file, content); err != nil {
		return nil, err
	}
	return a.metrics.GetMetrics(ctx, file, dir)
}

// braceBalance counts opening minus closing braces.
func braceBalance(s string) int {
	return strings.Count(s, "{") - strings.Count(s, "}")
}

// preserveTrailingNewline keeps the file's final newline convention, which
// models tend to drop.
func preserveTrailingNewline(original, updated string) string {
	if strings.HasSuffix(original, "\n") && !strings.HasSuffix(updated, "\n") {
		return updated + "\n"
	}
	return updated
}
