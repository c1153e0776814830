package coordinator

import (
	"context"
	"fmt"

	"github.com/joshsymonds/fixloop/internal/cache"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/normalize"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

const purposeAnalyze = "analyze"

// AnalyzeFile returns the findings of tool for file along with the file's
// initial metrics. Results are served from the analysis cache while fresh.
// A compile failure is a failed outcome, distinct from zero findings.
func (c *Coordinator) AnalyzeFile(ctx context.Context, file string, tool models.Tool) (res AnalysisResult) {
	res.Tool = tool
	res.Findings = []models.Finding{}
	defer func() { c.finish("analyze", res.Outcome) }()

	c.session.RLock()
	defer c.session.RUnlock()

	key, abs, err := c.resolve(file)
	if err != nil {
		res.Outcome = models.Failed(err)
		return res
	}
	res.File = key
	unlock := c.locks.RLock(key)
	defer unlock()

	content, err := c.readFile(abs)
	if err != nil {
		res.Outcome = models.Failed(err)
		return res
	}
	res.Content = content

	var metricsErr error
	entry, hit, err := c.deps.Cache.GetOrLoad(ctx, key, tool, func(ctx context.Context) (cache.Entry, error) {
		findings, status, err := c.scan(ctx, key, tool, content)
		if err != nil {
			return cache.Entry{}, err
		}
		snap, err := c.initialMetrics(ctx, key)
		metricsErr = err
		return cache.Entry{Findings: findings, Metrics: snap, Report: status}, nil
	})
	if err != nil {
		c.logger.Warn("Analysis failed", "file", key, "tool", tool, "error", err)
		res.Outcome = models.Failed(err)
		return res
	}

	res.Findings = entry.Findings
	res.Metrics = entry.Metrics
	res.Cached = hit
	res.ReportStatus = entry.Report
	status := entry.Report
	if res.Metrics == nil && metricsErr == nil {
		// an earlier load may have run before metrics were obtainable
		res.Metrics, metricsErr = c.initialMetrics(ctx, key)
	}

	msg := fmt.Sprintf("Found %d issues", len(res.Findings))
	switch {
	case status == normalize.ReportAbsent:
		res.Outcome = models.Degraded(msg)
		res.Outcome.Detail = "analyzer produced no report"
	case status == normalize.ReportMalformed:
		res.Outcome = models.Degraded(msg)
		res.Outcome.Detail = "analyzer report could not be parsed"
	case metricsErr != nil:
		res.Outcome = models.Degraded(msg)
		res.Outcome.Detail = "metrics unavailable: " + metricsErr.Error()
	default:
		res.Outcome = models.Succeeded(msg)
		if hit {
			res.Outcome.Detail = "served from cache"
		}
	}
	return res
}

// scan compiles on demand, runs tool and keeps the findings for file. A
// malformed report degrades to zero findings.
func (c *Coordinator) scan(ctx context.Context, file pathutil.PathKey, tool models.Tool,
	content string) ([]models.Finding, normalize.ReportStatus, error) {
	if c.deps.Scanner.NeedsCompile(file, tool) {
		c.logger.Info("Class file missing, compiling", "file", file)
		if err := c.deps.Scanner.Compile(ctx, file); err != nil {
			return nil, "", fmt.Errorf("cannot analyze %s with %s: %w", file, tool, err)
		}
	}

	report, err := c.deps.Scanner.Run(ctx, file, tool, purposeAnalyze)
	if err != nil {
		if models.IsParseError(err) {
			c.logger.Warn("Unparsable report, treating as no findings", "file", file, "tool", tool, "error", err)
			return []models.Finding{}, normalize.ReportMalformed, nil
		}
		return nil, report.Status, err
	}

	findings := models.ForFile(report.Findings, file)
	normalize.AttachSnippets(findings, content)
	return findings, report.Status, nil
}

// initialMetrics returns the permanent pre-fix snapshot of file, computing
// it from the working copy on first use.
func (c *Coordinator) initialMetrics(ctx context.Context, file pathutil.PathKey) (*models.MetricsSnapshot, error) {
	return c.deps.Cache.InitialMetricsOrCompute(ctx, file, func(ctx context.Context) (*models.MetricsSnapshot, error) {
		return c.deps.Metrics.GetMetrics(ctx, file, c.deps.RepoRoot)
	})
}
