package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/storage"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// ApplyRequest names the edit to make. When SolutionID refers to a
// candidate of the latest batch for File, empty Buggy and Fixed default to
// that batch's snippet and the candidate's code.
type ApplyRequest struct {
	File       string
	Buggy      string
	Fixed      string
	SolutionID int
}

// ValidateRequest names the finding a fix targeted.
type ValidateRequest struct {
	File string
	Tool models.Tool
	Type string
	Line int
}

// ApplyFix edits the canonical working copy. A fix that changes nothing is
// a failed outcome. Missing metrics degrade the outcome; the edit stands.
func (c *Coordinator) ApplyFix(ctx context.Context, req ApplyRequest) (res ApplyOutcome) {
	defer func() { c.finish("apply", res.Outcome) }()

	c.session.RLock()
	defer c.session.RUnlock()

	key, _, err := c.resolve(req.File)
	if err != nil {
		res.Outcome = models.Failed(err)
		return res
	}

	buggy, fixed := req.Buggy, req.Fixed
	if req.SolutionID > 0 && (buggy == "" || fixed == "") {
		state, cand, err := c.lookup(key, req.SolutionID)
		if err != nil {
			res.Outcome = models.Failed(err)
			return res
		}
		if buggy == "" {
			buggy = state.batch.Finding.CodeSnippet
		}
		if fixed == "" {
			fixed = cand.Code
		}
	}
	if strings.TrimSpace(fixed) == "" {
		res.Outcome = models.Failed(models.NewToolErrorf(component, models.ErrorTypeConfig, "fixed code is required"))
		return res
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	entry := storage.Entry{Kind: storage.EventApply, File: key, SolutionID: req.SolutionID}
	result, err := c.deps.Applier.Apply(ctx, key, buggy, fixed)
	if err != nil {
		c.logger.Warn("Fix not applied", "file", key, "solution_id", req.SolutionID, "error", err)
		res.Outcome = models.Failed(err)
		entry.Status, entry.Message = res.Outcome.Status, res.Outcome.Message
		c.record(entry)
		return res
	}
	res.Result = result

	// the batch was generated from content that no longer exists
	c.forgetBatch(key)

	if result.MetricsError != "" {
		res.Outcome = models.Degraded(result.Message)
		res.Outcome.Detail = "metrics unavailable: " + result.MetricsError
	} else {
		res.Outcome = models.Succeeded(result.Message)
	}
	entry.Status, entry.Message, entry.Deltas = res.Outcome.Status, result.Message, result.Deltas
	c.record(entry)
	return res
}

// Validate re-analyzes file after a fix and reports whether the targeted
// finding is gone. A compile failure before analysis degrades the outcome;
// an analysis that could not run fails it.
func (c *Coordinator) Validate(ctx context.Context, req ValidateRequest) (res ValidationOutcome) {
	res.Result = models.FailedValidation("Validation did not run")
	defer func() { c.finish("validate", res.Outcome) }()

	c.session.RLock()
	defer c.session.RUnlock()

	key, _, err := c.resolve(req.File)
	if err != nil {
		res.Result = models.FailedValidation("Validation failed: " + err.Error())
		res.Result.ErrorType = models.ClassifyError(err)
		res.Outcome = models.Failed(err)
		return res
	}
	tool := req.Tool
	if tool == "" {
		tool = models.ToolSpotBugs
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	result := c.deps.Validator.Validate(ctx, key, req.Line, req.Type, tool)
	res.Result = result
	// validation recompiled and re-analyzed; cached analysis is stale
	c.deps.Cache.Invalidate(key)

	switch {
	case result.Failed:
		errType := result.ErrorType
		if errType == "" {
			errType = models.ErrorTypeExecution
		}
		res.Outcome = models.Outcome{Status: models.StatusFailed, Message: result.Message, ErrorType: errType}
	case result.CompileFailed:
		res.Outcome = models.Degraded(result.Message)
		res.Outcome.Detail = "compilation failed; analyzed previously compiled classes"
	default:
		res.Outcome = models.Succeeded(result.Message)
	}

	fixedFlag := result.Fixed
	c.record(storage.Entry{
		Kind:           storage.EventValidate,
		File:           key,
		Tool:           tool,
		BugType:        req.Type,
		Line:           req.Line,
		Status:         res.Outcome.Status,
		Message:        result.Message,
		Fixed:          &fixedFlag,
		RemainingCount: result.RemainingCount,
	})
	return res
}

func (c *Coordinator) forgetBatch(file pathutil.PathKey) {
	c.batchesMu.Lock()
	defer c.batchesMu.Unlock()
	delete(c.batches, file)
}

// Batch returns the latest candidate batch for file, if any.
func (c *Coordinator) Batch(file string) (models.CandidateBatch, error) {
	key := pathutil.NewPathKey(file, c.deps.RepoRoot)
	c.batchesMu.Lock()
	defer c.batchesMu.Unlock()
	state, ok := c.batches[key]
	if !ok {
		return models.CandidateBatch{}, fmt.Errorf("%w: %s", ErrNoBatch, key)
	}
	batch := state.batch
	batch.Candidates = append([]models.FixCandidate(nil), state.batch.Candidates...)
	return batch, nil
}
