package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/repository"
	"github.com/joshsymonds/fixloop/internal/storage"
)

// Commit records the applied fixes of the working copy as one commit and
// pushes it. Committed code becomes the metrics baseline, so initial and
// candidate snapshots are dropped. A failed push degrades the outcome; the
// local commit stands.
func (c *Coordinator) Commit(ctx context.Context, message string) (res CommitResult) {
	defer func() { c.finish("commit", res.Outcome) }()

	message = strings.TrimSpace(message)
	if message == "" {
		res.Outcome = models.Failed(models.NewToolErrorf(component, models.ErrorTypeConfig, "commit message is required"))
		return res
	}
	if c.deps.Committer == nil {
		res.Outcome = models.Failed(models.NewToolErrorf("git", models.ErrorTypeUnavailable, "committing is not configured"))
		return res
	}

	c.session.Lock()
	defer c.session.Unlock()

	committed, err := c.deps.Committer.Commit(ctx, message)
	res.Commit = committed
	entry := storage.Entry{Kind: storage.EventCommit, Message: message}
	if committed != nil {
		entry.Commit = committed.Hash
		c.deps.Cache.ResetMetrics()
	}

	switch {
	case committed != nil && errors.Is(err, repository.ErrPushFailed):
		c.logger.Warn("Commit not pushed", "hash", committed.Hash, "error", err)
		res.Outcome = models.Degraded(fmt.Sprintf("Committed %d files locally", len(committed.Files)))
		res.Outcome.Detail = err.Error()
	case err != nil:
		c.logger.Error("Commit failed", "error", err)
		res.Outcome = models.Failed(classifyCommitError(err))
	case committed.Pushed:
		res.Outcome = models.Succeeded(fmt.Sprintf("Committed %d files and pushed to %s", len(committed.Files), committed.Remote))
	default:
		res.Outcome = models.Succeeded(fmt.Sprintf("Committed %d files", len(committed.Files)))
	}

	entry.Status = res.Outcome.Status
	c.record(entry)
	return res
}

func classifyCommitError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNothingToCommit):
		return models.NewToolError("git", models.ErrorTypeNoChange, err)
	case errors.Is(err, repository.ErrNotRepository):
		return models.NewToolError("git", models.ErrorTypeConfig, err)
	}
	return err
}
