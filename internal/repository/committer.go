package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// Commit errors.
var (
	ErrNotRepository   = errors.New("working copy is not a git repository")
	ErrNothingToCommit = errors.New("no Java changes to commit")
	ErrPushFailed      = errors.New("push failed")
)

// Committed describes a commit made from the working copy.
type Committed struct {
	Hash   string             `json:"hash"`
	Remote string             `json:"remote,omitempty"`
	Files  []pathutil.PathKey `json:"files"`
	Pushed bool               `json:"pushed"`
}

// Committer records changed Java sources of a working copy as one commit and
// pushes it to the configured remote.
type Committer struct {
	settings
	dir string
	now func() time.Time
}

// NewCommitter creates a committer for the working copy in dir.
func NewCommitter(dir string, opts ...Option) *Committer {
	return &Committer{settings: newSettings(opts), dir: dir, now: time.Now}
}

// Commit stages every changed .java file, commits it with message and pushes
// the branch. A failed push still returns the local commit, with an error
// wrapping ErrPushFailed. Working copies without the remote are committed
// locally only.
func (c *Committer) Commit(ctx context.Context, message string) (*Committed, error) {
	repo, err := git.PlainOpen(c.dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, c.dir)
		}
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}

	files, err := stageJava(wt)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNothingToCommit
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.authorName,
			Email: c.authorEmail,
			When:  c.now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("committing: %w", err)
	}
	committed := &Committed{Hash: hash.String(), Files: files}
	c.logger.Info("Committed fixes", "hash", committed.Hash, "files", len(files))

	remote, err := repo.Remote(c.remote)
	if errors.Is(err, git.ErrRemoteNotFound) {
		c.logger.Info("No remote configured, commit kept local", "remote", c.remote)
		return committed, nil
	}
	if err != nil {
		return committed, fmt.Errorf("%w: %w", ErrPushFailed, err)
	}

	var url string
	if urls := remote.Config().URLs; len(urls) > 0 {
		url = urls[0]
	}
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: c.remote,
		Auth:       c.auth(url),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		c.logger.Warn("Push failed", "remote", c.remote, "error", err)
		return committed, fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	committed.Remote = c.remote
	committed.Pushed = true
	c.logger.Info("Pushed fixes", "remote", c.remote, "hash", committed.Hash)
	return committed, nil
}

// stageJava adds changed and removes deleted .java files, leaving everything
// else in the working copy unstaged.
func stageJava(wt *git.Worktree) ([]pathutil.PathKey, error) {
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading worktree status: %w", err)
	}

	var files []pathutil.PathKey
	for path, st := range status {
		if !strings.EqualFold(pathExt(path), ".java") {
			continue
		}
		switch st.Worktree {
		case git.Unmodified:
			if st.Staging == git.Unmodified {
				continue
			}
		case git.Deleted:
			_, err = wt.Remove(path)
		default:
			_, err = wt.Add(path)
		}
		if err != nil {
			return nil, fmt.Errorf("staging %s: %w", path, err)
		}
		files = append(files, pathutil.PathKey(path))
	}
	sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })
	return files, nil
}

// pathExt is filepath.Ext for the slash-separated paths git reports.
func pathExt(p string) string {
	if i := strings.LastIndexByte(p, '.'); i > strings.LastIndexByte(p, '/') {
		return p[i:]
	}
	return ""
}
