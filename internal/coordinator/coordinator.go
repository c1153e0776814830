// Package coordinator owns the bug-fix lifecycle of one working copy:
// analysis, candidate generation, application and validation. Every public
// operation returns a result carrying a models.Outcome instead of an error.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/joshsymonds/fixloop/internal/build"
	"github.com/joshsymonds/fixloop/internal/cache"
	"github.com/joshsymonds/fixloop/internal/codemetrics"
	"github.com/joshsymonds/fixloop/internal/fix"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/repository"
	"github.com/joshsymonds/fixloop/internal/storage"
	"github.com/joshsymonds/fixloop/internal/telemetry"
	"github.com/joshsymonds/fixloop/internal/validate"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

const component = "coordinator"

// Errors surfaced through failed outcomes.
var (
	ErrFileNotFound     = errors.New("file not found in working copy")
	ErrFindingNotFound  = errors.New("finding not found")
	ErrNoBatch          = errors.New("no candidates generated for file")
	ErrUnknownSolution  = errors.New("unknown solution")
	ErrMissingComponent = errors.New("missing coordinator component")
)

// Fetcher replaces the working copy.
type Fetcher interface {
	Fetch(ctx context.Context, src repository.Source) (*repository.Fetched, error)
}

// Committer records the working copy's Java changes in version control.
type Committer interface {
	Commit(ctx context.Context, message string) (*repository.Committed, error)
}

// Scanner compiles and analyzes files of the working copy.
type Scanner interface {
	validate.Scanner
	NeedsCompile(file pathutil.PathKey, tool models.Tool) bool
	BinDir() string
}

// StatementExtractor narrows a finding to the statement it points at.
type StatementExtractor interface {
	ExtractStatement(ctx context.Context, content string, line int, description string) (string, error)
}

// Deps are the collaborators a Coordinator drives. Journal, Extractor and
// Committer are optional.
type Deps struct {
	Fetcher    Fetcher
	Committer  Committer
	Scanner    Scanner
	Metrics    codemetrics.Source
	Cache      *cache.AnalysisCache
	Candidates *fix.CandidateManager
	Applier    *fix.Applier
	Validator  *validate.Validator
	Workspace  *fix.Workspace
	Journal    *storage.Journal
	Extractor  StatementExtractor
	RepoRoot   string
}

func (d Deps) check() error {
	missing := ""
	switch {
	case d.Fetcher == nil:
		missing = "fetcher"
	case d.Scanner == nil:
		missing = "scanner"
	case d.Metrics == nil:
		missing = "metrics"
	case d.Cache == nil:
		missing = "cache"
	case d.Candidates == nil:
		missing = "candidate manager"
	case d.Applier == nil:
		missing = "applier"
	case d.Validator == nil:
		missing = "validator"
	case d.Workspace == nil:
		missing = "workspace"
	case d.RepoRoot == "":
		missing = "repository root"
	}
	if missing != "" {
		return fmt.Errorf("%w: %s", ErrMissingComponent, missing)
	}
	return nil
}

// batchState is the latest candidate batch for one file together with the
// content it was generated from.
type batchState struct {
	content string
	batch   models.CandidateBatch
}

// Coordinator serializes mutations per file and owns every cache and
// candidate registry of the session.
type Coordinator struct {
	deps    Deps
	logger  logger.Logger
	locks   *keyedMutex
	batches map[pathutil.PathKey]*batchState
	// session is held exclusively while the working copy is replaced.
	session   sync.RWMutex
	batchesMu sync.Mutex
}

// New creates a coordinator using the global logger.
func New(deps Deps) (*Coordinator, error) {
	return NewWithLogger(deps, logger.GetGlobalLogger())
}

// NewWithLogger creates a coordinator with a custom logger.
func NewWithLogger(deps Deps, log logger.Logger) (*Coordinator, error) {
	if err := deps.check(); err != nil {
		return nil, err
	}
	return &Coordinator{
		deps:    deps,
		logger:  log,
		locks:   newKeyedMutex(),
		batches: make(map[pathutil.PathKey]*batchState),
	}, nil
}

// RepoRoot returns the working copy directory.
func (c *Coordinator) RepoRoot() string {
	return c.deps.RepoRoot
}

// FetchRepository replaces the working copy with location and resets every
// cache, the bin directory and the scratch workspaces.
func (c *Coordinator) FetchRepository(ctx context.Context, location, branch string) (res FetchResult) {
	res.Files = []pathutil.PathKey{}
	defer func() { c.finish("fetch", res.Outcome) }()

	c.session.Lock()
	defer c.session.Unlock()

	fetched, err := c.deps.Fetcher.Fetch(ctx, repository.Source{Location: location, Branch: branch})
	if err != nil {
		c.logger.Error("Repository fetch failed", "location", location, "error", err)
		res.Outcome = models.Failed(err)
		return res
	}
	res.Dir, res.Head, res.File = fetched.Dir, fetched.Head, fetched.File

	c.deps.Cache.ResetAll()
	c.batchesMu.Lock()
	c.batches = make(map[pathutil.PathKey]*batchState)
	c.batchesMu.Unlock()

	var warnings []string
	if err := build.Clean(c.deps.Scanner.BinDir()); err != nil {
		c.logger.Warn("Failed to clean bin directory", "error", err)
		warnings = append(warnings, err.Error())
	}
	if err := c.deps.Workspace.Clear(); err != nil {
		c.logger.Warn("Failed to clear scratch workspaces", "error", err)
		warnings = append(warnings, err.Error())
	}
	if c.deps.Journal != nil {
		session := c.deps.Journal.NewSession()
		c.record(storage.Entry{Kind: storage.EventFetch, Status: models.StatusSuccess, Message: location})
		c.logger.Debug("Started journal session", "session_id", session)
	}

	files, err := repository.ListJavaFiles(c.deps.RepoRoot)
	if err != nil {
		res.Outcome = models.Failed(err)
		return res
	}
	res.Files = files

	msg := fmt.Sprintf("Fetched repository with %d Java files", len(files))
	c.logger.Info("Fetched repository", "location", location, "head", fetched.Head, "files", len(files))
	if len(warnings) > 0 {
		res.Outcome = models.Degraded(msg)
		res.Outcome.Detail = fmt.Sprintf("cleanup incomplete: %v", warnings)
		return res
	}
	res.Outcome = models.Succeeded(msg)
	return res
}

// ListFiles lists the Java sources of the working copy.
func (c *Coordinator) ListFiles(_ context.Context) (res FilesResult) {
	res.Files = []pathutil.PathKey{}
	defer func() { c.finish("list_files", res.Outcome) }()

	c.session.RLock()
	defer c.session.RUnlock()

	files, err := repository.ListJavaFiles(c.deps.RepoRoot)
	if err != nil {
		res.Outcome = models.Failed(err)
		return res
	}
	res.Files = files
	res.Outcome = models.Succeeded(fmt.Sprintf("%d Java files", len(files)))
	return res
}

// History returns journal entries, newest last. An empty session means the
// current one; "all" returns every session.
func (c *Coordinator) History(session string, limit int) ([]storage.Entry, error) {
	if c.deps.Journal == nil {
		return []storage.Entry{}, nil
	}
	switch session {
	case "":
		session = c.deps.Journal.SessionID()
	case "all":
		session = ""
	}
	return c.deps.Journal.Entries(session, limit)
}

// resolve canonicalizes file and checks it exists inside the working copy.
func (c *Coordinator) resolve(file string) (pathutil.PathKey, string, error) {
	key := pathutil.NewPathKey(file, c.deps.RepoRoot)
	if key.IsZero() {
		return "", "", models.NewToolErrorf(component, models.ErrorTypeConfig, "file is required")
	}
	abs, err := pathutil.JoinAndValidate(c.deps.RepoRoot, key.String())
	if err != nil {
		return "", "", models.NewToolError(component, models.ErrorTypeConfig, err)
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", "", models.NewToolError(component, models.ErrorTypeConfig, fmt.Errorf("%w: %s", ErrFileNotFound, key))
	}
	return key, abs, nil
}

func (c *Coordinator) readFile(abs string) (string, error) {
	data, err := os.ReadFile(abs) //nolint:gosec // resolved inside the working copy
	if err != nil {
		return "", fmt.Errorf("reading source: %w", err)
	}
	return string(data), nil
}

func (c *Coordinator) record(e storage.Entry) {
	if c.deps.Journal == nil {
		return
	}
	if _, err := c.deps.Journal.Record(e); err != nil {
		c.logger.Warn("Failed to record journal entry", "kind", e.Kind, "error", err)
	}
}

func (c *Coordinator) finish(operation string, outcome models.Outcome) {
	telemetry.ObserveOperation(operation, outcome.Status)
}
