package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/fixloop/internal/cache"
	"github.com/joshsymonds/fixloop/internal/fix"
	"github.com/joshsymonds/fixloop/internal/llm"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/normalize"
	"github.com/joshsymonds/fixloop/internal/repository"
	"github.com/joshsymonds/fixloop/internal/storage"
	"github.com/joshsymonds/fixloop/internal/validate"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

const fooFile pathutil.PathKey = "src/main/java/com/acme/Foo.java"

const fooSource = `package com.acme;

public class Foo {
    public int length(String name) {
        String value = lookup(name);
        return value.length();
    }

    private String lookup(String name) {
        return System.getenv(name);
    }
}
`

const buggyStatement = "return value.length();"

const npType = "NP_NULL_ON_SOME_PATH"

func npFinding(file pathutil.PathKey, line int) models.Finding {
	return models.Finding{
		File:        file,
		Tool:        models.ToolSpotBugs,
		Type:        npType,
		Category:    "CORRECTNESS",
		Severity:    models.SeverityMedium,
		Description: "Possible null pointer dereference of value",
		Line:        line,
		Resolved:    true,
	}
}

// fakeScanner serves canned reports. Reports for the analyze and validate
// purposes are configured separately.
type fakeScanner struct {
	compiled   map[pathutil.PathKey]bool
	compileErr error
	runErr     error
	analyze    normalize.Report
	validate   normalize.Report
	binDir     string
	purposes   []string
	compiles   int
	delay      time.Duration
	mu         sync.Mutex
}

func newFakeScanner(binDir string) *fakeScanner {
	return &fakeScanner{
		binDir:   binDir,
		compiled: make(map[pathutil.PathKey]bool),
		analyze:  normalize.Report{Status: normalize.ReportParsed},
		validate: normalize.Report{Status: normalize.ReportParsed},
	}
}

func (s *fakeScanner) NeedsCompile(file pathutil.PathKey, tool models.Tool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tool.Compiled() && !s.compiled[file]
}

func (s *fakeScanner) Compile(_ context.Context, file pathutil.PathKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compiles++
	if s.compileErr != nil {
		return s.compileErr
	}
	s.compiled[file] = true
	return nil
}

func (s *fakeScanner) Run(_ context.Context, _ pathutil.PathKey, _ models.Tool, purpose string) (normalize.Report, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purposes = append(s.purposes, purpose)
	if s.runErr != nil {
		return normalize.Report{Status: normalize.ReportMalformed}, s.runErr
	}
	if purpose == "validate" {
		return s.validate, nil
	}
	return s.analyze, nil
}

func (s *fakeScanner) BinDir() string { return s.binDir }

func (s *fakeScanner) runs(purpose string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.purposes {
		if p == purpose {
			n++
		}
	}
	return n
}

func (s *fakeScanner) compileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compiles
}

// lineMetrics measures a variant by counting lines (loc) and "if"
// statements plus one (wmc).
type lineMetrics struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *lineMetrics) GetMetrics(_ context.Context, file pathutil.PathKey, sourceRoot string) (*models.MetricsSnapshot, error) {
	m.mu.Lock()
	m.calls++
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file.Abs(sourceRoot))
	if err != nil {
		data, err = os.ReadFile(filepath.Join(sourceRoot, file.Base()))
	}
	if err != nil {
		return nil, err
	}
	content := string(data)
	return &models.MetricsSnapshot{
		File:  file,
		Class: "com.acme.Foo",
		Values: map[string]float64{
			models.MetricLOC: float64(strings.Count(content, "\n")),
			models.MetricWMC: float64(strings.Count(content, "if (") + 1),
		},
	}, nil
}

// literalRewriter substitutes snippets verbatim, standing in for the model.
type literalRewriter struct{}

func (literalRewriter) Rewrite(_ context.Context, content, buggy, fixed string) (string, error) {
	return strings.Replace(content, buggy, fixed, 1), nil
}

type fakeAssistant struct {
	mu         sync.Mutex
	candidates []models.FixCandidate
	refinement llm.Refinement
	err        error
	contexts   []llm.FixContext
}

func (a *fakeAssistant) Candidates(_ context.Context, fc llm.FixContext) ([]models.FixCandidate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.contexts = append(a.contexts, fc)
	if a.err != nil {
		return nil, a.err
	}
	return append([]models.FixCandidate(nil), a.candidates...), nil
}

func (a *fakeAssistant) Refine(context.Context, string, string, string, string, string) (llm.Refinement, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return llm.Refinement{}, a.err
	}
	return a.refinement, nil
}

func (a *fakeAssistant) lastContext() llm.FixContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.contexts) == 0 {
		return llm.FixContext{}
	}
	return a.contexts[len(a.contexts)-1]
}

type extractorFunc func(ctx context.Context, content string, line int, description string) (string, error)

func (f extractorFunc) ExtractStatement(ctx context.Context, content string, line int, description string) (string, error) {
	return f(ctx, content, line, description)
}

type fixture struct {
	coord     *Coordinator
	scanner   *fakeScanner
	metrics   *lineMetrics
	assistant *fakeAssistant
	cache     *cache.AnalysisCache
	journal   *storage.Journal
	workspace *fix.Workspace
	log       *logger.MockLogger
	repo      string
	root      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	repo := filepath.Join(root, "repo")
	writeFile(t, fooFile.Abs(repo), fooSource)

	log := logger.NewMockLogger()
	f := &fixture{
		root:    root,
		repo:    repo,
		log:     log,
		scanner: newFakeScanner(filepath.Join(root, "bin")),
		metrics: &lineMetrics{},
		assistant: &fakeAssistant{candidates: []models.FixCandidate{
			{Code: "if (value == null) {\n            return 0;\n        }\n        return value.length();", Explanation: "guard", Rating: 6},
			{Code: "return value == null ? 0 : value.length();", Explanation: "ternary", Rating: 9},
		}},
		cache:     cache.NewAnalysisCache(time.Minute, cache.WithLogger(log)),
		workspace: fix.NewWorkspace(filepath.Join(root, "scratch")),
	}
	var err error
	f.journal, err = storage.NewJournalWithLogger(filepath.Join(root, "data"), log)
	require.NoError(t, err)

	applier := fix.NewApplierWithLogger(repo, literalRewriter{}, nil, f.metrics, f.cache, f.workspace, log)
	manager := fix.NewCandidateManagerWithLogger(f.assistant, applier, f.metrics, f.cache, f.workspace,
		fix.ManagerOptions{Parallelism: 2}, log)

	f.coord, err = NewWithLogger(Deps{
		Fetcher:    repository.NewFetcher(repo, repository.WithLogger(log)),
		Scanner:    f.scanner,
		Metrics:    f.metrics,
		Cache:      f.cache,
		Candidates: manager,
		Applier:    applier,
		Validator:  validate.NewValidatorWithLogger(f.scanner, nil, log),
		Workspace:  f.workspace,
		Journal:    f.journal,
		Extractor: extractorFunc(func(context.Context, string, int, string) (string, error) {
			return buggyStatement, nil
		}),
		RepoRoot: repo,
	}, log)
	require.NoError(t, err)
	return f
}

func (f *fixture) read(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(fooFile.Abs(f.repo))
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}
