package fix

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/fixloop/internal/cache"
	"github.com/joshsymonds/fixloop/internal/llm"
	"github.com/joshsymonds/fixloop/internal/models"
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

const buggySnippet = "return value.length();"

// literalRewriter substitutes snippets verbatim, standing in for the model.
type literalRewriter struct {
	mu    sync.Mutex
	calls int
	fail  map[string]error
}

func (r *literalRewriter) Rewrite(_ context.Context, content, buggy, fixed string) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if err, ok := r.fail[fixed]; ok {
		return "", err
	}
	return strings.Replace(content, buggy, fixed, 1), nil
}

func (r *literalRewriter) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// rewriterFunc adapts a function to Rewriter.
type rewriterFunc func(ctx context.Context, content, buggy, fixed string) (string, error)

func (f rewriterFunc) Rewrite(ctx context.Context, content, buggy, fixed string) (string, error) {
	return f(ctx, content, buggy, fixed)
}

// lineMetrics measures a variant by counting its lines (loc) and its "if"
// statements plus one (wmc).
type lineMetrics struct {
	mu    sync.Mutex
	roots []string
	err   error
}

func (m *lineMetrics) GetMetrics(_ context.Context, file pathutil.PathKey, sourceRoot string) (*models.MetricsSnapshot, error) {
	m.mu.Lock()
	m.roots = append(m.roots, sourceRoot)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	data, err := os.ReadFile(file.Abs(sourceRoot))
	if err != nil {
		data, err = os.ReadFile(filepath.Join(sourceRoot, file.Base()))
	}
	if err != nil {
		return &models.MetricsSnapshot{File: file, Values: map[string]float64{}}, nil
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

func (m *lineMetrics) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.roots)
}

type failingFormatter struct{}

func (failingFormatter) Format(context.Context, string) error {
	return errors.New("formatter exploded")
}

// fakeAssistant returns fixed candidates and refinements.
type fakeAssistant struct {
	candidates []models.FixCandidate
	refinement llm.Refinement
	err        error
	lastFC     llm.FixContext
}

func (a *fakeAssistant) Candidates(_ context.Context, fc llm.FixContext) ([]models.FixCandidate, error) {
	a.lastFC = fc
	if a.err != nil {
		return nil, a.err
	}
	return append([]models.FixCandidate(nil), a.candidates...), nil
}

func (a *fakeAssistant) Refine(context.Context, string, string, string, string, string) (llm.Refinement, error) {
	if a.err != nil {
		return llm.Refinement{}, a.err
	}
	return a.refinement, nil
}

type fixture struct {
	repo      string
	cache     *cache.AnalysisCache
	workspace *Workspace
	metrics   *lineMetrics
	rewriter  *literalRewriter
	applier   *Applier
	log       *logger.MockLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	repo := filepath.Join(root, "repo")
	target := fooFile.Abs(repo)
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o750))
	require.NoError(t, os.WriteFile(target, []byte(fooSource), 0o600))

	f := &fixture{
		repo:      repo,
		cache:     cache.NewAnalysisCache(time.Minute, cache.WithLogger(logger.NewMockLogger())),
		workspace: NewWorkspace(filepath.Join(root, "scratch")),
		metrics:   &lineMetrics{},
		rewriter:  &literalRewriter{fail: map[string]error{}},
		log:       logger.NewMockLogger(),
	}
	f.applier = NewApplierWithLogger(repo, f.rewriter, nil, f.metrics, f.cache, f.workspace, f.log)
	return f
}

func (f *fixture) read(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(fooFile.Abs(f.repo))
	require.NoError(t, err)
	return string(data)
}

func finding() models.Finding {
	return models.Finding{
		File:        fooFile,
		Tool:        models.ToolSpotBugs,
		Type:        "NP_NULL_ON_SOME_PATH",
		Description: "Possible null pointer dereference of value",
		CodeSnippet: buggySnippet,
		Line:        6,
		Resolved:    true,
	}
}
