package fix

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/fixloop/internal/llm"
	"github.com/joshsymonds/fixloop/internal/models"
)

const (
	fixEarlyReturn = "if (value == null) {\n            return 0;\n        }\n        return value.length();"
	fixTernary     = "return value == null ? 0 : value.length();"
	fixOptional    = "return java.util.Optional.ofNullable(value).map(String::length).orElse(0);"
)

func newManager(f *fixture, assistant Assistant) *CandidateManager {
	return NewCandidateManagerWithLogger(assistant, f.applier, f.metrics, f.cache, f.workspace,
		ManagerOptions{PerRequest: 3, Parallelism: 2}, f.log)
}

func TestCandidateManager_Generate(t *testing.T) {
	f := newFixture(t)
	assistant := &fakeAssistant{candidates: []models.FixCandidate{
		{SolutionID: 1, Rating: 6, Code: fixTernary, Explanation: "ternary"},
		{SolutionID: 2, Rating: 9, Code: fixEarlyReturn, Explanation: "guard"},
		{SolutionID: 3, Rating: 6, Code: fixOptional, Explanation: "optional"},
	}}
	m := newManager(f, assistant)

	batch, err := m.Generate(context.Background(), finding(), fooSource)
	require.NoError(t, err)
	require.Len(t, batch.Candidates, 3)
	assert.NotEmpty(t, batch.BatchID)
	assert.Equal(t, 3, assistant.lastFC.Candidates)
	assert.Equal(t, buggySnippet, assistant.lastFC.Snippet)

	// rating descending, ties in order of appearance
	var order []string
	for i, c := range batch.Candidates {
		assert.Equal(t, i+1, c.SolutionID)
		assert.False(t, c.Failed(), c.Error)
		order = append(order, c.Explanation)
	}
	assert.Equal(t, []string{"guard", "ternary", "optional"}, order)

	for _, c := range batch.Candidates {
		data, err := os.ReadFile(filepath.Join(c.ScratchDir, "Foo.java"))
		require.NoError(t, err)
		assert.Contains(t, string(data), c.Code, "solution %d", c.SolutionID)
		assert.Equal(t, fmt.Sprintf("solution_%d", c.SolutionID), filepath.Base(c.ScratchDir))

		cached, ok := f.cache.CandidateMetrics(fooFile, c.SolutionID)
		require.True(t, ok)
		assert.Equal(t, c.Metrics.Values, cached.Values)
	}

	assert.InDelta(t, 15, batch.Candidates[0].Metrics.Values[models.MetricLOC], 0)
	assert.InDelta(t, 12, batch.Candidates[1].Metrics.Values[models.MetricLOC], 0)
	assert.Equal(t, fooSource, f.read(t), "canonical file untouched")
}

func TestCandidateManager_FailureIsRecordedPerCandidate(t *testing.T) {
	f := newFixture(t)
	f.rewriter.fail[fixTernary] = errors.New("model refused")
	assistant := &fakeAssistant{candidates: []models.FixCandidate{
		{Rating: 9, Code: fixEarlyReturn},
		{Rating: 8, Code: fixTernary},
		{Rating: 7, Code: buggySnippet},
	}}
	m := newManager(f, assistant)

	batch, err := m.Generate(context.Background(), finding(), fooSource)
	require.NoError(t, err)
	require.Len(t, batch.Candidates, 3, "failed candidates are never dropped")

	assert.False(t, batch.Candidates[0].Failed())
	assert.NotNil(t, batch.Candidates[0].Metrics)

	assert.True(t, batch.Candidates[1].Failed())
	assert.Contains(t, batch.Candidates[1].Error, "model refused")
	assert.Empty(t, batch.Candidates[1].ScratchDir)

	assert.True(t, batch.Candidates[2].Failed())
	assert.Contains(t, batch.Candidates[2].Error, models.ErrNoChange.Error())
}

func TestCandidateManager_KeepsUnparsedCandidate(t *testing.T) {
	f := newFixture(t)
	assistant := &fakeAssistant{candidates: []models.FixCandidate{
		{Rating: 9, Error: llm.ErrNoCode.Error()},
		{Rating: 7, Code: fixTernary},
	}}
	m := newManager(f, assistant)

	batch, err := m.Generate(context.Background(), finding(), fooSource)
	require.NoError(t, err)
	require.Len(t, batch.Candidates, 2)

	unparsed := batch.Candidates[0]
	assert.Equal(t, 1, unparsed.SolutionID)
	assert.Equal(t, llm.ErrNoCode.Error(), unparsed.Error)
	assert.Empty(t, unparsed.ScratchDir)
	assert.Nil(t, unparsed.Metrics)
	_, ok := f.cache.CandidateMetrics(fooFile, 1)
	assert.False(t, ok)

	assert.False(t, batch.Candidates[1].Failed(), batch.Candidates[1].Error)
	assert.NotNil(t, batch.Candidates[1].Metrics)
}

func TestCandidateManager_Isolation(t *testing.T) {
	f := newFixture(t)
	assistant := &fakeAssistant{candidates: []models.FixCandidate{
		{Rating: 9, Code: fixEarlyReturn},
		{Rating: 8, Code: fixTernary},
	}}
	m := newManager(f, assistant)
	ctx := context.Background()

	batch, err := m.Generate(ctx, finding(), fooSource)
	require.NoError(t, err)

	first, err := m.Content(fooFile, 1)
	require.NoError(t, err)
	firstMetrics, err := m.Metrics(ctx, fooFile, 1)
	require.NoError(t, err)

	assistant.refinement = llm.Refinement{Snippet: fixOptional}
	refined, err := m.Refine(ctx, finding(), fooSource, batch.Candidates[1], "prefer Optional")
	require.NoError(t, err)
	require.False(t, refined.Failed(), refined.Error)
	assert.Equal(t, 2, refined.SolutionID)

	second, err := m.Content(fooFile, 2)
	require.NoError(t, err)
	assert.Contains(t, second, "Optional.ofNullable")

	after, err := m.Content(fooFile, 1)
	require.NoError(t, err)
	assert.Equal(t, first, after)
	afterMetrics, err := m.Metrics(ctx, fooFile, 1)
	require.NoError(t, err)
	assert.Equal(t, firstMetrics.Values, afterMetrics.Values)
}

func TestCandidateManager_RegenerateOverwrites(t *testing.T) {
	f := newFixture(t)
	assistant := &fakeAssistant{candidates: []models.FixCandidate{
		{Rating: 9, Code: fixEarlyReturn},
		{Rating: 8, Code: fixTernary},
	}}
	m := newManager(f, assistant)
	ctx := context.Background()

	_, err := m.Generate(ctx, finding(), fooSource)
	require.NoError(t, err)

	assistant.candidates = []models.FixCandidate{{Rating: 5, Code: fixOptional}}
	batch, err := m.Generate(ctx, finding(), fooSource)
	require.NoError(t, err)
	require.Len(t, batch.Candidates, 1)

	content, err := m.Content(fooFile, 1)
	require.NoError(t, err)
	assert.Contains(t, content, "Optional.ofNullable")

	_, err = m.Content(fooFile, 2)
	require.Error(t, err, "stale workspace from the previous batch is removed")
	_, ok := f.cache.CandidateMetrics(fooFile, 2)
	assert.False(t, ok)
}

func TestCandidateManager_NoCandidates(t *testing.T) {
	f := newFixture(t)
	m := newManager(f, &fakeAssistant{})

	batch, err := m.Generate(context.Background(), finding(), fooSource)
	require.NoError(t, err)
	assert.Empty(t, batch.Candidates)
	assert.Equal(t, 0, f.metrics.Calls())
}

func TestCandidateManager_AssistantFailure(t *testing.T) {
	f := newFixture(t)
	m := newManager(f, &fakeAssistant{err: errors.New("quota exceeded")})

	_, err := m.Generate(context.Background(), finding(), fooSource)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	_, err = m.Refine(context.Background(), finding(), fooSource, models.FixCandidate{SolutionID: 1}, "x")
	require.Error(t, err)
}

func TestCandidateManager_SnippetFallsBackToWindow(t *testing.T) {
	f := newFixture(t)
	assistant := &fakeAssistant{}
	m := newManager(f, assistant)

	fd := finding()
	fd.CodeSnippet = ""
	_, err := m.Generate(context.Background(), fd, fooSource)
	require.NoError(t, err)
	assert.Contains(t, assistant.lastFC.Snippet, buggySnippet)
	assert.Contains(t, assistant.lastFC.Snippet, "String value = lookup(name);")
}

func TestCandidateManager_Metrics(t *testing.T) {
	f := newFixture(t)
	m := newManager(f, &fakeAssistant{candidates: []models.FixCandidate{{Rating: 9, Code: fixEarlyReturn}}})
	ctx := context.Background()

	_, err := m.Metrics(ctx, fooFile, 1)
	require.Error(t, err, "no workspace yet")

	_, err = m.Generate(ctx, finding(), fooSource)
	require.NoError(t, err)
	calls := f.metrics.Calls()

	snap, err := m.Metrics(ctx, fooFile, 1)
	require.NoError(t, err)
	assert.InDelta(t, 15, snap.Values[models.MetricLOC], 0)
	assert.Equal(t, calls, f.metrics.Calls(), "served from cache")

	f.cache.ForgetCandidates(fooFile)
	_, err = m.Metrics(ctx, fooFile, 1)
	require.NoError(t, err)
	assert.Equal(t, calls+1, f.metrics.Calls())
}

func TestCandidateManager_RefineUsesFullFile(t *testing.T) {
	f := newFixture(t)
	full := fooSource[:len(fooSource)-2] + "\n    int extra() { return 1; }\n}\n"
	assistant := &fakeAssistant{refinement: llm.Refinement{FullFile: full, Snippet: "int extra() { return 1; }"}}
	m := newManager(f, assistant)

	refined, err := m.Refine(context.Background(), finding(), fooSource, models.FixCandidate{SolutionID: 2, Rating: 7}, "add helper")
	require.NoError(t, err)
	require.False(t, refined.Failed(), refined.Error)
	assert.Equal(t, 7, refined.Rating)
	assert.Equal(t, 0, f.rewriter.Calls(), "full file needs no rewrite")

	content, err := m.Content(fooFile, 2)
	require.NoError(t, err)
	assert.Equal(t, full, content)
}
