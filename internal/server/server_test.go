package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/fixloop/internal/config"
	"github.com/joshsymonds/fixloop/internal/coordinator"
	"github.com/joshsymonds/fixloop/internal/fix"
	"github.com/joshsymonds/fixloop/internal/llm"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/repository"
	"github.com/joshsymonds/fixloop/internal/storage"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// fakeCoordinator records requests and answers with configured outcomes.
type fakeCoordinator struct {
	mu        sync.Mutex
	outcome   models.Outcome
	candidate coordinator.CandidatesRequest
	apply     coordinator.ApplyRequest
	validate  coordinator.ValidateRequest
	tool      models.Tool
	location  string
	message   string
	session   string
	limit     int
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{outcome: models.Succeeded("ok")}
}

func (f *fakeCoordinator) FetchRepository(_ context.Context, location, _ string) coordinator.FetchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.location = location
	return coordinator.FetchResult{Outcome: f.outcome, Files: []pathutil.PathKey{"src/main/java/Foo.java"}}
}

func (f *fakeCoordinator) ListFiles(context.Context) coordinator.FilesResult {
	return coordinator.FilesResult{Outcome: f.outcome, Files: []pathutil.PathKey{"src/main/java/Foo.java"}}
}

func (f *fakeCoordinator) AnalyzeFile(_ context.Context, file string, tool models.Tool) coordinator.AnalysisResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tool = tool
	return coordinator.AnalysisResult{
		Outcome:  f.outcome,
		File:     pathutil.PathKey(file),
		Tool:     tool,
		Findings: []models.Finding{{File: pathutil.PathKey(file), Type: "NP_NULL_ON_SOME_PATH", Line: 6}},
	}
}

func (f *fakeCoordinator) GenerateCandidates(_ context.Context, req coordinator.CandidatesRequest) coordinator.CandidatesResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidate = req
	return coordinator.CandidatesResult{Outcome: f.outcome, Batch: models.CandidateBatch{
		BatchID:    "batch-1",
		Candidates: []models.FixCandidate{{SolutionID: 1, Rating: 8, Code: "return 0;"}},
	}}
}

func (f *fakeCoordinator) RefineCandidate(_ context.Context, _ string, solutionID int, feedback string) coordinator.CandidateResult {
	return coordinator.CandidateResult{Outcome: f.outcome, Candidate: models.FixCandidate{SolutionID: solutionID, Explanation: feedback}}
}

func (f *fakeCoordinator) CandidateMetrics(_ context.Context, file string, solutionID int) coordinator.MetricsResult {
	return coordinator.MetricsResult{
		Outcome:    f.outcome,
		File:       pathutil.PathKey(file),
		SolutionID: solutionID,
		Deltas:     map[string]models.MetricDelta{models.MetricWMC: {Before: 3, After: 4, Delta: 1}},
	}
}

func (f *fakeCoordinator) ApplyFix(_ context.Context, req coordinator.ApplyRequest) coordinator.ApplyOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apply = req
	if !f.outcome.OK() {
		return coordinator.ApplyOutcome{Outcome: f.outcome}
	}
	return coordinator.ApplyOutcome{Outcome: f.outcome, Result: &fix.ApplyResult{Message: "Fix applied successfully"}}
}

func (f *fakeCoordinator) Validate(_ context.Context, req coordinator.ValidateRequest) coordinator.ValidationOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validate = req
	result := models.ValidationResult{Fixed: true, OtherFindings: []models.Finding{}}
	result.Summarize()
	return coordinator.ValidationOutcome{Outcome: f.outcome, Result: result}
}

func (f *fakeCoordinator) Commit(_ context.Context, message string) coordinator.CommitResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = message
	if !f.outcome.OK() {
		return coordinator.CommitResult{Outcome: f.outcome}
	}
	return coordinator.CommitResult{Outcome: f.outcome, Commit: &repository.Committed{
		Hash:   "0f3c2a9",
		Files:  []pathutil.PathKey{"src/main/java/Foo.java"},
		Remote: "origin",
		Pushed: true,
	}}
}

func (f *fakeCoordinator) History(session string, limit int) ([]storage.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session, f.limit = session, limit
	return []storage.Entry{{Kind: storage.EventApply, File: "src/main/java/Foo.java", Status: models.StatusSuccess}}, nil
}

func newTestServer(coord Coordinator) *Server {
	cfg := config.Default().Server
	cfg.MaxBodyBytes = 1024
	return NewWithLogger(cfg, coord, logger.NewMockLogger())
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(newFakeCoordinator())

	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	do(t, s, http.MethodGet, "/api/files", "")
	rec = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fixloop_http_requests_total")
}

func TestHealthChecks(t *testing.T) {
	driver := llm.NewMockDriver("")
	s := newTestServer(newFakeCoordinator())
	s.AddHealthCheck("llm", llm.NewClientWithLogger(driver, logger.NewMockLogger()).HealthCheck)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"llm":"ok"}}`, rec.Body.String())

	driver.HealthCheckFunc = func(context.Context) error { return errors.New("claude CLI not found") }
	rec = do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Checks map[string]string `json:"checks"`
		Status string            `json:"status"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "unavailable", body.Status)
	assert.Contains(t, body.Checks["llm"], "claude CLI not found")
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   string
	}{
		{"fetch", http.MethodPost, "/api/repository", `{"url":"https://github.com/acme/app"}`, `"files"`},
		{"files", http.MethodGet, "/api/files", "", `"src/main/java/Foo.java"`},
		{"analyze", http.MethodPost, "/api/analyze", `{"file":"Foo.java","tool":"pmd"}`, `"findings"`},
		{"solutions", http.MethodPost, "/api/solutions", `{"file":"Foo.java","type":"NP","line":6}`, `"batch-1"`},
		{"refine", http.MethodPost, "/api/solutions/refine", `{"file":"Foo.java","solution_id":2,"feedback":"shorter"}`, `"shorter"`},
		{"candidate metrics", http.MethodPost, "/api/candidate-metrics", `{"file":"Foo.java","solution_id":1}`, `"wmc"`},
		{"apply", http.MethodPost, "/api/apply", `{"file":"Foo.java","solution_id":1}`, `"Fix applied successfully"`},
		{"validate", http.MethodPost, "/api/validate", `{"file":"Foo.java","type":"NP","line":6}`, `"Target bug was successfully fixed"`},
		{"commit", http.MethodPost, "/api/commit", `{"message":"Fix Foo"}`, `"0f3c2a9"`},
		{"history", http.MethodGet, "/api/history?session=all&limit=5", "", `"entries"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(newFakeCoordinator())
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestRequestsReachCoordinator(t *testing.T) {
	coord := newFakeCoordinator()
	s := newTestServer(coord)

	do(t, s, http.MethodPost, "/api/repository", `{"url":"https://github.com/acme/app"}`)
	assert.Equal(t, "https://github.com/acme/app", coord.location)

	do(t, s, http.MethodPost, "/api/analyze", `{"file":"Foo.java"}`)
	assert.Equal(t, models.ToolSpotBugs, coord.tool, "tool defaults to spotbugs")

	do(t, s, http.MethodPost, "/api/solutions",
		`{"file":"Foo.java","finding":{"file":"Foo.java","type":"NP_NULL_ON_SOME_PATH","line":6},"content":"class Foo {}"}`)
	require.NotNil(t, coord.candidate.Finding)
	assert.Equal(t, 6, coord.candidate.Finding.Line)
	assert.Equal(t, "class Foo {}", coord.candidate.Content)

	do(t, s, http.MethodPost, "/api/apply", `{"file":"Foo.java","snippet":"a();","solution":"b();"}`)
	assert.Equal(t, coordinator.ApplyRequest{File: "Foo.java", Buggy: "a();", Fixed: "b();"}, coord.apply)

	do(t, s, http.MethodPost, "/api/validate", `{"file":"Foo.java","tool":"PMD","type":"UnusedLocalVariable","line":5}`)
	assert.Equal(t, coordinator.ValidateRequest{File: "Foo.java", Tool: models.ToolPMD, Type: "UnusedLocalVariable", Line: 5}, coord.validate)

	do(t, s, http.MethodPost, "/api/commit", `{"message":"Fix null dereference"}`)
	assert.Equal(t, "Fix null dereference", coord.message)

	do(t, s, http.MethodGet, "/api/history?limit=3", "")
	assert.Empty(t, coord.session)
	assert.Equal(t, 3, coord.limit)
}

func TestOutcomeStatusCodes(t *testing.T) {
	tests := []struct {
		outcome models.Outcome
		want    int
	}{
		{models.Degraded("partial"), http.StatusOK},
		{models.Outcome{Status: models.StatusFailed, ErrorType: models.ErrorTypeConfig}, http.StatusBadRequest},
		{models.Outcome{Status: models.StatusFailed, ErrorType: models.ErrorTypeNoChange}, http.StatusUnprocessableEntity},
		{models.Outcome{Status: models.StatusFailed, ErrorType: models.ErrorTypeCompile}, http.StatusUnprocessableEntity},
		{models.Outcome{Status: models.StatusFailed, ErrorType: models.ErrorTypeUnavailable}, http.StatusServiceUnavailable},
		{models.Outcome{Status: models.StatusFailed, ErrorType: models.ErrorTypeTimeout}, http.StatusGatewayTimeout},
		{models.Outcome{Status: models.StatusFailed, ErrorType: models.ErrorTypeExecution}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome.Status)+"/"+string(tt.outcome.ErrorType), func(t *testing.T) {
			coord := newFakeCoordinator()
			coord.outcome = tt.outcome
			s := newTestServer(coord)

			rec := do(t, s, http.MethodPost, "/api/apply", `{"file":"Foo.java","snippet":"a","solution":"b"}`)
			assert.Equal(t, tt.want, rec.Code)

			var body coordinator.ApplyOutcome
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.outcome.Status, body.Outcome.Status)
		})
	}
}

func TestRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"empty body", "/api/analyze", "", http.StatusBadRequest},
		{"malformed json", "/api/analyze", `{"file":`, http.StatusBadRequest},
		{"unknown field", "/api/analyze", `{"file":"Foo.java","severity":"high"}`, http.StatusBadRequest},
		{"unknown tool", "/api/validate", `{"file":"Foo.java","tool":"checkstyle"}`, http.StatusBadRequest},
		{"commit without body", "/api/commit", "", http.StatusBadRequest},
		{"body too large", "/api/solutions", `{"file":"Foo.java","content":"` + strings.Repeat("x", 2048) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(newFakeCoordinator())
			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)

			var body errorResponse
			decodeBody(t, rec, &body)
			assert.NotEmpty(t, body.Error)
		})
	}

	s := newTestServer(newFakeCoordinator())
	rec := do(t, s, http.MethodGet, "/api/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/analyze", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type panickingCoordinator struct{ *fakeCoordinator }

func (panickingCoordinator) ListFiles(context.Context) coordinator.FilesResult {
	panic("boom")
}

func TestRecoversFromPanics(t *testing.T) {
	log := logger.NewMockLogger()
	s := NewWithLogger(config.Default().Server, panickingCoordinator{newFakeCoordinator()}, log)

	rec := do(t, s, http.MethodGet, "/api/files", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, log.HasMessage("ERROR", "Handler panicked"))
}
