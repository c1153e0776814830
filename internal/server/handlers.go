package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/joshsymonds/fixloop/internal/coordinator"
	"github.com/joshsymonds/fixloop/internal/models"
)

type fetchRequest struct {
	URL    string `json:"url"`
	Branch string `json:"branch,omitempty"`
}

type analyzeRequest struct {
	File string `json:"file"`
	Tool string `json:"tool,omitempty"`
}

type solutionsRequest struct {
	Finding *models.Finding `json:"finding,omitempty"`
	File    string          `json:"file"`
	Content string          `json:"content,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Type    string          `json:"type,omitempty"`
	Line    int             `json:"line,omitempty"`
}

type refineRequest struct {
	File       string `json:"file"`
	Feedback   string `json:"feedback"`
	SolutionID int    `json:"solution_id"`
}

type candidateMetricsRequest struct {
	File       string `json:"file"`
	SolutionID int    `json:"solution_id"`
}

type applyRequest struct {
	File       string `json:"file"`
	Snippet    string `json:"snippet,omitempty"`
	Solution   string `json:"solution,omitempty"`
	SolutionID int    `json:"solution_id,omitempty"`
}

type validateRequest struct {
	File string `json:"file"`
	Tool string `json:"tool,omitempty"`
	Type string `json:"type"`
	Line int    `json:"line"`
}

type commitRequest struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Checks map[string]string `json:"checks,omitempty"`
	Status string            `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	code := http.StatusOK
	for _, check := range s.checks {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(s.checks))
		}
		if err := check.run(ctx); err != nil {
			s.logger.Warn("Health check failed", "check", check.name, "error", err)
			resp.Checks[check.name] = err.Error()
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[check.name] = "ok"
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.coord.FetchRepository(r.Context(), req.URL, req.Branch)
	writeJSON(w, statusFor(res.Outcome), res)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	res := s.coord.ListFiles(r.Context())
	writeJSON(w, statusFor(res.Outcome), res)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(w, r, &req) {
		return
	}
	tool, ok := parseTool(w, req.Tool)
	if !ok {
		return
	}
	res := s.coord.AnalyzeFile(r.Context(), req.File, tool)
	writeJSON(w, statusFor(res.Outcome), res)
}

func (s *Server) handleSolutions(w http.ResponseWriter, r *http.Request) {
	var req solutionsRequest
	if !s.decode(w, r, &req) {
		return
	}
	tool, ok := parseTool(w, req.Tool)
	if !ok {
		return
	}
	res := s.coord.GenerateCandidates(r.Context(), coordinator.CandidatesRequest{
		Finding: req.Finding,
		File:    req.File,
		Content: req.Content,
		Tool:    tool,
		Type:    req.Type,
		Line:    req.Line,
	})
	writeJSON(w, statusFor(res.Outcome), res)
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.coord.RefineCandidate(r.Context(), req.File, req.SolutionID, req.Feedback)
	writeJSON(w, statusFor(res.Outcome), res)
}

func (s *Server) handleCandidateMetrics(w http.ResponseWriter, r *http.Request) {
	var req candidateMetricsRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.coord.CandidateMetrics(r.Context(), req.File, req.SolutionID)
	writeJSON(w, statusFor(res.Outcome), res)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.coord.ApplyFix(r.Context(), coordinator.ApplyRequest{
		File:       req.File,
		Buggy:      req.Snippet,
		Fixed:      req.Solution,
		SolutionID: req.SolutionID,
	})
	writeJSON(w, statusFor(res.Outcome), res)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !s.decode(w, r, &req) {
		return
	}
	tool, ok := parseTool(w, req.Tool)
	if !ok {
		return
	}
	res := s.coord.Validate(r.Context(), coordinator.ValidateRequest{
		File: req.File,
		Tool: tool,
		Type: req.Type,
		Line: req.Line,
	})
	writeJSON(w, statusFor(res.Outcome), res)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !s.decode(w, r, &req) {
		return
	}
	res := s.coord.Commit(r.Context(), req.Message)
	writeJSON(w, statusFor(res.Outcome), res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	entries, err := s.coord.History(r.URL.Query().Get("session"), limit)
	if err != nil {
		s.logger.Error("Failed to read journal", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// decode reads a JSON body into v, answering 400 or 413 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "request body is required")
	default:
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	s.logger.Debug("Rejected request body", "path", r.URL.Path, "error", err)
	return false
}

func parseTool(w http.ResponseWriter, name string) (models.Tool, bool) {
	tool, err := models.ParseTool(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return tool, true
}

// statusFor maps an operation outcome to an HTTP status. Degraded results
// are still successful responses.
func statusFor(o models.Outcome) int {
	if o.OK() {
		return http.StatusOK
	}
	switch o.ErrorType {
	case models.ErrorTypeConfig:
		return http.StatusBadRequest
	case models.ErrorTypeNoChange, models.ErrorTypeCompile, models.ErrorTypeParse:
		return http.StatusUnprocessableEntity
	case models.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	case models.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
