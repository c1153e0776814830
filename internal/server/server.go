// Package server exposes the coordinator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshsymonds/fixloop/internal/config"
	"github.com/joshsymonds/fixloop/internal/coordinator"
	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/storage"
	"github.com/joshsymonds/fixloop/internal/telemetry"
	"github.com/joshsymonds/fixloop/pkg/logger"
)

// Coordinator is the lifecycle surface served over HTTP.
type Coordinator interface {
	FetchRepository(ctx context.Context, location, branch string) coordinator.FetchResult
	ListFiles(ctx context.Context) coordinator.FilesResult
	AnalyzeFile(ctx context.Context, file string, tool models.Tool) coordinator.AnalysisResult
	GenerateCandidates(ctx context.Context, req coordinator.CandidatesRequest) coordinator.CandidatesResult
	RefineCandidate(ctx context.Context, file string, solutionID int, feedback string) coordinator.CandidateResult
	CandidateMetrics(ctx context.Context, file string, solutionID int) coordinator.MetricsResult
	ApplyFix(ctx context.Context, req coordinator.ApplyRequest) coordinator.ApplyOutcome
	Validate(ctx context.Context, req coordinator.ValidateRequest) coordinator.ValidationOutcome
	Commit(ctx context.Context, message string) coordinator.CommitResult
	History(session string, limit int) ([]storage.Entry, error)
}

var _ Coordinator = (*coordinator.Coordinator)(nil)

const healthTimeout = 5 * time.Second

type healthCheck struct {
	run  func(context.Context) error
	name string
}

// Server is the HTTP surface of fixloop.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	coord      Coordinator
	logger     logger.Logger
	checks     []healthCheck
	cfg        config.ServerConfig
}

// New creates a server using the global logger.
func New(cfg config.ServerConfig, coord Coordinator) *Server {
	return NewWithLogger(cfg, coord, logger.GetGlobalLogger())
}

// NewWithLogger creates a server with a custom logger.
func NewWithLogger(cfg config.ServerConfig, coord Coordinator, log logger.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		coord:  coord,
		logger: log,
		cfg:    cfg,
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       time.Minute,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.CleanPath)
	r.Use(chimw.StripSlashes)
	r.Use(s.recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limitBody)
		r.Post("/repository", s.handleFetch)
		r.Get("/files", s.handleFiles)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/solutions", s.handleSolutions)
		r.Post("/solutions/refine", s.handleRefine)
		r.Post("/candidate-metrics", s.handleCandidateMetrics)
		r.Post("/apply", s.handleApply)
		r.Post("/validate", s.handleValidate)
		r.Post("/commit", s.handleCommit)
		r.Get("/history", s.handleHistory)
	})
}

// AddHealthCheck registers a dependency that /healthz must reach before the
// server reports ready. Call it before Start.
func (s *Server) AddHealthCheck(name string, check func(context.Context) error) {
	s.checks = append(s.checks, healthCheck{name: name, run: check})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if route != "/metrics" {
			telemetry.ObserveHTTPRequest(r.Method, route, ww.Status(), start)
		}
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"request_id", chimw.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					panic(rec)
				}
				s.logger.Error("Handler panicked", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
