// Package telemetry exposes Prometheus metrics for external tool runs,
// cache behavior and the fix lifecycle.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/joshsymonds/fixloop/internal/models"
)

// Tool metrics
var (
	// ToolRunsTotal tracks external tool invocations by tool and status
	ToolRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixloop_tool_runs_total",
			Help: "Total number of external tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	// ToolRunDuration tracks external tool wall time
	ToolRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fixloop_tool_run_duration_seconds",
			Help:    "External tool run duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tool"},
	)
)

// Cache metrics
var (
	// CacheLookupsTotal tracks cache lookups by namespace and result
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixloop_cache_lookups_total",
			Help: "Total number of cache lookups by namespace and result",
		},
		[]string{"namespace", "result"},
	)
)

// Lifecycle metrics
var (
	// CandidatesTotal tracks generated candidates by isolation status
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixloop_candidates_total",
			Help: "Total number of fix candidates by isolation status",
		},
		[]string{"status"},
	)

	// AppliesTotal tracks fix applications by outcome
	AppliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixloop_applies_total",
			Help: "Total number of fix applications by outcome",
		},
		[]string{"status"},
	)

	// OperationsTotal tracks coordinator operations by outcome status
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixloop_operations_total",
			Help: "Total number of coordinator operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// ValidationsTotal tracks validations by result
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixloop_validations_total",
			Help: "Total number of validations by result",
		},
		[]string{"tool", "result"},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal tracks API requests by method, route and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fixloop_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)

	// HTTPRequestDuration tracks API request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fixloop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"method", "route"},
	)
)

// ObserveToolRun records one invocation of tool that started at start.
func ObserveToolRun(tool string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = string(models.ClassifyError(err))
	}
	ToolRunsTotal.WithLabelValues(tool, status).Inc()
	ToolRunDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}

// ObserveCacheLookup records a hit or miss in namespace.
func ObserveCacheLookup(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(namespace, result).Inc()
}

// ObserveValidation records a validation outcome.
func ObserveValidation(tool models.Tool, result models.ValidationResult, failed bool) {
	label := "not_fixed"
	switch {
	case failed:
		label = "failed"
	case result.Fixed:
		label = "fixed"
	}
	ValidationsTotal.WithLabelValues(string(tool), label).Inc()
}

// ObserveOperation records the outcome status of a coordinator operation.
func ObserveOperation(operation string, status models.Status) {
	OperationsTotal.WithLabelValues(operation, string(status)).Inc()
}

// ObserveHTTPRequest records one served request. route is the matched
// pattern, not the raw path.
func ObserveHTTPRequest(method, route string, code int, start time.Time) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
