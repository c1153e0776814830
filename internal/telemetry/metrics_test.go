package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/joshsymonds/fixloop/internal/models"
)

func TestObserveToolRun(t *testing.T) {
	before := testutil.ToFloat64(ToolRunsTotal.WithLabelValues("telemetry-test", "success"))
	ObserveToolRun("telemetry-test", time.Now(), nil)
	assert.InDelta(t, before+1, testutil.ToFloat64(ToolRunsTotal.WithLabelValues("telemetry-test", "success")), 0.001)

	timeoutBefore := testutil.ToFloat64(ToolRunsTotal.WithLabelValues("telemetry-test", "timeout"))
	ObserveToolRun("telemetry-test", time.Now(), models.NewToolError("telemetry-test", models.ErrorTypeTimeout, errors.New("deadline")))
	assert.InDelta(t, timeoutBefore+1, testutil.ToFloat64(ToolRunsTotal.WithLabelValues("telemetry-test", "timeout")), 0.001)
}

func TestObserveCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("telemetry-test", "hit"))
	misses := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("telemetry-test", "miss"))

	ObserveCacheLookup("telemetry-test", true)
	ObserveCacheLookup("telemetry-test", false)
	ObserveCacheLookup("telemetry-test", false)

	assert.InDelta(t, hits+1, testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("telemetry-test", "hit")), 0.001)
	assert.InDelta(t, misses+2, testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("telemetry-test", "miss")), 0.001)
}

func TestObserveValidation(t *testing.T) {
	fixed := testutil.ToFloat64(ValidationsTotal.WithLabelValues("pmd", "fixed"))
	failed := testutil.ToFloat64(ValidationsTotal.WithLabelValues("pmd", "failed"))

	ObserveValidation(models.ToolPMD, models.ValidationResult{Fixed: true}, false)
	ObserveValidation(models.ToolPMD, models.ValidationResult{Fixed: true}, true)

	assert.InDelta(t, fixed+1, testutil.ToFloat64(ValidationsTotal.WithLabelValues("pmd", "fixed")), 0.001)
	assert.InDelta(t, failed+1, testutil.ToFloat64(ValidationsTotal.WithLabelValues("pmd", "failed")), 0.001)
}

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("validate", "degraded"))
	ObserveOperation("validate", models.StatusDegraded)
	assert.InDelta(t, before+1, testutil.ToFloat64(OperationsTotal.WithLabelValues("validate", "degraded")), 0.001)
}

func TestObserveHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/telemetry-test", "200"))
	ObserveHTTPRequest("POST", "/api/telemetry-test", 200, time.Now())
	assert.InDelta(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/telemetry-test", "200")), 0.001)
}
