package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/normalize"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

const fooFile pathutil.PathKey = "src/main/java/com/acme/Foo.java"

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(clock *fakeClock) *AnalysisCache {
	return NewAnalysisCache(5*time.Minute, WithClock(clock.Now), WithLogger(logger.NewMockLogger()))
}

func snapshot(wmc, loc float64) *models.MetricsSnapshot {
	return &models.MetricsSnapshot{
		File:   fooFile,
		Class:  "com.acme.Foo",
		Values: map[string]float64{models.MetricWMC: wmc, models.MetricLOC: loc},
	}
}

func findings(lines ...int) []models.Finding {
	out := make([]models.Finding, 0, len(lines))
	for _, l := range lines {
		out = append(out, models.Finding{File: fooFile, Line: l, Type: "NP_NULL_ON_SOME_PATH", Tool: models.ToolSpotBugs, Resolved: true})
	}
	return out
}

func TestGetAndExpiry(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantHit bool
	}{
		{name: "fresh entry", advance: 0, wantHit: true},
		{name: "just inside the ttl", advance: 5*time.Minute - time.Second, wantHit: true},
		{name: "exactly the ttl", advance: 5 * time.Minute, wantHit: false},
		{name: "well past the ttl", advance: time.Hour, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c := newTestCache(clock)
			c.Update(fooFile, models.ToolSpotBugs, findings(12), snapshot(10, 80))

			clock.Advance(tt.advance)
			entry, ok := c.Get(fooFile, models.ToolSpotBugs)
			assert.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Len(t, entry.Findings, 1)
				assert.Equal(t, 12, entry.Findings[0].Line)
			}
		})
	}
}

func TestKeyedByTool(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.Update(fooFile, models.ToolSpotBugs, findings(12), nil)

	_, ok := c.Get(fooFile, models.ToolPMD)
	assert.False(t, ok)
	_, ok = c.Get(fooFile, models.ToolSpotBugs)
	assert.True(t, ok)
}

func TestUpdateResetsTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	c.Update(fooFile, models.ToolSpotBugs, findings(12), nil)

	clock.Advance(4 * time.Minute)
	c.Update(fooFile, models.ToolSpotBugs, findings(13), nil)
	clock.Advance(4 * time.Minute)

	entry, ok := c.Get(fooFile, models.ToolSpotBugs)
	require.True(t, ok)
	assert.Equal(t, 13, entry.Findings[0].Line)
}

func TestEntriesAreCopies(t *testing.T) {
	c := newTestCache(newFakeClock())
	input := findings(12)
	c.Update(fooFile, models.ToolSpotBugs, input, snapshot(10, 80))
	input[0].Line = 99

	entry, ok := c.Get(fooFile, models.ToolSpotBugs)
	require.True(t, ok)
	entry.Findings[0].Line = 77
	entry.Metrics.Values[models.MetricWMC] = 0

	again, _ := c.Get(fooFile, models.ToolSpotBugs)
	assert.Equal(t, 12, again.Findings[0].Line)
	assert.InDelta(t, 10.0, again.Metrics.Values[models.MetricWMC], 0.001)
}

func TestGetOrLoad(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	var calls int
	load := func(context.Context) (Entry, error) {
		calls++
		return Entry{Findings: findings(12), Metrics: snapshot(10, 80), Report: normalize.ReportAbsent}, nil
	}

	first, hit, err := c.GetOrLoad(context.Background(), fooFile, models.ToolSpotBugs, load)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.GetOrLoad(context.Background(), fooFile, models.ToolSpotBugs, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.Findings, second.Findings)
	assert.Equal(t, normalize.ReportAbsent, second.Report, "hits keep the report status of the load")
	assert.Equal(t, 1, calls, "second call inside the ttl must not reload")

	clock.Advance(6 * time.Minute)
	_, hit, err = c.GetOrLoad(context.Background(), fooFile, models.ToolSpotBugs, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls, "expired entries reload")
}

func TestGetOrLoadCollapsesConcurrentLoads(t *testing.T) {
	c := newTestCache(newFakeClock())
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (Entry, error) {
		calls.Add(1)
		<-release
		return Entry{Findings: findings(12)}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Entry, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, _, err := c.GetOrLoad(context.Background(), fooFile, models.ToolSpotBugs, load)
			assert.NoError(t, err)
			results[i] = entry
		}(i)
	}

	// give the goroutines a moment to pile onto the in-flight load
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
	for _, r := range results {
		require.Len(t, r.Findings, 1)
		assert.Equal(t, 12, r.Findings[0].Line)
	}
}

func TestGetOrLoadError(t *testing.T) {
	c := newTestCache(newFakeClock())
	boom := models.NewToolErrorf("spotbugs", models.ErrorTypeTimeout, "timed out")

	_, _, err := c.GetOrLoad(context.Background(), fooFile, models.ToolSpotBugs,
		func(context.Context) (Entry, error) { return Entry{}, boom })
	require.Error(t, err)

	var cacheErr *Error
	require.True(t, errors.As(err, &cacheErr))
	assert.Equal(t, "load", cacheErr.Op)
	assert.True(t, models.IsTimeout(err))

	_, ok := c.Get(fooFile, models.ToolSpotBugs)
	assert.False(t, ok, "failures are not cached")
}

func TestInvalidateKeepsInitialMetrics(t *testing.T) {
	c := newTestCache(newFakeClock())
	other := pathutil.PathKey("src/main/java/com/acme/Bar.java")
	c.Update(fooFile, models.ToolSpotBugs, findings(12), nil)
	c.Update(fooFile, models.ToolPMD, findings(14), nil)
	c.Update(other, models.ToolSpotBugs, findings(3), nil)
	c.SetInitialMetrics(fooFile, snapshot(10, 80))

	c.Invalidate(fooFile)

	_, ok := c.Get(fooFile, models.ToolSpotBugs)
	assert.False(t, ok)
	_, ok = c.Get(fooFile, models.ToolPMD)
	assert.False(t, ok)
	_, ok = c.Get(other, models.ToolSpotBugs)
	assert.True(t, ok, "other files are untouched")

	var computed bool
	snap, err := c.InitialMetricsOrCompute(context.Background(), fooFile, func(context.Context) (*models.MetricsSnapshot, error) {
		computed = true
		return snapshot(1, 1), nil
	})
	require.NoError(t, err)
	assert.False(t, computed, "permanent snapshot must survive invalidation")
	assert.Equal(t, snapshot(10, 80), snap)
}

func TestInitialMetricsNeverOverwritten(t *testing.T) {
	c := newTestCache(newFakeClock())
	stored := c.SetInitialMetrics(fooFile, snapshot(10, 80))
	assert.Equal(t, snapshot(10, 80), stored)

	stored = c.SetInitialMetrics(fooFile, snapshot(5, 60))
	assert.Equal(t, snapshot(10, 80), stored)

	// empty snapshots do not pin the slot
	bar := pathutil.PathKey("Bar.java")
	c.SetInitialMetrics(bar, &models.MetricsSnapshot{File: bar})
	_, ok := c.InitialMetrics(bar)
	assert.False(t, ok)
}

func TestInitialMetricsSurviveTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	c.SetInitialMetrics(fooFile, snapshot(10, 80))

	clock.Advance(24 * time.Hour)
	snap, ok := c.InitialMetrics(fooFile)
	require.True(t, ok)
	assert.Equal(t, snapshot(10, 80), snap)
}

func TestResetAll(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.Update(fooFile, models.ToolSpotBugs, findings(12), nil)
	c.SetInitialMetrics(fooFile, snapshot(10, 80))
	c.SetCandidateMetrics(fooFile, 1, snapshot(9, 78))

	c.ResetAll()

	_, ok := c.Get(fooFile, models.ToolSpotBugs)
	assert.False(t, ok)
	_, ok = c.InitialMetrics(fooFile)
	assert.False(t, ok)
	_, ok = c.CandidateMetrics(fooFile, 1)
	assert.False(t, ok)
}

func TestResetMetrics(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.Update(fooFile, models.ToolSpotBugs, findings(12), nil)
	c.SetInitialMetrics(fooFile, snapshot(10, 80))
	c.SetCandidateMetrics(fooFile, 1, snapshot(9, 78))

	c.ResetMetrics()

	_, ok := c.Get(fooFile, models.ToolSpotBugs)
	assert.True(t, ok, "analysis survives")
	_, ok = c.InitialMetrics(fooFile)
	assert.False(t, ok)
	_, ok = c.CandidateMetrics(fooFile, 1)
	assert.False(t, ok)

	c.SetInitialMetrics(fooFile, snapshot(9, 78))
	got, ok := c.InitialMetrics(fooFile)
	require.True(t, ok)
	assert.Equal(t, snapshot(9, 78), got, "a new baseline can be recorded")
}

func TestCandidateMetrics(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.SetCandidateMetrics(fooFile, 1, snapshot(9, 78))
	c.SetCandidateMetrics(fooFile, 2, snapshot(11, 84))
	c.SetCandidateMetrics(fooFile, 3, nil)

	one, ok := c.CandidateMetrics(fooFile, 1)
	require.True(t, ok)
	assert.Equal(t, snapshot(9, 78), one)

	two, ok := c.CandidateMetrics(fooFile, 2)
	require.True(t, ok)
	assert.Equal(t, snapshot(11, 84), two)

	_, ok = c.CandidateMetrics(fooFile, 3)
	assert.False(t, ok)

	c.ForgetCandidates(fooFile)
	_, ok = c.CandidateMetrics(fooFile, 1)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	c.Update(fooFile, models.ToolSpotBugs, findings(12), nil)
	clock.Advance(time.Minute)

	c.Get(fooFile, models.ToolSpotBugs)
	c.Get(fooFile, models.ToolPMD)

	stats := c.Stats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, int64(1), stats.TotalHits)
	assert.Equal(t, int64(1), stats.TotalMisses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
	assert.Equal(t, time.Minute, stats.OldestEntry)
}
