// Package cache holds the analysis results and metric snapshots shared by
// the fix lifecycle. Time-boxed analysis entries expire after a TTL; initial
// metric snapshots are permanent until the whole cache is reset.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/joshsymonds/fixloop/internal/models"
	"github.com/joshsymonds/fixloop/internal/normalize"
	"github.com/joshsymonds/fixloop/internal/telemetry"
	"github.com/joshsymonds/fixloop/pkg/logger"
	"github.com/joshsymonds/fixloop/pkg/pathutil"
)

// Namespaces reported in stats and telemetry.
const (
	NamespaceAnalysis  = "analysis"
	NamespaceInitial   = "initial_metrics"
	NamespaceCandidate = "candidate_metrics"
)

// Key identifies a time-boxed analysis entry.
type Key struct {
	File pathutil.PathKey
	Tool models.Tool
}

// String renders the key as file|tool.
func (k Key) String() string {
	return k.File.String() + "|" + string(k.Tool)
}

// Entry is one cached analysis result.
type Entry struct {
	CachedAt time.Time
	Metrics  *models.MetricsSnapshot
	// Report records whether the analyzer report was absent, empty or
	// parsed, so hits describe the run that produced them.
	Report   normalize.ReportStatus
	Findings []models.Finding
}

// clone copies the entry so callers cannot mutate cached state.
func (e Entry) clone() Entry {
	findings := make([]models.Finding, len(e.Findings))
	copy(findings, e.Findings)
	return Entry{CachedAt: e.CachedAt, Metrics: e.Metrics.Clone(), Report: e.Report, Findings: findings}
}

// LoadFunc computes an analysis entry on a cache miss. CachedAt is set by
// the cache.
type LoadFunc func(ctx context.Context) (Entry, error)

// ComputeFunc computes a metrics snapshot on a cache miss.
type ComputeFunc func(ctx context.Context) (*models.MetricsSnapshot, error)

type candidateKey struct {
	file       pathutil.PathKey
	solutionID int
}

// Option configures an AnalysisCache.
type Option func(*AnalysisCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *AnalysisCache) { c.now = now }
}

// WithLogger sets the cache logger.
func WithLogger(log logger.Logger) Option {
	return func(c *AnalysisCache) { c.logger = log }
}

// AnalysisCache is owned by one coordinator. All methods are safe for
// concurrent use; loads for the same key are collapsed into one call.
type AnalysisCache struct {
	logger     logger.Logger
	now        func() time.Time
	entries    map[Key]Entry
	initial    map[pathutil.PathKey]*models.MetricsSnapshot
	candidates map[candidateKey]*models.MetricsSnapshot
	loads      singleflight.Group
	computes   singleflight.Group
	stats      counters
	ttl        time.Duration
	mu         sync.Mutex
}

// NewAnalysisCache creates an empty cache whose analysis entries live for ttl.
func NewAnalysisCache(ttl time.Duration, opts ...Option) *AnalysisCache {
	c := &AnalysisCache{
		ttl:        ttl,
		now:        time.Now,
		logger:     logger.GetGlobalLogger(),
		entries:    make(map[Key]Entry),
		initial:    make(map[pathutil.PathKey]*models.MetricsSnapshot),
		candidates: make(map[candidateKey]*models.MetricsSnapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the lifetime of analysis entries.
func (c *AnalysisCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for (file, tool) if it is younger than the TTL.
// Stale entries are dropped and reported as absent.
func (c *AnalysisCache) Get(file pathutil.PathKey, tool models.Tool) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(Key{File: file, Tool: tool})
}

func (c *AnalysisCache) getLocked(key Key) (Entry, bool) {
	entry, ok := c.entries[key]
	if ok && c.now().Sub(entry.CachedAt) >= c.ttl {
		delete(c.entries, key)
		c.logger.Debug("Cache entry expired", "file", key.File, "tool", key.Tool)
		ok = false
	}
	c.stats.record(NamespaceAnalysis, ok)
	if !ok {
		return Entry{}, false
	}
	return entry.clone(), true
}

// Update stores findings and metrics for (file, tool) and restarts its TTL.
func (c *AnalysisCache) Update(file pathutil.PathKey, tool models.Tool, findings []models.Finding, metrics *models.MetricsSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateLocked(Key{File: file, Tool: tool}, Entry{Findings: findings, Metrics: metrics, Report: normalize.ReportParsed})
}

func (c *AnalysisCache) updateLocked(key Key, entry Entry) {
	if entry.Findings == nil {
		entry.Findings = []models.Finding{}
	}
	entry.CachedAt = c.now()
	c.entries[key] = entry.clone()
}

// GetOrLoad returns the cached entry or runs load once for all concurrent
// callers asking for the same key. The bool reports a cache hit.
func (c *AnalysisCache) GetOrLoad(ctx context.Context, file pathutil.PathKey, tool models.Tool, load LoadFunc) (Entry, bool, error) {
	key := Key{File: file, Tool: tool}
	if entry, ok := c.Get(file, tool); ok {
		return entry, true, nil
	}

	v, err, shared := c.loads.Do(key.String(), func() (any, error) {
		// another caller may have filled the entry while we waited
		c.mu.Lock()
		if entry, ok := c.entries[key]; ok && c.now().Sub(entry.CachedAt) < c.ttl {
			c.mu.Unlock()
			return entry.clone(), nil
		}
		c.mu.Unlock()

		loaded, err := load(ctx)
		if err != nil {
			return nil, &Error{Op: "load", Key: key.String(), Err: err}
		}

		c.mu.Lock()
		c.updateLocked(key, loaded)
		entry := c.entries[key].clone()
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	if shared {
		c.logger.Debug("Shared in-flight analysis", "key", key.String())
	}
	return v.(Entry).clone(), false, nil
}

// Invalidate drops every analysis entry for file. The initial metrics
// snapshot for file is kept.
func (c *AnalysisCache) Invalidate(file pathutil.PathKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.File == file {
			delete(c.entries, key)
			c.loads.Forget(key.String())
		}
	}
	c.logger.Debug("Invalidated analysis cache", "file", file)
}

// ResetAll clears every namespace, including initial metrics. It is called
// when a new repository is fetched.
func (c *AnalysisCache) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.loads.Forget(key.String())
	}
	c.entries = make(map[Key]Entry)
	c.initial = make(map[pathutil.PathKey]*models.MetricsSnapshot)
	c.candidates = make(map[candidateKey]*models.MetricsSnapshot)
	c.stats = counters{}
	c.logger.Info("Reset all caches")
}

// ResetMetrics clears the initial and candidate snapshots so the next
// analysis measures the committed code as the new baseline. Analysis
// entries are kept.
func (c *AnalysisCache) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initial = make(map[pathutil.PathKey]*models.MetricsSnapshot)
	c.candidates = make(map[candidateKey]*models.MetricsSnapshot)
	c.logger.Info("Reset metrics caches")
}

// InitialMetrics returns the permanent pre-fix snapshot for file.
func (c *AnalysisCache) InitialMetrics(file pathutil.PathKey) (*models.MetricsSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.initial[file]
	c.stats.record(NamespaceInitial, ok)
	return snap.Clone(), ok
}

// SetInitialMetrics records the pre-fix snapshot for file unless one is
// already held. Empty snapshots are ignored. It returns the stored snapshot.
func (c *AnalysisCache) SetInitialMetrics(file pathutil.PathKey, snap *models.MetricsSnapshot) *models.MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.initial[file]; ok {
		return existing.Clone()
	}
	if snap.IsEmpty() {
		return snap.Clone()
	}
	c.initial[file] = snap.Clone()
	return snap.Clone()
}

// InitialMetricsOrCompute returns the permanent snapshot for file, running
// compute at most once per file until it yields a non-empty snapshot.
func (c *AnalysisCache) InitialMetricsOrCompute(ctx context.Context, file pathutil.PathKey, compute ComputeFunc) (*models.MetricsSnapshot, error) {
	if snap, ok := c.InitialMetrics(file); ok {
		return snap, nil
	}
	v, err, _ := c.computes.Do("initial|"+file.String(), func() (any, error) {
		if snap, ok := c.peekInitial(file); ok {
			return snap, nil
		}
		snap, err := compute(ctx)
		if err != nil {
			return nil, &Error{Op: "compute", Key: file.String(), Err: err}
		}
		return c.SetInitialMetrics(file, snap), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.MetricsSnapshot).Clone(), nil
}

func (c *AnalysisCache) peekInitial(file pathutil.PathKey) (*models.MetricsSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.initial[file]
	return snap.Clone(), ok
}

// CandidateMetrics returns the snapshot cached for one candidate of file.
func (c *AnalysisCache) CandidateMetrics(file pathutil.PathKey, solutionID int) (*models.MetricsSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.candidates[candidateKey{file: file, solutionID: solutionID}]
	c.stats.record(NamespaceCandidate, ok)
	return snap.Clone(), ok
}

// SetCandidateMetrics caches the snapshot of one candidate of file.
func (c *AnalysisCache) SetCandidateMetrics(file pathutil.PathKey, solutionID int, snap *models.MetricsSnapshot) {
	if snap.IsEmpty() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates[candidateKey{file: file, solutionID: solutionID}] = snap.Clone()
}

// ForgetCandidates drops candidate snapshots for file, used when a new batch
// overwrites the scratch workspaces.
func (c *AnalysisCache) ForgetCandidates(file pathutil.PathKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.candidates {
		if key.file == file {
			delete(c.candidates, key)
		}
	}
}

// Stats returns a point-in-time view of cache usage.
func (c *AnalysisCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		TotalEntries:     len(c.entries),
		InitialEntries:   len(c.initial),
		CandidateEntries: len(c.candidates),
		TotalHits:        c.stats.hits,
		TotalMisses:      c.stats.misses,
	}
	if total := stats.TotalHits + stats.TotalMisses; total > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(total)
	}
	now := c.now()
	for _, e := range c.entries {
		if age := now.Sub(e.CachedAt); age > stats.OldestEntry {
			stats.OldestEntry = age
		}
	}
	return stats
}

type counters struct {
	hits   int64
	misses int64
}

func (s *counters) record(namespace string, hit bool) {
	if hit {
		s.hits++
	} else {
		s.misses++
	}
	telemetry.ObserveCacheLookup(namespace, hit)
}
