package models

import "github.com/joshsymonds/fixloop/pkg/pathutil"

// Tracked metric names.
const (
	MetricWMC  = "wmc"
	MetricLOC  = "loc"
	MetricCBO  = "cbo"
	MetricRFC  = "rfc"
	MetricLCOM = "lcom"
)

// TrackedMetrics are the metrics reported as before/after deltas.
var TrackedMetrics = []string{MetricWMC, MetricLOC}

// MetricsSnapshot holds class-level metrics for one file variant.
type MetricsSnapshot struct {
	Values map[string]float64 `json:"values"`
	File   pathutil.PathKey   `json:"file"`
	Class  string             `json:"class"`
}

// IsEmpty reports whether the snapshot carries no metrics.
func (s *MetricsSnapshot) IsEmpty() bool {
	return s == nil || len(s.Values) == 0
}

// Get returns a metric value and whether it was present.
func (s *MetricsSnapshot) Get(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := s.Values[name]
	return v, ok
}

// Clone returns a deep copy so cached snapshots are never mutated by callers.
func (s *MetricsSnapshot) Clone() *MetricsSnapshot {
	if s == nil {
		return nil
	}
	values := make(map[string]float64, len(s.Values))
	for k, v := range s.Values {
		values[k] = v
	}
	return &MetricsSnapshot{File: s.File, Class: s.Class, Values: values}
}

// MetricDelta is the before/after comparison for one metric.
type MetricDelta struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Delta  float64 `json:"delta"`
}

// CompareMetrics computes deltas for the given metric names. Metrics missing
// from either side are skipped.
func CompareMetrics(before, after *MetricsSnapshot, names ...string) map[string]MetricDelta {
	if len(names) == 0 {
		names = TrackedMetrics
	}
	out := make(map[string]MetricDelta, len(names))
	for _, name := range names {
		b, okB := before.Get(name)
		a, okA := after.Get(name)
		if !okB || !okA {
			continue
		}
		out[name] = MetricDelta{Before: b, After: a, Delta: a - b}
	}
	return out
}
