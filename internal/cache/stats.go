package cache

import (
	"time"
)

// Stats contains cache statistics.
type Stats struct {
	// TotalEntries is the number of live analysis entries
	TotalEntries int

	// InitialEntries is the number of permanent initial snapshots
	InitialEntries int

	// CandidateEntries is the number of cached candidate snapshots
	CandidateEntries int

	// HitRate is the cache hit rate (0-1)
	HitRate float64

	// TotalHits is the number of cache hits
	TotalHits int64

	// TotalMisses is the number of cache misses
	TotalMisses int64

	// OldestEntry is the age of the oldest analysis entry
	OldestEntry time.Duration
}

// Error represents a failed load behind the cache.
type Error struct {
	Err error
	Op  string
	Key string
}

func (e *Error) Error() string {
	return "cache " + e.Op + " failed for key " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
