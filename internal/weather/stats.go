package weather

import "go.uber.org/atomic"

// Stats counts cache and upstream activity across requests.
type Stats struct {
	FetchAttempts   atomic.Int64
	FetchFailures   atomic.Int64
	CacheHits       atomic.Int64
	RecordsInserted atomic.Int64
	RecordsDropped  atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	FetchAttempts   int64 `json:"fetchAttempts"`
	FetchFailures   int64 `json:"fetchFailures"`
	CacheHits       int64 `json:"cacheHits"`
	RecordsInserted int64 `json:"recordsInserted"`
	RecordsDropped  int64 `json:"recordsDropped"`
}

// Snapshot reads all counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FetchAttempts:   s.FetchAttempts.Load(),
		FetchFailures:   s.FetchFailures.Load(),
		CacheHits:       s.CacheHits.Load(),
		RecordsInserted: s.RecordsInserted.Load(),
		RecordsDropped:  s.RecordsDropped.Load(),
	}
}
