package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Carlos329173/AEMET/internal/weather"
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Rows for each station are kept sorted by timestamp.
type MemoryStore struct {
	mu sync.RWMutex

	// key: station code, value: measurements ascending by timestamp
	data map[string][]weather.Measurement
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]weather.Measurement),
	}
}

// BulkInsert adds records whose (station, timestamp) is not stored yet.
// The existence check and the insert happen under one lock.
func (s *MemoryStore) BulkInsert(ctx context.Context, records []weather.Measurement) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}

		rec.Timestamp = normalizeTimestamp(rec.Timestamp)
		history := s.data[rec.Station]

		i := sort.Search(len(history), func(i int) bool {
			return !history[i].Timestamp.Before(rec.Timestamp)
		})
		if i < len(history) && history[i].Timestamp.Equal(rec.Timestamp) {
			continue
		}

		history = append(history, weather.Measurement{})
		copy(history[i+1:], history[i:])
		history[i] = rec
		s.data[rec.Station] = history
		inserted++
	}
	return inserted, nil
}

// QueryRange returns all measurements for a station between start and end (inclusive).
func (s *MemoryStore) QueryRange(_ context.Context, station string, start, end time.Time) ([]weather.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[station]
	from := sort.Search(len(history), func(i int) bool {
		return !history[i].Timestamp.Before(start)
	})

	var result []weather.Measurement
	for _, m := range history[from:] {
		if m.Timestamp.After(end) {
			break
		}
		result = append(result, m)
	}
	return result, nil
}

// ListStations returns the station codes with at least one stored measurement.
func (s *MemoryStore) ListStations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.data))
	for station, history := range s.data {
		if len(history) > 0 {
			out = append(out, station)
		}
	}
	sort.Strings(out)
	return out, nil
}

// normalizeTimestamp brings a timestamp to the stored form: UTC, whole seconds.
func normalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
