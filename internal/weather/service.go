package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Carlos329173/AEMET/internal/logger"
)

// DefaultMinRows is the cached row count below which a range is refetched.
const DefaultMinRows = 100

// SufficiencyPolicy decides whether cached rows can answer a range without
// asking upstream.
type SufficiencyPolicy struct {
	// MinRows is the smallest cached row count accepted for a range.
	MinRows int
	// MaxGap, when positive, also rejects caches with a hole longer than
	// MaxGap between consecutive rows or at either edge of the range.
	MaxGap time.Duration
}

// Sufficient reports whether rows (ascending, inside [start, end]) can be
// served without a fetch.
func (p SufficiencyPolicy) Sufficient(rows []Measurement, start, end time.Time) bool {
	if len(rows) < p.MinRows {
		return false
	}
	if p.MaxGap <= 0 {
		return true
	}
	if len(rows) == 0 {
		return !end.After(start.Add(p.MaxGap))
	}

	prev := start
	for _, r := range rows {
		if r.Timestamp.Sub(prev) > p.MaxGap {
			return false
		}
		prev = r.Timestamp
	}
	return end.Sub(prev) <= p.MaxGap
}

// ServiceConfig holds the tunables of the cache pipeline.
type ServiceConfig struct {
	// DisplayZone renders every output timestamp, whatever the input zone.
	DisplayZone *time.Location
	Policy      SufficiencyPolicy
}

// Service answers range queries from the store, filling it from the
// provider when the cached data looks incomplete.
type Service struct {
	store    Store
	provider Provider
	stations *Directory
	display  *time.Location
	policy   SufficiencyPolicy
	stats    *Stats
	log      zerolog.Logger
	now      func() time.Time
}

// NewService creates a new Service. provider may be nil, in which case the
// service only ever serves what is already stored.
func NewService(store Store, provider Provider, stations *Directory, cfg ServiceConfig) *Service {
	display := cfg.DisplayZone
	if display == nil {
		display = time.UTC
	}
	return &Service{
		store:    store,
		provider: provider,
		stations: stations,
		display:  display,
		policy:   cfg.Policy,
		stats:    &Stats{},
		log:      logger.GetLogger("weather"),
		now:      time.Now,
	}
}

// Stations returns the directory the service resolves identifiers with.
func (s *Service) Stations() *Directory {
	return s.stations
}

// Stats returns the live counters of the service.
func (s *Service) Stats() *Stats {
	return s.stats
}

// CachedStations lists station codes that have at least one stored row.
func (s *Service) CachedStations(ctx context.Context) ([]string, error) {
	return s.store.ListStations(ctx)
}

// Query runs the cache pipeline for one request. Upstream failures never
// fail the query; they only mean the answer is built from what is cached.
func (s *Service) Query(ctx context.Context, req Request) ([]OutputRecord, error) {
	code, ok := s.stations.Lookup(req.Station)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStation, req.Station)
	}

	zone := req.Zone
	if zone == nil {
		zone = time.UTC
	}
	startUTC := ToUTC(req.Start, zone)
	endUTC := ToUTC(req.End, zone)
	if !startUTC.Before(endUTC) {
		return nil, ErrInvalidRange
	}

	existing, err := s.store.QueryRange(ctx, code, startUTC, endUTC)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}

	horizon := endUTC
	if now := s.now().UTC(); now.Before(horizon) {
		horizon = now
	}
	if s.policy.Sufficient(existing, startUTC, horizon) {
		s.stats.CacheHits.Inc()
		s.log.Debug().
			Str("station", code).
			Int("cached", len(existing)).
			Msg("cache sufficient; skipping upstream fetch")
	} else {
		// Errors are logged inside fill; the cache still answers.
		_, _ = s.fill(ctx, code, startUTC, endUTC)
	}

	data, err := s.store.QueryRange(ctx, code, startUTC, endUTC)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	if len(data) == 0 {
		return []OutputRecord{}, nil
	}

	vars := req.selected()
	rows := make([]Row, 0, len(data))
	for _, m := range data {
		rows = append(rows, rowFromMeasurement(m, vars))
	}
	rows = Aggregate(rows, req.Aggregation, s.display, vars)

	name := s.stations.ResolveName(code)
	out := make([]OutputRecord, 0, len(rows))
	for _, r := range rows {
		rec := OutputRecord{
			Station:  name,
			Datetime: FormatWithOffset(r.Time, s.display),
		}
		for _, v := range vars {
			rec.set(v, r.Values[v])
		}
		out = append(out, rec)
	}
	return out, nil
}

// Refresh fetches [startUTC, endUTC] for a station from upstream and stores
// whatever is new. It returns the number of inserted rows.
func (s *Service) Refresh(ctx context.Context, station string, startUTC, endUTC time.Time) (int, error) {
	code, ok := s.stations.Lookup(station)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStation, station)
	}
	if !startUTC.Before(endUTC) {
		return 0, ErrInvalidRange
	}
	return s.fill(ctx, code, startUTC.UTC(), endUTC.UTC())
}

func (s *Service) fill(ctx context.Context, code string, startUTC, endUTC time.Time) (int, error) {
	if s.provider == nil {
		return 0, fmt.Errorf("no upstream provider configured")
	}

	log := s.log.With().
		Str("fetch_id", uuid.NewString()).
		Str("provider", s.provider.Name()).
		Str("station", code).
		Time("start", startUTC).
		Time("end", endUTC).
		Logger()

	started := time.Now()
	s.stats.FetchAttempts.Inc()

	res, err := s.provider.FetchMeasurements(ctx, code, startUTC, endUTC)
	if err != nil {
		s.stats.FetchFailures.Inc()
		log.Warn().Err(err).Msg("upstream fetch failed; serving from cache")
		return 0, err
	}

	if res.Dropped > 0 {
		s.stats.RecordsDropped.Add(int64(res.Dropped))
		log.Warn().Int("dropped", res.Dropped).Msg("dropped upstream records without a usable timestamp")
	}

	inserted, err := s.store.BulkInsert(ctx, res.Records)
	s.stats.RecordsInserted.Add(int64(inserted))
	if err != nil {
		log.Error().Err(err).Int("inserted", inserted).Msg("failed to store fetched measurements")
		return inserted, fmt.Errorf("store measurements: %w", err)
	}

	log.Info().
		Int("received", len(res.Records)).
		Int("inserted", inserted).
		Dur("duration", time.Since(started)).
		Msg("upstream fetch stored")
	return inserted, nil
}
