package weather_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carlos329173/AEMET/internal/store"
	"github.com/Carlos329173/AEMET/internal/weather"
)

func fp(v float64) *float64 { return &v }

type fakeProvider struct {
	calls  atomic.Int32
	result weather.FetchResult
	err    error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchMeasurements(_ context.Context, _ string, _, _ time.Time) (weather.FetchResult, error) {
	p.calls.Add(1)
	return p.result, p.err
}

// countingStore records how often the orchestrator touches storage.
type countingStore struct {
	weather.Store
	queries atomic.Int32
	inserts atomic.Int32
}

func (s *countingStore) QueryRange(ctx context.Context, station string, start, end time.Time) ([]weather.Measurement, error) {
	s.queries.Add(1)
	return s.Store.QueryRange(ctx, station, start, end)
}

func (s *countingStore) BulkInsert(ctx context.Context, records []weather.Measurement) (int, error) {
	s.inserts.Add(1)
	return s.Store.BulkInsert(ctx, records)
}

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	return loc
}

func newService(t *testing.T, s weather.Store, p weather.Provider, minRows int) *weather.Service {
	t.Helper()
	return weather.NewService(s, p, weather.NewDirectory(weather.DefaultStations), weather.ServiceConfig{
		DisplayZone: madrid(t),
		Policy:      weather.SufficiencyPolicy{MinRows: minRows},
	})
}

func newRequest(t *testing.T, start, end, station, agg string, vars ...string) weather.Request {
	t.Helper()
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	req, err := weather.NewRequest(start, end, "", station, agg, vars, berlin)
	require.NoError(t, err)
	return req
}

// dayRecords returns n measurements every 10 minutes from 2025-01-01T00:00 Madrid.
func dayRecords(station string, n int) []weather.Measurement {
	start := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	out := make([]weather.Measurement, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, weather.Measurement{
			Station:     station,
			Timestamp:   start.Add(time.Duration(i) * 10 * time.Minute),
			Temperature: fp(float64(i)),
			Pressure:    fp(980 + float64(i)),
			Speed:       fp(2 * float64(i)),
		})
	}
	return out
}

func TestQuery_UnknownStationTouchesNothing(t *testing.T) {
	cs := &countingStore{Store: store.NewMemoryStore()}
	p := &fakeProvider{}
	svc := newService(t, cs, p, weather.DefaultMinRows)

	_, err := svc.Query(context.Background(), newRequest(t, "2025-01-01T00:00:00", "2025-01-02T00:00:00", "00000", "None"))
	require.Error(t, err)
	assert.ErrorIs(t, err, weather.ErrUnknownStation)
	assert.Equal(t, int32(0), cs.queries.Load())
	assert.Equal(t, int32(0), cs.inserts.Load())
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestQuery_UpstreamFailureServesCache(t *testing.T) {
	mem := store.NewMemoryStore()
	_, err := mem.BulkInsert(context.Background(), dayRecords("89064", 5))
	require.NoError(t, err)

	p := &fakeProvider{err: weather.ErrUpstreamFetch}
	svc := newService(t, mem, p, weather.DefaultMinRows)

	out, err := svc.Query(context.Background(), newRequest(t, "2025-01-01T00:00:00", "2025-01-02T00:00:00", "89064", "None"))
	require.NoError(t, err)
	assert.Len(t, out, 5)
	assert.Equal(t, int32(1), p.calls.Load())

	snap := svc.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.FetchAttempts)
	assert.Equal(t, int64(1), snap.FetchFailures)

	assert.Equal(t, "Meteo Station Juan Carlos I", out[0].Station)
	assert.Equal(t, "2025-01-01T00:00:00+01:00", out[0].Datetime)
	assert.Equal(t, "2025-01-01T00:40:00+01:00", out[4].Datetime)
}

func TestQuery_NothingCachedAndUpstreamDown(t *testing.T) {
	p := &fakeProvider{err: errors.New("connection refused")}
	svc := newService(t, store.NewMemoryStore(), p, weather.DefaultMinRows)

	out, err := svc.Query(context.Background(), newRequest(t, "2025-01-01T00:00:00", "2025-01-02T00:00:00", "89064", "Daily"))
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestQuery_EndToEndDaily(t *testing.T) {
	records := dayRecords("89064", 6)
	p := &fakeProvider{result: weather.FetchResult{Records: records}}
	svc := newService(t, store.NewMemoryStore(), p, weather.DefaultMinRows)

	out, err := svc.Query(context.Background(), newRequest(t, "2025-01-01T00:00:00", "2025-01-02T00:00:00", "89064", "Daily"))
	require.NoError(t, err)
	require.Len(t, out, 1)

	rec := out[0]
	assert.Equal(t, "Meteo Station Juan Carlos I", rec.Station)
	assert.Equal(t, "2025-01-01T00:00:00+01:00", rec.Datetime)
	// Values 0..5, 980..985 and 0..10.
	require.NotNil(t, rec.Temperature)
	require.NotNil(t, rec.Pressure)
	require.NotNil(t, rec.Speed)
	assert.InDelta(t, 2.5, *rec.Temperature, 1e-9)
	assert.InDelta(t, 982.5, *rec.Pressure, 1e-9)
	assert.InDelta(t, 5.0, *rec.Speed, 1e-9)

	assert.Equal(t, int64(6), svc.Stats().Snapshot().RecordsInserted)
}

func TestQuery_StationByDisplayName(t *testing.T) {
	p := &fakeProvider{result: weather.FetchResult{Records: dayRecords("89070", 2)}}
	svc := newService(t, store.NewMemoryStore(), p, weather.DefaultMinRows)

	out, err := svc.Query(context.Background(), newRequest(t, "2025-01-01T00:00:00", "2025-01-02T00:00:00", "Meteo Station Gabriel de Castilla", "None"))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Meteo Station Gabriel de Castilla", out[0].Station)
}

func TestQuery_SufficientCacheSkipsFetch(t *testing.T) {
	mem := store.NewMemoryStore()
	_, err := mem.BulkInsert(context.Background(), dayRecords("89064", 3))
	require.NoError(t, err)

	p := &fakeProvider{}
	svc := newService(t, mem, p, 3)

	out, err := svc.Query(context.Background(), newRequest(t, "2025-01-01T00:00:00", "2025-01-02T00:00:00", "89064", "None"))
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, int32(0), p.calls.Load())
	assert.Equal(t, int64(1), svc.Stats().Snapshot().CacheHits)
}

func TestQuery_RefetchDoesNotDuplicate(t *testing.T) {
	records := dayRecords("89064", 4)
	p := &fakeProvider{result: weather.FetchResult{Records: records, Dropped: 2}}
	svc := newService(t, store.NewMemoryStore(), p, weather.DefaultMinRows)
	req := newRequest(t, "2025-01-01T00:00:00", "2025-01-02T00:00:00", "89064", "None")

	first, err := svc.Query(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Query(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int32(2), p.calls.Load(), "4 rows are below the threshold, so both queries fetch")
	assert.Equal(t, first, second)
	snap := svc.Stats().Snapshot()
	assert.Equal(t, int64(4), snap.RecordsInserted)
	assert.Equal(t, int64(4), snap.RecordsDropped)
}

func TestQuery_VariableSelection(t *testing.T) {
	p := &fakeProvider{result: weather.FetchResult{Records: dayRecords("89064", 2)}}
	svc := newService(t, store.NewMemoryStore(), p, weather.DefaultMinRows)

	out, err := svc.Query(context.Background(), newRequest(t, "2025-01-01T00:00:00", "2025-01-02T00:00:00", "89064", "Hourly", "pressure"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Temperature)
	assert.Nil(t, out[0].Speed)
	require.NotNil(t, out[0].Pressure)
	assert.InDelta(t, 980.5, *out[0].Pressure, 1e-9)
	assert.Equal(t, "2025-01-01T00:00:00+01:00", out[0].Datetime)
}

func TestQuery_DisplayZoneIndependentOfInputZone(t *testing.T) {
	p := &fakeProvider{result: weather.FetchResult{Records: []weather.Measurement{{
		Station:     "89064",
		Timestamp:   time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
		Temperature: fp(-20),
	}}}}
	svc := newService(t, store.NewMemoryStore(), p, weather.DefaultMinRows)

	req, err := weather.NewRequest("2025-07-01T00:00:00", "2025-07-01T23:00:00", "America/Santiago", "89064", "None", nil, time.UTC)
	require.NoError(t, err)

	out, err := svc.Query(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2025-07-01T14:00:00+02:00", out[0].Datetime)
}

func TestRefresh(t *testing.T) {
	p := &fakeProvider{result: weather.FetchResult{Records: dayRecords("89070", 3)}}
	mem := store.NewMemoryStore()
	svc := newService(t, mem, p, weather.DefaultMinRows)

	start := time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)
	n, err := svc.Refresh(context.Background(), "89070", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = svc.Refresh(context.Background(), "89070", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = svc.Refresh(context.Background(), "12345", start, start.Add(time.Hour))
	assert.ErrorIs(t, err, weather.ErrUnknownStation)

	_, err = svc.Refresh(context.Background(), "89070", start, start)
	assert.ErrorIs(t, err, weather.ErrInvalidRange)

	cached, err := svc.CachedStations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"89070"}, cached)
}

func TestRefresh_PropagatesUpstreamError(t *testing.T) {
	p := &fakeProvider{err: weather.ErrUpstreamMetadata}
	svc := newService(t, store.NewMemoryStore(), p, weather.DefaultMinRows)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Refresh(context.Background(), "89064", start, start.Add(time.Hour))
	assert.ErrorIs(t, err, weather.ErrUpstreamMetadata)
}

func TestSufficiencyPolicy(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	at := func(minutes ...int) []weather.Measurement {
		var out []weather.Measurement
		for _, m := range minutes {
			out = append(out, weather.Measurement{Timestamp: start.Add(time.Duration(m) * time.Minute)})
		}
		return out
	}

	countOnly := weather.SufficiencyPolicy{MinRows: 3}
	assert.False(t, countOnly.Sufficient(at(0, 10), start, end))
	assert.True(t, countOnly.Sufficient(at(0, 1, 2), start, end), "count rule ignores interior gaps")

	withGap := weather.SufficiencyPolicy{MinRows: 3, MaxGap: 15 * time.Minute}
	assert.True(t, withGap.Sufficient(at(5, 20, 35, 50), start, end))
	assert.False(t, withGap.Sufficient(at(0, 10, 40, 50), start, end), "interior hole")
	assert.False(t, withGap.Sufficient(at(20, 30, 40, 50), start, end), "leading hole")
	assert.False(t, withGap.Sufficient(at(0, 10, 20, 30), start, end), "trailing hole")

	gapOnly := weather.SufficiencyPolicy{MaxGap: 2 * time.Hour}
	assert.True(t, gapOnly.Sufficient(nil, start, end))
}
