package weather

import (
	"context"
	"time"
)

// Provider abstracts the upstream source of measurements.
type Provider interface {
	Name() string
	// FetchMeasurements returns normalized records for station in
	// [start, end]; start and end are UTC.
	FetchMeasurements(ctx context.Context, station string, start, end time.Time) (FetchResult, error)
}

// Store is the contract every measurement store must satisfy.
type Store interface {
	// QueryRange returns measurements for station with timestamps in
	// [start, end], ascending.
	QueryRange(ctx context.Context, station string, start, end time.Time) ([]Measurement, error)
	// BulkInsert stores records whose (station, timestamp) is not present
	// yet and returns how many were inserted.
	BulkInsert(ctx context.Context, records []Measurement) (int, error)
	// ListStations returns the distinct station codes present in storage.
	ListStations(ctx context.Context) ([]string, error)
}
