package weather

import (
	"context"
)

// WeatherProvider abstracts a current-conditions source (e.g. WeatherAPI.com, OpenWeatherMap).
type WeatherProvider interface {
	Name() string
	Fetch(ctx context.Context, loc Location) (WeatherReading, error)
}

// AirQualityProvider abstracts an air-quality source (e.g. AQICN).
type AirQualityProvider interface {
	Name() string
	Fetch(ctx context.Context, loc Location) (AirQualityReading, error)
}

// BatchStore holds raw batches by identity.
type BatchStore interface {
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) ([]byte, error)
	Put(ctx context.Context, id string, data []byte) error
}

// Ledger is the append-only set of raw batch identities already merged.
type Ledger interface {
	Processed(ctx context.Context) (map[string]struct{}, error)
	MarkProcessed(ctx context.Context, ids []string) error
}

// CuratedStore is the durable, deduplicated dataset.
type CuratedStore interface {
	// Merge adds records while keeping (city, api_timestamp) unique.
	Merge(ctx context.Context, records []CuratedRecord) error
	// Recent returns up to limit records, newest api_timestamp first.
	Recent(ctx context.Context, limit int) ([]CuratedRecord, error)
	// All returns the whole dataset sorted by city, then time.
	All(ctx context.Context) ([]CuratedRecord, error)
}
