package weather

import (
	"time"
)

// Location represents a named place for which we collect readings.
// The name is the canonical city key; upstream location names are not trusted.
type Location struct {
	City string  `json:"city"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Key returns a canonical string key for logging and indexing.
func (l Location) Key() string {
	return l.City
}

// SpeedUnit tells the normalizer which unit a provider reports wind speed in.
type SpeedUnit string

const (
	SpeedKPH SpeedUnit = "kph"
	SpeedMS  SpeedUnit = "m/s"
)

// WeatherReading is a validated weather payload, independent of the provider's field names.
type WeatherReading struct {
	Provider      string
	Name          string
	Lat           float64
	Lon           float64
	TemperatureC  float64
	FeelsLikeC    float64
	PressureHpa   float64
	HumidityPct   int
	WindSpeed     float64
	WindUnit      SpeedUnit
	WindDirection int
	ObservedAt    time.Time // always UTC
}

// AirQualityReading is a validated air-quality payload.
type AirQualityReading struct {
	Provider          string
	AQI               int
	StationIdx        int
	DominantPollutant string
}

// CanonicalRecord is the unified, provider-agnostic observation written to raw batches.
type CanonicalRecord struct {
	IngestionTimestamp time.Time `json:"ingestion_timestamp"`
	SourceAPI          string    `json:"source_api"`

	City string  `json:"city"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`

	TemperatureCelsius float64 `json:"temperature_celsius"`
	FeelsLikeCelsius   float64 `json:"feels_like_celsius"`
	PressureHpa        float64 `json:"pressure_hpa"`
	HumidityPercent    int     `json:"humidity_percent"`
	WindSpeedMS        float64 `json:"wind_speed_ms"`
	WindDirectionDeg   int     `json:"wind_direction_deg"`

	AQI               int    `json:"aqi"`
	DominantPollutant string `json:"dominant_pollutant"`

	APITimestamp time.Time `json:"api_timestamp"`
}

// CuratedRecord is a canonical record as stored in the curated dataset,
// augmented with calendar features derived from APITimestamp.
type CuratedRecord struct {
	CanonicalRecord
	HourOfDayUTC int `json:"hour_of_day_utc"`
	DayOfWeekUTC int `json:"day_of_week_utc"` // Monday = 0
}

// recordKey is the natural dedup key of the curated dataset.
type recordKey struct {
	city string
	ts   int64
}

func keyOf(r CanonicalRecord) recordKey {
	return recordKey{city: r.City, ts: r.APITimestamp.UnixNano()}
}
