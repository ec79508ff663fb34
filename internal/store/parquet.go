package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/i474232898/environmental-data-pipeline/internal/weather"
)

// CuratedFileName is the Parquet dataset inside the curated directory.
const CuratedFileName = "environmental_data.parquet"

// curatedRow is the Parquet layout of a curated record.
type curatedRow struct {
	IngestionTimestamp time.Time `parquet:"ingestion_timestamp,timestamp(microsecond)"`
	SourceAPI          string    `parquet:"source_api"`
	City               string    `parquet:"city"`
	Lat                float64   `parquet:"lat"`
	Lon                float64   `parquet:"lon"`
	TemperatureCelsius float64   `parquet:"temperature_celsius"`
	FeelsLikeCelsius   float64   `parquet:"feels_like_celsius"`
	PressureHpa        float64   `parquet:"pressure_hpa"`
	HumidityPercent    int64     `parquet:"humidity_percent"`
	WindSpeedMS        float64   `parquet:"wind_speed_ms"`
	WindDirectionDeg   int64     `parquet:"wind_direction_deg"`
	AQI                int64     `parquet:"aqi"`
	DominantPollutant  string    `parquet:"dominant_pollutant"`
	APITimestamp       time.Time `parquet:"api_timestamp,timestamp(microsecond)"`
	HourOfDayUTC       int32     `parquet:"hour_of_day_utc"`
	DayOfWeekUTC       int32     `parquet:"day_of_week_utc"`
}

func toRow(r weather.CuratedRecord) curatedRow {
	return curatedRow{
		IngestionTimestamp: r.IngestionTimestamp.UTC(),
		SourceAPI:          r.SourceAPI,
		City:               r.City,
		Lat:                r.Lat,
		Lon:                r.Lon,
		TemperatureCelsius: r.TemperatureCelsius,
		FeelsLikeCelsius:   r.FeelsLikeCelsius,
		PressureHpa:        r.PressureHpa,
		HumidityPercent:    int64(r.HumidityPercent),
		WindSpeedMS:        r.WindSpeedMS,
		WindDirectionDeg:   int64(r.WindDirectionDeg),
		AQI:                int64(r.AQI),
		DominantPollutant:  r.DominantPollutant,
		APITimestamp:       r.APITimestamp.UTC(),
		HourOfDayUTC:       int32(r.HourOfDayUTC),
		DayOfWeekUTC:       int32(r.DayOfWeekUTC),
	}
}

func fromRow(row curatedRow) weather.CuratedRecord {
	return weather.CuratedRecord{
		CanonicalRecord: weather.CanonicalRecord{
			IngestionTimestamp: row.IngestionTimestamp.UTC(),
			SourceAPI:          row.SourceAPI,
			City:               row.City,
			Lat:                row.Lat,
			Lon:                row.Lon,
			TemperatureCelsius: row.TemperatureCelsius,
			FeelsLikeCelsius:   row.FeelsLikeCelsius,
			PressureHpa:        row.PressureHpa,
			HumidityPercent:    int(row.HumidityPercent),
			WindSpeedMS:        row.WindSpeedMS,
			WindDirectionDeg:   int(row.WindDirectionDeg),
			AQI:                int(row.AQI),
			DominantPollutant:  row.DominantPollutant,
			APITimestamp:       row.APITimestamp.UTC(),
		},
		HourOfDayUTC: int(row.HourOfDayUTC),
		DayOfWeekUTC: int(row.DayOfWeekUTC),
	}
}

// ParquetStore keeps the curated dataset in a single Parquet file that is
// rewritten on every merge. Writes go to a temporary file that is renamed
// over the dataset, so readers see either the old or the new file.
type ParquetStore struct {
	mu   sync.Mutex // serializes writers
	path string
}

func NewParquetStore(dir string) (*ParquetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create curated data dir: %w", err)
	}
	return &ParquetStore{path: filepath.Join(dir, CuratedFileName)}, nil
}

// Path returns the dataset file location.
func (s *ParquetStore) Path() string {
	return s.path
}

func (s *ParquetStore) load() ([]weather.CuratedRecord, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0) {
		return nil, ErrDatasetNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := parquet.ReadFile[curatedRow](s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	out := make([]weather.CuratedRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

// Merge combines records with the existing file (if any) and swaps in the result.
func (s *ParquetStore) Merge(_ context.Context, records []weather.CuratedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil && !errors.Is(err, ErrDatasetNotFound) {
		return err
	}

	combined := weather.CombineCurated(existing, records)
	rows := make([]curatedRow, 0, len(combined))
	for _, r := range combined {
		rows = append(rows, toRow(r))
	}

	tmp := s.path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("swap curated dataset: %w", err)
	}
	return nil
}

func (s *ParquetStore) Recent(_ context.Context, limit int) ([]weather.CuratedRecord, error) {
	records, err := s.load()
	if err != nil {
		return nil, err
	}
	return weather.NewestFirst(records, limit), nil
}

func (s *ParquetStore) All(_ context.Context) ([]weather.CuratedRecord, error) {
	return s.load()
}
