package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/i474232898/environmental-data-pipeline/internal/weather"
)

// CuratedTable is the Postgres table holding the curated dataset.
const CuratedTable = "environmental_records"

const createTableSQL = `CREATE TABLE IF NOT EXISTS environmental_records (
	city                TEXT             NOT NULL,
	api_timestamp       TIMESTAMPTZ      NOT NULL,
	ingestion_timestamp TIMESTAMPTZ      NOT NULL,
	source_api          TEXT             NOT NULL,
	lat                 DOUBLE PRECISION NOT NULL,
	lon                 DOUBLE PRECISION NOT NULL,
	temperature_celsius DOUBLE PRECISION NOT NULL,
	feels_like_celsius  DOUBLE PRECISION NOT NULL,
	pressure_hpa        DOUBLE PRECISION NOT NULL,
	humidity_percent    INTEGER          NOT NULL,
	wind_speed_ms       DOUBLE PRECISION NOT NULL,
	wind_direction_deg  INTEGER          NOT NULL,
	aqi                 INTEGER          NOT NULL,
	dominant_pollutant  TEXT             NOT NULL,
	hour_of_day_utc     SMALLINT         NOT NULL,
	day_of_week_utc     SMALLINT         NOT NULL,
	PRIMARY KEY (city, api_timestamp)
)`

const recordColumns = `city, api_timestamp, ingestion_timestamp, source_api, lat, lon,
	temperature_celsius, feels_like_celsius, pressure_hpa, humidity_percent,
	wind_speed_ms, wind_direction_deg, aqi, dominant_pollutant, hour_of_day_utc, day_of_week_utc`

// Existing rows win on conflict: curated records are never rewritten.
const insertRecordSQL = `INSERT INTO environmental_records (` + recordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (city, api_timestamp) DO NOTHING`

const selectRecentSQL = `SELECT ` + recordColumns + ` FROM environmental_records
	ORDER BY api_timestamp DESC, city ASC LIMIT $1`

const selectAllSQL = `SELECT ` + recordColumns + ` FROM environmental_records
	ORDER BY city ASC, api_timestamp ASC`

// pgUndefinedTable is the SQLSTATE for a missing relation.
const pgUndefinedTable = "42P01"

// PostgresStore keeps the curated dataset in a Postgres table keyed by (city, api_timestamp).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the curated table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create %s: %w", CuratedTable, err)
	}
	return nil
}

// Merge upserts records in a single transaction.
func (s *PostgresStore) Merge(ctx context.Context, records []weather.CuratedRecord) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertRecordSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx,
			r.City, r.APITimestamp.UTC(), r.IngestionTimestamp.UTC(), r.SourceAPI, r.Lat, r.Lon,
			r.TemperatureCelsius, r.FeelsLikeCelsius, r.PressureHpa, r.HumidityPercent,
			r.WindSpeedMS, r.WindDirectionDeg, r.AQI, r.DominantPollutant, r.HourOfDayUTC, r.DayOfWeekUTC,
		); err != nil {
			return fmt.Errorf("insert %s@%s: %w", r.City, r.APITimestamp.Format("2006-01-02T15:04:05Z"), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]weather.CuratedRecord, error) {
	if limit <= 0 {
		return s.All(ctx)
	}
	return s.query(ctx, selectRecentSQL, limit)
}

func (s *PostgresStore) All(ctx context.Context) ([]weather.CuratedRecord, error) {
	return s.query(ctx, selectAllSQL)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]weather.CuratedRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUndefinedTable {
			return nil, ErrDatasetNotFound
		}
		return nil, err
	}
	defer rows.Close()

	var out []weather.CuratedRecord
	for rows.Next() {
		var r weather.CuratedRecord
		if err := rows.Scan(
			&r.City, &r.APITimestamp, &r.IngestionTimestamp, &r.SourceAPI, &r.Lat, &r.Lon,
			&r.TemperatureCelsius, &r.FeelsLikeCelsius, &r.PressureHpa, &r.HumidityPercent,
			&r.WindSpeedMS, &r.WindDirectionDeg, &r.AQI, &r.DominantPollutant, &r.HourOfDayUTC, &r.DayOfWeekUTC,
		); err != nil {
			return nil, err
		}
		r.APITimestamp = r.APITimestamp.UTC()
		r.IngestionTimestamp = r.IngestionTimestamp.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
