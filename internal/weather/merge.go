package weather

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Batch is one raw batch: the records one ingestion run produced, identified by its storage name.
type Batch struct {
	ID      string
	Records []CanonicalRecord
}

// EncodeBatch serializes records as the JSON array stored for a raw batch.
func EncodeBatch(records []CanonicalRecord) ([]byte, error) {
	return json.MarshalIndent(records, "", "  ")
}

// batchTime accepts the timestamp shapes found in raw batches: RFC3339 with an
// offset, naive ISO-8601 (taken as UTC) and unix seconds.
type batchTime struct {
	time.Time
	set bool
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *batchTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] != '"' {
		secs, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("invalid epoch timestamp %s", b)
		}
		t.Time = time.Unix(0, int64(secs*float64(time.Second))).UTC()
		t.set = true
		return nil
	}

	s, err := strconv.Unquote(string(b))
	if err != nil {
		return err
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time, t.set = ts.UTC(), true
		return nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time, t.set = ts, true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

type batchRecord struct {
	IngestionTimestamp batchTime `json:"ingestion_timestamp"`
	SourceAPI          string    `json:"source_api"`
	City               string    `json:"city"`
	Lat                float64   `json:"lat"`
	Lon                float64   `json:"lon"`
	TemperatureCelsius float64   `json:"temperature_celsius"`
	FeelsLikeCelsius   float64   `json:"feels_like_celsius"`
	PressureHpa        float64   `json:"pressure_hpa"`
	HumidityPercent    int       `json:"humidity_percent"`
	WindSpeedMS        float64   `json:"wind_speed_ms"`
	WindDirectionDeg   int       `json:"wind_direction_deg"`
	AQI                int       `json:"aqi"`
	DominantPollutant  string    `json:"dominant_pollutant"`
	APITimestamp       batchTime `json:"api_timestamp"`
}

// DecodeBatch parses a raw batch and normalizes both timestamps to UTC.
// Any decoding problem fails the whole batch with a BatchParseError.
func DecodeBatch(id string, data []byte) (Batch, error) {
	var raw []batchRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return Batch{}, &BatchParseError{Batch: id, Err: err}
	}

	records := make([]CanonicalRecord, 0, len(raw))
	for i, r := range raw {
		if r.City == "" {
			return Batch{}, &BatchParseError{Batch: id, Err: fmt.Errorf("record %d: missing city", i)}
		}
		if !r.APITimestamp.set {
			return Batch{}, &BatchParseError{Batch: id, Err: fmt.Errorf("record %d: missing api_timestamp", i)}
		}
		records = append(records, CanonicalRecord{
			IngestionTimestamp: r.IngestionTimestamp.Time,
			SourceAPI:          r.SourceAPI,
			City:               r.City,
			Lat:                r.Lat,
			Lon:                r.Lon,
			TemperatureCelsius: r.TemperatureCelsius,
			FeelsLikeCelsius:   r.FeelsLikeCelsius,
			PressureHpa:        r.PressureHpa,
			HumidityPercent:    r.HumidityPercent,
			WindSpeedMS:        r.WindSpeedMS,
			WindDirectionDeg:   r.WindDirectionDeg,
			AQI:                r.AQI,
			DominantPollutant:  r.DominantPollutant,
			APITimestamp:       r.APITimestamp.Time,
		})
	}
	return Batch{ID: id, Records: records}, nil
}

// MergeBatches concatenates batches in ascending ID order, keeps one record per
// (city, api_timestamp), sorts by city then time and derives calendar features.
//
// Duplicate keys resolve last-write-wins: a record from a later batch (or later
// in the same batch) replaces an earlier one. Batch IDs embed the run timestamp,
// so this keeps the most recently ingested copy.
func MergeBatches(batches []Batch) []CuratedRecord {
	ordered := make([]Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	index := make(map[recordKey]int)
	var merged []CanonicalRecord
	for _, b := range ordered {
		for _, r := range b.Records {
			r.IngestionTimestamp = r.IngestionTimestamp.UTC()
			r.APITimestamp = r.APITimestamp.UTC()

			k := keyOf(r)
			if i, ok := index[k]; ok {
				merged[i] = r
				continue
			}
			index[k] = len(merged)
			merged = append(merged, r)
		}
	}

	out := make([]CuratedRecord, 0, len(merged))
	for _, r := range merged {
		out = append(out, Curate(r))
	}
	SortCurated(out)
	return out
}

// CombineCurated merges incoming records into an existing curated dataset.
// Curated records are immutable, so on a key collision the existing record is kept.
func CombineCurated(existing, incoming []CuratedRecord) []CuratedRecord {
	seen := make(map[recordKey]struct{}, len(existing)+len(incoming))
	out := make([]CuratedRecord, 0, len(existing)+len(incoming))
	for _, group := range [][]CuratedRecord{existing, incoming} {
		for _, r := range group {
			k := keyOf(r.CanonicalRecord)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, r)
		}
	}
	SortCurated(out)
	return out
}

// Curate derives the calendar features of r from its api_timestamp in UTC.
func Curate(r CanonicalRecord) CuratedRecord {
	ts := r.APITimestamp.UTC()
	return CuratedRecord{
		CanonicalRecord: r,
		HourOfDayUTC:    ts.Hour(),
		DayOfWeekUTC:    (int(ts.Weekday()) + 6) % 7,
	}
}

// SortCurated orders records by city, then api_timestamp ascending.
func SortCurated(records []CuratedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].City != records[j].City {
			return records[i].City < records[j].City
		}
		return records[i].APITimestamp.Before(records[j].APITimestamp)
	})
}

// NewestFirst returns up to limit records ordered by api_timestamp descending.
// A limit <= 0 returns every record.
func NewestFirst(records []CuratedRecord, limit int) []CuratedRecord {
	out := make([]CuratedRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].APITimestamp.After(out[j].APITimestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
