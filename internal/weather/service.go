package weather

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"
)

// BatchIDLayout formats the run timestamp embedded in raw batch names.
const BatchIDLayout = "2006-01-02T15-04-05"

// ServiceConfig bundles the collaborators of a Service.
type ServiceConfig struct {
	Weather    WeatherProvider
	AirQuality AirQualityProvider
	Batches    BatchStore
	Ledger     Ledger
	Curated    CuratedStore
	Locations  []Location

	// RequestPause is slept between locations as a courtesy to upstream APIs.
	RequestPause time.Duration
	Now          func() time.Time
}

// Service runs the ingestion and transformation steps and serves the curated dataset.
type Service struct {
	weather    WeatherProvider
	airQuality AirQualityProvider
	normalizer *Normalizer
	batches    BatchStore
	ledger     Ledger
	curated    CuratedStore
	locations  []Location
	pause      time.Duration
	now        func() time.Time

	running atomic.Bool
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var normalizer *Normalizer
	if cfg.Weather != nil && cfg.AirQuality != nil {
		normalizer = NewNormalizer(cfg.Weather.Name(), cfg.AirQuality.Name())
		normalizer.Now = now
	}

	return &Service{
		weather:    cfg.Weather,
		airQuality: cfg.AirQuality,
		normalizer: normalizer,
		batches:    cfg.Batches,
		ledger:     cfg.Ledger,
		curated:    cfg.Curated,
		locations:  cfg.Locations,
		pause:      cfg.RequestPause,
		now:        now,
	}
}

// IngestReport summarizes one ingestion step.
type IngestReport struct {
	BatchID  string
	Records  int
	Failures *multierror.Error
}

// TransformReport summarizes one transformation step.
type TransformReport struct {
	Processed []string
	Skipped   []string
	Records   int
}

// Ingest fetches both providers for every location, normalizes each pair and
// writes the successful records as one raw batch. A failing location is logged
// and reported in Failures; the run continues with the next one. The returned
// error is set only when the raw batch cannot be written.
func (s *Service) Ingest(ctx context.Context) (IngestReport, error) {
	var report IngestReport
	if s.normalizer == nil {
		return report, fmt.Errorf("ingest: weather and air-quality providers are required")
	}

	var records []CanonicalRecord
	for i, loc := range s.locations {
		if i > 0 && s.pause > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(s.pause):
			}
		}

		rec, err := s.collect(ctx, loc)
		if err != nil {
			log.Printf("ERROR: dropping %s for this run: %v", loc.Key(), err)
			report.Failures = multierror.Append(report.Failures, fmt.Errorf("%s: %w", loc.Key(), err))
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		log.Printf("INFO: no records collected in this run")
		return report, nil
	}

	data, err := EncodeBatch(records)
	if err != nil {
		return report, &PersistenceError{Op: "raw batch", Err: err}
	}
	id := "ingestion_run_" + s.now().UTC().Format(BatchIDLayout) + ".json"
	if err := s.batches.Put(ctx, id, data); err != nil {
		return report, &PersistenceError{Op: "raw batch " + id, Err: err}
	}

	report.BatchID = id
	report.Records = len(records)
	log.Printf("INFO: saved %d records to raw batch %s", len(records), id)
	return report, nil
}

func (s *Service) collect(ctx context.Context, loc Location) (CanonicalRecord, error) {
	w, err := s.weather.Fetch(ctx, loc)
	if err != nil {
		return CanonicalRecord{}, err
	}
	aq, err := s.airQuality.Fetch(ctx, loc)
	if err != nil {
		return CanonicalRecord{}, err
	}
	return s.normalizer.Normalize(loc.City, w, aq)
}

// Unprocessed returns the raw batch identities present in storage but absent
// from the ledger, in ascending order.
func (s *Service) Unprocessed(ctx context.Context) ([]string, error) {
	ids, err := s.batches.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list raw batches: %w", err)
	}
	done, err := s.ledger.Processed(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var pending []string
	for _, id := range ids {
		if _, ok := done[id]; !ok {
			pending = append(pending, id)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

// Transform merges every unprocessed raw batch into the curated dataset and
// then records those batches in the ledger. Batches that fail to parse are
// skipped and stay out of the ledger. Nothing is written when there is no data.
func (s *Service) Transform(ctx context.Context) (TransformReport, error) {
	var report TransformReport

	pending, err := s.Unprocessed(ctx)
	if err != nil {
		return report, err
	}
	log.Printf("INFO: found %d new raw batches to process", len(pending))
	if len(pending) == 0 {
		return report, nil
	}

	var batches []Batch
	for _, id := range pending {
		data, err := s.batches.Get(ctx, id)
		if err != nil {
			log.Printf("ERROR: skipping raw batch %s: %v", id, &BatchParseError{Batch: id, Err: err})
			report.Skipped = append(report.Skipped, id)
			continue
		}
		b, err := DecodeBatch(id, data)
		if err != nil {
			log.Printf("ERROR: skipping raw batch: %v", err)
			report.Skipped = append(report.Skipped, id)
			continue
		}
		batches = append(batches, b)
	}

	merged := MergeBatches(batches)
	if len(merged) == 0 {
		log.Printf("INFO: no data was transformed in this run")
		return report, nil
	}

	if err := s.curated.Merge(ctx, merged); err != nil {
		return report, &PersistenceError{Op: "curated dataset", Err: err}
	}

	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	if err := s.ledger.MarkProcessed(ctx, ids); err != nil {
		return report, &PersistenceError{Op: "ledger", Err: err}
	}

	report.Processed = ids
	report.Records = len(merged)
	log.Printf("INFO: transformed %d records from %d batches", len(merged), len(ids))
	return report, nil
}

// Run executes one ingest + transform cycle. Overlapping calls are rejected
// with ErrRunInProgress rather than queued.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer s.running.Store(false)

	runID := uuid.NewString()
	log.Printf("INFO: pipeline run %s started", runID)

	ingest, err := s.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("run %s: ingest: %w", runID, err)
	}
	if ingest.Failures != nil {
		log.Printf("INFO: run %s: %d locations failed", runID, len(ingest.Failures.Errors))
	}

	transform, err := s.Transform(ctx)
	if err != nil {
		return fmt.Errorf("run %s: transform: %w", runID, err)
	}

	log.Printf("INFO: pipeline run %s finished: %d raw records, %d curated records merged, %d batches skipped",
		runID, ingest.Records, transform.Records, len(transform.Skipped))
	return nil
}

// Recent returns up to limit curated records, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]CuratedRecord, error) {
	return s.curated.Recent(ctx, limit)
}

// All returns the full curated dataset.
func (s *Service) All(ctx context.Context) ([]CuratedRecord, error) {
	return s.curated.All(ctx)
}
