package weather_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/environmental-data-pipeline/internal/store"
	"github.com/i474232898/environmental-data-pipeline/internal/weather"
)

type fakeWeather struct {
	mu      sync.Mutex
	calls   int
	fail    map[string]error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeWeather) Name() string { return weather.ProviderWeatherAPI }

func (f *fakeWeather) Fetch(ctx context.Context, loc weather.Location) (weather.WeatherReading, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return weather.WeatherReading{}, ctx.Err()
		}
	}
	if err := f.fail[loc.City]; err != nil {
		return weather.WeatherReading{}, err
	}
	return weather.WeatherReading{
		Provider:      weather.ProviderWeatherAPI,
		Name:          loc.City,
		Lat:           loc.Lat,
		Lon:           loc.Lon,
		TemperatureC:  25,
		FeelsLikeC:    26,
		PressureHpa:   1012,
		HumidityPct:   50,
		WindSpeed:     18,
		WindUnit:      weather.SpeedKPH,
		WindDirection: 90,
		ObservedAt:    time.Unix(1700000000, 0).UTC(),
	}, nil
}

type fakeAirQuality struct {
	fail map[string]error
}

func (f *fakeAirQuality) Name() string { return weather.ProviderAQICN }

func (f *fakeAirQuality) Fetch(_ context.Context, loc weather.Location) (weather.AirQualityReading, error) {
	if err := f.fail[loc.City]; err != nil {
		return weather.AirQualityReading{}, err
	}
	return weather.AirQualityReading{Provider: weather.ProviderAQICN, AQI: 42, StationIdx: 1, DominantPollutant: "pm25"}, nil
}

type failingCurated struct {
	*store.MemoryStore
}

func (failingCurated) Merge(context.Context, []weather.CuratedRecord) error {
	return errors.New("disk full")
}

var testLocations = []weather.Location{
	{City: "Delhi", Lat: 28.7041, Lon: 77.1025},
	{City: "Mumbai", Lat: 19.076, Lon: 72.8777},
	{City: "Bengaluru", Lat: 12.9716, Lon: 77.5946},
}

type harness struct {
	svc     *weather.Service
	batches *store.DirBatchStore
	ledger  *store.FileLedger
	curated *store.MemoryStore
	clock   *time.Time
}

func newHarness(t *testing.T, w weather.WeatherProvider, aq weather.AirQualityProvider, curated weather.CuratedStore) *harness {
	t.Helper()
	dir := t.TempDir()

	batches, err := store.NewDirBatchStore(filepath.Join(dir, "raw"))
	require.NoError(t, err)
	ledger := store.NewFileLedger(filepath.Join(dir, "curated", store.LedgerFileName))
	mem := store.NewMemoryStore()
	if curated == nil {
		curated = mem
	}

	clock := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)
	h := &harness{batches: batches, ledger: ledger, curated: mem, clock: &clock}
	h.svc = weather.NewService(weather.ServiceConfig{
		Weather:    w,
		AirQuality: aq,
		Batches:    batches,
		Ledger:     ledger,
		Curated:    curated,
		Locations:  testLocations,
		Now:        func() time.Time { return *h.clock },
	})
	return h
}

func (h *harness) tick() {
	*h.clock = h.clock.Add(10 * time.Minute)
}

func TestIngestIsolatesFailingLocation(t *testing.T) {
	aq := &fakeAirQuality{fail: map[string]error{
		"Mumbai": &weather.UpstreamStatusError{Provider: weather.ProviderAQICN, Status: "error"},
	}}
	h := newHarness(t, &fakeWeather{}, aq, nil)
	ctx := context.Background()

	report, err := h.svc.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ingestion_run_2025-11-02T10-00-00.json", report.BatchID)
	assert.Equal(t, 2, report.Records)
	require.NotNil(t, report.Failures)
	require.Len(t, report.Failures.Errors, 1)
	var use *weather.UpstreamStatusError
	assert.ErrorAs(t, report.Failures.Errors[0], &use)

	data, err := h.batches.Get(ctx, report.BatchID)
	require.NoError(t, err)
	b, err := weather.DecodeBatch(report.BatchID, data)
	require.NoError(t, err)
	require.Len(t, b.Records, 2)
	assert.Equal(t, "Delhi", b.Records[0].City)
	assert.Equal(t, "Bengaluru", b.Records[1].City)
	assert.Equal(t, "WeatherAPI+AQICN", b.Records[0].SourceAPI)
	assert.Equal(t, 5.0, b.Records[0].WindSpeedMS)
}

func TestIngestWritesNothingWhenEveryLocationFails(t *testing.T) {
	boom := &weather.NetworkError{Provider: weather.ProviderWeatherAPI, Err: errors.New("connection refused")}
	w := &fakeWeather{fail: map[string]error{"Delhi": boom, "Mumbai": boom, "Bengaluru": boom}}
	h := newHarness(t, w, &fakeAirQuality{}, nil)
	ctx := context.Background()

	report, err := h.svc.Ingest(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.BatchID)
	assert.Len(t, report.Failures.Errors, 3)

	ids, err := h.batches.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTransformIsIdempotent(t *testing.T) {
	h := newHarness(t, &fakeWeather{}, &fakeAirQuality{}, nil)
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx)
	require.NoError(t, err)
	h.tick()
	// Same api_timestamp again: the second batch holds duplicates only.
	_, err = h.svc.Ingest(ctx)
	require.NoError(t, err)

	report, err := h.svc.Transform(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Processed, 2)
	assert.Equal(t, 3, report.Records)

	all, err := h.curated.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "Bengaluru", all[0].City)
	assert.Equal(t, 22, all[0].HourOfDayUTC)
	assert.Equal(t, 1, all[0].DayOfWeekUTC)

	pending, err := h.svc.Unprocessed(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	again, err := h.svc.Transform(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Processed)
	after, err := h.curated.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, all, after)
}

func TestUnprocessedShrinksAfterTransform(t *testing.T) {
	h := newHarness(t, &fakeWeather{}, &fakeAirQuality{}, nil)
	ctx := context.Background()

	first, err := h.svc.Ingest(ctx)
	require.NoError(t, err)
	h.tick()
	second, err := h.svc.Ingest(ctx)
	require.NoError(t, err)

	pending, err := h.svc.Unprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first.BatchID, second.BatchID}, pending)

	require.NoError(t, h.ledger.MarkProcessed(ctx, []string{first.BatchID}))
	pending, err = h.svc.Unprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{second.BatchID}, pending)
}

func TestTransformLeavesLedgerUntouchedWhenCuratedWriteFails(t *testing.T) {
	h := newHarness(t, &fakeWeather{}, &fakeAirQuality{}, failingCurated{store.NewMemoryStore()})
	ctx := context.Background()

	_, err := h.svc.Ingest(ctx)
	require.NoError(t, err)

	_, err = h.svc.Transform(ctx)
	var pe *weather.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "curated dataset", pe.Op)

	done, err := h.ledger.Processed(ctx)
	require.NoError(t, err)
	assert.Empty(t, done)

	pending, err := h.svc.Unprocessed(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestTransformSkipsCorruptBatch(t *testing.T) {
	h := newHarness(t, &fakeWeather{}, &fakeAirQuality{}, nil)
	ctx := context.Background()

	good, err := h.svc.Ingest(ctx)
	require.NoError(t, err)
	const corrupt = "ingestion_run_2025-11-02T09-00-00.json"
	require.NoError(t, h.batches.Put(ctx, corrupt, []byte(`[{"city": "Delhi"`)))

	report, err := h.svc.Transform(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{corrupt}, report.Skipped)
	assert.Equal(t, []string{good.BatchID}, report.Processed)

	pending, err := h.svc.Unprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{corrupt}, pending)
}

func TestTransformWithNoBatchesIsNoop(t *testing.T) {
	h := newHarness(t, &fakeWeather{}, &fakeAirQuality{}, nil)
	ctx := context.Background()

	report, err := h.svc.Transform(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Processed)

	_, err = h.curated.All(ctx)
	assert.ErrorIs(t, err, store.ErrDatasetNotFound)
}

func TestRunRejectsOverlap(t *testing.T) {
	w := &fakeWeather{block: make(chan struct{}), started: make(chan struct{}, len(testLocations))}
	h := newHarness(t, w, &fakeAirQuality{}, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- h.svc.Run(ctx) }()
	<-w.started

	assert.ErrorIs(t, h.svc.Run(ctx), weather.ErrRunInProgress)

	close(w.block)
	require.NoError(t, <-done)

	recent, err := h.svc.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestMemoryModeRestartRemergesRawBatches(t *testing.T) {
	ctx := context.Background()
	batches, err := store.NewDirBatchStore(t.TempDir())
	require.NoError(t, err)

	start := func() (*weather.Service, *store.MemoryStore) {
		curated := store.NewMemoryStore()
		return weather.NewService(weather.ServiceConfig{
			Weather:    &fakeWeather{},
			AirQuality: &fakeAirQuality{},
			Batches:    batches,
			Ledger:     store.NewMemoryLedger(),
			Curated:    curated,
			Locations:  testLocations,
		}), curated
	}

	svc, _ := start()
	_, err = svc.Ingest(ctx)
	require.NoError(t, err)
	_, err = svc.Transform(ctx)
	require.NoError(t, err)

	restarted, curated := start()
	report, err := restarted.Transform(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Processed, 1)

	all, err := curated.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTransformEmptyBatches(t *testing.T) {
	h := newHarness(t, &fakeWeather{}, &fakeAirQuality{}, nil)
	ctx := context.Background()

	const empty = "ingestion_run_2025-11-02T09-00-00.json"
	require.NoError(t, h.batches.Put(ctx, empty, []byte(`[]`)))

	// Only empty batches: nothing to merge, nothing written.
	report, err := h.svc.Transform(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Processed)
	done, err := h.ledger.Processed(ctx)
	require.NoError(t, err)
	assert.Empty(t, done)

	// Next to a batch with records it is ledgered with the rest.
	good, err := h.svc.Ingest(ctx)
	require.NoError(t, err)
	report, err = h.svc.Transform(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{empty, good.BatchID}, report.Processed)

	pending, err := h.svc.Unprocessed(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
