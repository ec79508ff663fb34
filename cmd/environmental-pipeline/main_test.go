package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/environmental-data-pipeline/internal/config"
	"github.com/i474232898/environmental-data-pipeline/internal/store"
)

func setupEnv(t *testing.T, curated string) string {
	t.Helper()
	dir := t.TempDir()
	for key, value := range map[string]string{
		"WEATHER_PROVIDER":    "",
		"WEATHERAPI_API_KEY":  "",
		"OPENWEATHER_API_KEY": "",
		"AQICN_API_KEY":       "",
		"SCHEDULE_CRON":       "",
		"LOCATIONS":           "",
		"RAW_STORAGE":         "local",
		"RAW_DATA_PATH":       filepath.Join(dir, "raw"),
		"CURATED_STORAGE":     curated,
		"CURATED_DATA_PATH":   filepath.Join(dir, "curated"),
	} {
		t.Setenv(key, value)
	}
	return dir
}

func TestRunTransformWithoutProviderKeys(t *testing.T) {
	setupEnv(t, config.CuratedParquet)

	assert.NoError(t, run("transform"))
}

func TestRunIngestRequiresProviderKeys(t *testing.T) {
	setupEnv(t, config.CuratedParquet)

	err := run("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing provider api key")
}

func TestRunStatsReportsMissingDataset(t *testing.T) {
	setupEnv(t, config.CuratedParquet)

	err := run("stats")
	assert.ErrorIs(t, err, store.ErrDatasetNotFound)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	setupEnv(t, config.CuratedParquet)

	assert.Error(t, run("backfill"))
}

func TestOpenCuratedPairsLedgerWithStore(t *testing.T) {
	dir := setupEnv(t, config.CuratedMemory)
	cfg, err := config.FromEnv()
	require.NoError(t, err)

	curated, ledger, closeFn, err := openCurated(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &store.MemoryStore{}, curated)
	assert.IsType(t, &store.MemoryLedger{}, ledger)
	assert.NoDirExists(t, filepath.Join(dir, "curated"))

	cfg.CuratedStorage = config.CuratedParquet
	curated, ledger, closeFn, err = openCurated(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &store.ParquetStore{}, curated)
	assert.IsType(t, &store.FileLedger{}, ledger)
}
