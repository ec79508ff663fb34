package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/environmental-data-pipeline/internal/weather"
)

func TestParquetStoreMissingDataset(t *testing.T) {
	s, err := NewParquetStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.All(context.Background())
	assert.ErrorIs(t, err, ErrDatasetNotFound)

	require.NoError(t, os.WriteFile(s.Path(), nil, 0o644))
	_, err = s.Recent(context.Background(), 5)
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestParquetStoreMerge(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "curated")
	s, err := NewParquetStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	first := curated("Delhi", 1700000000, 150)
	require.NoError(t, s.Merge(ctx, []weather.CuratedRecord{first, curated("Mumbai", 1700000000, 80)}))
	require.NoError(t, s.Merge(ctx, []weather.CuratedRecord{curated("Delhi", 1700000000, 999), curated("Delhi", 1700003600, 160)}))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	got := all[0]
	assert.Equal(t, first.City, got.City)
	assert.Equal(t, 150, got.AQI)
	assert.True(t, first.APITimestamp.Equal(got.APITimestamp))
	assert.True(t, first.IngestionTimestamp.Equal(got.IngestionTimestamp))
	assert.Equal(t, first.SourceAPI, got.SourceAPI)
	assert.Equal(t, first.WindSpeedMS, got.WindSpeedMS)
	assert.Equal(t, first.HumidityPercent, got.HumidityPercent)
	assert.Equal(t, first.WindDirectionDeg, got.WindDirectionDeg)
	assert.Equal(t, first.DominantPollutant, got.DominantPollutant)
	assert.Equal(t, 22, got.HourOfDayUTC)
	assert.Equal(t, 1, got.DayOfWeekUTC)

	assert.Equal(t, "Delhi", all[1].City)
	assert.Equal(t, 160, all[1].AQI)
	assert.Equal(t, "Mumbai", all[2].City)

	recent, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 160, recent[0].AQI)

	_, err = os.Stat(s.Path() + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
