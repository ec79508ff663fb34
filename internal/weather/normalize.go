package weather

import (
	"errors"
	"time"

	"github.com/i474232898/environmental-data-pipeline/internal/common"
)

// Normalizer combines one weather and one air-quality reading into a CanonicalRecord.
type Normalizer struct {
	// SourceAPI labels the provider pairing, e.g. "WeatherAPI+AQICN".
	SourceAPI string
	// Now is the process clock; defaults to time.Now.
	Now func() time.Time
}

// NewNormalizer returns a Normalizer tagging records with the pairing of the two providers.
func NewNormalizer(weatherProvider, airQualityProvider string) *Normalizer {
	return &Normalizer{
		SourceAPI: weatherProvider + "+" + airQualityProvider,
		Now:       time.Now,
	}
}

// Normalize builds the canonical record for city. The city name is passed in
// rather than taken from the payload because providers disagree on naming.
func (n *Normalizer) Normalize(city string, w WeatherReading, aq AirQualityReading) (CanonicalRecord, error) {
	if city == "" {
		return CanonicalRecord{}, errors.New("normalize: city name is required")
	}
	if w.ObservedAt.IsZero() {
		return CanonicalRecord{}, errors.New("normalize: weather reading has no observation time")
	}

	now := time.Now
	if n.Now != nil {
		now = n.Now
	}

	return CanonicalRecord{
		IngestionTimestamp: now().UTC(),
		SourceAPI:          n.SourceAPI,
		City:               city,
		Lat:                common.Round(w.Lat, 2),
		Lon:                common.Round(w.Lon, 2),
		TemperatureCelsius: common.Round(w.TemperatureC, 2),
		FeelsLikeCelsius:   common.Round(w.FeelsLikeC, 2),
		PressureHpa:        w.PressureHpa,
		HumidityPercent:    w.HumidityPct,
		WindSpeedMS:        windSpeedMS(w.WindSpeed, w.WindUnit),
		WindDirectionDeg:   w.WindDirection % 360,
		AQI:                aq.AQI,
		DominantPollutant:  aq.DominantPollutant,
		APITimestamp:       w.ObservedAt.UTC(),
	}, nil
}

func windSpeedMS(v float64, unit SpeedUnit) float64 {
	if unit == SpeedKPH {
		return common.Round(v*1000/3600, 2)
	}
	return common.Round(v, 2)
}
