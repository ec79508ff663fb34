// Package stats computes descriptive statistics and correlations over the curated dataset.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/environmental-data-pipeline/internal/weather"
)

// Columns lists the numeric columns of a curated record in output order.
var Columns = []string{
	"lat",
	"lon",
	"temperature_celsius",
	"feels_like_celsius",
	"pressure_hpa",
	"humidity_percent",
	"wind_speed_ms",
	"wind_direction_deg",
	"aqi",
	"hour_of_day_utc",
	"day_of_week_utc",
}

func columnValue(r weather.CuratedRecord, col string) float64 {
	switch col {
	case "lat":
		return r.Lat
	case "lon":
		return r.Lon
	case "temperature_celsius":
		return r.TemperatureCelsius
	case "feels_like_celsius":
		return r.FeelsLikeCelsius
	case "pressure_hpa":
		return r.PressureHpa
	case "humidity_percent":
		return float64(r.HumidityPercent)
	case "wind_speed_ms":
		return r.WindSpeedMS
	case "wind_direction_deg":
		return float64(r.WindDirectionDeg)
	case "aqi":
		return float64(r.AQI)
	case "hour_of_day_utc":
		return float64(r.HourOfDayUTC)
	case "day_of_week_utc":
		return float64(r.DayOfWeekUTC)
	}
	return math.NaN()
}

// Summary holds one column's description. Undefined values (e.g. the standard
// deviation of a single row) are nil so they encode as JSON null.
type Summary struct {
	Count int      `json:"count"`
	Mean  *float64 `json:"mean"`
	Std   *float64 `json:"std"`
	Min   *float64 `json:"min"`
	P25   *float64 `json:"25%"`
	P50   *float64 `json:"50%"`
	P75   *float64 `json:"75%"`
	Max   *float64 `json:"max"`
}

// Report is the payload of the stats endpoint.
type Report struct {
	DescriptiveStats  map[string]Summary              `json:"descriptive_stats"`
	CorrelationMatrix map[string]map[string]*float64 `json:"correlation_matrix"`
}

// Describe summarizes every numeric column and builds the square Pearson
// correlation matrix across them.
func Describe(records []weather.CuratedRecord) Report {
	data := make(map[string][]float64, len(Columns))
	for _, col := range Columns {
		xs := make([]float64, len(records))
		for i, r := range records {
			xs[i] = columnValue(r, col)
		}
		data[col] = xs
	}

	report := Report{
		DescriptiveStats:  make(map[string]Summary, len(Columns)),
		CorrelationMatrix: make(map[string]map[string]*float64, len(Columns)),
	}
	for _, col := range Columns {
		report.DescriptiveStats[col] = summarize(data[col])

		row := make(map[string]*float64, len(Columns))
		for _, other := range Columns {
			row[other] = correlation(data[col], data[other])
		}
		report.CorrelationMatrix[col] = row
	}
	return report
}

func summarize(xs []float64) Summary {
	s := Summary{Count: len(xs)}
	if len(xs) == 0 {
		return s
	}

	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	s.Mean = finite(stat.Mean(xs, nil))
	if len(xs) > 1 {
		s.Std = finite(stat.StdDev(xs, nil))
	}
	s.Min = finite(floats.Min(xs))
	s.Max = finite(floats.Max(xs))
	s.P25 = finite(quantile(sorted, 0.25))
	s.P50 = finite(quantile(sorted, 0.50))
	s.P75 = finite(quantile(sorted, 0.75))
	return s
}

// quantile interpolates linearly between closest ranks at position (n-1)*p.
// gonum's stat.Quantile only offers the empirical and LinInterp estimators,
// neither of which uses this definition.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := float64(len(sorted)-1) * p
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func correlation(x, y []float64) *float64 {
	if len(x) < 2 {
		return nil
	}
	return finite(stat.Correlation(x, y, nil))
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
