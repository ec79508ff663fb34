package weather

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Provider labels used in errors and in the source_api pairing label.
const (
	ProviderWeatherAPI  = "WeatherAPI"
	ProviderOpenWeather = "OpenWeather"
	ProviderAQICN       = "AQICN"

	statusOK = "ok"
)

// Payload fields are pointers so that an absent field is distinguishable from a zero value.
var validate = newPayloadValidator()

func newPayloadValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	return v
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

type weatherAPIPayload struct {
	Location *struct {
		Name *string  `json:"name" validate:"required"`
		Lat  *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
		Lon  *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	} `json:"location" validate:"required"`
	Current *struct {
		TempC            *float64 `json:"temp_c" validate:"required"`
		FeelsLikeC       *float64 `json:"feelslike_c" validate:"required"`
		PressureMb       *float64 `json:"pressure_mb" validate:"required"`
		Humidity         *int     `json:"humidity" validate:"required,gte=0,lte=100"`
		WindKph          *float64 `json:"wind_kph" validate:"required,gte=0"`
		WindDegree       *int     `json:"wind_degree" validate:"required,gte=0,lte=360"`
		LastUpdatedEpoch *int64   `json:"last_updated_epoch" validate:"required,gt=0"`
	} `json:"current" validate:"required"`
}

type openWeatherPayload struct {
	Coord *struct {
		Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
		Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	} `json:"coord" validate:"required"`
	Main *struct {
		Temp      *float64 `json:"temp" validate:"required"`
		FeelsLike *float64 `json:"feels_like" validate:"required"`
		Pressure  *int     `json:"pressure" validate:"required"`
		Humidity  *int     `json:"humidity" validate:"required,gte=0,lte=100"`
	} `json:"main" validate:"required"`
	Wind *struct {
		Speed *float64 `json:"speed" validate:"required,gte=0"`
		Deg   *int     `json:"deg" validate:"required,gte=0,lte=360"`
	} `json:"wind" validate:"required"`
	Dt   *int64  `json:"dt" validate:"required,gt=0"`
	Name *string `json:"name" validate:"required,min=1"`
}

type airQualityEnvelope struct {
	Status *string         `json:"status" validate:"required"`
	Data   json.RawMessage `json:"data"`
}

type airQualityData struct {
	AQI         *int    `json:"aqi" validate:"required,gte=0"`
	Idx         *int    `json:"idx" validate:"required"`
	DominentPol *string `json:"dominentpol" validate:"required"`
}

// ParseWeatherAPI validates a WeatherAPI.com current-conditions body.
func ParseWeatherAPI(body []byte) (WeatherReading, error) {
	var p weatherAPIPayload
	if err := decodePayload(ProviderWeatherAPI, body, &p); err != nil {
		return WeatherReading{}, err
	}

	return WeatherReading{
		Provider:      ProviderWeatherAPI,
		Name:          *p.Location.Name,
		Lat:           *p.Location.Lat,
		Lon:           *p.Location.Lon,
		TemperatureC:  *p.Current.TempC,
		FeelsLikeC:    *p.Current.FeelsLikeC,
		PressureHpa:   *p.Current.PressureMb,
		HumidityPct:   *p.Current.Humidity,
		WindSpeed:     *p.Current.WindKph,
		WindUnit:      SpeedKPH,
		WindDirection: *p.Current.WindDegree,
		ObservedAt:    time.Unix(*p.Current.LastUpdatedEpoch, 0).UTC(),
	}, nil
}

// ParseOpenWeather validates an OpenWeatherMap current-weather body requested with units=metric.
func ParseOpenWeather(body []byte) (WeatherReading, error) {
	var p openWeatherPayload
	if err := decodePayload(ProviderOpenWeather, body, &p); err != nil {
		return WeatherReading{}, err
	}

	return WeatherReading{
		Provider:      ProviderOpenWeather,
		Name:          *p.Name,
		Lat:           *p.Coord.Lat,
		Lon:           *p.Coord.Lon,
		TemperatureC:  *p.Main.Temp,
		FeelsLikeC:    *p.Main.FeelsLike,
		PressureHpa:   float64(*p.Main.Pressure),
		HumidityPct:   *p.Main.Humidity,
		WindSpeed:     *p.Wind.Speed,
		WindUnit:      SpeedMS,
		WindDirection: *p.Wind.Deg,
		ObservedAt:    time.Unix(*p.Dt, 0).UTC(),
	}, nil
}

// ParseAirQuality validates an AQICN feed body. A status other than "ok" is an
// UpstreamStatusError; the data member is not inspected in that case because
// AQICN puts an error string there.
func ParseAirQuality(body []byte) (AirQualityReading, error) {
	var env airQualityEnvelope
	if err := decodePayload(ProviderAQICN, body, &env); err != nil {
		return AirQualityReading{}, err
	}
	if *env.Status != statusOK {
		return AirQualityReading{}, &UpstreamStatusError{Provider: ProviderAQICN, Status: *env.Status}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return AirQualityReading{}, &SchemaValidationError{Provider: ProviderAQICN, Field: "data", Reason: "required"}
	}

	var d airQualityData
	if err := decodePayload(ProviderAQICN, env.Data, &d); err != nil {
		var sve *SchemaValidationError
		if errors.As(err, &sve) {
			sve.Field = "data." + sve.Field
		}
		return AirQualityReading{}, err
	}

	return AirQualityReading{
		Provider:          ProviderAQICN,
		AQI:               *d.AQI,
		StationIdx:        *d.Idx,
		DominantPollutant: *d.DominentPol,
	}, nil
}

// decodePayload unmarshals body into dst and runs the struct validation rules,
// translating both failure kinds into a SchemaValidationError.
func decodePayload(provider string, body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := "$"
			if typeErr.Field != "" {
				field = jsonFieldPath(reflect.TypeOf(dst), typeErr.Field)
			}
			return &SchemaValidationError{
				Provider: provider,
				Field:    field,
				Reason:   "expected " + typeErr.Type.String() + ", got " + typeErr.Value,
			}
		}
		return &SchemaValidationError{Provider: provider, Field: "$", Reason: "malformed json: " + err.Error()}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &SchemaValidationError{
				Provider: provider,
				Field:    fieldPath(fe.Namespace()),
				Reason:   describeRule(fe),
			}
		}
		return &SchemaValidationError{Provider: provider, Field: "$", Reason: err.Error()}
	}
	return nil
}

// jsonFieldPath turns the field reported by a decode type error into its JSON
// path within t. The decoder names the innermost Go field ("Humidity"); the
// path is rebuilt from the json tags ("current.humidity").
func jsonFieldPath(t reflect.Type, field string) string {
	if i := strings.LastIndex(field, "."); i >= 0 {
		field = field[i+1:]
	}
	if path, ok := findJSONPath(t, field); ok {
		return path
	}
	return field
}

func findJSONPath(t reflect.Type, field string) (string, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Name == field || jsonName(f) == field {
			return jsonName(f), true
		}
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if sub, ok := findJSONPath(f.Type, field); ok {
			return jsonName(f) + "." + sub, true
		}
	}
	return "", false
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeRule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
