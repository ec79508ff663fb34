package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/i474232898/environmental-data-pipeline/internal/weather"
)

// Storage and provider modes.
const (
	ProviderWeatherAPI  = "weatherapi"
	ProviderOpenWeather = "openweather"

	RawStorageLocal = "local"
	RawStorageS3    = "s3"

	CuratedParquet  = "parquet"
	CuratedPostgres = "postgres"
	CuratedMemory   = "memory"
)

// defaultLocations is used when LOCATIONS is not set.
const defaultLocations = "Delhi:28.7041:77.1025,Mumbai:19.0760:72.8777,Bengaluru:12.9716:77.5946"

type AppConfig struct {
	WeatherProvider   string `validate:"oneof=weatherapi openweather"`
	WeatherAPIKey     string `validate:"required_if=WeatherProvider weatherapi"`
	OpenWeatherAPIKey string `validate:"required_if=WeatherProvider openweather"`
	AQICNAPIKey       string `validate:"required"`

	// Locations to track.
	Locations []weather.Location `validate:"min=1"`

	// FetchInterval controls how often the pipeline runs unless ScheduleCron is set.
	FetchInterval time.Duration `validate:"gt=0"`
	ScheduleCron  string

	RequestPause       time.Duration `validate:"gte=0"`
	HTTPTimeout        time.Duration `validate:"gt=0"`
	JobTimeout         time.Duration `validate:"gt=0"`
	ProviderMaxRetries int           `validate:"gte=0,lte=5"`

	RawStorage  string `validate:"oneof=local s3"`
	RawDataPath string `validate:"required_if=RawStorage local"`
	RawS3Bucket string `validate:"required_if=RawStorage s3"`
	RawS3Prefix string
	AWSRegion   string

	CuratedStorage  string `validate:"oneof=parquet postgres memory"`
	CuratedDataPath string `validate:"required"` // also holds the ledger
	DatabaseURL     string `validate:"required_if=CuratedStorage postgres"`

	Port             string        `validate:"required"`
	RateLimitMax     int           `validate:"gte=1"`
	RateLimitWindow  time.Duration `validate:"gt=0"`
	CORSAllowOrigins string
	DataDefaultLimit int `validate:"gte=1,lte=1000"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds and validates the configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		WeatherProvider:   strings.ToLower(getenvDefault("WEATHER_PROVIDER", ProviderWeatherAPI)),
		WeatherAPIKey:     os.Getenv("WEATHERAPI_API_KEY"),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		AQICNAPIKey:       os.Getenv("AQICN_API_KEY"),
		ScheduleCron:      strings.TrimSpace(os.Getenv("SCHEDULE_CRON")),
		RawStorage:        strings.ToLower(getenvDefault("RAW_STORAGE", RawStorageLocal)),
		RawDataPath:       getenvDefault("RAW_DATA_PATH", "./data/raw"),
		RawS3Bucket:       os.Getenv("RAW_S3_BUCKET"),
		RawS3Prefix:       getenvDefault("RAW_S3_PREFIX", "raw"),
		AWSRegion:         getenvDefault("AWS_REGION", "us-east-1"),
		CuratedStorage:    strings.ToLower(getenvDefault("CURATED_STORAGE", CuratedParquet)),
		CuratedDataPath:   getenvDefault("CURATED_DATA_PATH", "./data/curated"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Port:              getenvDefault("PORT", "8000"),
		CORSAllowOrigins:  getenvDefault("CORS_ALLOW_ORIGINS", "*"),
	}

	var err error
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RequestPause, err = getenvDuration("REQUEST_PAUSE", time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = getenvDuration("JOB_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getenvDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}

	cfg.ProviderMaxRetries = getenvInt("PROVIDER_MAX_RETRIES", 0)
	cfg.RateLimitMax = getenvInt("RATE_LIMIT_MAX", 60)
	cfg.DataDefaultLimit = getenvInt("DATA_DEFAULT_LIMIT", 100)

	if cfg.ScheduleCron != "" {
		if _, err := cron.ParseStandard(cfg.ScheduleCron); err != nil {
			return nil, fmt.Errorf("invalid SCHEDULE_CRON: %w", err)
		}
	}

	cfg.Locations, err = ParseLocations(getenvDefault("LOCATIONS", defaultLocations))
	if err != nil {
		return nil, err
	}

	if err := validate.StructExcept(cfg, providerKeyFields...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// providerKeyFields are only needed by modes that call upstream APIs.
var providerKeyFields = []string{"WeatherAPIKey", "OpenWeatherAPIKey", "AQICNAPIKey"}

// ValidateProviderKeys checks the API keys of the configured providers.
// FromEnv skips them so transform and stats run without credentials.
func (c *AppConfig) ValidateProviderKeys() error {
	if err := validate.StructPartial(c, providerKeyFields...); err != nil {
		return fmt.Errorf("missing provider api key: %w", err)
	}
	return nil
}

// ParseLocations parses "City:lat:lon" entries separated by commas.
func ParseLocations(s string) ([]weather.Location, error) {
	var locs []weather.Location
	seen := make(map[string]bool)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid location %q: want City:lat:lon", entry)
		}
		city := strings.TrimSpace(parts[0])
		if city == "" {
			return nil, fmt.Errorf("invalid location %q: empty city", entry)
		}
		if seen[city] {
			return nil, fmt.Errorf("duplicate location %q", city)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid latitude in %q", entry)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("invalid longitude in %q", entry)
		}
		seen[city] = true
		locs = append(locs, weather.Location{City: city, Lat: lat, Lon: lon})
	}
	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
