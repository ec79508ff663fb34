package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/goccy/go-json"
	flag "github.com/spf13/pflag"

	httpapi "github.com/i474232898/environmental-data-pipeline/internal/api/http"
	"github.com/i474232898/environmental-data-pipeline/internal/config"
	"github.com/i474232898/environmental-data-pipeline/internal/scheduler"
	"github.com/i474232898/environmental-data-pipeline/internal/stats"
	"github.com/i474232898/environmental-data-pipeline/internal/store"
	"github.com/i474232898/environmental-data-pipeline/internal/weather"
	"github.com/i474232898/environmental-data-pipeline/internal/weather/providers"
)

func main() {
	mode := flag.StringP("mode", "m", "serve", "serve | ingest | transform | stats")
	flag.Parse()

	if err := run(*mode); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

// run executes one mode and returns its error to main.
func run(mode string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch mode {
	case "serve", "ingest":
		if err := cfg.ValidateProviderKeys(); err != nil {
			return err
		}
	case "transform", "stats":
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, closeFn, err := buildService(ctx, cfg)
	defer closeFn()
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}

	switch mode {
	case "serve":
		return serve(ctx, cfg, service)
	case "ingest":
		report, err := service.Ingest(ctx)
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}
		if report.Failures != nil {
			log.Printf("INFO: %d locations failed: %v", len(report.Failures.Errors), report.Failures)
		}
	case "transform":
		if _, err := service.Transform(ctx); err != nil {
			return fmt.Errorf("transformation failed: %w", err)
		}
	case "stats":
		records, err := service.All(ctx)
		if err != nil {
			return fmt.Errorf("failed to read curated dataset: %w", err)
		}
		out, err := json.MarshalIndent(stats.Describe(records), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode stats: %w", err)
		}
		fmt.Println(string(out))
	}
	return nil
}

func serve(ctx context.Context, cfg *config.AppConfig, service *weather.Service) error {
	// Scheduler that periodically ingests and merges data.
	sched := scheduler.New(service, cfg.FetchInterval, cfg.ScheduleCron, cfg.JobTimeout)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(service, httpapi.Options{
		DefaultLimit:     cfg.DataDefaultLimit,
		RateLimitMax:     cfg.RateLimitMax,
		RateLimitWindow:  cfg.RateLimitWindow,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:        true,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	return nil
}

// buildService wires providers and storage from the configuration. The
// returned func releases connections opened here.
func buildService(ctx context.Context, cfg *config.AppConfig) (*weather.Service, func(), error) {
	closeFn := func() {}

	// Shared HTTP client for outbound provider calls.
	httpCfg := providers.NewHTTPClientConfig(&http.Client{Timeout: cfg.HTTPTimeout}, cfg.ProviderMaxRetries)

	var weatherProvider weather.WeatherProvider
	switch cfg.WeatherProvider {
	case config.ProviderOpenWeather:
		weatherProvider = providers.NewOpenWeatherProvider(httpCfg, cfg.OpenWeatherAPIKey)
	default:
		weatherProvider = providers.NewWeatherAPIProvider(httpCfg, cfg.WeatherAPIKey)
	}
	airQualityProvider := providers.NewAQICNProvider(httpCfg, cfg.AQICNAPIKey)

	var batches weather.BatchStore
	switch cfg.RawStorage {
	case config.RawStorageS3:
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)})
		if err != nil {
			return nil, closeFn, fmt.Errorf("aws session: %w", err)
		}
		batches = store.NewS3BatchStore(s3.New(sess), cfg.RawS3Bucket, cfg.RawS3Prefix)
	default:
		dir, err := store.NewDirBatchStore(cfg.RawDataPath)
		if err != nil {
			return nil, closeFn, err
		}
		batches = dir
	}

	curated, ledger, closeFn, err := openCurated(ctx, cfg)
	if err != nil {
		return nil, closeFn, err
	}

	service := weather.NewService(weather.ServiceConfig{
		Weather:      weatherProvider,
		AirQuality:   airQualityProvider,
		Batches:      batches,
		Ledger:       ledger,
		Curated:      curated,
		Locations:    cfg.Locations,
		RequestPause: cfg.RequestPause,
	})
	return service, closeFn, nil
}

// openCurated picks the curated store and the ledger that goes with it. The
// memory store gets a memory ledger so both start empty after a restart.
func openCurated(ctx context.Context, cfg *config.AppConfig) (weather.CuratedStore, weather.Ledger, func(), error) {
	closeFn := func() {}

	if cfg.CuratedStorage == config.CuratedMemory {
		return store.NewMemoryStore(), store.NewMemoryLedger(), closeFn, nil
	}

	if err := os.MkdirAll(cfg.CuratedDataPath, 0o755); err != nil {
		return nil, nil, closeFn, fmt.Errorf("create curated data dir: %w", err)
	}
	ledger := store.NewFileLedger(filepath.Join(cfg.CuratedDataPath, store.LedgerFileName))

	if cfg.CuratedStorage == config.CuratedPostgres {
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, closeFn, err
		}
		closeFn = func() { closeDB(db) }
		pg := store.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, nil, closeFn, err
		}
		return pg, ledger, closeFn, nil
	}

	pq, err := store.NewParquetStore(cfg.CuratedDataPath)
	if err != nil {
		return nil, nil, closeFn, err
	}
	return pq, ledger, closeFn, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		log.Printf("error closing database: %v", err)
	}
}
