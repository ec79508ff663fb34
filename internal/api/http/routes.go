package httpapi

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/environmental-data-pipeline/internal/stats"
	"github.com/i474232898/environmental-data-pipeline/internal/store"
	"github.com/i474232898/environmental-data-pipeline/internal/weather"
)

const serviceName = "environmental-data-pipeline"

var validate = validator.New()

// Reader is the read side of the curated dataset; weather.Service satisfies it.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]weather.CuratedRecord, error)
	All(ctx context.Context) ([]weather.CuratedRecord, error)
}

// Options tunes the HTTP surface.
type Options struct {
	DefaultLimit     int
	RateLimitMax     int
	RateLimitWindow  time.Duration
	CORSAllowOrigins string
	// AccessLog enables fiber's request logger.
	AccessLog bool
}

// NewApp builds the Fiber app with middleware and the read routes.
func NewApp(reader Reader, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          ErrorHandler,
	})

	if opts.AccessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.CORSAllowOrigins,
		AllowMethods: "GET,OPTIONS",
	}))
	if opts.RateLimitMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Next:       func(c *fiber.Ctx) bool { return c.Path() == "/health" },
			Max:        opts.RateLimitMax,
			Expiration: opts.RateLimitWindow,
			LimitReached: func(c *fiber.Ctx) error {
				return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
			},
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})

	RegisterRoutes(app, reader, opts.DefaultLimit)
	// The dashboard client calls the same endpoints under /api.
	RegisterRoutes(app.Group("/api"), reader, opts.DefaultLimit)
	return app
}

// ErrorHandler renders every failure as {"error": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// RegisterRoutes wires the read handlers into router.
func RegisterRoutes(router fiber.Router, reader Reader, defaultLimit int) {
	if defaultLimit <= 0 {
		defaultLimit = 100
	}

	router.Get("/data", func(c *fiber.Ctx) error {
		q := dataQuery{Limit: c.QueryInt("limit", defaultLimit)}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 1000")
		}

		records, err := reader.Recent(c.UserContext(), q.Limit)
		if err != nil {
			return datasetError(err)
		}
		if records == nil {
			records = []weather.CuratedRecord{}
		}
		return c.JSON(records)
	})

	router.Get("/stats", func(c *fiber.Ctx) error {
		records, err := reader.All(c.UserContext())
		if err != nil {
			return datasetError(err)
		}
		return c.JSON(stats.Describe(records))
	})
}

// dataQuery holds query parameters for the data endpoint.
type dataQuery struct {
	Limit int `validate:"min=1,max=1000"`
}

func datasetError(err error) error {
	if errors.Is(err, store.ErrDatasetNotFound) {
		return fiber.NewError(fiber.StatusNotFound, store.ErrDatasetNotFound.Error())
	}
	log.Printf("ERROR: reading curated dataset: %v", err)
	return fiber.NewError(fiber.StatusInternalServerError, "failed to read curated dataset")
}
