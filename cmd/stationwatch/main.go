package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	httpapi "github.com/stationwatch/stationwatch/internal/api/http"
	"github.com/stationwatch/stationwatch/internal/config"
	"github.com/stationwatch/stationwatch/internal/export"
	"github.com/stationwatch/stationwatch/internal/query"
	"github.com/stationwatch/stationwatch/internal/scheduler"
	"github.com/stationwatch/stationwatch/internal/snapshot"
	"github.com/stationwatch/stationwatch/internal/station"
	"github.com/stationwatch/stationwatch/internal/store"
	"github.com/stationwatch/stationwatch/internal/telemetry"
	"github.com/stationwatch/stationwatch/internal/telemetry/sources"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.AccessToken == "" {
		log.Warn().Msg("CWA_TOKEN is not set; upstream fetches will fail until it is configured")
	}

	// Station directory: external read-only collaborator, loaded once.
	directory, err := station.Load(cfg.StationListPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load station directory")
	}

	// Persistent observation store.
	obsStore, err := store.Open(cfg.DBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open observation store")
	}
	defer obsStore.Close()

	// Shared HTTP client for outbound feed calls.
	httpClient := &http.Client{
		Timeout: cfg.FetchTimeout,
	}

	parser := telemetry.NewParser(cfg.Location)
	primary := sources.NewStationFeed("primary", cfg.PrimaryURL, cfg.AccessToken, httpClient, parser)
	secondary := sources.NewStationFeed("secondary", cfg.SecondaryURL, cfg.AccessToken, httpClient, parser)

	snap := snapshot.New()
	exporter := export.New(obsStore, cfg.CSVDir, cfg.Location)

	service := telemetry.NewService(telemetry.ServiceConfig{
		Directory: directory,
		Primary:   primary,
		Secondary: secondary,
		Store:     obsStore,
		Cache:     snap,
		Exporter:  exporter,
		Location:  cfg.Location,
		Logger:    log,
	})

	sched := scheduler.New(scheduler.Config{
		Service:        service,
		Interval:       cfg.FetchInterval,
		CycleTimeout:   4 * cfg.FetchTimeout,
		RetentionHours: cfg.RetentionHours,
		PruneAt:        cfg.PruneAt,
		Location:       cfg.Location,
		Logger:         log,
	})
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	engine := query.New(obsStore, cfg.Location, nil)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "stationwatch",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "stationwatch",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Engine:    engine,
		Snapshot:  snap,
		Directory: directory,
		Exporter:  exporter,
		Location:  cfg.Location,
		Logger:    log,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
