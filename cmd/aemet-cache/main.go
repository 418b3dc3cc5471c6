package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	httpapi "github.com/Carlos329173/AEMET/internal/api/http"
	"github.com/Carlos329173/AEMET/internal/config"
	"github.com/Carlos329173/AEMET/internal/logger"
	"github.com/Carlos329173/AEMET/internal/scheduler"
	"github.com/Carlos329173/AEMET/internal/store"
	"github.com/Carlos329173/AEMET/internal/weather"
	"github.com/Carlos329173/AEMET/internal/weather/providers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.NewLogger(cfg.Logger)
	l := logger.GetLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var measurements weather.Store
	switch cfg.Store.Driver {
	case "memory":
		measurements = store.NewMemoryStore()
	default:
		sqliteStore, err := store.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			l.Fatal().Err(err).Str("path", cfg.Store.SQLitePath).Msg("failed to open sqlite store")
		}
		defer sqliteStore.Close()
		measurements = sqliteStore
	}
	l.Info().Str("driver", cfg.Store.Driver).Msg("store ready")

	// Shared HTTP client for outbound upstream calls.
	httpClient := &http.Client{Timeout: cfg.AEMET.HTTPTimeout}
	aemet := providers.NewAEMETProvider(httpClient, cfg.AEMET.BaseURL, cfg.AEMET.APIKey, cfg.Timezone.UpstreamNaive)

	stations := weather.NewDirectory(weather.DefaultStations)
	service := weather.NewService(measurements, aemet, stations, weather.ServiceConfig{
		DisplayZone: cfg.Timezone.Display,
		Policy: weather.SufficiencyPolicy{
			MinRows: cfg.Cache.MinRows,
			MaxGap:  cfg.Cache.MaxGap,
		},
	})

	warmStations := cfg.Warmup.Stations
	if len(warmStations) == 0 {
		warmStations = stations.Codes()
	}
	sched := scheduler.New(warmStations, cfg.Warmup.Interval, cfg.Warmup.Window, service)
	if err := sched.Start(); err != nil {
		l.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "aemet-cache",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Two sequential upstream calls may run inside one request.
		WriteTimeout: 2*cfg.AEMET.HTTPTimeout + 10*time.Second,
		ErrorHandler: httpapi.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "aemet-cache",
		})
	})

	httpapi.RegisterRoutes(app, service, cfg.Timezone.DefaultInput)

	go func() {
		l.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			l.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	<-ctx.Done()
	l.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("error during shutdown")
	}
}
