package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weather-lookup-cache/internal/api/http"
	"github.com/i474232898/weather-lookup-cache/internal/config"
	"github.com/i474232898/weather-lookup-cache/internal/scheduler"
	"github.com/i474232898/weather-lookup-cache/internal/store"
	"github.com/i474232898/weather-lookup-cache/internal/telemetry"
	"github.com/i474232898/weather-lookup-cache/internal/weather"
	"github.com/i474232898/weather-lookup-cache/internal/weather/providers"
)

const serviceName = "weather-lookup-cache"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.SetTracing(serviceName, cfg.ZipkinEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	records, err := store.Open(startCtx, store.Options{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer records.Close()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	provider := newProvider(cfg, httpClient, logger)

	// Core service orchestrating the provider and store.
	service := weather.NewService(records, provider, logger,
		weather.WithRefreshConcurrency(cfg.RefreshConcurrency),
		weather.WithRecordTimeout(cfg.RecordTimeout),
	)

	// Scheduler that periodically refreshes every stored record.
	sched := scheduler.New(cfg.RefreshInterval, service, logger)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.HTTPTimeout + 5*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	httpapi.RegisterHealth(app, serviceName, records, service)

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		slog.Info("starting server", "addr", cfg.Addr(), "store", cfg.StoreDriver, "provider", provider.Name())
		if err := app.Listen(cfg.Addr()); err != nil {
			slog.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("error flushing traces", "error", err)
	}
}

func newProvider(cfg *config.AppConfig, client *http.Client, logger *slog.Logger) weather.Provider {
	breaker := providers.DefaultBreakerConfig()
	weatherAPI := providers.NewWeatherAPIProvider(client, cfg.WeatherAPIBaseURL, cfg.WeatherAPIKey, breaker)
	openWeather := providers.NewOpenWeatherProvider(client, cfg.OpenWeatherBaseURL, cfg.OpenWeatherAPIKey, breaker)

	switch cfg.Provider {
	case config.ProviderOpenWeather:
		return openWeather
	case config.ProviderChain:
		return providers.NewChain(logger, weatherAPI, openWeather)
	default:
		return weatherAPI
	}
}
