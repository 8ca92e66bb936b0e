package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort               = "8080"
	defaultProvider           = ProviderWeatherAPI
	defaultWeatherAPIBaseURL  = "https://api.weatherapi.com/v1/current.json"
	defaultOpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"
	defaultHTTPTimeout        = 10 * time.Second
	defaultRefreshInterval    = 3600000 * time.Millisecond
	defaultRefreshConcurrency = 4
	defaultRecordTimeout      = 30 * time.Second
	defaultStoreDriver        = "memory"
	defaultSQLitePath         = "weather.db"
)

// Provider selections.
const (
	ProviderWeatherAPI  = "weatherapi"
	ProviderOpenWeather = "openweathermap"
	ProviderChain       = "chain"
)

type AppConfig struct {
	Port string

	// Provider selects which upstream answers lookups.
	Provider           string
	WeatherAPIBaseURL  string
	WeatherAPIKey      string
	OpenWeatherBaseURL string
	OpenWeatherAPIKey  string

	// HTTPTimeout bounds every outbound provider call.
	HTTPTimeout time.Duration

	// RefreshInterval controls how often stored records are re-fetched.
	RefreshInterval    time.Duration
	RefreshConcurrency int
	RecordTimeout      time.Duration

	// Store backend: memory, postgres or sqlite.
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json

	// ZipkinEndpoint enables span export when set.
	ZipkinEndpoint string
}

// Load reads configuration from environment with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", defaultPort)

	cfg.Provider = strings.ToLower(getenvDefault("WEATHER_PROVIDER", defaultProvider))
	cfg.WeatherAPIBaseURL = getenvDefault("WEATHER_PROVIDER_BASE_URL", defaultWeatherAPIBaseURL)
	cfg.WeatherAPIKey = getenvDefault("WEATHER_PROVIDER_API_KEY", os.Getenv("WEATHERAPI_API_KEY"))
	cfg.OpenWeatherBaseURL = getenvDefault("OPENWEATHER_BASE_URL", defaultOpenWeatherBaseURL)
	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", defaultHTTPTimeout); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", defaultRefreshInterval); err != nil {
		return nil, err
	}
	if cfg.RecordTimeout, err = getenvDuration("REFRESH_RECORD_TIMEOUT", defaultRecordTimeout); err != nil {
		return nil, err
	}
	if cfg.RefreshConcurrency, err = getenvInt("REFRESH_CONCURRENCY", defaultRefreshConcurrency); err != nil {
		return nil, err
	}

	cfg.StoreDriver = strings.ToLower(getenvDefault("STORE_DRIVER", defaultStoreDriver))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", defaultSQLitePath)

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "text")

	cfg.ZipkinEndpoint = os.Getenv("ZIPKIN_ENDPOINT")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks whether the configuration values are usable.
func (c *AppConfig) Validate() error {
	switch c.Provider {
	case ProviderWeatherAPI, ProviderOpenWeather, ProviderChain:
	default:
		return fmt.Errorf("invalid WEATHER_PROVIDER %q", c.Provider)
	}

	switch c.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}

	if c.HTTPTimeout <= 0 {
		return errors.New("HTTP_TIMEOUT must be positive")
	}
	if c.RefreshInterval <= 0 {
		return errors.New("REFRESH_INTERVAL must be positive")
	}
	if c.RecordTimeout <= 0 {
		return errors.New("REFRESH_RECORD_TIMEOUT must be positive")
	}
	if c.RefreshConcurrency <= 0 {
		return errors.New("REFRESH_CONCURRENCY must be positive")
	}
	return nil
}

// Addr returns the listen address in the format ":port".
func (c *AppConfig) Addr() string {
	return ":" + c.Port
}

// NewLogger creates a slog.Logger from the configured level and format.
func (c *AppConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(c.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// getenvDuration accepts a Go duration ("1h", "90s") or a bare integer in milliseconds.
func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
