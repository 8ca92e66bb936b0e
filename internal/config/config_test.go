package config

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"PORT",
	"WEATHER_PROVIDER",
	"WEATHER_PROVIDER_BASE_URL",
	"WEATHER_PROVIDER_API_KEY",
	"WEATHERAPI_API_KEY",
	"OPENWEATHER_BASE_URL",
	"OPENWEATHER_API_KEY",
	"HTTP_TIMEOUT",
	"REFRESH_INTERVAL",
	"REFRESH_RECORD_TIMEOUT",
	"REFRESH_CONCURRENCY",
	"STORE_DRIVER",
	"DATABASE_URL",
	"SQLITE_PATH",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"ZIPKIN_ENDPOINT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &AppConfig{
		Port:               "8080",
		Provider:           ProviderWeatherAPI,
		WeatherAPIBaseURL:  "https://api.weatherapi.com/v1/current.json",
		OpenWeatherBaseURL: "https://api.openweathermap.org/data/2.5/weather",
		HTTPTimeout:        10 * time.Second,
		RefreshInterval:    time.Hour,
		RefreshConcurrency: 4,
		RecordTimeout:      30 * time.Second,
		StoreDriver:        "memory",
		SQLitePath:         "weather.db",
		LogLevel:           "info",
		LogFormat:          "text",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.Addr(); got != ":8080" {
		t.Fatalf("unexpected addr %q", got)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("WEATHER_PROVIDER", "Chain")
	t.Setenv("WEATHER_PROVIDER_API_KEY", " key-1 ")
	t.Setenv("OPENWEATHER_API_KEY", "key-2")
	t.Setenv("REFRESH_INTERVAL", "90000")
	t.Setenv("HTTP_TIMEOUT", "2s")
	t.Setenv("REFRESH_CONCURRENCY", "8")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/weather")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "9090" || cfg.Provider != ProviderChain {
		t.Fatalf("unexpected port/provider %q/%q", cfg.Port, cfg.Provider)
	}
	if cfg.WeatherAPIKey != "key-1" || cfg.OpenWeatherAPIKey != "key-2" {
		t.Fatalf("unexpected keys %q/%q", cfg.WeatherAPIKey, cfg.OpenWeatherAPIKey)
	}
	if cfg.RefreshInterval != 90*time.Second {
		t.Fatalf("expected millisecond interval to parse as 90s, got %v", cfg.RefreshInterval)
	}
	if cfg.HTTPTimeout != 2*time.Second || cfg.RefreshConcurrency != 8 {
		t.Fatalf("unexpected timeout/concurrency %v/%d", cfg.HTTPTimeout, cfg.RefreshConcurrency)
	}
	if cfg.StoreDriver != "postgres" || cfg.DatabaseURL != "postgres://localhost/weather" {
		t.Fatalf("unexpected store settings %q/%q", cfg.StoreDriver, cfg.DatabaseURL)
	}
}

func TestFromEnvLegacyAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEATHERAPI_API_KEY", "legacy")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WeatherAPIKey != "legacy" {
		t.Fatalf("expected fallback key, got %q", cfg.WeatherAPIKey)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown provider":       {"WEATHER_PROVIDER": "darksky"},
		"unknown store":          {"STORE_DRIVER": "mongo"},
		"postgres without url":   {"STORE_DRIVER": "postgres"},
		"bad interval":           {"REFRESH_INTERVAL": "soon"},
		"zero interval":          {"REFRESH_INTERVAL": "0"},
		"negative timeout":       {"HTTP_TIMEOUT": "-1s"},
		"zero concurrency":       {"REFRESH_CONCURRENCY": "0"},
		"unparsable concurrency": {"REFRESH_CONCURRENCY": "abc"},
		"zero record timeout":    {"REFRESH_RECORD_TIMEOUT": "0s"},
		"unparsable record wait": {"REFRESH_RECORD_TIMEOUT": "half a minute"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestNewLoggerLevels(t *testing.T) {
	tests := map[string]bool{
		"debug": true,
		"info":  false,
		"":      false,
	}
	for level, debugEnabled := range tests {
		cfg := &AppConfig{LogLevel: level, LogFormat: "json"}
		logger := cfg.NewLogger()
		if got := logger.Enabled(context.Background(), slog.LevelDebug); got != debugEnabled {
			t.Errorf("level %q: debug enabled = %v, want %v", level, got, debugEnabled)
		}
	}
}

func TestFromEnvInvalidConcurrencyNamesKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("REFRESH_CONCURRENCY", "abc")

	_, err := FromEnv()
	if err == nil || !strings.Contains(err.Error(), "invalid REFRESH_CONCURRENCY") {
		t.Fatalf("expected an invalid REFRESH_CONCURRENCY error, got %v", err)
	}
}
