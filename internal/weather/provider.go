package weather

import (
	"context"
)

// Provider abstracts a weather data source (e.g. WeatherAPI, OpenWeatherMap).
// Fetch never retries; failures are returned as wrapped package sentinels.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, query string) (ProviderReading, error)
}

// Store is the contract every record store (memory, postgres, sqlite) must satisfy.
// Implementations must be safe for concurrent use and return ErrRecordNotFound on a miss.
type Store interface {
	FindByCity(ctx context.Context, city string) (WeatherRecord, error)
	FindByZipCode(ctx context.Context, zip string) (WeatherRecord, error)
	Save(ctx context.Context, record WeatherRecord) (WeatherRecord, error)
	FindAll(ctx context.Context) ([]WeatherRecord, error)
}
