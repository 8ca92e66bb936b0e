package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = weather.ErrRecordNotFound

	errMissingID  = errors.New("weather record has no id")
	errMissingKey = errors.New("weather record needs a city or zip code")
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// RecordStore is a weather.Store that also reports its size and releases resources.
type RecordStore interface {
	weather.Store
	io.Closer
	Count(ctx context.Context) (int, error)
}

// Options selects and configures a store backend.
type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// Open builds the store selected by opts.Driver and prepares its schema.
func Open(ctx context.Context, opts Options) (RecordStore, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverPostgres:
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case DriverSQLite:
		return NewSQLiteStore(ctx, opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

func validateRecord(rec weather.WeatherRecord) error {
	if rec.ID == "" {
		return errMissingID
	}
	if rec.City == nil && rec.ZipCode == nil {
		return errMissingKey
	}
	return nil
}
