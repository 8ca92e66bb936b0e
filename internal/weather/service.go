package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/weather-lookup-cache/internal/common"
)

const tracerName = "github.com/i474232898/weather-lookup-cache/internal/weather"

// Service serves cache-or-fetch lookups over a Store and refreshes stored records
// from a Provider.
type Service struct {
	store    Store
	provider Provider
	logger   *slog.Logger

	// flights coalesces concurrent cache misses for the same key.
	flights  singleflight.Group
	sweeping *atomic.Bool

	refreshConcurrency int
	recordTimeout      time.Duration
	now                func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithRefreshConcurrency bounds how many records a sweep refreshes at once.
func WithRefreshConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.refreshConcurrency = n
		}
	}
}

// WithRecordTimeout bounds each provider call made during a sweep.
func WithRecordTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.recordTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new Service.
func NewService(store Store, provider Provider, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:              store,
		provider:           provider,
		logger:             logger.With("component", "weather-service"),
		sweeping:           atomic.NewBool(false),
		refreshConcurrency: 4,
		recordTimeout:      30 * time.Second,
		now:                func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetByCity returns the stored record for city, fetching and storing it on a miss.
func (s *Service) GetByCity(ctx context.Context, city string) (Result, error) {
	return s.Lookup(ctx, CityKey(city))
}

// GetByZipCode returns the stored record for zip, fetching and storing it on a miss.
func (s *Service) GetByZipCode(ctx context.Context, zip string) (Result, error) {
	return s.Lookup(ctx, ZipKey(zip))
}

// Lookup resolves key against the store and falls back to the provider on a miss.
// Provider failures are reported through Result.Outcome, never as an error; the
// returned error is reserved for invalid keys and store failures.
func (s *Service) Lookup(ctx context.Context, key LookupKey) (Result, error) {
	if strings.TrimSpace(key.Value) == "" {
		return Result{}, ErrEmptyQuery
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "weather.Lookup")
	defer span.End()
	span.SetAttributes(
		attribute.String("weather.key.kind", string(key.Kind)),
		attribute.String("weather.key.value", key.Value),
	)

	rec, err := s.find(ctx, key)
	if err == nil {
		span.SetAttributes(attribute.String("weather.outcome", string(OutcomeHit)))
		return Result{Outcome: OutcomeHit, Record: &rec}, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store lookup failed")
		return Result{}, err
	}

	// The flight outlives any single caller; the provider client timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := s.flights.Do(key.String(), func() (interface{}, error) {
		return s.fetchAndStore(flightCtx, key)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch and store failed")
		return Result{}, err
	}

	res := v.(Result)
	if res.Record != nil {
		// Shared flights hand every caller the same pointer.
		copied := *res.Record
		res.Record = &copied
	}
	span.SetAttributes(
		attribute.String("weather.outcome", string(res.Outcome)),
		attribute.Bool("weather.shared_flight", shared),
	)
	return res, nil
}

func (s *Service) fetchAndStore(ctx context.Context, key LookupKey) (Result, error) {
	// Another flight may have stored the record between our miss and this flight.
	if rec, err := s.find(ctx, key); err == nil {
		return Result{Outcome: OutcomeHit, Record: &rec}, nil
	} else if !errors.Is(err, ErrRecordNotFound) {
		return Result{}, err
	}

	reading, err := s.provider.Fetch(ctx, key.Value)
	if err != nil {
		outcome := outcomeFor(err)
		s.logger.Warn("provider fetch failed",
			"key", key.String(),
			"provider", s.provider.Name(),
			"outcome", outcome,
			"error", err,
		)
		return Result{Outcome: outcome}, nil
	}

	saved, err := s.store.Save(ctx, s.newRecord(key, reading))
	if err != nil {
		return Result{}, fmt.Errorf("save weather record for %s: %w", key, err)
	}

	s.logger.Debug("stored fetched weather record", "key", key.String(), "id", saved.ID)
	return Result{Outcome: OutcomeFetched, Record: &saved}, nil
}

func (s *Service) newRecord(key LookupKey, reading ProviderReading) WeatherRecord {
	now := s.now()
	rec := WeatherRecord{
		ID:        uuid.NewString(),
		CreatedAt: now,
	}
	switch key.Kind {
	case KeyZipCode:
		zip := key.Value
		rec.ZipCode = &zip
		rec.City = common.StringPtr(reading.Location)
	default:
		city := key.Value
		rec.City = &city
	}
	rec.apply(reading, now)
	return rec
}

func (s *Service) find(ctx context.Context, key LookupKey) (WeatherRecord, error) {
	switch key.Kind {
	case KeyCity:
		return s.store.FindByCity(ctx, key.Value)
	case KeyZipCode:
		return s.store.FindByZipCode(ctx, key.Value)
	default:
		return WeatherRecord{}, fmt.Errorf("unknown lookup key kind %q", key.Kind)
	}
}

// ProviderName names the upstream answering lookups.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// Records returns every stored record.
func (s *Service) Records(ctx context.Context) ([]WeatherRecord, error) {
	return s.store.FindAll(ctx)
}
