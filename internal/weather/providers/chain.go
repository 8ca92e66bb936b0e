package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

// Chain tries each provider in order and returns the first successful reading.
type Chain struct {
	providers []weather.Provider
	logger    *slog.Logger
}

// NewChain builds a Chain. Providers are consulted in the given order.
func NewChain(logger *slog.Logger, providers ...weather.Provider) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "provider-chain"),
	}
}

func (c *Chain) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Fetch reports ErrLocationNotFound only when every configured provider says so.
// Any other combination of failures is joined so callers still see the causes.
func (c *Chain) Fetch(ctx context.Context, query string) (weather.ProviderReading, error) {
	if len(c.providers) == 0 {
		return weather.ProviderReading{}, fmt.Errorf("%w: no weather providers configured", weather.ErrNotConfigured)
	}

	var (
		errs      []error
		notFound  int
		attempted int
	)
	for _, p := range c.providers {
		reading, err := p.Fetch(ctx, query)
		if err == nil {
			return reading, nil
		}
		if errors.Is(err, weather.ErrEmptyQuery) {
			return weather.ProviderReading{}, err
		}
		if errors.Is(err, weather.ErrNotConfigured) {
			continue
		}

		attempted++
		c.logger.Debug("provider failed, trying next", "provider", p.Name(), "error", err)
		if errors.Is(err, weather.ErrLocationNotFound) {
			notFound++
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}

	switch {
	case attempted == 0:
		return weather.ProviderReading{}, fmt.Errorf("%w: no provider has credentials", weather.ErrNotConfigured)
	case notFound == attempted:
		return weather.ProviderReading{}, fmt.Errorf("%w: %q", weather.ErrLocationNotFound, query)
	default:
		return weather.ProviderReading{}, errors.Join(errs...)
	}
}
