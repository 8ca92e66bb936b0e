package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

// maxBodyBytes caps how much of a provider response we read.
const maxBodyBytes = 1 << 20

var errNoHTTPClient = errors.New("http client not configured")

// BreakerConfig controls the circuit breaker wrapped around a provider.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the breaker settings used by every provider.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         5,
		Interval:            1 * time.Minute,
		Timeout:             2 * time.Minute,
		ConsecutiveFailures: 5,
	}
}

func newCircuitBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
}

// rawResponse is a fully read provider response that was not a transport or
// server-side failure. Client errors (4xx) land here so the provider can decide
// whether they mean "unknown location".
type rawResponse struct {
	status int
	body   []byte
}

// doGet issues a single GET through the circuit breaker. There are no retries:
// network failures and 429/5xx responses count against the breaker and are
// returned wrapped in weather.ErrNetwork / weather.ErrProviderStatus.
func doGet(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	baseURL string,
	values url.Values,
) (rawResponse, error) {
	if client == nil {
		return rawResponse{}, errNoHTTPClient
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return rawResponse{}, fmt.Errorf("invalid provider base url: %w", err)
	}
	// Parameters already on the base URL are kept alongside ours.
	query := u.Query()
	for k, vs := range values {
		query[k] = vs
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return rawResponse{}, err
	}
	req.Header.Set("Accept", "application/json")

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, fmt.Errorf("%w: %w", weather.ErrNetwork, execErr)
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			return nil, fmt.Errorf("%w: read body: %w", weather.ErrNetwork, readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %d", weather.ErrProviderStatus, resp.StatusCode)
		}
		return rawResponse{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return rawResponse{}, fmt.Errorf("%w: %w", weather.ErrProviderUnavailable, err)
		}
		return rawResponse{}, err
	}

	raw, ok := result.(rawResponse)
	if !ok {
		return rawResponse{}, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return raw, nil
}

func (r rawResponse) ok() bool {
	return r.status >= 200 && r.status < 300
}

func isZipQuery(q string) bool {
	if q == "" {
		return false
	}
	for _, c := range q {
		if (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}
