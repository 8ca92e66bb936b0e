package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-lookup-cache/internal/common"
	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

// DefaultWeatherAPIBaseURL is the WeatherAPI.com current conditions endpoint.
const DefaultWeatherAPIBaseURL = "https://api.weatherapi.com/v1/current.json"

// weatherAPINoMatchCode is WeatherAPI's "No matching location found." error code.
const weatherAPINoMatchCode = 1006

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewWeatherAPIProvider builds a WeatherAPI client. An empty baseURL selects the
// public endpoint.
func NewWeatherAPIProvider(client *http.Client, baseURL, apiKey string, breaker BreakerConfig) *WeatherAPIProvider {
	if baseURL == "" {
		baseURL = DefaultWeatherAPIBaseURL
	}
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		circuit: newCircuitBreaker("weatherapi", breaker),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

// Fetch issues GET <base>?key=<apiKey>&q=<query> and maps the current conditions.
func (p *WeatherAPIProvider) Fetch(ctx context.Context, query string) (weather.ProviderReading, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return weather.ProviderReading{}, weather.ErrEmptyQuery
	}
	if p.apiKey == "" {
		return weather.ProviderReading{}, fmt.Errorf("%w: weatherapi api key is not set", weather.ErrNotConfigured)
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	values.Set("q", query)

	raw, err := doGet(ctx, p.client, p.circuit, p.baseURL, values)
	if err != nil {
		return weather.ProviderReading{}, err
	}
	if !raw.ok() {
		return weather.ProviderReading{}, p.statusError(raw)
	}

	var payload struct {
		Location *struct {
			Name string `json:"name"`
		} `json:"location"`
		Current *struct {
			LastUpdatedEpoch int64    `json:"last_updated_epoch"`
			TempC            *float64 `json:"temp_c"`
			Condition        *struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}

	if err := json.Unmarshal(raw.body, &payload); err != nil {
		return weather.ProviderReading{}, fmt.Errorf("%w: %w", weather.ErrParse, err)
	}

	switch {
	case payload.Location == nil || payload.Location.Name == "":
		return weather.ProviderReading{}, fmt.Errorf("%w: location.name", weather.ErrParse)
	case payload.Current == nil || payload.Current.TempC == nil:
		return weather.ProviderReading{}, fmt.Errorf("%w: current.temp_c", weather.ErrParse)
	case payload.Current.Condition == nil || payload.Current.Condition.Text == "":
		return weather.ProviderReading{}, fmt.Errorf("%w: current.condition.text", weather.ErrParse)
	}

	ts := time.Now().UTC()
	if payload.Current.LastUpdatedEpoch > 0 {
		ts = time.Unix(payload.Current.LastUpdatedEpoch, 0).UTC()
	}

	return weather.ProviderReading{
		ProviderName: p.name,
		Location:     payload.Location.Name,
		Timestamp:    ts,
		TemperatureC: *payload.Current.TempC,
		Condition:    payload.Current.Condition.Text,
	}, nil
}

func (p *WeatherAPIProvider) statusError(raw rawResponse) error {
	var apiErr struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(raw.body, &apiErr)

	msg := strings.ToLower(apiErr.Error.Message)
	if apiErr.Error.Code == weatherAPINoMatchCode || common.HasAny(msg, "no matching location", "no location found") {
		return fmt.Errorf("%w: %s", weather.ErrLocationNotFound, apiErr.Error.Message)
	}
	return fmt.Errorf("%w: %d %s", weather.ErrProviderStatus, raw.status, apiErr.Error.Message)
}
