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

// DefaultOpenWeatherBaseURL is the OpenWeatherMap current weather endpoint.
const DefaultOpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, baseURL, apiKey string, breaker BreakerConfig) *OpenWeatherProvider {
	if baseURL == "" {
		baseURL = DefaultOpenWeatherBaseURL
	}
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		circuit: newCircuitBreaker("openweather", breaker),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, query string) (weather.ProviderReading, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return weather.ProviderReading{}, weather.ErrEmptyQuery
	}
	if p.apiKey == "" {
		return weather.ProviderReading{}, fmt.Errorf("%w: openweather api key is not set", weather.ErrNotConfigured)
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	// OpenWeatherMap resolves postal codes through a dedicated parameter.
	if isZipQuery(query) {
		values.Set("zip", query)
	} else {
		values.Set("q", query)
	}

	raw, err := doGet(ctx, p.client, p.circuit, p.baseURL, values)
	if err != nil {
		return weather.ProviderReading{}, err
	}
	if !raw.ok() {
		return weather.ProviderReading{}, p.statusError(raw)
	}

	var payload struct {
		Dt   int64  `json:"dt"`
		Name string `json:"name"`
		Main *struct {
			Temp *float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	}

	if err := json.Unmarshal(raw.body, &payload); err != nil {
		return weather.ProviderReading{}, fmt.Errorf("%w: %w", weather.ErrParse, err)
	}

	switch {
	case payload.Name == "":
		return weather.ProviderReading{}, fmt.Errorf("%w: name", weather.ErrParse)
	case payload.Main == nil || payload.Main.Temp == nil:
		return weather.ProviderReading{}, fmt.Errorf("%w: main.temp", weather.ErrParse)
	case len(payload.Weather) == 0:
		return weather.ProviderReading{}, fmt.Errorf("%w: weather", weather.ErrParse)
	}

	condition := payload.Weather[0].Description
	if condition == "" {
		condition = payload.Weather[0].Main
	}

	ts := time.Now().UTC()
	if payload.Dt > 0 {
		ts = time.Unix(payload.Dt, 0).UTC()
	}

	return weather.ProviderReading{
		ProviderName: p.name,
		Location:     payload.Name,
		Timestamp:    ts,
		TemperatureC: *payload.Main.Temp,
		Condition:    condition,
	}, nil
}

func (p *OpenWeatherProvider) statusError(raw rawResponse) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw.body, &apiErr)

	if raw.status == http.StatusNotFound || common.HasAny(strings.ToLower(apiErr.Message), "city not found") {
		return fmt.Errorf("%w: %s", weather.ErrLocationNotFound, apiErr.Message)
	}
	return fmt.Errorf("%w: %d %s", weather.ErrProviderStatus, raw.status, apiErr.Message)
}
