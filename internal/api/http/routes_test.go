package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/i474232898/weather-lookup-cache/internal/store"
	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

type stubProvider struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	ready chan struct{}
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Fetch(ctx context.Context, query string) (weather.ProviderReading, error) {
	p.mu.Lock()
	p.calls++
	gate, ready := p.gate, p.ready
	p.mu.Unlock()

	if gate != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
		<-gate
	}

	switch query {
	case "Atlantis":
		return weather.ProviderReading{}, fmt.Errorf("%w: %s", weather.ErrLocationNotFound, query)
	case "Offline":
		return weather.ProviderReading{}, fmt.Errorf("%w: connection refused", weather.ErrNetwork)
	case "10001":
		return weather.ProviderReading{Location: "New York", TemperatureC: 22, Condition: "Sunny"}, nil
	default:
		return weather.ProviderReading{Location: query, TemperatureC: 15, Condition: "Cloudy"}, nil
	}
}

func newTestApp(t *testing.T) (*fiber.App, *stubProvider) {
	t.Helper()
	provider := &stubProvider{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := weather.NewService(store.NewMemoryStore(), provider, logger)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, svc)
	return app, provider
}

func doRequest(t *testing.T, app *fiber.App, method, target string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil), -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

// TestWeatherQueryValidation verifies that exactly one of city or zipCode is required.
func TestWeatherQueryValidation(t *testing.T) {
	app, provider := newTestApp(t)

	targets := []string{
		"/api/v1/weather",
		"/api/v1/weather?city=",
		"/api/v1/weather?city=%20%20",
		"/api/v1/weather?city=London&zipCode=10001",
	}
	for _, target := range targets {
		resp, body := doRequest(t, app, http.MethodGet, target)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", target, http.StatusBadRequest, resp.StatusCode)
		}

		var payload struct {
			Error   bool   `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("%s: decode error body: %v", target, err)
		}
		if !payload.Error || payload.Message != errExactlyOneKey {
			t.Fatalf("%s: unexpected error body %s", target, body)
		}
	}

	if provider.calls != 0 {
		t.Fatalf("invalid requests must not reach the provider, got %d calls", provider.calls)
	}
}

func TestWeatherLookupMissThenHit(t *testing.T) {
	app, provider := newTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/weather?city=London")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get("X-Cache"); got != "MISS" {
		t.Fatalf("expected X-Cache MISS, got %q", got)
	}

	var first weather.WeatherRecord
	if err := json.Unmarshal(body, &first); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if first.City == nil || *first.City != "London" || first.ZipCode != nil {
		t.Fatalf("unexpected keys in %s", body)
	}
	if first.Temperature != "15.0°C" || first.Description != "Cloudy" {
		t.Fatalf("unexpected weather in %s", body)
	}

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/weather?city=London")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Cache"); got != "HIT" {
		t.Fatalf("expected X-Cache HIT, got %q", got)
	}
	var second weather.WeatherRecord
	if err := json.Unmarshal(body, &second); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same record, got %s and %s", first.ID, second.ID)
	}
	if provider.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.calls)
	}
}

func TestWeatherLookupByZip(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/weather?zipCode=10001")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.StatusCode, body)
	}
	var rec weather.WeatherRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.ZipCode == nil || *rec.ZipCode != "10001" || rec.Temperature != "22.0°C" {
		t.Fatalf("unexpected record %s", body)
	}
}

func TestWeatherLookupProviderFailures(t *testing.T) {
	app, _ := newTestApp(t)

	tests := map[string]int{
		"/api/v1/weather?city=Atlantis": http.StatusNotFound,
		"/api/v1/weather?city=Offline":  http.StatusServiceUnavailable,
	}
	for target, want := range tests {
		resp, body := doRequest(t, app, http.MethodGet, target)
		if resp.StatusCode != want {
			t.Fatalf("%s: expected status %d, got %d: %s", target, want, resp.StatusCode, body)
		}
	}

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/weather/records")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 0 {
		t.Fatalf("failed lookups must not store records, got %d", list.Count)
	}
}

func TestRecordsAndRefresh(t *testing.T) {
	app, provider := newTestApp(t)

	for _, target := range []string{"/api/v1/weather?city=London", "/api/v1/weather?zipCode=10001"} {
		if resp, body := doRequest(t, app, http.MethodGet, target); resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d: %s", target, resp.StatusCode, body)
		}
	}

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/weather/records")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var list struct {
		Count   int                     `json:"count"`
		Records []weather.WeatherRecord `json:"records"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Count != 2 || len(list.Records) != 2 {
		t.Fatalf("expected 2 records, got %s", body)
	}

	resp, body = doRequest(t, app, http.MethodPost, "/api/v1/weather/refresh")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.StatusCode, body)
	}
	var report weather.SweepReport
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Total != 2 || report.Refreshed != 2 || report.Failed != 0 {
		t.Fatalf("unexpected report %s", body)
	}
	if provider.calls != 4 {
		t.Fatalf("expected 2 lookups and 2 refreshes, got %d provider calls", provider.calls)
	}
}

func TestRefreshConflict(t *testing.T) {
	app, provider := newTestApp(t)

	if resp, body := doRequest(t, app, http.MethodGet, "/api/v1/weather?city=London"); resp.StatusCode != http.StatusOK {
		t.Fatalf("seed: expected status 200, got %d: %s", resp.StatusCode, body)
	}

	provider.mu.Lock()
	provider.gate = make(chan struct{})
	provider.ready = make(chan struct{}, 1)
	provider.mu.Unlock()

	done := make(chan int, 1)
	go func() {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/weather/refresh", nil), -1)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	<-provider.ready
	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/weather/refresh")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status %d, got %d: %s", http.StatusConflict, resp.StatusCode, body)
	}

	close(provider.gate)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first refresh: expected status 200, got %d", code)
	}
}

func TestStoredKeysSurviveLaterRequests(t *testing.T) {
	app, _ := newTestApp(t)

	if resp, body := doRequest(t, app, http.MethodGet, "/api/v1/weather?city=London"); resp.StatusCode != http.StatusOK {
		t.Fatalf("seed: expected status 200, got %d: %s", resp.StatusCode, body)
	}

	filler := "/api/v1/weather/records?padding=" + strings.Repeat("Q", 64)
	for i := 0; i < 50; i++ {
		doRequest(t, app, http.MethodGet, filler)
		doRequest(t, app, http.MethodGet, "/api/v1/weather?zipCode=99999")
		doRequest(t, app, http.MethodGet, "/api/v1/weather?city="+strings.Repeat("Z", 8))
	}

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/weather/records")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var list struct {
		Records []weather.WeatherRecord `json:"records"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}

	type keys struct{ City, Zip string }
	var got []keys
	for _, rec := range list.Records {
		k := keys{}
		if rec.City != nil {
			k.City = *rec.City
		}
		if rec.ZipCode != nil {
			k.Zip = *rec.ZipCode
		}
		got = append(got, k)
	}
	want := []keys{
		{City: "London"},
		{City: "99999", Zip: "99999"},
		{City: "ZZZZZZZZ"},
	}
	byKey := cmpopts.SortSlices(func(a, b keys) bool { return a.City+"|"+a.Zip < b.City+"|"+b.Zip })
	if diff := cmp.Diff(want, got, byKey); diff != "" {
		t.Fatalf("stored keys changed (-want +got):\n%s", diff)
	}

	for _, target := range []string{
		"/api/v1/weather?city=London",
		"/api/v1/weather?zipCode=99999",
		"/api/v1/weather?city=ZZZZZZZZ",
	} {
		resp, _ := doRequest(t, app, http.MethodGet, target)
		if got := resp.Header.Get("X-Cache"); got != "HIT" {
			t.Fatalf("%s: expected X-Cache HIT, got %q", target, got)
		}
	}
}
