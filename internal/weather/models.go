package weather

import (
	"fmt"
	"time"
)

// KeyKind identifies which field a lookup is keyed by.
type KeyKind string

const (
	KeyCity    KeyKind = "city"
	KeyZipCode KeyKind = "zip"
)

// LookupKey is a single city or postal code lookup.
type LookupKey struct {
	Kind  KeyKind
	Value string
}

// CityKey builds a city lookup key.
func CityKey(city string) LookupKey {
	return LookupKey{Kind: KeyCity, Value: city}
}

// ZipKey builds a postal code lookup key.
func ZipKey(zip string) LookupKey {
	return LookupKey{Kind: KeyZipCode, Value: zip}
}

// String returns a canonical string form, used for coalescing and logs.
func (k LookupKey) String() string {
	return string(k.Kind) + ":" + k.Value
}

// WeatherRecord is the last-known weather for one location.
// At least one of City/ZipCode is set. Records created by a zip lookup always
// carry ZipCode; records created by a city lookup never do.
type WeatherRecord struct {
	ID          string    `json:"id"`
	City        *string   `json:"city"`
	ZipCode     *string   `json:"zipCode"`
	Temperature string    `json:"temperature"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"` // always UTC
}

// SourceKey returns the key the record was originally created with.
func (r WeatherRecord) SourceKey() LookupKey {
	if r.ZipCode != nil {
		return ZipKey(*r.ZipCode)
	}
	if r.City != nil {
		return CityKey(*r.City)
	}
	return LookupKey{}
}

// apply overwrites the weather fields from a reading. Keys are left untouched.
func (r *WeatherRecord) apply(reading ProviderReading, now time.Time) {
	r.Temperature = FormatTemperature(reading.TemperatureC)
	r.Description = reading.Condition
	r.UpdatedAt = now
}

// FormatTemperature renders a Celsius value the way records store it.
func FormatTemperature(celsius float64) string {
	return fmt.Sprintf("%.1f°C", celsius)
}

// ProviderReading is a single provider response, discarded after mapping into a record.
type ProviderReading struct {
	ProviderName string
	Location     string
	Timestamp    time.Time

	TemperatureC float64
	Condition    string
}

// Outcome tags the result of a lookup.
type Outcome string

const (
	// OutcomeHit means the record was already stored; no provider call was made.
	OutcomeHit Outcome = "hit"
	// OutcomeFetched means the record was fetched from the provider and stored.
	OutcomeFetched Outcome = "fetched"
	// OutcomeNotFound means the provider does not know the location.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeProviderUnavailable means the provider could not answer right now.
	OutcomeProviderUnavailable Outcome = "provider_unavailable"
)

// Result is the outcome of a cache-or-fetch lookup. Record is nil unless Found.
type Result struct {
	Outcome Outcome
	Record  *WeatherRecord
}

// Found reports whether the lookup produced a record.
func (r Result) Found() bool {
	return r.Record != nil
}

// SweepReport summarises one refresh sweep.
type SweepReport struct {
	Total     int           `json:"total"`
	Refreshed int           `json:"refreshed"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}
