package weather

import "errors"

var (
	// ErrEmptyQuery is returned by providers for a blank query.
	ErrEmptyQuery = errors.New("empty weather query")
	// ErrNetwork covers transport failures and timeouts.
	ErrNetwork = errors.New("provider network error")
	// ErrProviderStatus is returned for non-success provider responses.
	ErrProviderStatus = errors.New("provider returned non-success status")
	// ErrParse is returned when the provider payload lacks expected fields.
	ErrParse = errors.New("provider response missing expected fields")
	// ErrLocationNotFound is returned when the provider does not know the query.
	ErrLocationNotFound = errors.New("provider has no matching location")
	// ErrProviderUnavailable is returned while the circuit breaker is open.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrNotConfigured is returned by providers missing credentials.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrRecordNotFound is the store-level cache-miss signal.
	ErrRecordNotFound = errors.New("weather record not found")
	// ErrSweepInProgress is returned when a refresh sweep is already running.
	ErrSweepInProgress = errors.New("refresh sweep already in progress")
)

// outcomeFor maps a provider failure to the lookup outcome it represents.
func outcomeFor(err error) Outcome {
	if errors.Is(err, ErrLocationNotFound) {
		return OutcomeNotFound
	}
	return OutcomeProviderUnavailable
}
