package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNoProviderConfigured is returned when no provider has a usable credential.
// It is a configuration problem, not an upstream failure.
var ErrNoProviderConfigured = errors.New("no provider configured")

// TransportError is a network-level failure reaching a provider
type TransportError struct {
	Provider string
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Provider, e.Cause)
}

// Unwrap implements error unwrapping
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// UpstreamError is a non-2xx HTTP status returned by a provider
type UpstreamError struct {
	Provider string
	Status   int

	// Body is the (possibly truncated) response body kept for diagnostics
	Body []byte
}

func (e *UpstreamError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Status, msg)
}

// TimeoutError means the call exceeded its wall-clock bound
type TimeoutError struct {
	Provider string
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response within %s", e.Provider, e.After)
}

// EmptyResponseError means the call succeeded but carried no usable text
type EmptyResponseError struct {
	Provider string
	Model    string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("%s: model %s returned no text", e.Provider, e.Model)
}

// StatusCode returns the upstream HTTP status carried by err, or 0
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Status
	}
	return 0
}
