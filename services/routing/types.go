package routing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/upb/llm-fallback-router/services"
	"github.com/upb/llm-fallback-router/services/providers"
)

// Outcome classifies one candidate attempt
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeHTTPError      Outcome = "http_error"
	OutcomeEmptyResponse  Outcome = "empty_response"
	OutcomeTransportError Outcome = "transport_error"
)

// Attempt records what happened to one (provider, model) candidate
type Attempt struct {
	Provider string
	Model    string
	Outcome  Outcome

	// Status is the upstream HTTP status, 0 when no response arrived
	Status int

	// Detail is a human-readable cause, empty on success
	Detail  string
	Latency time.Duration

	// Err is the classified provider error, nil on success
	Err error
}

// Failed reports whether the attempt did not produce an answer
func (a Attempt) Failed() bool {
	return a.Outcome != OutcomeSuccess
}

// CanonicalResponse is the provider-independent answer returned to callers.
// Content is never empty.
type CanonicalResponse struct {
	Provider string
	Model    string
	Content  string
}

// Result is a successful run: the answer plus every attempt that led to it.
// Attempts holds the failures in order followed by the success.
type Result struct {
	RunID    string
	Response CanonicalResponse
	Attempts []Attempt
}

// Normalize wraps extracted text in the canonical response shape
func Normalize(provider, model, text string) CanonicalResponse {
	return CanonicalResponse{
		Provider: provider,
		Model:    model,
		Content:  text,
	}
}

// ExhaustedError is returned when every candidate failed.
// Attempts lists every enabled (provider, model) pair in the order tried.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		part := fmt.Sprintf("%s/%s: %s", a.Provider, a.Model, a.Outcome)
		if a.Status != 0 {
			part += fmt.Sprintf(" %d", a.Status)
		}
		parts = append(parts, part)
	}
	return fmt.Sprintf("all %d candidates failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes every attempt cause to errors.Is and errors.As
func (e *ExhaustedError) Unwrap() error {
	var combined error
	for _, a := range e.Attempts {
		combined = multierr.Append(combined, a.Err)
	}
	return combined
}

// AttemptsFromError returns the attempt list carried by a failed run, or nil
func AttemptsFromError(err error) []Attempt {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Attempts
	}
	if attempts, ok := services.GetErrorDetails(err)[detailAttempts].([]Attempt); ok {
		return attempts
	}
	return nil
}

// RunRecord summarizes a finished run for the attempt journal.
// It never carries conversation content.
type RunRecord struct {
	RunID     string
	StartedAt time.Time
	Attempts  []Attempt
	Succeeded bool

	// Canceled is set when the caller ended the run before any candidate answered
	Canceled bool
}

// classify maps an invocation error onto an attempt outcome
func classify(err error) (Outcome, int) {
	var timeout *providers.TimeoutError
	var empty *providers.EmptyResponseError

	if status := providers.StatusCode(err); status != 0 {
		return OutcomeHTTPError, status
	}

	switch {
	case errors.As(err, &timeout):
		return OutcomeTimeout, 0
	case errors.As(err, &empty):
		return OutcomeEmptyResponse, 0
	default:
		return OutcomeTransportError, 0
	}
}
