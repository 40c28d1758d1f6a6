package models

import (
	"time"

	"github.com/google/uuid"
)

// AttemptOutcome mirrors the sequencer's attempt classification
type AttemptOutcome string

const (
	AttemptOutcomeSuccess        AttemptOutcome = "success"
	AttemptOutcomeTimeout        AttemptOutcome = "timeout"
	AttemptOutcomeHTTPError      AttemptOutcome = "http_error"
	AttemptOutcomeEmptyResponse  AttemptOutcome = "empty_response"
	AttemptOutcomeTransportError AttemptOutcome = "transport_error"
)

// maxErrorMessageLen bounds stored diagnostics; upstream bodies can be large
const maxErrorMessageLen = 512

// AttemptLog is one journal row: a single candidate tried during a run.
// Conversation content is never stored.
type AttemptLog struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	RunID        string         `json:"run_id" db:"run_id"`
	RequestID    string         `json:"request_id" db:"request_id"`
	Seq          int            `json:"seq" db:"seq"` // position within the run, from 0
	Provider     string         `json:"provider" db:"provider"`
	Model        string         `json:"model" db:"model"`
	Outcome      AttemptOutcome `json:"outcome" db:"outcome"`
	StatusCode   *int           `json:"status_code,omitempty" db:"status_code"`
	LatencyMs    int            `json:"latency_ms" db:"latency_ms"`
	ErrorMessage *string        `json:"error_message,omitempty" db:"error_message"`
	Timestamp    time.Time      `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AttemptLog model
func (AttemptLog) TableName() string {
	return "attempt_logs"
}

// NewAttemptLog creates a new AttemptLog instance
func NewAttemptLog(runID string, seq int, provider, model string, outcome AttemptOutcome) *AttemptLog {
	return &AttemptLog{
		ID:        uuid.New(),
		RunID:     runID,
		Seq:       seq,
		Provider:  provider,
		Model:     model,
		Outcome:   outcome,
		Timestamp: time.Now(),
	}
}

// WithRequest sets the inbound request ID
func (a *AttemptLog) WithRequest(requestID string) *AttemptLog {
	a.RequestID = requestID
	return a
}

// WithLatency sets the attempt latency
func (a *AttemptLog) WithLatency(latency time.Duration) *AttemptLog {
	a.LatencyMs = int(latency.Milliseconds())
	return a
}

// WithError sets error information; a zero status is stored as NULL
func (a *AttemptLog) WithError(statusCode int, errorMessage string) *AttemptLog {
	if statusCode != 0 {
		a.StatusCode = &statusCode
	}
	if errorMessage != "" {
		if len(errorMessage) > maxErrorMessageLen {
			errorMessage = errorMessage[:maxErrorMessageLen]
		}
		a.ErrorMessage = &errorMessage
	}
	return a
}

// Succeeded reports whether the attempt produced the run's answer
func (a *AttemptLog) Succeeded() bool {
	return a.Outcome == AttemptOutcomeSuccess
}

// OutcomeCount is one aggregate row of the journal
type OutcomeCount struct {
	Provider string         `json:"provider" db:"provider"`
	Outcome  AttemptOutcome `json:"outcome" db:"outcome"`
	Count    int64          `json:"count" db:"count"`
}
