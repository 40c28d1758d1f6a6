package observability

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/services/routing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{name: "production json", level: "info", format: "json"},
		{name: "development console", level: "debug", format: "console"},
		{name: "case insensitive format", level: "warn", format: "CONSOLE"},
		{name: "invalid level", level: "loud", format: "json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	logger, err := NewLogger("error", "json")
	require.NoError(t, err)

	assert.Nil(t, logger.Check(zap.DebugLevel, "debug dropped"))
	assert.NotNil(t, logger.Check(zap.ErrorLevel, "error kept"))
}

func TestMetrics_RecordRun(t *testing.T) {
	m := NewMetrics()

	m.RecordRun(context.Background(), routing.RunRecord{
		RunID: "r1",
		Attempts: []routing.Attempt{
			{Provider: "groq", Model: "a", Outcome: routing.OutcomeTimeout, Latency: 100 * time.Millisecond},
			{Provider: "groq", Model: "b", Outcome: routing.OutcomeHTTPError, Status: 503, Latency: 300 * time.Millisecond},
			{Provider: "gemini", Model: "c", Outcome: routing.OutcomeSuccess, Latency: 50 * time.Millisecond},
		},
		Succeeded: true,
	})
	m.RecordRun(context.Background(), routing.RunRecord{
		RunID: "r2",
		Attempts: []routing.Attempt{
			{Provider: "groq", Model: "a", Outcome: routing.OutcomeTimeout, Latency: 200 * time.Millisecond},
		},
	})

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Runs)
	assert.Equal(t, int64(1), snap.Exhausted)
	require.Len(t, snap.Providers, 2)

	gemini := snap.Providers[0]
	assert.Equal(t, "gemini", gemini.Provider)
	assert.Equal(t, int64(1), gemini.Attempts)
	assert.Equal(t, int64(1), gemini.Successes)
	assert.Equal(t, int64(50), gemini.AvgLatencyMs)
	assert.Equal(t, "success", gemini.LastOutcome)

	groq := snap.Providers[1]
	assert.Equal(t, "groq", groq.Provider)
	assert.Equal(t, int64(3), groq.Attempts)
	assert.Equal(t, int64(0), groq.Successes)
	assert.Equal(t, int64(2), groq.Outcomes["timeout"])
	assert.Equal(t, int64(1), groq.Outcomes["http_error"])
	assert.Equal(t, int64(200), groq.AvgLatencyMs)
	assert.Equal(t, "timeout", groq.LastOutcome)
	require.NotNil(t, groq.LastSeen)
}

func TestMetrics_CanceledRunsAreNotExhausted(t *testing.T) {
	m := NewMetrics()

	m.RecordRun(context.Background(), routing.RunRecord{RunID: "r1", Canceled: true})
	m.RecordRun(context.Background(), routing.RunRecord{
		RunID:    "r2",
		Canceled: true,
		Attempts: []routing.Attempt{{Provider: "groq", Model: "a", Outcome: routing.OutcomeTimeout}},
	})
	m.RecordRun(context.Background(), routing.RunRecord{
		RunID:    "r3",
		Attempts: []routing.Attempt{{Provider: "groq", Model: "a", Outcome: routing.OutcomeHTTPError, Status: 500}},
	})

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.Runs)
	assert.Equal(t, int64(2), snap.Canceled)
	assert.Equal(t, int64(1), snap.Exhausted)
}

func TestMetrics_SnapshotJSONOmitsUnsetLastSeen(t *testing.T) {
	raw, err := json.Marshal(ProviderStats{Provider: "groq"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "last_seen")
}

func TestMetrics_SnapshotIsCopy(t *testing.T) {
	m := NewMetrics()
	m.RecordRun(context.Background(), routing.RunRecord{
		Attempts:  []routing.Attempt{{Provider: "groq", Outcome: routing.OutcomeSuccess}},
		Succeeded: true,
	})

	snap := m.Snapshot()
	snap.Providers[0].Outcomes["success"] = 99

	assert.Equal(t, int64(1), m.Snapshot().Providers[0].Outcomes["success"])
}

func TestMetrics_EmptySnapshot(t *testing.T) {
	snap := NewMetrics().Snapshot()
	assert.Zero(t, snap.Runs)
	assert.Empty(t, snap.Providers)
}
