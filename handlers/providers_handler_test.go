package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/internal/observability"
	"github.com/upb/llm-fallback-router/models"
	"github.com/upb/llm-fallback-router/services/providers"
	"github.com/upb/llm-fallback-router/services/providers/gemini"
	"github.com/upb/llm-fallback-router/services/providers/openai"
	"github.com/upb/llm-fallback-router/services/routing"
)

// MockJournalReader is a mock implementation of JournalReader
type MockJournalReader struct {
	mock.Mock
}

func (m *MockJournalReader) Run(ctx context.Context, runID string) ([]*models.AttemptLog, error) {
	args := m.Called(ctx, runID)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AttemptLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJournalReader) Request(ctx context.Context, requestID string) ([]*models.AttemptLog, error) {
	args := m.Called(ctx, requestID)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AttemptLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJournalReader) OutcomeCounts(ctx context.Context, window time.Duration) ([]*models.OutcomeCount, error) {
	args := m.Called(ctx, window)
	if counts := args.Get(0); counts != nil {
		return counts.([]*models.OutcomeCount), args.Error(1)
	}
	return nil, args.Error(1)
}

func testRegistry() *providers.Registry {
	return providers.NewRegistry(
		providers.Spec{Name: "groq", BaseURL: "https://api.groq.com/openai/v1", APIKey: "gsk-live", Models: []string{"llama-3.3-70b-versatile"}, Codec: openai.NewCodec()},
		providers.Spec{Name: "gemini", BaseURL: "https://generativelanguage.googleapis.com/v1beta", APIKey: "AIza-live", Models: []string{"gemini-2.0-flash", "gemini-1.5-flash"}, Codec: gemini.NewCodec()},
		providers.Spec{Name: "openai", APIKey: "", Models: []string{"gpt-4o-mini"}, Codec: openai.NewCodec()},
	)
}

func withRunID(r *http.Request, runID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("runID", runID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestProvidersHandler_HandleList(t *testing.T) {
	handler := NewProvidersHandler(testRegistry(), nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "gsk-live")
	assert.NotContains(t, w.Body.String(), "AIza-live")

	var response struct {
		Data []ProviderView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	require.Len(t, response.Data, 2)
	assert.Equal(t, "groq", response.Data[0].Name)
	assert.Equal(t, openai.Schema, response.Data[0].Schema)
	assert.Equal(t, "https://api.groq.com/openai/v1", response.Data[0].EndpointBase)
	assert.Equal(t, "gemini", response.Data[1].Name)
	assert.Equal(t, gemini.Schema, response.Data[1].Schema)
	assert.Equal(t, []string{"gemini-2.0-flash", "gemini-1.5-flash"}, response.Data[1].Models)
}

func TestProvidersHandler_HandleStats(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.RecordRun(context.Background(), routing.RunRecord{
		Attempts:  []routing.Attempt{{Provider: "groq", Outcome: routing.OutcomeSuccess}},
		Succeeded: true,
	})

	t.Run("live only without journal", func(t *testing.T) {
		handler := NewProvidersHandler(testRegistry(), metrics, nil, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers/stats", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Data StatsResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, int64(1), response.Data.Live.Runs)
		assert.Empty(t, response.Data.Journal)
	})

	t.Run("journal window", func(t *testing.T) {
		journal := new(MockJournalReader)
		journal.On("OutcomeCounts", mock.Anything, 2*time.Hour).
			Return([]*models.OutcomeCount{{Provider: "groq", Outcome: models.AttemptOutcomeSuccess, Count: 5}}, nil)

		handler := NewProvidersHandler(testRegistry(), metrics, journal, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers/stats?window=2h", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Data StatsResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "2h0m0s", response.Data.Window)
		require.Len(t, response.Data.Journal, 1)
		assert.Equal(t, int64(5), response.Data.Journal[0].Count)
		journal.AssertExpectations(t)
	})

	t.Run("invalid window", func(t *testing.T) {
		handler := NewProvidersHandler(testRegistry(), metrics, new(MockJournalReader), zap.NewNop())

		for _, window := range []string{"soon", "-1h", "1000h"} {
			w := httptest.NewRecorder()
			handler.HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers/stats?window="+window, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code, window)
		}
	})

	t.Run("journal failure", func(t *testing.T) {
		journal := new(MockJournalReader)
		journal.On("OutcomeCounts", mock.Anything, time.Hour).Return(nil, errors.New("db down"))

		handler := NewProvidersHandler(testRegistry(), metrics, journal, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers/stats", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestProvidersHandler_HandleGetRun(t *testing.T) {
	t.Run("journal disabled", func(t *testing.T) {
		handler := NewProvidersHandler(testRegistry(), nil, nil, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleGetRun(w, withRunID(httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil), "run-1"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("found", func(t *testing.T) {
		journal := new(MockJournalReader)
		logs := []*models.AttemptLog{
			models.NewAttemptLog("run-1", 0, "groq", "a", models.AttemptOutcomeTimeout),
			models.NewAttemptLog("run-1", 1, "gemini", "b", models.AttemptOutcomeSuccess),
		}
		journal.On("Run", mock.Anything, "run-1").Return(logs, nil)

		handler := NewProvidersHandler(testRegistry(), nil, journal, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleGetRun(w, withRunID(httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil), "run-1"))

		require.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Data []models.AttemptLog `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		require.Len(t, response.Data, 2)
		assert.Equal(t, "gemini", response.Data[1].Provider)
	})

	t.Run("unknown run", func(t *testing.T) {
		journal := new(MockJournalReader)
		journal.On("Run", mock.Anything, "nope").Return([]*models.AttemptLog{}, nil)

		handler := NewProvidersHandler(testRegistry(), nil, journal, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleGetRun(w, withRunID(httptest.NewRequest(http.MethodGet, "/api/v1/runs/nope", nil), "nope"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("journal error", func(t *testing.T) {
		journal := new(MockJournalReader)
		journal.On("Run", mock.Anything, "run-1").Return(nil, errors.New("db down"))

		handler := NewProvidersHandler(testRegistry(), nil, journal, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleGetRun(w, withRunID(httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil), "run-1"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestProvidersHandler_HandleGetRequest(t *testing.T) {
	withRequestID := func(r *http.Request, id string) *http.Request {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("requestID", id)
		return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}

	t.Run("journal disabled", func(t *testing.T) {
		handler := NewProvidersHandler(testRegistry(), nil, nil, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleGetRequest(w, withRequestID(httptest.NewRequest(http.MethodGet, "/api/v1/requests/req-1", nil), "req-1"))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("found", func(t *testing.T) {
		journal := new(MockJournalReader)
		logs := []*models.AttemptLog{
			models.NewAttemptLog("run-1", 0, "groq", "a", models.AttemptOutcomeSuccess).WithRequest("req-1"),
		}
		journal.On("Request", mock.Anything, "req-1").Return(logs, nil)

		handler := NewProvidersHandler(testRegistry(), nil, journal, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleGetRequest(w, withRequestID(httptest.NewRequest(http.MethodGet, "/api/v1/requests/req-1", nil), "req-1"))

		require.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Data []models.AttemptLog `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		require.Len(t, response.Data, 1)
		assert.Equal(t, "req-1", response.Data[0].RequestID)
		journal.AssertExpectations(t)
	})

	t.Run("journal error", func(t *testing.T) {
		journal := new(MockJournalReader)
		journal.On("Request", mock.Anything, "req-1").Return(nil, errors.New("db down"))

		handler := NewProvidersHandler(testRegistry(), nil, journal, zap.NewNop())

		w := httptest.NewRecorder()
		handler.HandleGetRequest(w, withRequestID(httptest.NewRequest(http.MethodGet, "/api/v1/requests/req-1", nil), "req-1"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
