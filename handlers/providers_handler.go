package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/internal/observability"
	"github.com/upb/llm-fallback-router/models"
	"github.com/upb/llm-fallback-router/services/providers"
	"github.com/upb/llm-fallback-router/utils"
)

const (
	defaultStatsWindow = time.Hour
	maxStatsWindow     = 30 * 24 * time.Hour
)

// ProviderView describes one enabled provider. Credentials are never exposed.
type ProviderView struct {
	Name         string   `json:"name"`
	Schema       string   `json:"schema"`
	EndpointBase string   `json:"endpoint_base"`
	Models       []string `json:"models"`
}

// StatsResponse combines live counters with journaled outcomes
type StatsResponse struct {
	Live    observability.Snapshot `json:"live"`
	Window  string                 `json:"window,omitempty"`
	Journal []*models.OutcomeCount `json:"journal,omitempty"`
}

// ProviderLister exposes the enabled chain
type ProviderLister interface {
	Providers() []providers.Spec
}

// StatsSource exposes in-process attempt counters
type StatsSource interface {
	Snapshot() observability.Snapshot
}

// JournalReader reads the persisted attempt journal
type JournalReader interface {
	Run(ctx context.Context, runID string) ([]*models.AttemptLog, error)
	Request(ctx context.Context, requestID string) ([]*models.AttemptLog, error)
	OutcomeCounts(ctx context.Context, window time.Duration) ([]*models.OutcomeCount, error)
}

// ProvidersHandler serves the provider chain, routing statistics and run lookups
type ProvidersHandler struct {
	providers ProviderLister
	stats     StatsSource
	journal   JournalReader
	logger    *zap.Logger
}

// NewProvidersHandler creates a new ProvidersHandler. journal may be nil.
func NewProvidersHandler(lister ProviderLister, stats StatsSource, journal JournalReader, logger *zap.Logger) *ProvidersHandler {
	return &ProvidersHandler{
		providers: lister,
		stats:     stats,
		journal:   journal,
		logger:    logger,
	}
}

// HandleList handles GET /api/v1/providers
func (h *ProvidersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	specs := h.providers.Providers()
	views := make([]ProviderView, 0, len(specs))
	for _, s := range specs {
		view := ProviderView{
			Name:         s.Name,
			EndpointBase: s.BaseURL,
			Models:       s.Models,
		}
		if s.Codec != nil {
			view.Schema = s.Codec.Schema()
		}
		views = append(views, view)
	}

	_ = utils.WriteOK(w, views)
}

// HandleStats handles GET /api/v1/providers/stats?window=1h
func (h *ProvidersHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	response := StatsResponse{}
	if h.stats != nil {
		response.Live = h.stats.Snapshot()
	}

	if h.journal != nil {
		window := defaultStatsWindow
		if raw := r.URL.Query().Get("window"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 || parsed > maxStatsWindow {
				_ = utils.WriteBadRequest(w, "window must be a positive duration up to 720h", nil)
				return
			}
			window = parsed
		}

		counts, err := h.journal.OutcomeCounts(r.Context(), window)
		if err != nil {
			h.logger.Error("failed to read journal outcome counts", zap.Error(err))
			_ = utils.WriteInternalServerError(w, "")
			return
		}
		response.Window = window.String()
		response.Journal = counts
	}

	_ = utils.WriteOK(w, response)
}

// HandleGetRun handles GET /api/v1/runs/{runID}
func (h *ProvidersHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		_ = utils.WriteNotFound(w, "Attempt journal is disabled")
		return
	}

	runID := chi.URLParam(r, "runID")
	logs, err := h.journal.Run(r.Context(), runID)
	if err != nil {
		h.logger.Error("failed to read run from journal",
			zap.String("run_id", runID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	if len(logs) == 0 {
		_ = utils.WriteNotFound(w, "Run not found")
		return
	}

	_ = utils.WriteOK(w, logs)
}

// HandleGetRequest handles GET /api/v1/requests/{requestID}, listing every
// attempt made while serving that inbound request
func (h *ProvidersHandler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		_ = utils.WriteNotFound(w, "Attempt journal is disabled")
		return
	}

	requestID := chi.URLParam(r, "requestID")
	logs, err := h.journal.Request(r.Context(), requestID)
	if err != nil {
		h.logger.Error("failed to read request from journal",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	if len(logs) == 0 {
		_ = utils.WriteNotFound(w, "Request not found")
		return
	}

	_ = utils.WriteOK(w, logs)
}
