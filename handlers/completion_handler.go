package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/middleware"
	"github.com/upb/llm-fallback-router/services/providers"
	"github.com/upb/llm-fallback-router/services/routing"
	"github.com/upb/llm-fallback-router/utils"
)

// ChatCompletionRequest is the inbound chat request
type ChatCompletionRequest struct {
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int          `json:"max_tokens,omitempty" validate:"omitempty,min=1,max=32768"`
}

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required_unless=Role assistant"`
}

// ChatCompletionResponse mirrors the OpenAI choices shape so existing chat
// front-ends can read it, plus the routing outcome.
type ChatCompletionResponse struct {
	ID       string        `json:"id"`
	Object   string        `json:"object"`
	Created  int64         `json:"created"`
	Choices  []ChatChoice  `json:"choices"`
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Attempts []AttemptView `json:"attempts"`
}

// ChatChoice represents a completion choice
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// AttemptView is the wire form of one routing attempt
type AttemptView struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Outcome   string `json:"outcome"`
	Status    int    `json:"status,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Message   string `json:"message,omitempty"`
}

// CompletionService runs a conversation through the fallback chain
type CompletionService interface {
	Complete(ctx context.Context, conv providers.Conversation, params providers.GenerationParams) (*routing.Result, error)
}

// CompletionDefaults fill in parameters the client left out
type CompletionDefaults struct {
	Temperature float64
	MaxTokens   int
}

// CompletionHandler handles chat completion requests
type CompletionHandler struct {
	service  CompletionService
	defaults CompletionDefaults
	logger   *zap.Logger
}

// NewCompletionHandler creates a new CompletionHandler
func NewCompletionHandler(service CompletionService, defaults CompletionDefaults, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{
		service:  service,
		defaults: defaults,
		logger:   logger,
	}
}

// HandleChatCompletion handles /api/ai and /v1/chat/completions.
// OPTIONS answers with an empty 200, any other non-POST method gets a JSON 405.
func (h *CompletionHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	default:
		_ = utils.WriteMethodNotAllowed(w, http.MethodPost, http.MethodOptions)
		return
	}

	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var chatReq ChatCompletionRequest
	if err := utils.DecodeJSON(w, r, &chatReq); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := utils.ValidateStruct(&chatReq); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	params := h.params(chatReq)
	h.logger.Debug("processing chat completion",
		zap.String("request_id", requestID),
		zap.Int("messages", len(chatReq.Messages)),
		zap.Float64("temperature", params.Temperature),
		zap.Int("max_tokens", params.MaxOutputTokens))

	result, err := h.service.Complete(ctx, toConversation(chatReq.Messages), params)
	if err != nil {
		h.logger.Warn("chat completion failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	response := ChatCompletionResponse{
		ID:      result.RunID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Choices: []ChatChoice{
			{
				Index: 0,
				Message: ChatMessage{
					Role:    string(providers.RoleAssistant),
					Content: result.Response.Content,
				},
				FinishReason: "stop",
			},
		},
		Provider: result.Response.Provider,
		Model:    result.Response.Model,
		Attempts: NewAttemptViews(result.Attempts),
	}

	if err := utils.WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

func (h *CompletionHandler) params(req ChatCompletionRequest) providers.GenerationParams {
	params := providers.GenerationParams{
		Temperature:     h.defaults.Temperature,
		MaxOutputTokens: h.defaults.MaxTokens,
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		params.MaxOutputTokens = *req.MaxTokens
	}
	return params
}

func toConversation(msgs []ChatMessage) providers.Conversation {
	conv := make(providers.Conversation, 0, len(msgs))
	for _, m := range msgs {
		conv = append(conv, providers.Message{Role: providers.Role(m.Role), Content: m.Content})
	}
	return conv
}

// NewAttemptViews converts routing attempts to their wire form, preserving order
func NewAttemptViews(attempts []routing.Attempt) []AttemptView {
	views := make([]AttemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, AttemptView{
			Provider:  a.Provider,
			Model:     a.Model,
			Outcome:   string(a.Outcome),
			Status:    a.Status,
			LatencyMs: a.Latency.Milliseconds(),
			Message:   a.Detail,
		})
	}
	return views
}
