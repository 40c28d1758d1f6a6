package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/upb/llm-fallback-router/services/providers"
)

const (
	// Schema is the role-tagged message array format shared by OpenAI-compatible APIs
	Schema = "chat_messages"

	defaultBaseURL = "https://api.openai.com/v1"
)

// Codec implements providers.Codec for OpenAI-compatible chat completion APIs.
// Groq and OpenAI both speak this schema.
type Codec struct{}

// NewCodec creates a new chat_messages codec
func NewCodec() Codec {
	return Codec{}
}

// Schema returns the wire format name
func (Codec) Schema() string {
	return Schema
}

// Build converts the conversation into a /chat/completions request
func (Codec) Build(spec providers.Spec, model string, conv providers.Conversation, params providers.GenerationParams) (*providers.WireRequest, error) {
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", spec.Name)
	}

	body, err := json.Marshal(buildChatRequest(model, conv, params))
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", spec.Name, err)
	}

	baseURL := spec.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+spec.APIKey)

	return &providers.WireRequest{
		Endpoint: strings.TrimRight(baseURL, "/") + "/chat/completions",
		Header:   header,
		Body:     body,
	}, nil
}

// Extract returns choices[0].message.content, or "" when the reply has no usable text
func (Codec) Extract(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if content.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(content.String())
}

// buildChatRequest converts the canonical conversation to the OpenAI format
func buildChatRequest(model string, conv providers.Conversation, params providers.GenerationParams) *ChatRequest {
	req := &ChatRequest{
		Model:       model,
		Messages:    make([]ChatMessage, len(conv)),
		Temperature: params.Temperature,
	}

	for i, msg := range conv {
		req.Messages[i] = ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	if params.MaxOutputTokens > 0 {
		req.MaxTokens = &params.MaxOutputTokens
	}

	return req
}

// OpenAI-specific request/response types

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`

	// Temperature is always sent; zero is a valid setting
	Temperature float64 `json:"temperature"`
	MaxTokens   *int    `json:"max_tokens,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}
