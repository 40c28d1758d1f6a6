package gemini

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/upb/llm-fallback-router/services/providers"
)

const (
	// Schema is the parts-based contents format of the Gemini generateContent API
	Schema = "gemini_parts"

	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	systemInstructionPrefix = "System instruction: "
)

// Codec implements providers.Codec for the Gemini generateContent API
type Codec struct{}

// NewCodec creates a new gemini_parts codec
func NewCodec() Codec {
	return Codec{}
}

// Schema returns the wire format name
func (Codec) Schema() string {
	return Schema
}

// Build converts the conversation into a models/{model}:generateContent request.
// The key travels in the x-goog-api-key header so it never appears in URLs or URL errors.
func (Codec) Build(spec providers.Spec, model string, conv providers.Conversation, params providers.GenerationParams) (*providers.WireRequest, error) {
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", spec.Name)
	}

	body, err := json.Marshal(buildGenerateRequest(conv, params))
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", spec.Name, err)
	}

	baseURL := spec.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("x-goog-api-key", spec.APIKey)

	return &providers.WireRequest{
		Endpoint: strings.TrimRight(baseURL, "/") + "/models/" + url.PathEscape(model) + ":generateContent",
		Header:   header,
		Body:     body,
	}, nil
}

// Extract joins the text parts of the first candidate
func (Codec) Extract(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}

	var sb strings.Builder
	for _, part := range gjson.GetBytes(raw, "candidates.0.content.parts.#.text").Array() {
		if part.Type == gjson.String {
			sb.WriteString(part.String())
		}
	}
	return strings.TrimSpace(sb.String())
}

// buildGenerateRequest maps roles onto user/model and folds system turns into the
// first user turn, since contents only accepts those two roles.
func buildGenerateRequest(conv providers.Conversation, params providers.GenerationParams) *GenerateRequest {
	var system []string
	contents := make([]Content, 0, len(conv))

	for _, msg := range conv {
		switch msg.Role {
		case providers.RoleSystem:
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, text)
			}
		case providers.RoleAssistant:
			contents = append(contents, Content{Role: "model", Parts: []Part{{Text: msg.Content}}})
		default:
			contents = append(contents, Content{Role: "user", Parts: []Part{{Text: msg.Content}}})
		}
	}

	if len(system) > 0 {
		instruction := Part{Text: systemInstructionPrefix + strings.Join(system, "\n")}
		if len(contents) > 0 && contents[0].Role == "user" {
			parts := make([]Part, 0, len(contents[0].Parts)+1)
			parts = append(parts, instruction)
			contents[0].Parts = append(parts, contents[0].Parts...)
		} else {
			contents = append([]Content{{Role: "user", Parts: []Part{instruction}}}, contents...)
		}
	}

	req := &GenerateRequest{
		Contents: contents,
		GenerationConfig: GenerationConfig{
			Temperature: params.Temperature,
		},
	}
	if params.MaxOutputTokens > 0 {
		req.GenerationConfig.MaxOutputTokens = &params.MaxOutputTokens
	}

	return req
}

// Gemini-specific request/response types

type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens *int    `json:"maxOutputTokens,omitempty"`
}

type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}
