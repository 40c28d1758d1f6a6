package providers

import (
	"net/http"
	"strings"
)

// Role identifies the author of a conversation turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single turn in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role Role `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// Conversation is an ordered list of turns; index order is chronological order.
type Conversation []Message

// Clone returns an independent copy of the conversation
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// WithSystemPrompt returns a copy of the conversation with a leading system turn.
// The receiver is left untouched. An empty prompt returns a plain copy.
func (c Conversation) WithSystemPrompt(prompt string) Conversation {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return c.Clone()
	}
	out := make(Conversation, 0, len(c)+1)
	out = append(out, Message{Role: RoleSystem, Content: prompt})
	return append(out, c...)
}

// GenerationParams carries the sampling parameters forwarded to every provider
type GenerationParams struct {
	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64

	// MaxOutputTokens caps the completion length
	MaxOutputTokens int
}

// WireRequest is a fully built upstream HTTP call
type WireRequest struct {
	Endpoint string
	Header   http.Header
	Body     []byte
}

// Codec converts between the canonical conversation and one provider schema family.
// Implementations must be stateless and must not mutate the conversation.
type Codec interface {
	// Schema names the wire format (e.g. "chat_messages", "gemini_parts")
	Schema() string

	// Build encodes the conversation into the provider's request payload
	Build(spec Spec, model string, conv Conversation, params GenerationParams) (*WireRequest, error)

	// Extract returns the completion text of a raw reply, or "" when there is none
	Extract(raw []byte) string
}

// Spec is the static description of one upstream provider
type Spec struct {
	// Name is the provider identifier (e.g. "groq", "gemini")
	Name string

	// BaseURL is the API root; codecs append their own paths
	BaseURL string

	// APIKey authenticates requests; placeholder values count as absent
	APIKey string

	// Models are candidate model identifiers in preference order
	Models []string

	// Codec builds requests and extracts replies for this provider
	Codec Codec
}

// Enabled reports whether the provider can take part in a fallback chain
func (s Spec) Enabled() bool {
	return !IsPlaceholderKey(s.APIKey) && len(s.Models) > 0 && s.Codec != nil
}

// Candidate is one (provider, model) pair eligible to be attempted
type Candidate struct {
	Spec  Spec
	Model string
}

// Provider returns the provider name of the candidate
func (c Candidate) Provider() string {
	return c.Spec.Name
}

// String returns "provider/model"
func (c Candidate) String() string {
	return c.Spec.Name + "/" + c.Model
}

// placeholderKeys are sample credentials copied verbatim from docs and .env templates
var placeholderKeys = map[string]struct{}{
	"your-api-key":      {},
	"your_api_key":      {},
	"your-api-key-here": {},
	"changeme":          {},
	"change-me":         {},
	"sk-...":            {},
	"none":              {},
	"null":              {},
	"todo":              {},
}

// IsPlaceholderKey reports whether a credential is missing or a known sample value
func IsPlaceholderKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return true
	}
	if _, ok := placeholderKeys[k]; ok {
		return true
	}
	if strings.HasPrefix(k, "your_") || strings.HasPrefix(k, "your-") || strings.HasPrefix(k, "<") {
		return true
	}
	for _, marker := range []string{"xxxx", "placeholder", "example"} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}
