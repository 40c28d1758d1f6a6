package providers

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

// stubCodec is a minimal Codec used to enable specs in tests
type stubCodec struct{}

func (stubCodec) Schema() string { return "stub" }

func (stubCodec) Build(spec Spec, model string, conv Conversation, params GenerationParams) (*WireRequest, error) {
	return &WireRequest{Endpoint: spec.BaseURL + "/" + model, Header: http.Header{}}, nil
}

func (stubCodec) Extract(raw []byte) string { return strings.TrimSpace(string(raw)) }

func newSpec(name, key string, models ...string) Spec {
	return Spec{
		Name:    name,
		BaseURL: "http://" + name + ".test",
		APIKey:  key,
		Models:  models,
		Codec:   stubCodec{},
	}
}

func TestIsPlaceholderKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"your-api-key", true},
		{"YOUR_GROQ_API_KEY", true},
		{"changeme", true},
		{"sk-xxxxxxxxxxxxxxxx", true},
		{"my-placeholder-key", true},
		{"key-for-example-only", true},
		{"<insert key>", true},
		{"gsk_live_4f9a2b7c1d", false},
		{"AIzaSyA1b2C3d4E5f6", false},
		{"sk-proj-abc123", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := IsPlaceholderKey(tt.key); got != tt.want {
				t.Errorf("IsPlaceholderKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestSpec_Enabled(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want bool
	}{
		{"real key", newSpec("groq", "gsk_live", "m1"), true},
		{"placeholder key", newSpec("groq", "your-api-key", "m1"), false},
		{"no models", newSpec("groq", "gsk_live"), false},
		{"no codec", Spec{Name: "groq", APIKey: "gsk_live", Models: []string{"m1"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewRegistry_ExcludesDisabledProviders(t *testing.T) {
	registry := NewRegistry(
		newSpec("groq", "", "llama"),
		newSpec("gemini", "AIza-real", "flash", "pro"),
		newSpec("openai", "changeme", "gpt"),
	)

	if registry.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", registry.Count())
	}

	enabled := registry.Providers()
	if enabled[0].Name != "gemini" {
		t.Fatalf("Providers()[0] = %s, want gemini", enabled[0].Name)
	}
	if len(enabled[0].Models) != 2 {
		t.Errorf("gemini models = %v, want 2 entries", enabled[0].Models)
	}
}

func TestRegistry_CandidatesAreProviderMajor(t *testing.T) {
	registry := NewRegistry(
		newSpec("groq", "gsk_live", "a1", "a2"),
		newSpec("gemini", "AIza-real", "b1"),
		newSpec("openai", "sk-proj-1", "c1", "c2"),
	)

	var got []string
	for _, c := range registry.Candidates() {
		got = append(got, c.String())
	}

	want := []string{"groq/a1", "groq/a2", "gemini/b1", "openai/c1", "openai/c2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Candidates() = %v, want %v", got, want)
	}

	names := registry.ListProviders()
	if strings.Join(names, ",") != "groq,gemini,openai" {
		t.Errorf("ListProviders() = %v", names)
	}
}

func TestRegistry_IgnoresDuplicateNames(t *testing.T) {
	registry := NewRegistry(
		newSpec("groq", "gsk_live", "first"),
		newSpec("groq", "gsk_other", "second"),
	)

	candidates := registry.Candidates()
	if len(candidates) != 1 || candidates[0].Model != "first" {
		t.Errorf("Candidates() = %v, want only groq/first", candidates)
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	models := []string{"a1"}
	registry := NewRegistry(newSpec("groq", "gsk_live", models...))

	models[0] = "mutated"
	candidates := registry.Candidates()
	candidates[0].Model = "also-mutated"

	if got := registry.Candidates()[0].Model; got != "a1" {
		t.Errorf("registry state changed through returned slices: model = %s", got)
	}
	if got := registry.Providers()[0].Models[0]; got != "a1" {
		t.Errorf("registry state changed through input slice: model = %s", got)
	}
}

func TestConversation_WithSystemPrompt(t *testing.T) {
	conv := Conversation{{Role: RoleUser, Content: "hello"}}

	withPrompt := conv.WithSystemPrompt("be brief")
	if len(withPrompt) != 2 || withPrompt[0].Role != RoleSystem || withPrompt[0].Content != "be brief" {
		t.Errorf("WithSystemPrompt() = %v", withPrompt)
	}
	if len(conv) != 1 {
		t.Errorf("original conversation mutated: %v", conv)
	}

	plain := conv.WithSystemPrompt("   ")
	if len(plain) != 1 {
		t.Errorf("blank prompt should not add a turn: %v", plain)
	}
	plain[0].Content = "changed"
	if conv[0].Content != "hello" {
		t.Error("blank prompt copy shares storage with the original")
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("connection refused")
	transportErr := &TransportError{Provider: "groq", Cause: cause}
	if !errors.Is(transportErr, cause) {
		t.Error("TransportError should unwrap to its cause")
	}

	upstream := &UpstreamError{Provider: "gemini", Status: http.StatusUnauthorized, Body: []byte(`{"error":"bad key"}`)}
	if StatusCode(upstream) != http.StatusUnauthorized {
		t.Errorf("StatusCode() = %d, want 401", StatusCode(upstream))
	}
	if !strings.Contains(upstream.Error(), "bad key") {
		t.Errorf("Error() = %s, want body included", upstream.Error())
	}

	empty := &UpstreamError{Provider: "openai", Status: http.StatusServiceUnavailable}
	if !strings.Contains(empty.Error(), "Service Unavailable") {
		t.Errorf("unexpected 503 rendering: %s", empty.Error())
	}

	timeout := &TimeoutError{Provider: "groq", After: 12 * time.Second}
	if !strings.Contains(timeout.Error(), "12s") {
		t.Errorf("Error() = %s, want the bound included", timeout.Error())
	}
	if StatusCode(timeout) != 0 {
		t.Error("StatusCode() of a timeout should be 0")
	}
}
