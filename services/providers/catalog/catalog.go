// Package catalog maps configured provider names onto provider specs and codecs.
package catalog

import (
	"fmt"

	"github.com/upb/llm-fallback-router/config"
	"github.com/upb/llm-fallback-router/services/providers"
	"github.com/upb/llm-fallback-router/services/providers/gemini"
	"github.com/upb/llm-fallback-router/services/providers/openai"
)

// Entry describes a provider the router knows how to talk to
type Entry struct {
	Name          string
	DefaultURL    string
	DefaultModels []string
	Codec         providers.Codec
}

var entries = map[string]Entry{
	config.ProviderGroq: {
		Name:          config.ProviderGroq,
		DefaultURL:    "https://api.groq.com/openai/v1",
		DefaultModels: []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
		Codec:         openai.NewCodec(),
	},
	config.ProviderGemini: {
		Name:          config.ProviderGemini,
		DefaultURL:    "https://generativelanguage.googleapis.com/v1beta",
		DefaultModels: []string{"gemini-2.0-flash", "gemini-1.5-flash"},
		Codec:         gemini.NewCodec(),
	},
	config.ProviderOpenAI: {
		Name:          config.ProviderOpenAI,
		DefaultURL:    "https://api.openai.com/v1",
		DefaultModels: []string{"gpt-4o-mini"},
		Codec:         openai.NewCodec(),
	},
}

// Lookup returns the catalog entry for a provider name
func Lookup(name string) (Entry, bool) {
	e, ok := entries[name]
	return e, ok
}

// Specs builds provider specs in the configured order.
// Every known provider gets a spec; the registry decides which ones are enabled.
func Specs(order []string, cfg config.ProvidersConfig) ([]providers.Spec, error) {
	specs := make([]providers.Spec, 0, len(order))

	for _, name := range order {
		entry, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		pc, _ := cfg.Provider(name)

		spec := providers.Spec{
			Name:    entry.Name,
			BaseURL: entry.DefaultURL,
			APIKey:  pc.APIKey,
			Models:  append([]string(nil), entry.DefaultModels...),
			Codec:   entry.Codec,
		}
		if pc.BaseURL != "" {
			spec.BaseURL = pc.BaseURL
		}
		if len(pc.Models) > 0 {
			spec.Models = append([]string(nil), pc.Models...)
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

// NewRegistry builds the enabled provider chain from configuration
func NewRegistry(cfg *config.Config) (*providers.Registry, error) {
	specs, err := Specs(cfg.Router.ProviderOrder, cfg.Providers)
	if err != nil {
		return nil, err
	}
	return providers.NewRegistry(specs...), nil
}
