package providers

// Registry is the ordered, read-only set of enabled providers.
// It is built once at startup and shared by concurrent requests without locking.
type Registry struct {
	providers  []Spec
	candidates []Candidate
	byName     map[string]int
}

// NewRegistry keeps the enabled specs in the order given.
// Disabled specs (no credential, no models) are dropped silently; they are never
// attempted and never reported as failures.
func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{
		byName: make(map[string]int),
	}

	for _, spec := range specs {
		if !spec.Enabled() {
			continue
		}
		if _, dup := r.byName[spec.Name]; dup {
			continue
		}

		spec.Models = append([]string(nil), spec.Models...)
		r.byName[spec.Name] = len(r.providers)
		r.providers = append(r.providers, spec)

		// provider-major: every model of this provider before the next provider
		for _, model := range spec.Models {
			r.candidates = append(r.candidates, Candidate{Spec: spec, Model: model})
		}
	}

	return r
}

// Providers returns the enabled providers in priority order
func (r *Registry) Providers() []Spec {
	out := make([]Spec, len(r.providers))
	copy(out, r.providers)
	return out
}

// Candidates returns the flattened fallback chain
func (r *Registry) Candidates() []Candidate {
	out := make([]Candidate, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// ListProviders returns the enabled provider names in priority order
func (r *Registry) ListProviders() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name)
	}
	return names
}

// Count returns the number of enabled providers
func (r *Registry) Count() int {
	return len(r.providers)
}
