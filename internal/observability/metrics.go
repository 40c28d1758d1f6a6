package observability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/upb/llm-fallback-router/services/routing"
)

// ProviderStats is a snapshot of one provider's attempt counters
type ProviderStats struct {
	Provider     string           `json:"provider"`
	Attempts     int64            `json:"attempts"`
	Successes    int64            `json:"successes"`
	Outcomes     map[string]int64 `json:"outcomes"`
	AvgLatencyMs int64            `json:"avg_latency_ms"`
	LastOutcome  string           `json:"last_outcome,omitempty"`
	LastSeen     *time.Time       `json:"last_seen,omitempty"`
}

// Snapshot is the process-wide routing picture since start
type Snapshot struct {
	Runs      int64           `json:"runs"`
	Exhausted int64           `json:"exhausted"`
	Canceled  int64           `json:"canceled"`
	Providers []ProviderStats `json:"providers"`
}

type providerCounters struct {
	attempts     int64
	successes    int64
	outcomes     map[routing.Outcome]int64
	totalLatency time.Duration
	lastOutcome  routing.Outcome
	lastSeen     time.Time
}

// Metrics counts attempts per provider. It implements routing.Recorder.
type Metrics struct {
	mu        sync.Mutex
	runs      int64
	exhausted int64
	canceled  int64
	providers map[string]*providerCounters
}

// NewMetrics creates an empty counter set
func NewMetrics() *Metrics {
	return &Metrics{providers: make(map[string]*providerCounters)}
}

// RecordRun folds a finished run into the counters
func (m *Metrics) RecordRun(_ context.Context, rec routing.RunRecord) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs++
	switch {
	case rec.Canceled:
		m.canceled++
	case !rec.Succeeded:
		m.exhausted++
	}

	for _, a := range rec.Attempts {
		pc, ok := m.providers[a.Provider]
		if !ok {
			pc = &providerCounters{outcomes: make(map[routing.Outcome]int64)}
			m.providers[a.Provider] = pc
		}
		pc.attempts++
		if !a.Failed() {
			pc.successes++
		}
		pc.outcomes[a.Outcome]++
		pc.totalLatency += a.Latency
		pc.lastOutcome = a.Outcome
		pc.lastSeen = now
	}
}

// Snapshot copies the counters, providers sorted by name
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Runs:      m.runs,
		Exhausted: m.exhausted,
		Canceled:  m.canceled,
		Providers: make([]ProviderStats, 0, len(m.providers)),
	}

	for name, pc := range m.providers {
		ps := ProviderStats{
			Provider:    name,
			Attempts:    pc.attempts,
			Successes:   pc.successes,
			Outcomes:    make(map[string]int64, len(pc.outcomes)),
			LastOutcome: string(pc.lastOutcome),
		}
		if !pc.lastSeen.IsZero() {
			lastSeen := pc.lastSeen
			ps.LastSeen = &lastSeen
		}
		for outcome, n := range pc.outcomes {
			ps.Outcomes[string(outcome)] = n
		}
		if pc.attempts > 0 {
			ps.AvgLatencyMs = (pc.totalLatency / time.Duration(pc.attempts)).Milliseconds()
		}
		snap.Providers = append(snap.Providers, ps)
	}

	sort.Slice(snap.Providers, func(i, j int) bool {
		return snap.Providers[i].Provider < snap.Providers[j].Provider
	})
	return snap
}
