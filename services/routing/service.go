package routing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/services"
	"github.com/upb/llm-fallback-router/services/providers"
	"github.com/upb/llm-fallback-router/services/transport"
)

const detailAttempts = "attempts"

// Invoker performs one bounded upstream call
type Invoker interface {
	Invoke(ctx context.Context, provider string, req *providers.WireRequest) (*transport.Reply, error)
}

// Recorder receives a summary of every finished run.
// Implementations must not block the caller.
type Recorder interface {
	RecordRun(ctx context.Context, rec RunRecord)
}

// Recorders fans a run out to several recorders in order
type Recorders []Recorder

// RecordRun implements Recorder
func (rs Recorders) RecordRun(ctx context.Context, rec RunRecord) {
	for _, r := range rs {
		if r != nil {
			r.RecordRun(ctx, rec)
		}
	}
}

// Config holds sequencer settings
type Config struct {
	// SystemPrompt, when set, is prepended to a copy of every conversation
	SystemPrompt string
}

// Service walks the fallback chain until one candidate answers
type Service struct {
	config   Config
	registry *providers.Registry
	invoker  Invoker
	recorder Recorder
	logger   *zap.Logger
}

// NewService creates a new fallback sequencer
func NewService(config Config, registry *providers.Registry, invoker Invoker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config:   config,
		registry: registry,
		invoker:  invoker,
		logger:   logger,
	}
}

// WithRecorder attaches an attempt journal
func (s *Service) WithRecorder(recorder Recorder) *Service {
	s.recorder = recorder
	return s
}

// Registry returns the provider chain the service walks
func (s *Service) Registry() *providers.Registry {
	return s.registry
}

// Complete tries every enabled (provider, model) candidate in order, strictly one at a
// time, and returns the first non-empty answer.
//
// Errors are domain errors: validation for an empty conversation, configuration when
// no provider is enabled, external (wrapping *ExhaustedError) when every candidate
// failed, and canceled when ctx ended mid-run.
func (s *Service) Complete(ctx context.Context, conv providers.Conversation, params providers.GenerationParams) (*Result, error) {
	if len(conv) == 0 {
		return nil, services.ErrEmptyConversation
	}

	candidates := s.registry.Candidates()
	if len(candidates) == 0 {
		return nil, services.ErrNoProviderConfigured.Wrap(providers.ErrNoProviderConfigured)
	}

	conv = conv.WithSystemPrompt(s.config.SystemPrompt)

	run := RunRecord{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Attempts:  make([]Attempt, 0, len(candidates)),
	}
	logger := s.logger.With(zap.String("run_id", run.RunID))

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, s.canceled(ctx, run, err)
		}

		attempt, text := s.try(ctx, candidate, conv, params)
		if err := ctx.Err(); err != nil && attempt.Failed() {
			return nil, s.canceled(ctx, run, err)
		}
		run.Attempts = append(run.Attempts, attempt)

		if attempt.Failed() {
			logger.Warn("candidate failed",
				zap.String("provider", attempt.Provider),
				zap.String("model", attempt.Model),
				zap.String("outcome", string(attempt.Outcome)),
				zap.Int("status", attempt.Status),
				zap.Duration("latency", attempt.Latency),
				zap.String("detail", attempt.Detail),
			)
			continue
		}

		logger.Info("candidate answered",
			zap.String("provider", attempt.Provider),
			zap.String("model", attempt.Model),
			zap.Int("failed_before", len(run.Attempts)-1),
			zap.Duration("latency", attempt.Latency),
		)

		run.Succeeded = true
		s.record(ctx, run)

		return &Result{
			RunID:    run.RunID,
			Response: Normalize(attempt.Provider, attempt.Model, text),
			Attempts: run.Attempts,
		}, nil
	}

	logger.Error("all candidates failed", zap.Int("attempts", len(run.Attempts)))
	s.record(ctx, run)

	exhausted := &ExhaustedError{Attempts: run.Attempts}
	return nil, services.ErrAllProvidersFailed.Wrap(exhausted).
		WithDetail(detailAttempts, run.Attempts).
		WithDetail("run_id", run.RunID)
}

// try runs one candidate: build, invoke, extract
func (s *Service) try(ctx context.Context, c providers.Candidate, conv providers.Conversation, params providers.GenerationParams) (Attempt, string) {
	attempt := Attempt{Provider: c.Provider(), Model: c.Model}
	start := time.Now()

	req, err := c.Spec.Codec.Build(c.Spec, c.Model, conv, params)
	if err != nil {
		return attempt.fail(&providers.TransportError{Provider: c.Provider(), Cause: err}, time.Since(start)), ""
	}

	reply, err := s.invoker.Invoke(ctx, c.Provider(), req)
	if err != nil {
		return attempt.fail(err, time.Since(start)), ""
	}

	attempt.Status = reply.Status
	text := c.Spec.Codec.Extract(reply.Body)
	if text == "" {
		failed := attempt.fail(&providers.EmptyResponseError{Provider: c.Provider(), Model: c.Model}, time.Since(start))
		failed.Status = reply.Status
		return failed, ""
	}

	attempt.Outcome = OutcomeSuccess
	attempt.Latency = time.Since(start)
	return attempt, text
}

func (a Attempt) fail(err error, latency time.Duration) Attempt {
	a.Outcome, a.Status = classify(err)
	a.Detail = err.Error()
	a.Err = err
	a.Latency = latency
	return a
}

func (s *Service) canceled(ctx context.Context, run RunRecord, cause error) error {
	s.logger.Info("run canceled by caller",
		zap.String("run_id", run.RunID),
		zap.Int("attempts", len(run.Attempts)),
		zap.Error(cause),
	)
	run.Canceled = true
	s.record(ctx, run)

	return services.ErrRequestCanceled.Wrap(cause).
		WithDetail(detailAttempts, run.Attempts).
		WithDetail("run_id", run.RunID)
}

func (s *Service) record(ctx context.Context, run RunRecord) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordRun(ctx, run)
}
