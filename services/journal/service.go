// Package journal persists per-attempt routing diagnostics off the request path.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/middleware"
	"github.com/upb/llm-fallback-router/models"
	"github.com/upb/llm-fallback-router/repositories"
	"github.com/upb/llm-fallback-router/services/routing"
)

var (
	// ErrNotStarted is returned when the journal is used before Start or after Stop
	ErrNotStarted = errors.New("journal not started")

	// ErrBufferFull is returned when a run is dropped because every slot is taken
	ErrBufferFull = errors.New("journal buffer full")
)

// Entry is one queued run
type Entry struct {
	RunID string
	Logs  []*models.AttemptLog
}

// Config holds configuration for the journal
type Config struct {
	BufferSize  int // queued runs
	WorkerCount int
	// WriteTimeout bounds a single run insert
	WriteTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// Service writes finished runs to the attempt repository with a pool of workers
type Service struct {
	repo   repositories.AttemptRepository
	logger *zap.Logger
	config Config

	entries chan *Entry
	wg      sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool

	dropped atomic.Int64
	written atomic.Int64
	failed  atomic.Int64
}

// NewService creates a new journal
func NewService(repo repositories.AttemptRepository, logger *zap.Logger, config Config) *Service {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:    repo,
		logger:  logger,
		config:  config,
		entries: make(chan *Entry, config.BufferSize),
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("journal already started")
	}
	if s.stopped {
		return fmt.Errorf("journal cannot be restarted")
	}

	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started attempt journal",
		zap.Int("worker_count", s.config.WorkerCount),
		zap.Int("buffer_size", s.config.BufferSize))

	return nil
}

// Stop stops accepting runs and waits for queued ones to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	close(s.entries)
	s.mu.Unlock()

	s.logger.Info("stopping attempt journal", zap.Int("pending_runs", len(s.entries)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("attempt journal stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("journal stop timeout after %v", timeout)
	}
}

// RecordRun converts a finished run into journal rows and queues it without blocking.
// A full buffer drops the run; routing is never slowed down by the journal.
func (s *Service) RecordRun(ctx context.Context, rec routing.RunRecord) {
	entry := NewEntry(middleware.GetRequestIDFromContext(ctx), rec)
	if err := s.Enqueue(entry); err != nil {
		s.logger.Warn("attempt journal dropped run",
			zap.String("run_id", rec.RunID),
			zap.Int("attempts", len(rec.Attempts)),
			zap.Error(err))
	}
}

// Enqueue queues an entry (non-blocking)
func (s *Service) Enqueue(entry *Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	select {
	case s.entries <- entry:
		return nil
	default:
		s.dropped.Add(1)
		return ErrBufferFull
	}
}

// Run returns the journaled attempts of one run
func (s *Service) Run(ctx context.Context, runID string) ([]*models.AttemptLog, error) {
	return s.repo.GetByRunID(ctx, runID)
}

// Request returns every journaled attempt made for an inbound request
func (s *Service) Request(ctx context.Context, requestID string) ([]*models.AttemptLog, error) {
	return s.repo.GetByRequestID(ctx, requestID)
}

// OutcomeCounts aggregates journaled outcomes over the trailing window
func (s *Service) OutcomeCounts(ctx context.Context, window time.Duration) ([]*models.OutcomeCount, error) {
	return s.repo.OutcomeCounts(ctx, time.Now().Add(-window))
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("journal worker started", zap.Int("worker_id", id))

	for entry := range s.entries {
		if err := s.write(entry); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to write run to journal",
				zap.Int("worker_id", id),
				zap.String("run_id", entry.RunID),
				zap.Error(err))
			continue
		}
		s.written.Add(1)
	}

	s.logger.Debug("journal worker stopped", zap.Int("worker_id", id))
}

func (s *Service) write(entry *Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
	defer cancel()

	if err := s.repo.InsertRun(ctx, entry.Logs); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// GetStats returns statistics about the journal
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:  s.config.BufferSize,
		PendingRuns: len(s.entries),
		WorkerCount: s.config.WorkerCount,
		Started:     s.started && !s.stopped,
		Written:     s.written.Load(),
		Failed:      s.failed.Load(),
		Dropped:     s.dropped.Load(),
	}
}

// Stats represents journal statistics
type Stats struct {
	BufferSize  int   `json:"buffer_size"`
	PendingRuns int   `json:"pending_runs"`
	WorkerCount int   `json:"worker_count"`
	Started     bool  `json:"started"`
	Written     int64 `json:"written"`
	Failed      int64 `json:"failed"`
	Dropped     int64 `json:"dropped"`
}

// NewEntry maps a run onto journal rows, one per attempt, preserving order
func NewEntry(requestID string, rec routing.RunRecord) *Entry {
	logs := make([]*models.AttemptLog, 0, len(rec.Attempts))
	for i, a := range rec.Attempts {
		log := models.NewAttemptLog(rec.RunID, i, a.Provider, a.Model, models.AttemptOutcome(a.Outcome)).
			WithRequest(requestID).
			WithLatency(a.Latency).
			WithError(a.Status, a.Detail)
		logs = append(logs, log)
	}
	return &Entry{RunID: rec.RunID, Logs: logs}
}
