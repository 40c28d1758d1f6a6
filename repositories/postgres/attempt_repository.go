package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/models"
	"github.com/upb/llm-fallback-router/repositories"
)

const attemptColumns = `id, run_id, request_id, seq, provider, model, outcome,
		       status_code, latency_ms, error_message, timestamp`

// AttemptRepository implements repositories.AttemptRepository
type AttemptRepository struct {
	db     *DB
	tm     repositories.TransactionManager
	logger *zap.Logger
}

// NewAttemptRepository creates a new attempt repository
func NewAttemptRepository(db *DB, tm repositories.TransactionManager, logger *zap.Logger) *AttemptRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptRepository{db: db, tm: tm, logger: logger}
}

// Insert inserts a single attempt row
func (r *AttemptRepository) Insert(ctx context.Context, log *models.AttemptLog) error {
	query := `
		INSERT INTO attempt_logs (
			id, run_id, request_id, seq, provider, model, outcome,
			status_code, latency_ms, error_message, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.RunID,
		log.RequestID,
		log.Seq,
		log.Provider,
		log.Model,
		log.Outcome,
		log.StatusCode,
		log.LatencyMs,
		log.ErrorMessage,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt log: %w", err)
	}

	r.logger.Debug("attempt log inserted",
		zap.String("run_id", log.RunID),
		zap.Int("seq", log.Seq),
		zap.String("outcome", string(log.Outcome)),
	)
	return nil
}

// InsertRun writes all attempts of a run in one transaction
func (r *AttemptRepository) InsertRun(ctx context.Context, logs []*models.AttemptLog) error {
	if len(logs) == 0 {
		return nil
	}

	return r.tm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		for _, log := range logs {
			if err := r.Insert(ctx, log); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByRunID retrieves the attempts of a run in order
func (r *AttemptRepository) GetByRunID(ctx context.Context, runID string) ([]*models.AttemptLog, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM attempt_logs
		WHERE run_id = $1
		ORDER BY seq ASC
	`
	return r.queryAttempts(ctx, query, runID)
}

// GetByRequestID retrieves the attempts recorded for an inbound request
func (r *AttemptRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.AttemptLog, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM attempt_logs
		WHERE request_id = $1
		ORDER BY timestamp ASC, seq ASC
	`
	return r.queryAttempts(ctx, query, requestID)
}

// OutcomeCounts aggregates attempts per provider and outcome since a point in time
func (r *AttemptRepository) OutcomeCounts(ctx context.Context, since time.Time) ([]*models.OutcomeCount, error) {
	query := `
		SELECT provider, outcome, COUNT(*)
		FROM attempt_logs
		WHERE timestamp >= $1
		GROUP BY provider, outcome
		ORDER BY provider, outcome
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcome counts: %w", err)
	}
	defer rows.Close()

	var counts []*models.OutcomeCount
	for rows.Next() {
		c := &models.OutcomeCount{}
		if err := rows.Scan(&c.Provider, &c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome count rows: %w", err)
	}

	return counts, nil
}

func (r *AttemptRepository) queryAttempts(ctx context.Context, query string, args ...interface{}) ([]*models.AttemptLog, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempt logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AttemptLog
	for rows.Next() {
		log := &models.AttemptLog{}
		err := rows.Scan(
			&log.ID,
			&log.RunID,
			&log.RequestID,
			&log.Seq,
			&log.Provider,
			&log.Model,
			&log.Outcome,
			&log.StatusCode,
			&log.LatencyMs,
			&log.ErrorMessage,
			&log.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempt log rows: %w", err)
	}

	return logs, nil
}
