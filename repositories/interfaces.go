package repositories

import (
	"context"
	"time"

	"github.com/upb/llm-fallback-router/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// AttemptRepository handles attempt journal operations
type AttemptRepository interface {
	// Insert inserts a single attempt row
	Insert(ctx context.Context, log *models.AttemptLog) error

	// InsertRun inserts every attempt of one run atomically
	InsertRun(ctx context.Context, logs []*models.AttemptLog) error

	// GetByRunID retrieves the attempts of a run in order
	GetByRunID(ctx context.Context, runID string) ([]*models.AttemptLog, error)

	// GetByRequestID retrieves the attempts recorded for an inbound request
	GetByRequestID(ctx context.Context, requestID string) ([]*models.AttemptLog, error)

	// OutcomeCounts aggregates attempts per provider and outcome since a point in time
	OutcomeCounts(ctx context.Context, since time.Time) ([]*models.OutcomeCount, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Attempts     AttemptRepository
	Transactions TransactionManager
}
