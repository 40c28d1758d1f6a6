package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(db, logger), nil
}

// Wrap adapts an already opened pool
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// journalSchema creates the attempt journal. Only routing metadata is kept;
// conversation content never reaches the database.
const journalSchema = `
	CREATE TABLE IF NOT EXISTS attempt_logs (
		id UUID PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		request_id VARCHAR(255) NOT NULL DEFAULT '',
		seq INTEGER NOT NULL,
		provider VARCHAR(50) NOT NULL,
		model VARCHAR(255) NOT NULL,
		outcome VARCHAR(32) NOT NULL,
		status_code INTEGER,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_attempt_logs_run_id ON attempt_logs(run_id);
	CREATE INDEX IF NOT EXISTS idx_attempt_logs_request_id ON attempt_logs(request_id);
	CREATE INDEX IF NOT EXISTS idx_attempt_logs_timestamp ON attempt_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_attempt_logs_provider_outcome ON attempt_logs(provider, outcome);
`

// InitJournalSchema creates the attempt journal table and its indexes
func (db *DB) InitJournalSchema(ctx context.Context) error {
	db.logger.Info("initializing attempt journal schema")

	if _, err := db.ExecContext(ctx, journalSchema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	db.logger.Info("attempt journal schema initialized")
	return nil
}
