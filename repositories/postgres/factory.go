package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/config"
	"github.com/upb/llm-fallback-router/repositories"
)

// RepositoryFactory owns the journal pool and the repositories built on it
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory connects to the journal database
func NewRepositoryFactory(cfg config.JournalConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return NewRepositoryFactoryFromDB(db, logger), nil
}

// NewRepositoryFactoryFromDB builds a factory on an existing pool
func NewRepositoryFactoryFromDB(db *DB, logger *zap.Logger) *RepositoryFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepositoryFactory{db: db, logger: logger}
}

// InitSchema creates the journal tables if they are missing
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	return f.db.InitJournalSchema(ctx)
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	tm := f.GetTransactionManager()
	return &repositories.Repositories{
		Attempts:     NewAttemptRepository(f.db, tm, f.logger),
		Transactions: tm,
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
