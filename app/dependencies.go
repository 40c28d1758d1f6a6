package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/upb/llm-fallback-router/config"
	"github.com/upb/llm-fallback-router/handlers"
	"github.com/upb/llm-fallback-router/internal/observability"
	"github.com/upb/llm-fallback-router/repositories"
	"github.com/upb/llm-fallback-router/repositories/postgres"
	"github.com/upb/llm-fallback-router/services/journal"
	"github.com/upb/llm-fallback-router/services/providers"
	"github.com/upb/llm-fallback-router/services/providers/catalog"
	"github.com/upb/llm-fallback-router/services/routing"
	"github.com/upb/llm-fallback-router/services/transport"
)

const defaultJournalStopTimeout = 10 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Fallback chain
	Providers *providers.Registry
	Invoker   *transport.Invoker
	Router    *routing.Service
	Metrics   *observability.Metrics

	// Attempt journal, nil when no database is configured
	RepoFactory *postgres.RepositoryFactory
	DB          *postgres.DB
	Attempts    repositories.AttemptRepository
	TxManager   repositories.TransactionManager
	Journal     *journal.Service

	httpClient *http.Client
}

// Option customizes dependency construction
type Option func(*Dependencies)

// WithJournalDB uses an already opened journal pool instead of dialing cfg.Journal
func WithJournalDB(db *postgres.DB) Option {
	return func(d *Dependencies) {
		d.DB = db
	}
}

// WithHTTPClient sets the client used for upstream provider calls
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dependencies) {
		d.httpClient = client
	}
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(deps)
	}

	if err := deps.initProviders(); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if cfg.Journal.Enabled || deps.DB != nil {
		if err := deps.initJournal(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize journal: %w", err)
		}
	}

	deps.initRouter()

	logger.Info("all dependencies initialized successfully",
		zap.Strings("providers", deps.Providers.ListProviders()),
		zap.Bool("journal", deps.Journal != nil))
	return deps, nil
}

// initProviders builds the registry and the bounded invoker
func (d *Dependencies) initProviders() error {
	registry, err := catalog.NewRegistry(d.Config)
	if err != nil {
		return err
	}

	for _, c := range registry.Candidates() {
		d.Logger.Debug("fallback candidate", zap.String("candidate", c.String()))
	}
	if registry.Count() == 0 {
		d.Logger.Warn("no LLM providers configured; completions will fail until an API key is set")
	}

	d.Providers = registry
	d.Invoker = transport.NewInvoker(d.httpClient, transport.Config{
		Timeout:           d.Config.Router.Timeout,
		MaxErrorBodyBytes: d.Config.Router.MaxErrorBodyBytes,
	}, d.Logger)
	return nil
}

// initJournal connects the attempt journal and starts its workers
func (d *Dependencies) initJournal(ctx context.Context) error {
	if d.DB != nil {
		d.RepoFactory = postgres.NewRepositoryFactoryFromDB(d.DB, d.Logger)
	} else {
		factory, err := postgres.NewRepositoryFactory(d.Config.Journal, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.RepoFactory = factory
		d.DB = factory.GetDB()
	}

	if err := d.RepoFactory.InitSchema(ctx); err != nil {
		_ = d.RepoFactory.Close()
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	repos := d.RepoFactory.NewRepositories()
	d.Attempts = repos.Attempts
	d.TxManager = repos.Transactions

	svc := journal.NewService(d.Attempts, d.Logger, journal.Config{
		BufferSize:  d.Config.Journal.BufferSize,
		WorkerCount: d.Config.Journal.WorkerCount,
	})
	if err := svc.Start(); err != nil {
		_ = d.RepoFactory.Close()
		return err
	}
	d.Journal = svc
	return nil
}

// initRouter wires the sequencer with its recorders
func (d *Dependencies) initRouter() {
	d.Metrics = observability.NewMetrics()

	recorders := routing.Recorders{d.Metrics}
	if d.Journal != nil {
		recorders = append(recorders, d.Journal)
	}

	d.Router = routing.NewService(routing.Config{
		SystemPrompt: d.Config.Router.SystemPrompt,
	}, d.Providers, d.Invoker, d.Logger).WithRecorder(recorders)
}

// SQLDB returns the journal pool for health checks, or nil when the journal is disabled
func (d *Dependencies) SQLDB() *sql.DB {
	if d.DB == nil {
		return nil
	}
	return d.DB.DB
}

// Close gracefully shuts down all dependencies. Queued journal writes are flushed
// before the database closes.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs error

	if d.Journal != nil {
		timeout := defaultJournalStopTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Journal.Stop(timeout); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to stop journal: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errs
}

// JournalReader returns the journal as a query source, or nil when the journal is disabled
func (d *Dependencies) JournalReader() handlers.JournalReader {
	if d.Journal == nil {
		return nil
	}
	return d.Journal
}
