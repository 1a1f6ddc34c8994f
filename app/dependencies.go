package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/config"
	"github.com/upb/ak-van-sync/internal/observability"
	"github.com/upb/ak-van-sync/repositories"
	"github.com/upb/ak-van-sync/repositories/postgres"
	"github.com/upb/ak-van-sync/services/credentials"
	"github.com/upb/ak-van-sync/services/eventtype"
	"github.com/upb/ak-van-sync/services/exporter"
	"github.com/upb/ak-van-sync/services/importer"
	"github.com/upb/ak-van-sync/services/report"
	"github.com/upb/ak-van-sync/services/van"
)

// Dependencies holds everything a pipeline run needs.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// VAN
	Credentials *credentials.Resolver
	EventTypes  *eventtype.Resolver
	VANFactory  van.Factory

	// Observability
	Metrics *observability.Metrics
	Reports *report.Store
}

// NewDependencies opens the warehouse and wires up all job dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return NewDependenciesWithFactory(ctx, cfg, factory, logger)
}

// NewDependenciesWithFactory wires dependencies over an already-open repository factory
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, factory); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()
	deps.initVAN(cfg)

	deps.Metrics = observability.NewMetrics()
	deps.Reports = report.NewStore()

	logger.Info("all dependencies initialized successfully",
		zap.Strings("regions", deps.Credentials.Regions()),
		zap.Int("event_types", len(cfg.EventTypes)))
	return deps, nil
}

// initDatabase checks the warehouse connection behind the factory
func (d *Dependencies) initDatabase(ctx context.Context, factory *postgres.RepositoryFactory) error {
	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.Repos = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()
	d.Logger.Debug("repositories initialized")
}

// initVAN builds the credential and event type resolvers and the client factory
func (d *Dependencies) initVAN(cfg *config.Config) {
	d.Credentials = credentials.NewResolver(cfg.Regions, cfg.VAN.AppName)
	d.EventTypes = eventtype.NewResolver(cfg.EventTypes, d.Logger)
	d.VANFactory = van.NewFactory(cfg.VAN, d.Logger)

	if len(d.Credentials.Regions()) == 0 {
		d.Logger.Warn("no regions have VAN credentials; every region will be skipped")
	}
}

// Importer creates an import pipeline over these dependencies
func (d *Dependencies) Importer() *importer.Importer {
	return importer.New(d.Repos, d.Credentials, d.EventTypes, d.VANFactory, d.Logger)
}

// Exporter creates an export pipeline over these dependencies
func (d *Dependencies) Exporter() *exporter.Exporter {
	return exporter.New(d.Repos, d.TxManager, d.Credentials, d.EventTypes, d.VANFactory, d.Config.Export.Lookback, d.Logger)
}

// Record stores a finished run and updates the metrics
func (d *Dependencies) Record(r *report.JobReport) {
	if r == nil {
		return
	}
	d.Reports.Record(r)
	d.Metrics.ObserveReport(r)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
