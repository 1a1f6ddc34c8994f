package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/config"
	"github.com/upb/ak-van-sync/repositories"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db      *DB
	schemas config.SchemaConfig
	logger  *zap.Logger
}

// NewRepositoryFactory opens the warehouse and creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Warehouse, logger)
	if err != nil {
		return nil, err
	}
	return NewRepositoryFactoryFromDB(db, cfg.Schemas, logger), nil
}

// NewRepositoryFactoryFromDB creates a factory over an existing connection
func NewRepositoryFactoryFromDB(db *DB, schemas config.SchemaConfig, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, schemas: schemas, logger: logger}
}

// InitSchema creates the VAN-side tables when missing
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	return f.db.InitSchema(ctx, f.schemas.VAN)
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		SourceEvents: NewSourceEventRepository(f.db, f.schemas, f.logger),
		Events:       NewEventRepository(f.db, f.schemas.VAN, f.logger),
		EventStage:   NewEventStageRepository(f.db, f.schemas.VAN, f.logger),
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
