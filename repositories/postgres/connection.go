package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL / Redshift driver
	"go.uber.org/zap"

	"github.com/upb/ak-van-sync/config"
	"github.com/upb/ak-van-sync/models"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// NewDBFromSQL wraps an already-open pool
func NewDBFromSQL(db *sql.DB, logger *zap.Logger) *DB {
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

// InitSchema creates the events and events_stage tables in the VAN schema
// when they do not exist. The AK source table is never touched.
func (db *DB) InitSchema(ctx context.Context, vanSchema string) error {
	columns := `(
			van_event_id INTEGER NOT NULL,
			title VARCHAR(500),
			venue VARCHAR(255),
			address1 VARCHAR(255),
			address2 VARCHAR(255),
			city VARCHAR(255),
			state VARCHAR(16),
			zip VARCHAR(32),
			country VARCHAR(16),
			starts_at_utc TIMESTAMP,
			ends_at_utc TIMESTAMP,
			ak_event_id VARCHAR(64)
		)`

	statements := []string{
		"CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(vanSchema),
		"CREATE TABLE IF NOT EXISTS " + qualify(vanSchema, models.EventsTable) + " " + columns,
		"CREATE TABLE IF NOT EXISTS " + qualify(vanSchema, models.EventsStageTable) + " " + columns,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	db.logger.Info("warehouse schema initialized", zap.String("schema", vanSchema))
	return nil
}

// qualify returns a quoted schema.table reference
func qualify(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}
